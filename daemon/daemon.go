// Copyright 2017, Kerby Shedden and the Muscato contributors.

package daemon

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/will-rowe/bigsi/bigsi"
	"github.com/will-rowe/bigsi/bitvec"
	"github.com/will-rowe/bigsi/config"
	"github.com/will-rowe/bigsi/sketch"
	"github.com/will-rowe/bigsi/watcher"
	"github.com/will-rowe/bigsi/worker"
)

// Daemon binds a directory watcher to a worker pool and runs the
// INIT -> DETACHED -> RUNNING -> STOPPING -> STOPPED state machine
// described in spec.md §4.5.
type Daemon struct {
	cfg    *config.Record
	logger *log.Logger
	lock   *Lock

	state     stateBox
	terminate atomic.Bool

	index   *bigsi.BIGSI
	hasher  *sketch.Hasher
	pool    *worker.Pool
	watch   *watcher.Watcher
}

// New constructs a Daemon in the INIT state for the given
// configuration. It does not yet daemonize, open storage, or start
// the pool/watcher; call Run for that.
func New(cfg *config.Record, logger *log.Logger) *Daemon {
	d := &Daemon{cfg: cfg, logger: logger}
	d.state.set(Init)
	return d
}

// State returns the daemon's current lifecycle state.
func (d *Daemon) State() State {
	return d.state.get()
}

// MarkDetached transitions INIT -> DETACHED. Call this once the
// current process is confirmed to be the re-exec'd, setsid'd child
// (see Daemonize/IsDetachedChild) and stdio has been redirected.
func (d *Daemon) MarkDetached() {
	d.state.set(Detached)
}

// Terminating reports whether the termination flag has been set. The
// flag is single-writer (the signal-wait goroutine in Run) and may be
// read from any goroutine, per spec.md §5's "Termination flag:
// single-writer (signal handler), single-reader (main)" policy,
// generalized here to any reader since State()/Terminating() are
// meant to be observed from tests and future task code alike.
func (d *Daemon) Terminating() bool {
	return d.terminate.Load()
}

// Run opens the frozen BIGSI at cfg.StorageDir, starts the worker pool
// and the directory watcher, writes the pid/running handshake into
// lockPath, and blocks until a termination signal is delivered. After
// a signal it returns in the STOPPED state, releasing every acquired
// resource even when a shutdown step fails (spec.md §4.5's "terminal
// transitions always release resources" rule). A setup error releases
// whatever had been acquired and returns without changing the state.
func (d *Daemon) Run(lockPath string) error {
	index, err := bigsi.Load(d.cfg.StorageDir)
	if err != nil {
		return fmt.Errorf("daemon: load index: %w", err)
	}
	d.index = index
	d.hasher = sketch.NewHasher(uint32(d.cfg.NumHash), d.cfg.HashSeed)

	lock, err := Acquire(lockPath)
	if err != nil {
		index.Destroy()
		return fmt.Errorf("daemon: acquire lock: %w", err)
	}
	d.lock = lock
	if err := lock.WritePID(os.Getpid()); err != nil {
		lock.Release()
		index.Destroy()
		return fmt.Errorf("daemon: write pid: %w", err)
	}

	d.pool = worker.New(d.cfg.NumWorkers)

	w, err := watcher.Start(d.cfg.WatchDirectory, d.pool, d.logger, d.handleEvent)
	if err != nil {
		d.pool.Destroy()
		lock.Release()
		index.Destroy()
		return fmt.Errorf("daemon: start watcher: %w", err)
	}
	d.watch = w
	d.state.set(Running)
	if d.logger != nil {
		d.logger.Printf("daemon running, watching %s", d.cfg.WatchDirectory)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGTERM, syscall.SIGINT)
	<-sigc
	d.terminate.Store(true)

	return d.shutdown()
}

func (d *Daemon) shutdown() error {
	d.state.set(Stopping)
	if d.logger != nil {
		d.logger.Printf("stopping")
	}

	var firstErr error
	note := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if d.watch != nil {
		note(d.watch.Stop())
	}
	if d.pool != nil {
		d.pool.Wait()
		d.pool.Destroy()
	}
	if d.index != nil {
		note(d.index.Destroy())
	}
	if d.lock != nil {
		note(d.lock.Release())
	}

	d.state.set(Stopped)
	if d.logger != nil {
		d.logger.Printf("stopped")
	}
	return firstErr
}

// handleEvent is the watcher callback: for create and write events it
// submits a task to the pool that reads the file and, for each record
// at least KmerSize long, hashes the record's first KmerSize bases and
// queries that one k-mer against the running index, logging how many
// colours match. No Bloom filter is built for the record, its other
// k-mers are not queried, and the matching colour IDs are not logged.
func (d *Daemon) handleEvent(event fsnotify.Event, pool *worker.Pool) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	path := event.Name
	pool.Submit(func() {
		if err := d.sketchAndQuery(path); err != nil && d.logger != nil {
			d.logger.Printf("error processing %s: %v", path, err)
		}
	})
}

func (d *Daemon) sketchAndQuery(path string) error {
	r, err := sketch.NewSequenceReader(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer r.Close()

	for r.Next() {
		window := []byte(r.Seq)
		kmerSize := d.cfg.KmerSize
		if len(window) < kmerSize {
			continue
		}
		positions, err := d.hasher.Positions(window[:kmerSize], d.index.NumBits())
		if err != nil {
			return fmt.Errorf("hashing %s: %w", r.Name, err)
		}
		result := bitvec.New(d.index.ColourCount())
		if err := d.index.Query(positions, result); err != nil {
			return fmt.Errorf("querying %s: %w", r.Name, err)
		}
		if d.logger != nil && result.Popcount() > 0 {
			d.logger.Printf("%s: %d matching colour(s) in %s", filepath.Base(path), result.Popcount(), r.Name)
		}
	}
	return r.Err()
}
