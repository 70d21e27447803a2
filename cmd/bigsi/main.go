// Copyright 2017, Kerby Shedden and the Muscato contributors.

// bigsi builds, freezes, and serves an inverted Bloom-filter index
// (BIGSI) over a collection of sequence "colours". Subcommands:
//
//	start   detach and run the daemon, watching a directory for new
//	        sequence files and querying them against a frozen index.
//	stop    signal a running daemon to terminate.
//	info    print the daemon's configuration and, if running, its pid.
//	sketch  offline: build a Bloom filter from a single sequence file,
//	        or (with -build) assemble and freeze a BIGSI from a
//	        directory of previously-saved sketch files.
//	shrink  offline: compact a frozen index's on-disk storage.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/profile"
	"github.com/will-rowe/bigsi/bigsi"
	"github.com/will-rowe/bigsi/config"
	"github.com/will-rowe/bigsi/daemon"
	"github.com/will-rowe/bigsi/sketch"
	"github.com/will-rowe/bigsi/storage"
	"github.com/willf/bloom"
)

func newFilter(numBits, numHash uint32) *bloom.BloomFilter {
	return bloom.New(uint(numBits), uint(numHash))
}

func main() {
	// config.ReadConfig panics on a bad config file; report that as a
	// one-line diagnostic with a non-zero exit, like any other error.
	defer func() {
		if r := recover(); r != nil {
			os.Stderr.WriteString(fmt.Sprint(r) + "\n")
			os.Exit(1)
		}
	}()

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "start":
		err = runStart(os.Args[2:])
	case "stop":
		err = runStop(os.Args[2:])
	case "info":
		err = runInfo(os.Args[2:])
	case "sketch":
		err = runSketch(os.Args[2:])
	case "shrink":
		err = runShrink(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func usage() {
	os.Stderr.WriteString("usage: bigsi <start|stop|info|sketch|shrink> [flags]\n")
}

// lockPath and logPath are derived deterministically from a
// configuration's LogDir, matching utils.Config's own "derived from
// the directory" convention for file names.
func lockPath(cfg *config.Record) string {
	return filepath.Join(cfg.LogDir, "bigsi.lock")
}

func logPath(cfg *config.Record) string {
	return filepath.Join(cfg.LogDir, "bigsi.log")
}

// runStart implements the start subcommand: detach, begin watching;
// exit 0 on successful daemonization (parent); the child runs until
// terminated (spec.md §6).
func runStart(args []string) error {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configFileName := fs.String("ConfigFileName", "", "JSON configuration file (required)")
	fs.Parse(args)

	if *configFileName == "" {
		return fmt.Errorf("start: ConfigFileName not provided")
	}

	if !daemon.IsDetachedChild() {
		pid, err := daemon.Daemonize()
		if err != nil {
			return fmt.Errorf("start: %w", err)
		}
		fmt.Printf("bigsi daemon started, pid %d\n", pid)
		return nil
	}

	cfg := config.ReadConfig(*configFileName)
	if cfg.LogDir == "" {
		dir, err := daemon.NewWorkDir(cfg.WorkingDirectory)
		if err != nil {
			return fmt.Errorf("start: %w", err)
		}
		cfg.LogDir = dir
	}
	if err := os.Chdir(cfg.WorkingDirectory); err != nil {
		return fmt.Errorf("start: chdir to %s: %w", cfg.WorkingDirectory, err)
	}
	if err := daemon.RedirectStdio(logPath(cfg)); err != nil {
		return fmt.Errorf("start: redirect stdio: %w", err)
	}

	logger := log.New(os.Stdout, "", log.Ltime)
	d := daemon.New(cfg, logger)
	d.MarkDetached()
	return d.Run(lockPath(cfg))
}

// runStop implements the stop subcommand: read pid from the lock
// file, send a termination signal, wait for the running flag (the
// lock file's continued existence) to clear.
func runStop(args []string) error {
	fs := flag.NewFlagSet("stop", flag.ExitOnError)
	configFileName := fs.String("ConfigFileName", "", "JSON configuration file (required)")
	fs.Parse(args)

	if *configFileName == "" {
		return fmt.Errorf("stop: ConfigFileName not provided")
	}
	cfg := config.ReadConfig(*configFileName)
	path := lockPath(cfg)

	pid, err := daemon.ReadPID(path)
	if err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	if err := daemon.Signal(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("stop: %w", err)
	}

	for i := 0; i < 100; i++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			fmt.Println("bigsi daemon stopped")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("stop: daemon did not stop within the expected window")
}

// runInfo implements the info subcommand: print either the pid or the
// full config record.
func runInfo(args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	configFileName := fs.String("ConfigFileName", "", "JSON configuration file (required)")
	pidOnly := fs.Bool("pid", false, "print only the daemon's pid")
	fs.Parse(args)

	if *configFileName == "" {
		return fmt.Errorf("info: ConfigFileName not provided")
	}
	cfg := config.ReadConfig(*configFileName)

	if *pidOnly {
		pid, err := daemon.ReadPID(lockPath(cfg))
		if err != nil {
			return fmt.Errorf("info: %w", err)
		}
		fmt.Println(pid)
		return nil
	}

	fmt.Printf("%+v\n", *cfg)
	if pid, err := daemon.ReadPID(lockPath(cfg)); err == nil {
		fmt.Printf("running, pid %d\n", pid)
	} else {
		fmt.Println("not running")
	}
	return nil
}

// runSketch implements the sketch subcommand. In its default mode it
// builds a single Bloom filter from one sequence file and writes it
// to disk. With -build, it instead loads every sketch file from a
// directory, assembles a BIGSI from them, and freezes it.
func runSketch(args []string) error {
	fs := flag.NewFlagSet("sketch", flag.ExitOnError)
	in := fs.String("in", "", "sequence file to sketch (FASTA/FASTQ, optionally .sz)")
	out := fs.String("out", "", "output sketch file")
	seqID := fs.String("seqID", "", "sequence ID to record for this sketch")
	kmerSize := fs.Int("KmerSize", 31, "k-mer window width")
	numBits := fs.Uint("NumBits", 8_000_000, "Bloom filter size, in bits (ignored if -BloomMaxElements is set)")
	numHash := fs.Uint("NumHash", 4, "number of hash functions (ignored if -BloomMaxElements is set)")
	bloomMaxElements := fs.Uint("BloomMaxElements", 0, "size the filter from an estimated element count instead of -NumBits/-NumHash")
	bloomFPRate := fs.Float64("BloomFPRate", 0.01, "target false-positive rate used with -BloomMaxElements")
	minDinuc := fs.Int("MinDinuc", 4, "minimum dinucleotide diversity required to sketch a window")
	hashSeed := fs.Int64("HashSeed", 1, "seed for the shared rolling-hash bank")
	buildDir := fs.String("build", "", "assemble+freeze a BIGSI from every sketch file in this directory")
	storageDir := fs.String("StorageDir", "", "BIGSI storage directory (used with -build)")
	cpuProfile := fs.Bool("CPUProfile", false, "capture CPU profile data")
	fs.Parse(args)

	if *cpuProfile {
		p := profile.Start(profile.ProfilePath("."))
		defer p.Stop()
	}

	if *buildDir != "" {
		if *storageDir == "" {
			return fmt.Errorf("sketch: StorageDir required with -build")
		}
		return buildFromSketches(*buildDir, *storageDir, uint32(*numBits), uint32(*numHash))
	}

	if *in == "" || *out == "" || *seqID == "" {
		return fmt.Errorf("sketch: -in, -out and -seqID are required")
	}

	bf := newFilter(uint32(*numBits), uint32(*numHash))
	if *bloomMaxElements > 0 {
		bf = bloom.NewWithEstimates(*bloomMaxElements, *bloomFPRate)
	}
	h := sketch.NewHasher(uint32(bf.K()), *hashSeed)

	r, err := sketch.NewSequenceReader(*in)
	if err != nil {
		return fmt.Errorf("sketch: %w", err)
	}
	defer r.Close()
	for r.Next() {
		if err := sketch.BuildFilter([]byte(r.Seq), *kmerSize, *minDinuc, h, bf); err != nil {
			return fmt.Errorf("sketch: %w", err)
		}
	}
	if err := r.Err(); err != nil {
		return fmt.Errorf("sketch: reading %s: %w", *in, err)
	}

	if err := sketch.SaveFilter(*out, *seqID, bf); err != nil {
		return fmt.Errorf("sketch: %w", err)
	}
	return nil
}

func buildFromSketches(dir, storageDir string, numBits, numHash uint32) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("sketch: reading %s: %w", dir, err)
	}

	b, err := bigsi.Init(numBits, numHash)
	if err != nil {
		return fmt.Errorf("sketch: %w", err)
	}

	var pairs []bigsi.SeqBloom
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		seqID, bf, err := sketch.LoadFilter(path)
		if err != nil {
			return fmt.Errorf("sketch: %w", err)
		}
		pairs = append(pairs, bigsi.SeqBloom{SeqID: seqID, BF: bf})
	}

	if err := b.Add(pairs, len(pairs)); err != nil {
		return fmt.Errorf("sketch: %w", err)
	}
	if err := b.Freeze(storageDir); err != nil {
		return fmt.Errorf("sketch: %w", err)
	}
	return b.Destroy()
}

// runShrink implements the offline shrink subcommand: compact a
// frozen index's on-disk storage without touching indexRows
// semantics.
func runShrink(args []string) error {
	fs := flag.NewFlagSet("shrink", flag.ExitOnError)
	storageDir := fs.String("StorageDir", "", "BIGSI storage directory to compact")
	fs.Parse(args)

	if *storageDir == "" {
		return fmt.Errorf("shrink: StorageDir not provided")
	}
	return storage.Compact(*storageDir)
}
