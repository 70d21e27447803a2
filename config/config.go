// Copyright 2017, Kerby Shedden and the Muscato contributors.

// Package config defines the flat, JSON-persisted configuration
// record shared between the bigsi CLI subcommands and the daemon,
// modeled directly on utils.Config / utils.ReadConfig.
package config

import (
	"encoding/json"
	"os"
)

// Record is the daemon/CLI handshake document. Only static
// configuration lives here; the live pid and running flag are
// tracked separately in a sibling lock file (see package daemon),
// per spec.md §9's note that a future revision should add locking
// between config writers and readers.
type Record struct {

	// Path to this configuration file itself, so CLI subcommands
	// that load a Record can re-save it in place.
	ConfigFilePath string

	// Directory the daemon watches for new sequence files.
	WatchDirectory string

	// Directory the daemon changes into after detaching, and where
	// the BIGSI storage directory and log file live by default.
	WorkingDirectory string

	// k-mer width used when sketching new sequence files.
	KmerSize int

	// Number of independent hash functions per Bloom filter.
	NumHash int

	// Target false-positive rate used when sizing a new Bloom
	// filter from an element-count estimate.
	BloomFPRate float64

	// Expected maximum number of k-mers per sequence, used together
	// with BloomFPRate to size a new Bloom filter.
	BloomMaxElements uint

	// Total bits per Bloom filter / BIGSI row count. Fixed once a
	// BIGSI has been initialized.
	NumBits uint32

	// Minimum dinucleotide diversity required to sketch a k-mer
	// window; see sketch.CountDinuc.
	MinDinuc int

	// Deterministic seed for the rolling-hash bank shared by every
	// colour's sketch and by queries (sketch.NewHasher).
	HashSeed int64

	// Number of worker-pool goroutines the daemon runs.
	NumWorkers int

	// Directory the daemon's BIGSI is persisted to / loaded from.
	StorageDir string

	// Directory where the daemon's log file and lock file live.
	LogDir string
}

// ReadConfig loads and decodes filename, panicking on any failure, as
// utils.ReadConfig does; its callers are expected to treat a bad
// config file as fatal at startup.
func ReadConfig(filename string) *Record {
	fid, err := os.Open(filename)
	if err != nil {
		panic(err)
	}
	defer fid.Close()
	dec := json.NewDecoder(fid)
	rec := new(Record)
	if err := dec.Decode(rec); err != nil {
		panic(err)
	}
	return rec
}

// Save writes rec to filename as indented JSON, matching
// cmd/muscato/muscato.go's saveConfig.
func (rec *Record) Save(filename string) error {
	fid, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer fid.Close()
	enc := json.NewEncoder(fid)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}
