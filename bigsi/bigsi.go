// Copyright 2017, Kerby Shedden and the Muscato contributors.

// Package bigsi implements the BIGSI (BItsliced Genome Signature
// Index) data structure: construction from per-colour Bloom filters,
// freezing into a column-major row store, querying by hash position,
// and persistence to / loading from disk.
//
// A single BIGSI build is expected to be driven by one goroutine:
// idChecker, buildRows and colourTable are mutated without locking, in
// keeping with the single-writer build discipline a growable owned
// sequence needs during construction. Queries against a frozen BIGSI
// are safe for concurrent callers; the persistence layer below serves
// concurrent readers on its own.
package bigsi

import (
	"github.com/will-rowe/bigsi/bitvec"
	"github.com/will-rowe/bigsi/storage"
	"github.com/willf/bloom"
)

// MaxColours bounds colourIterator; see design note Q4.
const MaxColours = 1<<31 - 1

// BIGSI is the inverted Bloom-filter index.
type BIGSI struct {
	numBits   uint32
	numHashes uint32

	colourIterator uint32
	frozen         bool

	idChecker   map[string]uint32
	colourTable []string

	buildRows []*bitvec.BitVector

	store *storage.Store
	dir   string
}

// Init returns an empty BIGSI ready to accept adds. numBits and
// numHashes must both be positive; they are shared by every colour's
// Bloom filter.
func Init(numBits, numHashes uint32) (*BIGSI, error) {
	if numBits == 0 {
		return nil, newErr(NullArgument, "numBits must be > 0")
	}
	if numHashes == 0 {
		return nil, newErr(NullArgument, "numHashes must be > 0")
	}
	return &BIGSI{
		numBits:   numBits,
		numHashes: numHashes,
		idChecker: make(map[string]uint32),
	}, nil
}

// NumBits returns the bits-per-Bloom-filter shared by every colour.
func (b *BIGSI) NumBits() uint32 { return b.numBits }

// NumHashes returns the hash count shared by every colour's filter.
func (b *BIGSI) NumHashes() uint32 { return b.numHashes }

// ColourCount returns the current colour count (colourIterator).
func (b *BIGSI) ColourCount() uint32 { return b.colourIterator }

// Frozen reports whether freeze (or Load) has run.
func (b *BIGSI) Frozen() bool { return b.frozen }

// bfPopcount reads a willf/bloom filter's popcount via its bit set's
// Count(); Add reads numHashes via K() and capacity via Cap().
func bfPopcount(bf *bloom.BloomFilter) uint32 {
	return uint32(bf.BitSet().Count())
}

// Add inserts the (seqID, bf) pairs from ids, in iteration order, as
// new colours. expectedCount must equal len(ids); a mismatch (or any
// per-pair rejection) aborts the call, leaving already-accepted
// colours from this and prior calls in place — the caller is expected
// to destroy the BIGSI on error, per spec.md's "no partial salvage"
// rule.
func (b *BIGSI) Add(ids []SeqBloom, expectedCount int) error {
	if b.frozen {
		return newErr(IndexUnfrozen, "cannot add after freeze")
	}
	if len(ids) != expectedCount {
		return newErr(NullArgument, "expectedCount %d does not match %d supplied pairs", expectedCount, len(ids))
	}
	for _, pair := range ids {
		if _, ok := b.idChecker[pair.SeqID]; ok {
			return newErr(DuplicateSequenceID, "sequence ID %q already present", pair.SeqID)
		}
		if pair.BF == nil {
			return newErr(NullArgument, "nil Bloom filter for sequence ID %q", pair.SeqID)
		}
		pc := bfPopcount(pair.BF)
		if pc == 0 {
			return newErr(EmptyBloomFilter, "Bloom filter for sequence ID %q has popcount 0", pair.SeqID)
		}
		if pair.BF.K() != uint(b.numHashes) {
			return newErr(IncompatibleBloomFilter, "sequence ID %q: numHashes %d != %d", pair.SeqID, pair.BF.K(), b.numHashes)
		}
		if uint32(pair.BF.Cap()) != b.numBits {
			return newErr(IncompatibleBloomFilter, "sequence ID %q: capacity %d != %d", pair.SeqID, pair.BF.Cap(), b.numBits)
		}
		if b.colourIterator+1 >= MaxColours {
			return newErr(ColourLimitExceeded, "adding sequence ID %q would reach MaxColours (%d)", pair.SeqID, MaxColours)
		}

		row := bitSetToVector(pair.BF, b.numBits)
		b.buildRows = append(b.buildRows, row)
		b.colourTable = append(b.colourTable, pair.SeqID)
		b.idChecker[pair.SeqID] = b.colourIterator
		b.colourIterator++
	}
	return nil
}

// bitSetToVector clones a willf/bloom filter's bit set into our own
// bitvec.BitVector, the clone buildRows §4.1 step 3 calls for.
func bitSetToVector(bf *bloom.BloomFilter, numBits uint32) *bitvec.BitVector {
	v := bitvec.New(numBits)
	bs := bf.BitSet()
	for i := uint32(0); i < numBits; i++ {
		if bs.Test(uint(i)) {
			v.Set(i, true)
		}
	}
	return v
}

// SeqBloom pairs a sequence ID with the Bloom filter built from its
// k-mer set, the unit Add consumes.
type SeqBloom struct {
	SeqID string
	BF    *bloom.BloomFilter
}

// Destroy releases a BIGSI's resources. Before freeze this just drops
// the transient build-phase slices; after freeze it persists metadata
// and closes the storage handle (destroy-after-freeze is
// persist-and-close, per spec.md §4.4).
func (b *BIGSI) Destroy() error {
	if !b.frozen {
		b.buildRows = nil
		b.idChecker = nil
		b.colourTable = nil
		return nil
	}
	if b.store == nil {
		return nil
	}
	if err := storage.WriteMeta(b.dir, b.meta()); err != nil {
		return wrapErr(SerializationError, err, "writing metadata on destroy")
	}
	if err := b.store.Close(); err != nil {
		return wrapErr(StorageError, err, "closing store on destroy")
	}
	b.store = nil
	return nil
}

func (b *BIGSI) meta() *storage.Meta {
	return &storage.Meta{
		StorageDir:      b.dir,
		RowStoreFile:    "bitvectors.db",
		ColourStoreFile: "bitvectors.db",
		NumBits:         b.numBits,
		NumHashes:       b.numHashes,
		ColourIterator:  b.colourIterator,
	}
}
