// Copyright 2017, Kerby Shedden and the Muscato contributors.

// Package sketch turns a sequence into the Bloom filter BIGSI expects
// for one colour, by sliding a k-mer window across it and hashing
// each high-entropy window with a bank of independent rolling hash
// functions.
package sketch

import (
	"math/rand"

	"github.com/chmduquesne/rollinghash"
	"github.com/chmduquesne/rollinghash/buzhash32"
	"github.com/willf/bloom"
)

// Hasher owns the bank of independent buzhash32 hash-function tables
// shared by every colour's sketch and by queries against the frozen
// index. The tables are seeded deterministically so that a build and
// a later query against the same BIGSI agree on hash positions,
// unlike muscato_screen's genTables (which seeds from an unseeded
// process-global rand and only needs internal consistency within one
// run).
type Hasher struct {
	tables [][256]uint32
}

// NewHasher builds numHashes independent base-hash tables from seed.
func NewHasher(numHashes uint32, seed int64) *Hasher {
	r := rand.New(rand.NewSource(seed))
	tables := make([][256]uint32, numHashes)
	for j := range tables {
		seen := make(map[uint32]bool)
		for i := 0; i < 256; i++ {
			for {
				x := uint32(r.Int63())
				if !seen[x] {
					tables[j][i] = x
					seen[x] = true
					break
				}
			}
		}
	}
	return &Hasher{tables: tables}
}

// NumHashes returns the number of independent hash functions.
func (h *Hasher) NumHashes() uint32 {
	return uint32(len(h.tables))
}

func (h *Hasher) newRollers() []rollinghash.Hash32 {
	hashes := make([]rollinghash.Hash32, len(h.tables))
	for j := range hashes {
		hashes[j] = buzhash32.NewFromUint32Array(h.tables[j])
	}
	return hashes
}

// Positions hashes window with every one of the hasher's rolling hash
// functions and returns each result modulo numBits, the set of bit
// positions a Bloom filter of that capacity would set for window.
func (h *Hasher) Positions(window []byte, numBits uint32) ([]uint32, error) {
	hashes := h.newRollers()
	out := make([]uint32, len(hashes))
	for j, ha := range hashes {
		if _, err := ha.Write(window); err != nil {
			return nil, err
		}
		out[j] = uint32(ha.Sum32()) % numBits
	}
	return out, nil
}

// BuildFilter slides a kmerSize-wide window across every offset in
// seq, skips windows whose dinucleotide diversity falls below
// minDinuc, and sets bf's bit positions for every surviving window
// using h. This mirrors muscato_screen.go's buildBloom, generalized
// from a handful of fixed offsets to full k-mer tiling (BIGSI indexes
// a sequence's whole k-mer set, not a read's fixed screening windows)
// and from a raw bitarray sketch to a real willf/bloom.BloomFilter.
func BuildFilter(seq []byte, kmerSize int, minDinuc int, h *Hasher, bf *bloom.BloomFilter) error {
	if len(seq) < kmerSize {
		return nil
	}
	bs := bf.BitSet()
	numBits := uint32(bf.Cap())

	for q1 := 0; q1+kmerSize <= len(seq); q1++ {
		window := seq[q1 : q1+kmerSize]
		if CountDinuc(window) < minDinuc {
			continue
		}
		positions, err := h.Positions(window, numBits)
		if err != nil {
			return err
		}
		for _, p := range positions {
			bs.Set(uint(p))
		}
	}
	return nil
}
