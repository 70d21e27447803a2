// Copyright 2017, Kerby Shedden and the Muscato contributors.

package sketch

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/will-rowe/bigsi/bitvec"
	"github.com/willf/bloom"
)

// SaveFilter writes a Bloom filter sketch to path: a length-prefixed
// sequence ID, the hash count, then the filter's bit vector in
// bitvec's own wire format. This lets the offline `sketch` CLI
// subcommand produce one file per sequence, to be fed as a batch into
// a later build+freeze pass, mirroring the teacher's own practice of
// chaining separate offline tools through intermediate files
// (muscato_screen's bmatch files, muscato_confirm's inputs).
func SaveFilter(path string, seqID string, bf *bloom.BloomFilter) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("sketch: create %s: %w", path, err)
	}
	defer f.Close()

	idLen := make([]byte, 4)
	binary.LittleEndian.PutUint32(idLen, uint32(len(seqID)))
	if _, err := f.Write(idLen); err != nil {
		return fmt.Errorf("sketch: write seqID length: %w", err)
	}
	if _, err := f.WriteString(seqID); err != nil {
		return fmt.Errorf("sketch: write seqID: %w", err)
	}

	hashCount := make([]byte, 4)
	binary.LittleEndian.PutUint32(hashCount, uint32(bf.K()))
	if _, err := f.Write(hashCount); err != nil {
		return fmt.Errorf("sketch: write hash count: %w", err)
	}

	vec := bitvec.New(uint32(bf.Cap()))
	bs := bf.BitSet()
	for i := uint32(0); i < vec.Capacity(); i++ {
		if bs.Test(uint(i)) {
			vec.Set(i, true)
		}
	}
	if _, err := f.Write(vec.Marshal()); err != nil {
		return fmt.Errorf("sketch: write bit vector: %w", err)
	}
	return nil
}

// LoadFilter reads a sketch file written by SaveFilter and
// reconstructs the sequence ID and Bloom filter.
func LoadFilter(path string) (seqID string, bf *bloom.BloomFilter, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("sketch: read %s: %w", path, err)
	}
	if len(data) < 8 {
		return "", nil, fmt.Errorf("sketch: %s too short to be a sketch file", path)
	}
	idLen := binary.LittleEndian.Uint32(data[0:4])
	if uint32(len(data)) < 4+idLen+4 {
		return "", nil, fmt.Errorf("sketch: %s truncated seqID", path)
	}
	seqID = string(data[4 : 4+idLen])
	offset := 4 + idLen
	numHashes := binary.LittleEndian.Uint32(data[offset : offset+4])
	offset += 4

	vec, err := bitvec.Unmarshal(data[offset:])
	if err != nil {
		return "", nil, fmt.Errorf("sketch: %s: %w", path, err)
	}

	bf = bloom.New(uint(vec.Capacity()), uint(numHashes))
	bs := bf.BitSet()
	for i := uint32(0); i < vec.Capacity(); i++ {
		if vec.Get(i) {
			bs.Set(uint(i))
		}
	}
	return seqID, bf, nil
}
