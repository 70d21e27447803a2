// Copyright 2017, Kerby Shedden and the Muscato contributors.

package bigsi

import (
	"github.com/will-rowe/bigsi/bitvec"
	"github.com/will-rowe/bigsi/storage"
)

// Freeze transposes the build-phase, row-major buildRows into
// column-major index rows, persists them, and releases the transient
// build state. dir is the directory that will hold the on-disk store;
// it is created if missing.
//
// Complexity is O(numBits * colourIterator) bit probes: a cache-blocked
// transpose is explicitly out of scope (spec.md §4.2, §9), so this
// straightforward double loop is the whole algorithm.
func (b *BIGSI) Freeze(dir string) error {
	if b.frozen {
		return newErr(IndexUnfrozen, "already frozen")
	}
	if b.colourIterator == 0 {
		return newErr(NullArgument, "cannot freeze an empty BIGSI (colourIterator == 0)")
	}

	store, err := storage.Open(dir, true)
	if err != nil {
		return wrapErr(StorageError, err, "opening row/colour store for freeze")
	}

	for i := uint32(0); i < b.numBits; i++ {
		row := bitvec.New(b.colourIterator)
		for c := uint32(0); c < b.colourIterator; c++ {
			if b.buildRows[c].Get(i) {
				row.Set(c, true)
			}
		}
		if err := store.PutRow(i, row.Marshal()); err != nil {
			store.Close()
			return wrapErr(StorageError, err, "persisting row %d", i)
		}
	}

	for c := uint32(0); c < b.colourIterator; c++ {
		if err := store.PutColour(c, b.colourTable[c]); err != nil {
			store.Close()
			return wrapErr(StorageError, err, "persisting colour %d", c)
		}
	}

	if err := storage.WriteMeta(dir, b.meta()); err != nil {
		store.Close()
		return wrapErr(SerializationError, err, "writing metadata on freeze")
	}

	b.dir = dir
	b.store = store
	b.buildRows = nil
	b.idChecker = nil
	b.frozen = true
	return nil
}

// Load opens a previously frozen BIGSI's on-disk directory and
// returns a BIGSI in the post-freeze state, per I6: indistinguishable
// in observable behavior from the instance that produced it.
//
// A self-check is performed: the highest numHashes row positions
// (numBits-1, numBits-2, ...) are queried; any non-error return
// (including an empty result) signals a healthy store, per spec.md
// §4.4.
func Load(dir string) (*BIGSI, error) {
	meta, err := storage.ReadMeta(dir)
	if err != nil {
		return nil, wrapErr(SerializationError, err, "reading metadata for load")
	}
	store, err := storage.Open(dir, false)
	if err != nil {
		return nil, wrapErr(StorageError, err, "opening row/colour store for load")
	}

	b := &BIGSI{
		numBits:        meta.NumBits,
		numHashes:      meta.NumHashes,
		colourIterator: meta.ColourIterator,
		frozen:         true,
		store:          store,
		dir:            dir,
	}

	n := b.numHashes
	if n > b.numBits {
		n = b.numBits
	}
	hashes := make([]uint32, n)
	for i := uint32(0); i < n; i++ {
		hashes[i] = b.numBits - 1 - i
	}
	result := bitvec.New(b.colourIterator)
	if err := b.queryPositions(hashes, result); err != nil {
		store.Close()
		return nil, wrapErr(StorageError, err, "self-check query failed on load")
	}

	return b, nil
}
