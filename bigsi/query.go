// Copyright 2017, Kerby Shedden and the Muscato contributors.

package bigsi

import "github.com/will-rowe/bigsi/bitvec"

// Query answers a membership query: for each hash value, the
// corresponding row (hash mod numBits) is fetched and ANDed into
// result, which must start all-zero with capacity == colourIterator.
// On return, the set bits of result are exactly the colours whose
// Bloom filter would accept every one of the query's k-mer hashes.
//
// The AND chain is annihilated early: as soon as an empty row is
// encountered, result is cleared and Query returns immediately
// (spec.md §4.3).
func (b *BIGSI) Query(hashValues []uint32, result *bitvec.BitVector) error {
	if !b.frozen {
		return newErr(IndexUnfrozen, "query called before freeze/load")
	}
	if result == nil {
		return newErr(NullArgument, "result vector is nil")
	}
	if len(hashValues) != int(b.numHashes) {
		return newErr(HashCountMismatch, "got %d hash values, want %d", len(hashValues), b.numHashes)
	}
	if result.Capacity() != b.colourIterator {
		return newErr(CapacityMismatch, "result capacity %d != colourIterator %d", result.Capacity(), b.colourIterator)
	}

	positions := make([]uint32, len(hashValues))
	for i, h := range hashValues {
		positions[i] = h % b.numBits
	}
	return b.queryPositions(positions, result)
}

// queryPositions runs the AND-chain over already-reduced row
// positions (hash values already taken modulo numBits), shared by
// Query and the Load self-check.
func (b *BIGSI) queryPositions(positions []uint32, result *bitvec.BitVector) error {
	result.Clear()
	for i, pos := range positions {
		raw, err := b.store.GetRow(pos)
		if err != nil {
			return wrapErr(StorageError, err, "fetching row %d", pos)
		}
		row, err := bitvec.Unmarshal(raw)
		if err != nil {
			return wrapErr(SerializationError, err, "decoding row %d", pos)
		}
		if row.Capacity() != result.Capacity() {
			return newErr(CapacityMismatch, "row %d capacity %d != result capacity %d", pos, row.Capacity(), result.Capacity())
		}

		if row.Popcount() == 0 {
			result.Clear()
			return nil
		}

		if i == 0 {
			if err := bitvec.OR(row, bitvec.New(result.Capacity()), result); err != nil {
				return wrapErr(BitwiseOpFailure, err, "seeding result from row %d", pos)
			}
			continue
		}

		if err := bitvec.ANDInto(result, row); err != nil {
			return wrapErr(BitwiseOpFailure, err, "ANDing row %d into result", pos)
		}
		if result.Popcount() == 0 {
			return nil
		}
	}
	return nil
}

// LookupColour resolves a colour ID to its owned sequence-ID string.
func (b *BIGSI) LookupColour(colour uint32) (string, error) {
	if !b.frozen {
		return "", newErr(IndexUnfrozen, "lookupColour called before freeze/load")
	}
	if colour >= b.colourIterator {
		return "", newErr(NullArgument, "colour %d out of range [0, %d)", colour, b.colourIterator)
	}
	seqID, err := b.store.GetColour(colour)
	if err != nil {
		return "", wrapErr(StorageError, err, "fetching colour %d", colour)
	}
	return seqID, nil
}
