// Copyright 2017, Kerby Shedden and the Muscato contributors.

package sketch

import "github.com/golang-collections/go-datastructures/bitarray"

// CountDinuc returns the number of distinct dinucleotide subsequences
// (AA, AT, ..., and any pair touching a non-ACGT base) observed in
// seq. A window with few distinct dinucleotides is low-complexity and
// uninformative as a Bloom filter entry; callers compare the result
// against a minimum threshold before sketching a window.
//
// presence tracks which of the 25 possible dinucleotide codes (5
// symbol classes: A, T, G, C, other) have already been seen, so each
// is counted once.
func CountDinuc(seq []byte) int {
	presence := bitarray.NewBitArray(25)

	var last int
	var n int
	for i, x := range seq {
		v := baseClass(x)
		if i > 0 {
			k := uint64(5*last + v)
			set, err := presence.GetBit(k)
			if err == nil && !set {
				n++
				presence.SetBit(k)
			}
		}
		last = v
	}
	return n
}

func baseClass(x byte) int {
	switch x {
	case 'A':
		return 0
	case 'T':
		return 1
	case 'G':
		return 2
	case 'C':
		return 3
	default:
		return 4
	}
}
