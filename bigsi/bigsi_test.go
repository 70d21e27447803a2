// Copyright 2017, Kerby Shedden and the Muscato contributors.

package bigsi

import (
	"math/rand"
	"testing"

	"github.com/will-rowe/bigsi/bitvec"
	"github.com/willf/bloom"
)

// literalBF builds a willf/bloom filter of the given capacity and hash
// count with exactly the given bit positions set, bypassing its own
// hash functions so test scenarios can use the literal bit positions
// spec.md's end-to-end scenarios specify.
func literalBF(numBits, numHashes uint32, bits ...uint32) *bloom.BloomFilter {
	bf := bloom.New(uint(numBits), uint(numHashes))
	for _, i := range bits {
		bf.BitSet().Set(uint(i))
	}
	return bf
}

func buildS1(t *testing.T) (*BIGSI, string) {
	t.Helper()
	b, err := Init(16, 2)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	pairs := []SeqBloom{
		{SeqID: "A", BF: literalBF(16, 2, 3, 11)},
		{SeqID: "B", BF: literalBF(16, 2, 3, 7)},
	}
	if err := b.Add(pairs, 2); err != nil {
		t.Fatalf("Add: %v", err)
	}
	dir := t.TempDir()
	if err := b.Freeze(dir); err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	return b, dir
}

// S1. Build two colours, query a shared bit.
func TestScenarioS1(t *testing.T) {
	b, _ := buildS1(t)
	result := bitvec.New(b.ColourCount())
	if err := b.Query([]uint32{3, 3}, result); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if result.Capacity() != 2 || !result.Get(0) || !result.Get(1) {
		t.Fatalf("S1: got popcount %d bits (%v,%v), want both set", result.Popcount(), result.Get(0), result.Get(1))
	}
}

// S2. Query that excludes via AND.
func TestScenarioS2(t *testing.T) {
	b, _ := buildS1(t)
	result := bitvec.New(b.ColourCount())
	if err := b.Query([]uint32{11, 7}, result); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if result.Popcount() != 0 {
		t.Fatalf("S2: popcount = %d, want 0", result.Popcount())
	}
}

// S3. Empty row early exit.
func TestScenarioS3(t *testing.T) {
	b, err := Init(8, 1)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := b.Add([]SeqBloom{{SeqID: "A", BF: literalBF(8, 1, 0)}}, 1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := b.Freeze(t.TempDir()); err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	result := bitvec.New(b.ColourCount())
	if err := b.Query([]uint32{5}, result); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if result.Popcount() != 0 {
		t.Fatalf("S3: popcount = %d, want 0", result.Popcount())
	}
}

// S4. Duplicate rejection.
func TestScenarioS4(t *testing.T) {
	b, err := Init(8, 1)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	pairs := []SeqBloom{
		{SeqID: "A", BF: literalBF(8, 1, 0)},
		{SeqID: "A", BF: literalBF(8, 1, 1)},
	}
	if err := b.Add(pairs, 2); err == nil {
		t.Fatalf("expected DuplicateSequenceID error")
	} else if berr, ok := err.(*Error); !ok || berr.Kind != DuplicateSequenceID {
		t.Fatalf("got error %v, want DuplicateSequenceID", err)
	}
	if b.ColourCount() != 1 {
		t.Fatalf("ColourCount = %d, want 1", b.ColourCount())
	}
}

// S5. Round-trip on disk.
func TestScenarioS5(t *testing.T) {
	b, dir := buildS1(t)
	if err := b.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	result := bitvec.New(loaded.ColourCount())
	if err := loaded.Query([]uint32{3, 3}, result); err != nil {
		t.Fatalf("Query after load: %v", err)
	}
	if result.Capacity() != 2 || !result.Get(0) || !result.Get(1) {
		t.Fatalf("S5: result after load = popcount %d, want both colours set", result.Popcount())
	}
}

// S6. Capacity check.
func TestScenarioS6(t *testing.T) {
	b, _ := buildS1(t)
	result := bitvec.New(1)
	err := b.Query([]uint32{3, 3}, result)
	if err == nil {
		t.Fatalf("expected CapacityMismatch error")
	}
	berr, ok := err.(*Error)
	if !ok || berr.Kind != CapacityMismatch {
		t.Fatalf("got error %v, want CapacityMismatch", err)
	}
}

// P1. After Add returns ok, idChecker contains seqID and
// colourTable[colourIterator-1] == seqID.
func TestP1AddRecordsIdentity(t *testing.T) {
	b, err := Init(8, 1)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := b.Add([]SeqBloom{{SeqID: "X", BF: literalBF(8, 1, 2)}}, 1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, ok := b.idChecker["X"]; !ok {
		t.Fatalf("idChecker missing seqID X")
	}
	if b.colourTable[b.colourIterator-1] != "X" {
		t.Fatalf("colourTable[%d] = %q, want X", b.colourIterator-1, b.colourTable[b.colourIterator-1])
	}
}

// P2. Transposition correctness: bit c of indexRows[i] equals bit i of
// the original Bloom filter for colour c, verified with randomized
// filters and a small numBits.
func TestP2Transposition(t *testing.T) {
	const numBits = 24
	const numHashes = 3
	const numColours = 10

	r := rand.New(rand.NewSource(7))
	b, err := Init(numBits, numHashes)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	bitsByColour := make([][]bool, numColours)
	var pairs []SeqBloom
	for c := 0; c < numColours; c++ {
		bits := make([]bool, numBits)
		var set []uint32
		for i := 0; i < numBits; i++ {
			if r.Intn(2) == 0 {
				bits[i] = true
				set = append(set, uint32(i))
			}
		}
		if len(set) == 0 {
			set = append(set, 0)
			bits[0] = true
		}
		bitsByColour[c] = bits
		pairs = append(pairs, SeqBloom{SeqID: seqName(c), BF: literalBF(numBits, numHashes, set...)})
	}
	if err := b.Add(pairs, numColours); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := b.Freeze(t.TempDir()); err != nil {
		t.Fatalf("Freeze: %v", err)
	}

	for i := uint32(0); i < numBits; i++ {
		raw, err := b.store.GetRow(i)
		if err != nil {
			t.Fatalf("GetRow(%d): %v", i, err)
		}
		row, err := bitvec.Unmarshal(raw)
		if err != nil {
			t.Fatalf("Unmarshal row %d: %v", i, err)
		}
		for c := 0; c < numColours; c++ {
			if row.Get(uint32(c)) != bitsByColour[c][i] {
				t.Fatalf("row %d colour %d = %v, want %v", i, c, row.Get(uint32(c)), bitsByColour[c][i])
			}
		}
	}
}

func seqName(c int) string {
	return string(rune('a' + c))
}

// P3 (round-trip serialization) is covered directly in bitvec's own
// tests; BIGSI's freeze/load path exercises it end to end via P4/S5.

// P4. Persist/load: freeze, destroy, load, assert identical query
// results for a fixed hash set.
func TestP4PersistLoad(t *testing.T) {
	b, dir := buildS1(t)
	before := bitvec.New(b.ColourCount())
	if err := b.Query([]uint32{3, 11}, before); err != nil {
		t.Fatalf("Query before destroy: %v", err)
	}
	if err := b.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	after := bitvec.New(loaded.ColourCount())
	if err := loaded.Query([]uint32{3, 11}, after); err != nil {
		t.Fatalf("Query after load: %v", err)
	}
	if before.Popcount() != after.Popcount() {
		t.Fatalf("popcount mismatch before=%d after=%d", before.Popcount(), after.Popcount())
	}
	for i := uint32(0); i < before.Capacity(); i++ {
		if before.Get(i) != after.Get(i) {
			t.Fatalf("bit %d mismatch before=%v after=%v", i, before.Get(i), after.Get(i))
		}
	}
}

// P5. Query monotonicity: adding more hash positions never increases
// the match count.
func TestP5QueryMonotonicity(t *testing.T) {
	b, err := Init(32, 4)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	r := rand.New(rand.NewSource(3))
	var pairs []SeqBloom
	for c := 0; c < 12; c++ {
		var set []uint32
		for i := 0; i < 32; i++ {
			if r.Intn(2) == 0 {
				set = append(set, uint32(i))
			}
		}
		if len(set) == 0 {
			set = []uint32{uint32(c % 32)}
		}
		pairs = append(pairs, SeqBloom{SeqID: seqName(c), BF: literalBF(32, 4, set...)})
	}
	if err := b.Add(pairs, 12); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := b.Freeze(t.TempDir()); err != nil {
		t.Fatalf("Freeze: %v", err)
	}

	allHashes := []uint32{1, 2, 3, 4}
	prevPop := uint32(len(pairs))
	for n := 1; n <= len(allHashes); n++ {
		padded := make([]uint32, 4)
		copy(padded, allHashes[:n])
		for i := n; i < 4; i++ {
			padded[i] = allHashes[0]
		}
		result := bitvec.New(b.ColourCount())
		if err := b.Query(padded, result); err != nil {
			t.Fatalf("Query with %d distinct hashes: %v", n, err)
		}
		if result.Popcount() > prevPop {
			t.Fatalf("popcount increased with more constraints: %d -> %d", prevPop, result.Popcount())
		}
		prevPop = result.Popcount()
	}
}

// P6. Idempotence: two consecutive identical queries return identical
// results.
func TestP6QueryIdempotence(t *testing.T) {
	b, _ := buildS1(t)
	r1 := bitvec.New(b.ColourCount())
	r2 := bitvec.New(b.ColourCount())
	if err := b.Query([]uint32{3, 3}, r1); err != nil {
		t.Fatalf("Query 1: %v", err)
	}
	if err := b.Query([]uint32{3, 3}, r2); err != nil {
		t.Fatalf("Query 2: %v", err)
	}
	if r1.Popcount() != r2.Popcount() {
		t.Fatalf("popcount differs across identical queries")
	}
	for i := uint32(0); i < r1.Capacity(); i++ {
		if r1.Get(i) != r2.Get(i) {
			t.Fatalf("bit %d differs across identical queries", i)
		}
	}
}

// P7. Reject duplicates: state unchanged after a failed add.
func TestP7DuplicateLeavesStateUnchanged(t *testing.T) {
	b, err := Init(8, 1)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := b.Add([]SeqBloom{{SeqID: "x", BF: literalBF(8, 1, 0)}}, 1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	before := b.colourIterator
	if err := b.Add([]SeqBloom{{SeqID: "x", BF: literalBF(8, 1, 1)}}, 1); err == nil {
		t.Fatalf("expected error re-adding seqID x")
	}
	if b.colourIterator != before {
		t.Fatalf("colourIterator changed on failed add: before=%d after=%d", before, b.colourIterator)
	}
	if _, ok := b.idChecker["x"]; !ok {
		t.Fatalf("idChecker lost entry for x after failed add")
	}
}

func TestAddRejectsEmptyFilter(t *testing.T) {
	b, err := Init(8, 1)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	err = b.Add([]SeqBloom{{SeqID: "empty", BF: literalBF(8, 1)}}, 1)
	if err == nil {
		t.Fatalf("expected EmptyBloomFilter error")
	}
	if berr, ok := err.(*Error); !ok || berr.Kind != EmptyBloomFilter {
		t.Fatalf("got %v, want EmptyBloomFilter", err)
	}
}

func TestAddRejectsIncompatibleFilter(t *testing.T) {
	b, err := Init(8, 1)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	// Wrong capacity.
	err = b.Add([]SeqBloom{{SeqID: "bad", BF: literalBF(16, 1, 0)}}, 1)
	if err == nil {
		t.Fatalf("expected IncompatibleBloomFilter error for capacity mismatch")
	}
	if berr, ok := err.(*Error); !ok || berr.Kind != IncompatibleBloomFilter {
		t.Fatalf("got %v, want IncompatibleBloomFilter", err)
	}
}

func TestQueryBeforeFreezeFails(t *testing.T) {
	b, err := Init(8, 1)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	result := bitvec.New(0)
	err = b.Query([]uint32{0}, result)
	if err == nil {
		t.Fatalf("expected IndexUnfrozen error")
	}
	if berr, ok := err.(*Error); !ok || berr.Kind != IndexUnfrozen {
		t.Fatalf("got %v, want IndexUnfrozen", err)
	}
}

func TestLookupColourOutOfRange(t *testing.T) {
	b, _ := buildS1(t)
	if _, err := b.LookupColour(99); err == nil {
		t.Fatalf("expected error for out-of-range colour")
	}
	seqID, err := b.LookupColour(0)
	if err != nil {
		t.Fatalf("LookupColour(0): %v", err)
	}
	if seqID != "A" {
		t.Fatalf("LookupColour(0) = %q, want %q", seqID, "A")
	}
}
