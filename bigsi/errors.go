// Copyright 2017, Kerby Shedden and the Muscato contributors.

package bigsi

import "fmt"

// Kind identifies the category of a bigsi error, mirroring the
// taxonomy an inverted Bloom-filter index needs to report: arguments
// rejected at the boundary, invariant violations, and storage-layer
// failures.
type Kind int

const (
	// NullArgument indicates a required pointer/handle was absent, or
	// an argument was otherwise rejected at the boundary: a zero
	// numBits/numHashes, an expectedCount that disagrees with the
	// supplied pairs, a freeze with no colours, or a colour out of
	// range.
	NullArgument Kind = iota
	// IndexUnfrozen indicates query or lookupColour was called
	// before freeze or load. Add and Freeze also report it when
	// called on a BIGSI that is already frozen.
	IndexUnfrozen
	// HashCountMismatch indicates a query's hash count did not
	// equal numHashes.
	HashCountMismatch
	// CapacityMismatch indicates a result vector's capacity did not
	// equal colourIterator.
	CapacityMismatch
	// DuplicateSequenceID indicates add was called with a sequence
	// ID already present in idChecker.
	DuplicateSequenceID
	// IncompatibleBloomFilter indicates a Bloom filter's numHashes
	// or vector capacity disagreed with the BIGSI's own.
	IncompatibleBloomFilter
	// EmptyBloomFilter indicates a Bloom filter with popcount 0.
	EmptyBloomFilter
	// ColourLimitExceeded indicates colourIterator would reach
	// MaxColours.
	ColourLimitExceeded
	// StorageError indicates a failure from the key-value engine
	// (open, put, get, close).
	StorageError
	// SerializationError indicates a JSON read/write failure.
	SerializationError
	// BitwiseOpFailure indicates an OR/AND on mismatched vectors.
	BitwiseOpFailure
	// WatcherError indicates a filesystem watcher init, path add,
	// start, stop, or destroy failure.
	WatcherError
	// ThreadError indicates a worker or watcher goroutine failed to
	// start or be joined.
	ThreadError
)

func (k Kind) String() string {
	switch k {
	case NullArgument:
		return "NullArgument"
	case IndexUnfrozen:
		return "IndexUnfrozen"
	case HashCountMismatch:
		return "HashCountMismatch"
	case CapacityMismatch:
		return "CapacityMismatch"
	case DuplicateSequenceID:
		return "DuplicateSequenceID"
	case IncompatibleBloomFilter:
		return "IncompatibleBloomFilter"
	case EmptyBloomFilter:
		return "EmptyBloomFilter"
	case ColourLimitExceeded:
		return "ColourLimitExceeded"
	case StorageError:
		return "StorageError"
	case SerializationError:
		return "SerializationError"
	case BitwiseOpFailure:
		return "BitwiseOpFailure"
	case WatcherError:
		return "WatcherError"
	case ThreadError:
		return "ThreadError"
	default:
		return "Unknown"
	}
}

// Error is the error type returned by every bigsi operation. It
// carries a Kind for programmatic dispatch (errors.Is against the Is
// sentinels below) plus a human-readable message with the relevant
// identifier (colour, sequence ID, row index).
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bigsi: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("bigsi: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *Error with the same Kind, enabling
// errors.Is(err, bigsi.ErrKind(bigsi.DuplicateSequenceID)).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// ErrKind constructs a sentinel suitable for errors.Is comparisons
// against a Kind alone, ignoring message and wrapped error.
func ErrKind(k Kind) error {
	return &Error{Kind: k}
}

func newErr(k Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

func wrapErr(k Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...), Err: err}
}
