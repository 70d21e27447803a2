// Copyright 2017, Kerby Shedden and the Muscato contributors.

package sketch

import (
	"bufio"
	"os"
	"strings"

	"github.com/golang/snappy"
)

// SequenceReader reads FASTA or FASTQ records, transparently
// decompressing snappy-compressed (.sz) input. It is grounded on
// utils/fastq.go's ReadInSeq, extended to fold in the snappy.NewReader
// wrapping that every other muscato tool applies ad hoc per call site,
// and to accept FASTA (">") as well as FASTQ ("@") records.
type SequenceReader struct {
	file    *os.File
	scanner *bufio.Scanner
	fasta   bool

	Name string
	Seq  string
}

// NewSequenceReader opens path, which may end in .sz for transparent
// snappy decompression, and returns a reader positioned before its
// first record; call Next to read each record. The record format
// (FASTA vs FASTQ) is decided per record from its header line.
func NewSequenceReader(path string) (*SequenceReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	var src *bufio.Reader
	if strings.HasSuffix(path, ".sz") {
		src = bufio.NewReader(snappy.NewReader(f))
	} else {
		src = bufio.NewReader(f)
	}

	scanner := bufio.NewScanner(src)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	return &SequenceReader{
		file:    f,
		scanner: scanner,
	}, nil
}

// Close releases the underlying file handle.
func (r *SequenceReader) Close() error {
	return r.file.Close()
}

// Next advances to the next record, populating Name and Seq. It
// returns false at end of input or on a read error; callers should
// check Err after a false return. It also returns false, with a nil
// Err, at an empty line or at a line that does not start with '>' or
// '@'; a FASTA record's sequence is therefore read from one line only.
func (r *SequenceReader) Next() bool {
	if !r.scanner.Scan() {
		return false
	}
	header := r.scanner.Text()
	if header == "" {
		return false
	}

	switch header[0] {
	case '>':
		r.fasta = true
		r.Name = strings.TrimPrefix(header, ">")
		if !r.scanner.Scan() {
			return false
		}
		r.Seq = r.scanner.Text()
		return true
	case '@':
		r.fasta = false
		r.Name = strings.TrimPrefix(header, "@")
		if !r.scanner.Scan() {
			return false
		}
		r.Seq = r.scanner.Text()
		// Consume the '+' separator and quality line.
		if !r.scanner.Scan() {
			return false
		}
		if !r.scanner.Scan() {
			return false
		}
		return true
	default:
		return false
	}
}

// Err reports the first non-EOF error encountered by the scanner.
func (r *SequenceReader) Err() error {
	return r.scanner.Err()
}
