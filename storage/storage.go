// Copyright 2017, Kerby Shedden and the Muscato contributors.

// Package storage maps a BIGSI's two logical tables — row index to
// serialized bit vector, and colour index to sequence-ID string —
// onto a single ordered, embedded key-value engine, plus a sidecar
// JSON metadata document.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

const (
	rowsBucket    = "rows"
	coloursBucket = "colours"
	dbFileName    = "bitvectors.db"
	metaFileName  = "metadata.json"
)

// Meta is the sidecar metadata document persisted alongside the row
// and colour stores.
type Meta struct {
	StorageDir      string `json:"storageDir"`
	RowStoreFile    string `json:"rowStoreFile"`
	ColourStoreFile string `json:"colourStoreFile"`
	NumBits         uint32 `json:"numBits"`
	NumHashes       uint32 `json:"numHashes"`
	ColourIterator  uint32 `json:"colourIterator"`
}

func metaPath(dir string) string {
	return filepath.Join(dir, metaFileName)
}

func dbPath(dir string) string {
	return filepath.Join(dir, dbFileName)
}

// WriteMeta serializes m as JSON to <dir>/metadata.json.
func WriteMeta(dir string, m *Meta) error {
	fid, err := os.Create(metaPath(dir))
	if err != nil {
		return fmt.Errorf("storage: create metadata file: %w", err)
	}
	defer fid.Close()
	enc := json.NewEncoder(fid)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("storage: encode metadata: %w", err)
	}
	return nil
}

// ReadMeta reads and decodes <dir>/metadata.json.
func ReadMeta(dir string) (*Meta, error) {
	fid, err := os.Open(metaPath(dir))
	if err != nil {
		return nil, fmt.Errorf("storage: open metadata file: %w", err)
	}
	defer fid.Close()
	m := new(Meta)
	dec := json.NewDecoder(fid)
	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("storage: decode metadata: %w", err)
	}
	return m, nil
}

// Store wraps a single bbolt database holding the row store and
// colour store buckets. It is the concrete implementation of the
// small get/put/close interface spec.md's design notes call for; a
// future implementation could swap in plain files indexed by offset
// table behind the same Store methods.
type Store struct {
	dir string
	db  *bolt.DB
}

// Open creates (if missing, when create is true) or opens (read/write,
// when create is false) the bbolt database at dir/bitvectors.db and
// ensures both buckets exist.
func Open(dir string, create bool) (*Store, error) {
	if create {
		if err := os.MkdirAll(dir, 0770); err != nil {
			return nil, fmt.Errorf("storage: mkdir %s: %w", dir, err)
		}
	}
	path := dbPath(dir)
	if !create {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("storage: open existing store %s: %w", path, err)
		}
	}
	db, err := bolt.Open(path, 0660, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open bbolt database %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(rowsBucket)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(coloursBucket)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: create buckets: %w", err)
	}
	return &Store{dir: dir, db: db}, nil
}

func keyOf(i uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, i)
	return b
}

// PutRow writes row i's serialized bit vector bytes.
func (s *Store) PutRow(i uint32, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(rowsBucket)).Put(keyOf(i), data)
	})
}

// GetRow reads row i's serialized bit vector bytes. The returned slice
// is a copy safe to retain after the call returns.
func (s *Store) GetRow(i uint32) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(rowsBucket)).Get(keyOf(i))
		if v == nil {
			return fmt.Errorf("row %d not found", i)
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PutColour writes colour c's sequence-ID string.
func (s *Store) PutColour(c uint32, seqID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(coloursBucket)).Put(keyOf(c), []byte(seqID))
	})
}

// GetColour reads colour c's sequence-ID string.
func (s *Store) GetColour(c uint32) (string, error) {
	var out string
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(coloursBucket)).Get(keyOf(c))
		if v == nil {
			return fmt.Errorf("colour %d not found", c)
		}
		out = string(v)
		return nil
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

// Close flushes and closes the underlying database. Closing is
// defined to flush durability, per spec.md's destroy() contract.
func (s *Store) Close() error {
	return s.db.Close()
}

// Compact rewrites the store's database file into a new file with
// stale freelist pages reclaimed, then replaces the original. This
// backs the CLI's offline "shrink" maintenance subcommand; it does
// not alter indexRows semantics.
func Compact(dir string) error {
	s, err := Open(dir, false)
	if err != nil {
		return err
	}

	tmpPath := dbPath(dir) + ".compact"
	dst, err := bolt.Open(tmpPath, 0660, nil)
	if err != nil {
		s.Close()
		return fmt.Errorf("storage: open compaction target: %w", err)
	}
	if err := bolt.Compact(dst, s.db, 0); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		s.Close()
		return fmt.Errorf("storage: compact: %w", err)
	}
	if err := dst.Close(); err != nil {
		s.Close()
		return fmt.Errorf("storage: close compaction target: %w", err)
	}
	if err := s.Close(); err != nil {
		return fmt.Errorf("storage: close source before replace: %w", err)
	}
	if err := os.Rename(tmpPath, dbPath(dir)); err != nil {
		return fmt.Errorf("storage: replace database with compacted file: %w", err)
	}
	return nil
}
