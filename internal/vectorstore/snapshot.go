// Package vectorstore defines the persisted form of a vector index.
package vectorstore

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// SnapshotVersion is bumped whenever the encoded layout changes.
const SnapshotVersion = 1

// Entry is one persisted passage with its vector.
type Entry struct {
	ID     string
	Seq    uint64
	Text   string
	Vector []float64
}

// Snapshot is the full state of an index.
type Snapshot struct {
	Version   int
	Dimension int
	NextSeq   uint64
	Entries   []Entry
}

// Encode serializes s with encoding/gob.
func Encode(s *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses and validates a snapshot.
func Decode(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return nil, err
	}
	if s.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", s.Version)
	}
	for i, e := range s.Entries {
		if len(e.Vector) != s.Dimension {
			return nil, fmt.Errorf("entry %d has dimension %d, want %d", i, len(e.Vector), s.Dimension)
		}
		if e.Seq >= s.NextSeq {
			return nil, fmt.Errorf("entry %d sequence %d not below next %d", i, e.Seq, s.NextSeq)
		}
	}
	return &s, nil
}
