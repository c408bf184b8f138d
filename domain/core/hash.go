package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Equals checks if two hashes are equal
func (h Hash) Equals(other Hash) bool {
	return h == other
}

// PanelHash identifies the exact panel content a run was computed from
type PanelHash Hash

func (h PanelHash) String() string { return Hash(h).String() }

// ComputePanelHash derives a deterministic fingerprint from the panel's
// column names and row keys so downstream consumers can detect whether two
// runs saw the same data.
func ComputePanelHash(columns []string, rowKeys []string) PanelHash {
	cols := make([]string, len(columns))
	copy(cols, columns)
	sort.Strings(cols)

	keys := make([]string, len(rowKeys))
	copy(keys, rowKeys)
	sort.Strings(keys)

	var data strings.Builder
	for _, c := range cols {
		data.WriteString(c)
		data.WriteString("|")
	}
	data.WriteString(fmt.Sprintf("n=%d|", len(keys)))
	for _, k := range keys {
		data.WriteString(k)
		data.WriteString(";")
	}

	return PanelHash(NewHash([]byte(data.String())))
}
