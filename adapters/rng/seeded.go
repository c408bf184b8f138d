package rng

import (
	"hash/fnv"
	"math/rand"

	"transitcausal/ports"
)

// SeededSource derives independent deterministic streams by mixing the
// base seed with a hash of the stream name. Two calls with the same
// (name, seed) pair always produce identical sequences.
type SeededSource struct{}

// NewSeededSource creates the default RNG adapter.
func NewSeededSource() ports.RNGPort {
	return &SeededSource{}
}

// SeededStream implements ports.RNGPort.
func (s *SeededSource) SeededStream(name string, baseSeed int64) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(name))
	mixed := baseSeed ^ int64(h.Sum64())
	return rand.New(rand.NewSource(mixed))
}
