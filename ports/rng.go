package ports

import (
	"math/rand"
)

// RNGPort provides seeded random number generation for deterministic
// operations. Refutation tests and bootstrap resamples each obtain their
// own named stream so results are identical for the same base seed
// regardless of scheduling order.
type RNGPort interface {
	// SeededStream creates a deterministic random number generator for a
	// named operation under the given base seed.
	SeededStream(name string, baseSeed int64) *rand.Rand
}
