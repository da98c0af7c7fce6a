package engine

import (
	"encoding/json"
	"hash/fnv"
	"math"
	"math/rand"
)

// Rand is the deterministic random source threaded through every stochastic
// decision a module makes. The root seed and a per-module label are hashed
// into the source seed; every public draw consumes exactly one value from
// the underlying stream and bumps the draw counter, so a decoded match can
// fast-forward to the identical stream position and replay from there.
type Rand struct {
	seed  string
	label string
	draws uint64
	src   *rand.Rand
}

// DeterministicSeedValue hashes a root seed and label into a non-zero
// source seed.
func DeterministicSeedValue(rootSeed, label string) int64 {
	hasher := fnv.New64a()
	hasher.Write([]byte(rootSeed))
	hasher.Write([]byte{0})
	hasher.Write([]byte(label))
	sum := hasher.Sum64()
	if sum == 0 {
		sum = 1
	}
	return int64(sum)
}

// NewRand builds a deterministic source for the given root seed and label.
func NewRand(rootSeed, label string) *Rand {
	return &Rand{
		seed:  rootSeed,
		label: label,
		src:   rand.New(rand.NewSource(DeterministicSeedValue(rootSeed, label))),
	}
}

// Seed reports the root seed the source was built from.
func (r *Rand) Seed() string {
	if r == nil {
		return ""
	}
	return r.seed
}

// Draws reports the current stream position.
func (r *Rand) Draws() uint64 {
	if r == nil {
		return 0
	}
	return r.draws
}

func (r *Rand) next() int64 {
	r.draws++
	return r.src.Int63()
}

// Float64 draws a value in [0, 1).
func (r *Rand) Float64() float64 {
	return float64(r.next()) / (1 << 63)
}

// Intn draws a value in [0, n). n <= 0 yields 0.
func (r *Rand) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(r.next() % int64(n))
}

// Range draws a value in [min, max).
func (r *Rand) Range(min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + r.Float64()*(max-min)
}

// Angle draws a value in [0, 2π).
func (r *Rand) Angle() float64 {
	return r.Float64() * 2 * math.Pi
}

// Chance reports true with probability p.
func (r *Rand) Chance(p float64) bool {
	return r.Float64() < p
}

// Jitter draws a value in [-spread, +spread).
func (r *Rand) Jitter(spread float64) float64 {
	return (r.Float64()*2 - 1) * spread
}

type randState struct {
	Seed  string `json:"seed"`
	Label string `json:"label"`
	Draws uint64 `json:"draws"`
}

// MarshalJSON serializes the seed and stream position so the source travels
// inside the module's opaque state blob.
func (r *Rand) MarshalJSON() ([]byte, error) {
	return json.Marshal(randState{Seed: r.seed, Label: r.label, Draws: r.draws})
}

// UnmarshalJSON rebuilds the source and fast-forwards to the recorded
// stream position.
func (r *Rand) UnmarshalJSON(data []byte) error {
	var st randState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	r.seed = st.Seed
	r.label = st.Label
	r.draws = 0
	r.src = rand.New(rand.NewSource(DeterministicSeedValue(st.Seed, st.Label)))
	for r.draws < st.Draws {
		r.next()
	}
	return nil
}
