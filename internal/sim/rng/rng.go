// Package rng provides the seeded, replayable random source used by the turn
// engine and the per-empire streams derived from it.
package rng

import (
	"encoding/binary"
	"math"

	"lukechampine.com/blake3"
)

// Source is the minimal contract a caller-supplied random source must meet.
type Source interface {
	Uint64() uint64
}

// Rand is what engine components draw from.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// SeededRandom is a splitmix64 generator. It is not safe for concurrent use;
// concurrent consumers each get their own derived stream.
type SeededRandom struct {
	state uint64
}

func New(seed int64) *SeededRandom {
	return &SeededRandom{state: uint64(seed)}
}

func mix64(z uint64) uint64 {
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func (r *SeededRandom) Uint64() uint64 {
	r.state += 0x9e3779b97f4a7c15
	return mix64(r.state)
}

// Float64 returns a value in [0,1) built from the top 53 bits.
func (r *SeededRandom) Float64() float64 {
	return float64(r.Uint64()>>11) / float64(1<<53)
}

// Intn returns a value in [0,n). n <= 0 yields 0.
func (r *SeededRandom) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(r.Uint64() % uint64(n))
}

// Uniform returns a value in [lo,hi).
func (r *SeededRandom) Uniform(lo, hi float64) float64 {
	return lo + r.Float64()*(hi-lo)
}

// Derive returns an independent stream keyed by (base, turn, purpose, id).
// Streams for different ids never share state, so concurrent consumers
// produce the same draws regardless of scheduling.
func Derive(base uint64, turn int, purpose, id string) *SeededRandom {
	h := blake3.New(32, nil)
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], base)
	h.Write(tmp[:])
	binary.LittleEndian.PutUint64(tmp[:], uint64(int64(turn)))
	h.Write(tmp[:])
	h.Write([]byte(purpose))
	h.Write([]byte{0})
	h.Write([]byte(id))
	sum := h.Sum(nil)
	return &SeededRandom{state: binary.LittleEndian.Uint64(sum[:8])}
}

// TurnBase draws the single per-turn base value from src. A nil src falls back
// to a generator seeded from (seed, turn).
func TurnBase(src Source, seed int64, turn int) uint64 {
	if src == nil {
		src = New(seed ^ int64(mix64(uint64(int64(turn))+0x9e3779b97f4a7c15)))
	}
	return src.Uint64()
}

// Fixed is a Rand that replays a fixed sequence of floats, cycling when exhausted.
// Tests use it to pin individual draws.
type Fixed struct {
	Values []float64
	i      int
}

func (f *Fixed) Float64() float64 {
	if len(f.Values) == 0 {
		return 0
	}
	v := f.Values[f.i%len(f.Values)]
	f.i++
	if v >= 1 {
		v = math.Nextafter(1, 0)
	}
	if v < 0 {
		v = 0
	}
	return v
}

func (f *Fixed) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(f.Float64() * float64(n))
}
