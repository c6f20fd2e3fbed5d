// Package pairwisehash implements 2-wise independent hash families over
// uint64 keys, used both as the universal sketch's level-selecting hashes
// and as the hash that assigns keys to approximate heavy-hitter slots.
package pairwisehash

import (
	"math/rand/v2"
	"sync"
)

// Hash is a single member of a 2-wise independent hash family built with
// Dietzfelbinger's multiply-shift scheme: h(x) = a*x + b (mod 2^64), with
// any reduced-range value taken from the high bits (see Bit and Index).
// a is odd and b is arbitrary, both drawn uniformly at random.
type Hash struct {
	a, b uint64
}

// NewRandom seeds a new family member from a fresh (a, b) pair, drawn from
// the process-global RNG.
func NewRandom() Hash {
	a := rand.Uint64() | 1 // force odd
	b := rand.Uint64()
	return Hash{a: a, b: b}
}

// NewSeeded deterministically derives a family member from seed, the same
// way countsketch.New derives its per-row seeds from a single construction
// seed, so a caller that wants reproducible runs isn't forced through the
// global RNG.
func NewSeeded(seed uint64) Hash {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	a := rng.Uint64() | 1 // force odd
	b := rng.Uint64()
	return Hash{a: a, b: b}
}

// Apply computes the full 2-wise independent hash h(x) = a*x + b. Callers
// needing a reduced-range value (a coin flip, a slot index) must read it
// from the high bits via Bit/Index, never via a bitmask or modulus on the
// raw return value: for odd a, the low bit of a*x+b is just bit 0 of x
// XORed with bit 0 of b, so the low bits carry almost none of the
// pairwise independence the high bits provide.
func (h Hash) Apply(x uint64) uint64 {
	return h.a*x + h.b
}

// Bit returns the top bit of h(x) — the coin flip that decides whether a
// key propagates to the next layer (or the sign of its contribution in
// Evaluate).
func (h Hash) Bit(x uint64) uint64 {
	return h.Apply(x) >> 63
}

// Index maps x into [0, n) using the high 32 bits of h(x) via a
// fixed-point multiply (the standard high-bits variant of Lemire's
// fastrange reduction), so the same low-bit weakness Bit avoids doesn't
// reappear as Apply(x) % n.
func (h Hash) Index(x uint64, n uint64) uint64 {
	return ((h.Apply(x) >> 32) * n) >> 32
}

// Manager is an indexable family of independently-seeded pairwise hashes,
// growing lazily as higher layer indices are requested. It mirrors the
// hash_manager external collaborator from spec.md §6: hash(layer, x) and
// guarantee_initialized(n).
type Manager struct {
	mu      sync.Mutex
	members []Hash
}

// NewManager returns an empty hash manager.
func NewManager() *Manager {
	return &Manager{}
}

// GuaranteeInitialized ensures the family has at least n seeded members.
func (m *Manager) GuaranteeInitialized(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.members) < n {
		m.members = append(m.members, NewRandom())
	}
}

// Hash applies the layerIdx-th family member to x.
func (m *Manager) Hash(layerIdx int, x uint64) uint64 {
	m.mu.Lock()
	h := m.members[layerIdx]
	m.mu.Unlock()
	return h.Apply(x)
}

// Bit returns the top bit of the layerIdx-th hash of x — the coin flip
// that decides whether a key propagates to the next layer.
func (m *Manager) Bit(layerIdx int, x uint64) uint64 {
	m.mu.Lock()
	h := m.members[layerIdx]
	m.mu.Unlock()
	return h.Bit(x)
}
