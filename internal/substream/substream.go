// Package substream implements the per-layer substream summary (C4 in
// spec.md): a count-sketch, a running L2² estimate, and either an exact or
// an approximate heavy-hitter tracker, combined exactly as spec.md §4.1
// describes. This is the hard core the universal sketch (package univsketch
// at the module root) composes L times.
package substream

import (
	"math"
	"sync"
	"sync/atomic"

	"UnivSketch/internal/countsketch"
	"UnivSketch/internal/heavyhitter"
	"UnivSketch/internal/pairwisehash"
)

// HHEntry is one heavy hitter as reported by a substream: the key hash and
// its observed count (the stored priority in exact mode, the count-sketch's
// live estimate in approximate mode).
type HHEntry struct {
	KeyHash uint64
	Count   int64
}

// hhStrategy is the tagged-variant trait spec.md §9 suggests: a common
// update/iterate surface over the two heavy-hitter tracking strategies.
type hhStrategy interface {
	update(keyHash uint64, count int64, sketch *countsketch.Sketch)
	iterate(sketch *countsketch.Sketch) []HHEntry
	storageSize() uint64
}

// Summary is one layer's substream summary.
type Summary struct {
	sketch    *countsketch.Sketch
	l2Sq      atomic.Int64
	threshold float64 // a
	strategy  hhStrategy
}

// Config bundles the construction parameters for one layer.
type Config struct {
	Depth     uint32 // t
	Width     uint32 // b
	K         int    // max heavy hitters retained
	Threshold float64 // a
	Precise   bool
	Seed      uint64
}

// New builds a substream summary per cfg.
func New(cfg Config) *Summary {
	sk := countsketch.New(cfg.Depth, cfg.Width, cfg.Seed)

	var strat hhStrategy
	if cfg.Precise {
		strat = newExactHH(cfg.K)
	} else {
		strat = newApproxHH(cfg.K, cfg.Seed)
	}

	return &Summary{
		sketch:    sk,
		threshold: cfg.Threshold,
		strategy:  strat,
	}
}

// Update incorporates one occurrence of keyHash, per spec.md §4.1's
// five-step algorithm.
func (s *Summary) Update(keyHash uint64) {
	old := s.sketch.UpdateAndEstimate(keyHash)
	delta := 2*old + 1
	newTotal := s.l2Sq.Add(delta)
	newL2 := math.Sqrt(float64(newTotal))
	newCount := old + 1

	if float64(newCount) < s.threshold*newL2 {
		return
	}
	s.strategy.update(keyHash, newCount, s.sketch)
}

// Estimate delegates to the count-sketch, a lock-free read.
func (s *Summary) Estimate(keyHash uint64) int64 {
	return s.sketch.Estimate(keyHash)
}

// L2Sq returns the current running L2² estimate.
func (s *Summary) L2Sq() int64 {
	return s.l2Sq.Load()
}

// HeavyHitters returns the current heavy-hitter set, as (key hash, count)
// pairs. In exact mode, count is the stored priority; in approximate mode it
// is a fresh count-sketch estimate of the slot's stored key.
func (s *Summary) HeavyHitters() []HHEntry {
	return s.strategy.iterate(s.sketch)
}

// StorageSize is the sum of the sketch's and the heavy-hitter store's
// footprint.
func (s *Summary) StorageSize() uint64 {
	return s.sketch.StorageSize() + s.strategy.storageSize()
}

// --- exact mode: bounded min-heap keyed by priority ---

type exactHH struct {
	mu sync.Mutex
	pq *heavyhitter.PQ
	k  int
}

func newExactHH(k int) *exactHH {
	return &exactHH{pq: heavyhitter.New(k), k: k}
}

// update implements spec.md §4.1's update_hh_pq: the exact-mode PQ is not
// internally thread-safe (spec.md §5), so every access here is serialized
// behind this substream's own mutex.
func (e *exactHH) update(keyHash uint64, count int64, sketch *countsketch.Sketch) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pq.Size() < e.k {
		e.pq.RemoveIfExists(keyHash)
		e.pq.Pushp(keyHash, count)
		return
	}

	head := e.pq.Top()
	if sketch.Estimate(head.KeyHash) < count {
		e.pq.Pop()
		e.pq.RemoveIfExists(keyHash)
		e.pq.Pushp(keyHash, count)
	}
}

func (e *exactHH) iterate(_ *countsketch.Sketch) []HHEntry {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]HHEntry, 0, e.pq.Size())
	e.pq.Each(func(entry heavyhitter.Entry) {
		out = append(out, HHEntry{KeyHash: entry.KeyHash, Count: entry.Priority})
	})
	return out
}

func (e *exactHH) storageSize() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return uint64(e.pq.Size())
}

// --- approximate mode: lock-free atomic slot array ---

// hhSlot holds one approximate heavy-hitter slot. occupied is a distinct
// out-of-band tag for "unoccupied" — spec.md §9 notes a genuine key hash of
// 0 is otherwise indistinguishable from an empty slot; rather than remap
// such a key to a stand-in value (which would desync the slot's identity
// from the count-sketch cells that key was actually counted into, and from
// the level-hash bit the rest of the layer chain computes for it), an
// empty slot is tagged with its own field so every real key hash, 0
// included, is stored and estimated under its true value.
type hhSlot struct {
	occupied atomic.Bool
	keyHash  atomic.Uint64
}

type approxHH struct {
	slots  []hhSlot
	hhHash pairwisehash.Hash
}

func newApproxHH(k int, seed uint64) *approxHH {
	return &approxHH{
		slots:  make([]hhSlot, k),
		hhHash: pairwisehash.NewSeeded(seed),
	}
}

// update implements spec.md §4.1's update_hh_approx CAS-retry loop, reading
// the slot index from the high bits of the hash (see pairwisehash.Index)
// rather than a low-order modulus.
func (a *approxHH) update(keyHash uint64, count int64, sketch *countsketch.Sketch) {
	idx := a.hhHash.Index(keyHash, uint64(len(a.slots)))
	slot := &a.slots[idx]
	for {
		occupied := slot.occupied.Load()
		prev := slot.keyHash.Load()
		if occupied && prev == keyHash {
			return
		}
		if occupied && sketch.Estimate(prev) > count {
			return
		}
		if slot.keyHash.CompareAndSwap(prev, keyHash) {
			slot.occupied.Store(true)
			return
		}
	}
}

// iterate estimates each occupied slot's actual stored key hash. spec.md §9
// notes that the source this module is based on estimates sketch.estimate(0)
// here instead of the stored key — a bug; this is the documented fix.
func (a *approxHH) iterate(sketch *countsketch.Sketch) []HHEntry {
	out := make([]HHEntry, 0, len(a.slots))
	for i := range a.slots {
		if !a.slots[i].occupied.Load() {
			continue
		}
		keyHash := a.slots[i].keyHash.Load()
		out = append(out, HHEntry{KeyHash: keyHash, Count: sketch.Estimate(keyHash)})
	}
	return out
}

func (a *approxHH) storageSize() uint64 {
	return uint64(len(a.slots))
}
