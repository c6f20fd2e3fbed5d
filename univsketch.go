// Package univsketch implements the layered universal-sketch engine from
// spec.md: a concurrent, compact summary of an unbounded record stream that
// answers approximate point-frequency queries, tracks top-k heavy hitters,
// and estimates arbitrary G-sums Σ g(f_i) over key frequencies.
//
// The type exported here (UniversalSketch) is C5 in spec.md §2; it composes
// L copies of internal/substream.Summary (C4) via level-selecting hashes
// from internal/pairwisehash (C3). The module has no CLI, no wire protocol,
// and persists nothing — it is purely a library, per spec.md §1 and §6.
package univsketch

import (
	"math"
	"math/rand/v2"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"UnivSketch/internal/model"
	"UnivSketch/internal/pairwisehash"
	"UnivSketch/internal/substream"
)

// ConfigError reports a rejected construction parameter (spec.md §7).
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "univsketch: " + e.Msg }

// Config holds the fixed construction parameters of a universal sketch:
// L layers, each a t×b count-sketch tracking up to k heavy hitters at
// threshold a, over the given schema/column.
type Config struct {
	L, T, B, K int
	A          float64
	Schema     model.Schema
	Column     model.Column
	Precise    bool
}

// UniversalSketch is the concurrent layered universal sketch (C5).
type UniversalSketch struct {
	layers      []*substream.Summary
	levelHashes *pairwisehash.Manager
	schema      model.Schema
	column      model.Column
	preciseHH   bool
	valid       atomic.Bool
}

// New constructs a universal sketch with explicit (L, t, b, k, a) parameters.
func New(cfg Config) (*UniversalSketch, error) {
	if cfg.L < 1 {
		return nil, &ConfigError{Msg: "L must be >= 1"}
	}
	if cfg.T < 1 {
		return nil, &ConfigError{Msg: "t must be >= 1"}
	}
	if cfg.B < 1 {
		return nil, &ConfigError{Msg: "b must be >= 1"}
	}
	if cfg.K < 1 {
		return nil, &ConfigError{Msg: "k must be >= 1"}
	}
	if cfg.A <= 0 {
		return nil, &ConfigError{Msg: "a must be > 0"}
	}

	layers := make([]*substream.Summary, cfg.L)
	for i := range layers {
		layers[i] = substream.New(substream.Config{
			Depth:     uint32(cfg.T),
			Width:     uint32(cfg.B),
			K:         cfg.K,
			Threshold: cfg.A,
			Precise:   cfg.Precise,
			Seed:      rand.Uint64(),
		})
	}

	levelHashes := pairwisehash.NewManager()
	if cfg.L > 1 {
		levelHashes.GuaranteeInitialized(cfg.L - 1)
	}

	u := &UniversalSketch{
		layers:      layers,
		levelHashes: levelHashes,
		schema:      cfg.Schema,
		column:      cfg.Column,
		preciseHH:   cfg.Precise,
	}
	u.valid.Store(true)
	return u, nil
}

// widthFromError derives the count-sketch width from an error margin ε,
// grounded on the row-count formula in
// other_examples/TerryL99-prometheus-sketch__CountSketch.go's
// NewCountSketchWithEstimates (2.72/ε²), reapplied here to width per
// spec.md §4.2's naming (b = width_from_error(ε)).
func widthFromError(epsilon float64) int {
	return int(math.Ceil(2.72 / (epsilon * epsilon)))
}

// depthFromFailureProb derives the count-sketch depth from a failure
// probability γ, grounded on the same source's col-count formula
// (log(γ)/log(0.5)), reapplied to depth per spec.md §4.2's naming
// (t = depth_from_failure_prob(γ)).
func depthFromFailureProb(gamma float64) int {
	return int(math.Ceil(math.Log(gamma) / math.Log(0.5)))
}

// NewParameterized builds a universal sketch from (ε, γ, k, a) plus schema
// metadata, deriving b, t, and L = 8·sizeof(column) as spec.md §4.2
// describes.
func NewParameterized(epsilon, gamma float64, k int, a float64, schema model.Schema, column model.Column, precise bool) (*UniversalSketch, error) {
	return New(Config{
		L:       8 * column.Size,
		T:       depthFromFailureProb(gamma),
		B:       widthFromError(epsilon),
		K:       k,
		A:       a,
		Schema:  schema,
		Column:  column,
		Precise: precise,
	})
}

// Update extracts the configured column's key bytes from record, hashes
// them, and routes the update down the layer chain: layer 0 unconditionally,
// then each deeper layer iff the top bit of the previous layer's level hash
// of the key is 1, stopping at the first 0 bit. Columns absent from record are
// silently skipped, matching the external record/schema/column collaborator
// contract (spec.md §6) — this library does not validate schema conformance.
func (u *UniversalSketch) Update(record model.Record) {
	raw, ok := record.At(u.column.Idx)
	if !ok {
		return
	}
	u.UpdateKeyHash(xxhash.Sum64(raw))
}

// UpdateKeyHash performs the same layer-routing update as Update, but for a
// caller that has already reduced its key to the 64-bit hash spec.md's data
// model operates on.
func (u *UniversalSketch) UpdateKeyHash(keyHash uint64) {
	u.layers[0].Update(keyHash)
	for i := 1; i < len(u.layers); i++ {
		if u.levelHashes.Bit(i-1, keyHash) == 0 {
			break
		}
		u.layers[i].Update(keyHash)
	}
}

// Estimate returns layer 0's count-sketch estimate for keyHash, a lock-free
// read.
func (u *UniversalSketch) Estimate(keyHash uint64) int64 {
	return u.layers[0].Estimate(keyHash)
}

// Evaluate returns the telescoped G-sum estimate using all L layers.
func (u *UniversalSketch) Evaluate(g func(int64) float64) float64 {
	return u.EvaluateN(g, len(u.layers))
}

// EvaluateN returns the telescoped G-sum estimate using only the first n
// layers. n must be in [1, L]; spec.md §4.2 calls n==0 undefined and
// requires it be rejected, so this panics rather than silently degrading.
func (u *UniversalSketch) EvaluateN(g func(int64) float64, n int) float64 {
	if n <= 0 || n > len(u.layers) {
		panic("univsketch: EvaluateN requires 1 <= n <= number of layers")
	}

	base := n - 1
	var r float64
	for _, hh := range u.layers[base].HeavyHitters() {
		r += g(hh.Count)
	}

	for i := base - 1; i >= 0; i-- {
		var s float64
		for _, hh := range u.layers[i].HeavyHitters() {
			bit := u.levelHashes.Bit(i, hh.KeyHash)
			sign := 1 - 2*float64(bit)
			s += sign * g(hh.Count)
		}
		r = 2*r + s
	}
	return r
}

// Invalidate performs the one-shot true->false transition on valid, and
// reports whether this call was the one that performed it.
func (u *UniversalSketch) Invalidate() bool {
	return u.valid.CompareAndSwap(true, false)
}

// IsValid reports whether the sketch has not yet been invalidated.
func (u *UniversalSketch) IsValid() bool {
	return u.valid.Load()
}

// StorageSize sums each layer's footprint.
func (u *UniversalSketch) StorageSize() uint64 {
	var total uint64
	for _, l := range u.layers {
		total += l.StorageSize()
	}
	return total
}

// NumLayers returns L, the configured number of layers.
func (u *UniversalSketch) NumLayers() int {
	return len(u.layers)
}
