// Package countsketch implements the count-sketch primitive: a depth×width
// matrix of signed counters with independent hash functions per row,
// estimating frequency as the median of signed cell reads. This is the
// external collaborator referred to as C1 in spec.md, implemented
// concretely here since the module has no embedding host to supply one.
package countsketch

import (
	"sort"
	"sync/atomic"

	"github.com/spaolacci/murmur3"
)

// Sketch is a concurrency-safe count-sketch. Cell updates are individually
// atomic; UpdateAndEstimate and Estimate are lock-free reads/writes that
// rely only on per-cell atomics, matching spec.md §5's contract.
type Sketch struct {
	depth, width uint32
	rowSeeds     []uint32
	signSeeds    []uint32
	cells        [][]atomic.Int64
}

// New builds a depth x width count-sketch. depth and width must be positive.
func New(depth, width uint32, seed uint64) *Sketch {
	rng := murmur3.Sum64WithSeed([]byte("countsketch-seed"), uint32(seed))
	rowSeeds := make([]uint32, depth)
	signSeeds := make([]uint32, depth)
	for r := uint32(0); r < depth; r++ {
		rng = mix(rng)
		rowSeeds[r] = uint32(rng)
		rng = mix(rng)
		signSeeds[r] = uint32(rng)
	}

	cells := make([][]atomic.Int64, depth)
	for r := range cells {
		cells[r] = make([]atomic.Int64, width)
	}

	return &Sketch{
		depth:     depth,
		width:     width,
		rowSeeds:  rowSeeds,
		signSeeds: signSeeds,
		cells:     cells,
	}
}

// mix is a cheap SplitMix64-style avalanche used only to decorrelate the
// per-row seeds derived from a single construction seed.
func mix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// Depth returns the number of hash rows (t in spec.md).
func (s *Sketch) Depth() uint32 { return s.depth }

// Width returns the number of buckets per row (b in spec.md).
func (s *Sketch) Width() uint32 { return s.width }

func keyBytes(keyHash uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(keyHash >> (8 * i))
	}
	return b
}

func (s *Sketch) positionAndSign(keyHash uint64) (pos []uint32, sign []int64) {
	kb := keyBytes(keyHash)
	pos = make([]uint32, s.depth)
	sign = make([]int64, s.depth)
	for r := uint32(0); r < s.depth; r++ {
		pos[r] = murmur3.Sum32WithSeed(kb, s.rowSeeds[r]) % s.width
		if murmur3.Sum32WithSeed(kb, s.signSeeds[r])&1 == 0 {
			sign[r] = -1
		} else {
			sign[r] = 1
		}
	}
	return pos, sign
}

func median(counters []int64) int64 {
	sorted := make([]int64, len(counters))
	copy(sorted, counters)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[len(sorted)/2]
}

// Estimate returns the current median estimate for keyHash without mutating
// the sketch.
func (s *Sketch) Estimate(keyHash uint64) int64 {
	pos, sign := s.positionAndSign(keyHash)
	counters := make([]int64, s.depth)
	for r, c := range pos {
		counters[r] = sign[r] * s.cells[r][c].Load()
	}
	return median(counters)
}

// UpdateAndEstimate atomically increments the cells for keyHash by one
// occurrence and returns the median estimate as it stood immediately before
// this update (spec.md §4.1 step 1). Each row's cell is incremented with a
// single atomic add, and its pre-update signed value is recovered from the
// returned sum; the returned median is computed from those pre-update values.
func (s *Sketch) UpdateAndEstimate(keyHash uint64) int64 {
	pos, sign := s.positionAndSign(keyHash)
	before := make([]int64, s.depth)
	for r, c := range pos {
		newVal := s.cells[r][c].Add(sign[r])
		// The cell has already been incremented; recover the pre-update
		// signed value so the estimate reflects the count before this call.
		before[r] = sign[r]*newVal - 1
	}
	return median(before)
}

// StorageSize reports the sketch's footprint in counter cells.
func (s *Sketch) StorageSize() uint64 {
	return uint64(s.depth) * uint64(s.width)
}
