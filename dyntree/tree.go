// Package dyntree implements a dynamic spatial index over movable world
// objects. Objects are bucketed in a uniform grid whose cells each own a
// bounding interval hierarchy rebuilt periodically from the changes made
// since the previous pass.
//
// A Tree has no internal locking. Insert, Remove, Update and Balance must be
// called from a single goroutine. Queries can run concurrently with each
// other but not with a mutation.
package dyntree

import (
	"math"
	"time"

	"github.com/aukilabs/dyntree/dyntree/grid"
	"github.com/aukilabs/dyntree/geom"
	"github.com/aukilabs/dyntree/models"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"gonum.org/v1/gonum/spatial/r3"
)

const DefaultDegenerateEpsilon = 1e-10

type Options struct {
	// The name used in logs and metrics.
	Name string

	// The size of a grid cell on the horizontal plane.
	CellSize float64

	// The period between two rebalance passes. A negative period disables
	// automatic rebalancing.
	RebalancePeriod time.Duration

	// The distance under which a query segment is considered degenerate.
	DegenerateEpsilon float64

	// Drops the cells a rebalance pass leaves empty.
	ReclaimEmptyCells bool
}

// DefaultOptions returns the options used when a field is left unset.
func DefaultOptions() Options {
	return Options{
		Name:              "default",
		CellSize:          grid.DefaultCellSize,
		RebalancePeriod:   DefaultRebalancePeriod,
		DegenerateEpsilon: DefaultDegenerateEpsilon,
	}
}

func (o Options) withDefaults() Options {
	defaults := DefaultOptions()

	if o.Name == "" {
		o.Name = defaults.Name
	}
	if o.CellSize <= 0 {
		o.CellSize = defaults.CellSize
	}
	if o.RebalancePeriod == 0 {
		o.RebalancePeriod = defaults.RebalancePeriod
	}
	if o.DegenerateEpsilon <= 0 {
		o.DegenerateEpsilon = defaults.DegenerateEpsilon
	}
	return o
}

type Tree struct {
	opts       Options
	partition  grid.SpatialPartition
	timer      RebalanceTimer
	unbalanced int
}

// New creates an empty tree. Zero option fields take their default value.
func New(opts Options) *Tree {
	opts = opts.withDefaults()

	return &Tree{
		opts:      opts,
		partition: grid.New(opts.CellSize),
		timer:     NewRebalanceTimer(opts.RebalancePeriod),
	}
}

func (t *Tree) Name() string {
	return t.opts.Name
}

// Insert adds the leaf to the tree. It returns false when the leaf is already
// in the tree.
func (t *Tree) Insert(l models.Leaf) bool {
	if !t.partition.Insert(l) {
		return false
	}

	t.unbalanced++
	instrumentLeafCount(t.opts.Name, t.partition.Size())
	return true
}

// Remove removes the leaf from the tree. It returns false when the leaf is not
// in the tree.
func (t *Tree) Remove(l models.Leaf) bool {
	if !t.partition.Remove(l) {
		return false
	}

	t.unbalanced++
	instrumentLeafCount(t.opts.Name, t.partition.Size())
	return true
}

func (t *Tree) Contains(l models.Leaf) bool {
	return t.partition.Contains(l)
}

func (t *Tree) Size() int {
	return t.partition.Size()
}

// Unbalanced returns the number of changes made since the last rebalance
// pass.
func (t *Tree) Unbalanced() int {
	return t.unbalanced
}

// Update advances the rebalance timer. When the timer elapses and the tree
// changed since the last pass, the changed cells are rebuilt.
func (t *Tree) Update(elapsed time.Duration) {
	if t.partition.Size() == 0 {
		return
	}

	t.timer.Update(elapsed)
	if !t.timer.Passed() {
		return
	}

	t.timer.Reset()
	if t.unbalanced > 0 {
		t.Balance()
	}
}

// Balance rebuilds every changed cell and returns how many were rebuilt.
func (t *Tree) Balance() int {
	start := time.Now()
	changes := t.unbalanced

	cells := t.partition.Balance(t.opts.ReclaimEmptyCells)
	t.unbalanced = 0

	duration := time.Since(start)
	instrumentRebalance(t.opts.Name, cells, duration)

	logs.WithTag("tree", t.opts.Name).
		WithTag("changes", changes).
		WithTag("cells", cells).
		WithTag("duration", duration).
		Debug("tree rebalanced")

	return cells
}

// IntersectRay returns the closest hit reported by hit before maxDist.
func (t *Tree) IntersectRay(ray geom.Ray, maxDist float64, hit models.HitFunc, stopAtFirstHit bool) (float64, bool) {
	return t.partition.IntersectRay(ray, maxDist, hit, stopAtFirstHit)
}

// FirstHit returns the distance of the closest leaf hit by the ray before
// maxDist, among the leaves matching the filter.
func (t *Tree) FirstHit(ray geom.Ray, maxDist float64, filter models.PhaseMask) (float64, bool) {
	dist, hit := t.partition.IntersectRay(ray, maxDist, models.IntersectWithFilter(filter), false)
	instrumentQuery(t.opts.Name, queryFirstHit, hit)
	return dist, hit
}

// IsVisible reports whether nothing matching the filter stands between a and
// b. Coincident points are always visible.
func (t *Tree) IsVisible(a, b r3.Vec, filter models.PhaseMask) bool {
	ray, maxDist := geom.RayBetween(a, b)
	if maxDist <= t.opts.DegenerateEpsilon {
		return true
	}

	_, hit := t.partition.IntersectRay(ray, maxDist, models.IntersectWithFilter(filter), true)
	instrumentQuery(t.opts.Name, queryIsVisible, hit)
	return !hit
}

// HitPointAlongSegment returns the point where the segment from origin to
// target first hits a leaf matching the filter, moved by pushback along the
// segment direction. A negative pushback never moves the point back past the
// origin. Without a hit, target is returned.
func (t *Tree) HitPointAlongSegment(origin, target r3.Vec, filter models.PhaseMask, pushback float64) (r3.Vec, bool) {
	ray, maxDist := geom.RayBetween(origin, target)
	if maxDist < t.opts.DegenerateEpsilon {
		return target, false
	}

	dist, hit := t.partition.IntersectRay(ray, maxDist, models.IntersectWithFilter(filter), false)
	instrumentQuery(t.opts.Name, queryHitPosition, hit)
	if !hit {
		return target, false
	}

	if pushback < 0 && dist <= -pushback {
		return origin, true
	}
	return ray.At(dist + pushback), true
}

// GroundHeight returns the height of the first surface below the point within
// maxSearch, or negative infinity when there is none.
func (t *Tree) GroundHeight(p r3.Vec, maxSearch float64, filter models.PhaseMask) float64 {
	ray := geom.NewRay(p, r3.Vec{Z: -1})

	dist, hit := t.partition.IntersectRay(ray, maxSearch, models.IntersectWithFilter(filter), false)
	instrumentQuery(t.opts.Name, queryHeight, hit)
	if !hit {
		return math.Inf(-1)
	}
	return p.Z - dist
}

// Region returns the leaves whose bounds overlap the box.
func (t *Tree) Region(box geom.AABB) []models.Leaf {
	return t.partition.Region(box)
}

// DebugInfo returns the occupancy of the underlying grid.
func (t *Tree) DebugInfo() grid.DebugInfo {
	return t.partition.DebugInfo()
}
