package grid

import (
	"math"
	"sort"

	"github.com/aukilabs/dyntree/geom"
	"github.com/aukilabs/dyntree/models"
	"gonum.org/v1/gonum/spatial/r3"
)

// Regular Grid Spatial Partition
//
// An uniformly sub-divided grid implementing the SpatialPartition interface.
// The particularities are:
//   - the grid has a cell size that defines how large a cell is. For example,
//     a cell size of 64 will make each cell hold a 64x64 subdivision of the
//     world horizontal plane.
//   - cells are created on the first insert that lands in them and are only
//     dropped by a Balance call asked to reclaim empty cells.
//   - a leaf lives in exactly one cell, the one holding its position at insert
//     time. Leaves sticking out of their cell raise the grid overhang, which
//     makes ray walks also look at neighbour cells.
//   - each cell owns a partition tree that is only rebuilt by Balance.

const DefaultCellSize = 64.0

type Grid struct {
	cellSize    float64
	invCellSize float64
	cells       map[CellKey]*cell
	index       map[models.Handle]CellKey
	dirty       map[CellKey]struct{}
	overhang    int
}

func New(cellSize float64) *Grid {
	if cellSize <= 0 || math.IsNaN(cellSize) || math.IsInf(cellSize, 0) {
		cellSize = DefaultCellSize
	}

	return &Grid{
		cellSize:    cellSize,
		invCellSize: 1 / cellSize,
		cells:       make(map[CellKey]*cell),
		index:       make(map[models.Handle]CellKey),
		dirty:       make(map[CellKey]struct{}),
	}
}

func (g *Grid) CellSize() float64 {
	return g.cellSize
}

// CellKeyOf returns the key of the cell holding the given point.
func (g *Grid) CellKeyOf(p r3.Vec) CellKey {
	return CellKey{
		X: int(math.Floor(p.X * g.invCellSize)),
		Y: int(math.Floor(p.Y * g.invCellSize)),
	}
}

// Insert adds the leaf to the cell holding its position. It returns false when
// the leaf is already in the grid.
func (g *Grid) Insert(l models.Leaf) bool {
	h := l.Handle()
	if _, ok := g.index[h]; ok {
		return false
	}

	key := g.CellKeyOf(l.Position())
	c, ok := g.cells[key]
	if !ok {
		c = newCell(key)
		g.cells[key] = c
	}

	overhang := g.overhangOf(key, l.Bounds())
	c.insert(l, overhang)
	if overhang > g.overhang {
		g.overhang = overhang
	}

	g.index[h] = key
	g.dirty[key] = struct{}{}
	return true
}

// Remove removes the leaf from the cell it was inserted in. It returns false
// when the leaf is not in the grid.
func (g *Grid) Remove(l models.Leaf) bool {
	h := l.Handle()
	key, ok := g.index[h]
	if !ok {
		return false
	}

	g.cells[key].remove(h)
	delete(g.index, h)
	g.dirty[key] = struct{}{}
	return true
}

func (g *Grid) Contains(l models.Leaf) bool {
	_, ok := g.index[l.Handle()]
	return ok
}

func (g *Grid) Size() int {
	return len(g.index)
}

// Dirty returns the number of cells changed since they were last balanced.
func (g *Grid) Dirty() int {
	return len(g.dirty)
}

// Balance rebuilds the tree of every changed cell. With reclaim, rebuilt cells
// that ended empty are dropped. It returns the number of rebuilt cells.
func (g *Grid) Balance(reclaim bool) int {
	rebuilt := 0
	for key := range g.dirty {
		c := g.cells[key]
		c.rebuild(g.overhangOf)
		rebuilt++

		if reclaim && c.size() == 0 {
			delete(g.cells, key)
		}
	}
	clear(g.dirty)

	g.overhang = 0
	for _, c := range g.cells {
		if c.overhang > g.overhang {
			g.overhang = c.overhang
		}
	}
	return rebuilt
}

// ForEachCellAlongRay walks the cells crossed by the horizontal projection of
// the ray, from the origin up to maxDist, in increasing entry distance. Cells
// are visited whether they exist or not. The walk stops when visit returns
// false. Nothing is visited when maxDist is not finite.
func (g *Grid) ForEachCellAlongRay(ray geom.Ray, maxDist float64, visit func(key CellKey, enter float64) bool) {
	if ray.IsDegenerate() || !(maxDist >= 0) || math.IsInf(maxDist, 1) {
		return
	}

	key := g.CellKeyOf(ray.Origin)
	end := g.CellKeyOf(ray.At(maxDist))

	stepX, nextX, deltaX := g.axisStep(ray.Origin.X, ray.Direction.X, key.X)
	stepY, nextY, deltaY := g.axisStep(ray.Origin.Y, ray.Direction.Y, key.Y)

	enter := 0.0
	for {
		if !visit(key, enter) || key == end {
			return
		}

		if nextX < nextY {
			enter = nextX
			nextX += deltaX
			key.X += stepX
		} else {
			enter = nextY
			nextY += deltaY
			key.Y += stepY
		}

		if enter > maxDist || math.IsInf(enter, 1) {
			return
		}
	}
}

// axisStep returns the cell step, the distance to the first cell boundary and
// the distance between two boundaries along one axis.
func (g *Grid) axisStep(origin, dir float64, cell int) (int, float64, float64) {
	switch {
	case dir > 0:
		boundary := float64(cell+1) * g.cellSize
		return 1, (boundary - origin) / dir, g.cellSize / dir

	case dir < 0:
		boundary := float64(cell) * g.cellSize
		return -1, (boundary - origin) / dir, -g.cellSize / dir

	default:
		return 0, math.Inf(1), math.Inf(1)
	}
}

// IntersectRay returns the closest hit reported by hit for the leaves along
// the ray. Cells are visited in increasing distance and the walk stops once
// the closest hit is nearer than the next cell.
func (g *Grid) IntersectRay(ray geom.Ray, maxDist float64, hit models.HitFunc, stopAtFirstHit bool) (float64, bool) {
	best := maxDist
	found := false
	if len(g.index) == 0 {
		return best, false
	}

	overhang := g.overhang
	var visited map[CellKey]struct{}
	if overhang > 0 {
		visited = make(map[CellKey]struct{})
	}

	intersectCell := func(key CellKey) {
		c, ok := g.cells[key]
		if !ok {
			return
		}

		if dist, ok := c.intersectRay(ray, best, hit, stopAtFirstHit); ok && dist <= best {
			best = dist
			found = true
		}
	}

	g.ForEachCellAlongRay(ray, g.walkLimit(ray, maxDist), func(key CellKey, enter float64) bool {
		if found && best <= enter {
			return false
		}

		if overhang == 0 {
			intersectCell(key)
			return !(found && stopAtFirstHit)
		}

		for y := key.Y - overhang; y <= key.Y+overhang; y++ {
			for x := key.X - overhang; x <= key.X+overhang; x++ {
				k := CellKey{X: x, Y: y}
				if _, ok := visited[k]; ok {
					continue
				}
				visited[k] = struct{}{}

				intersectCell(k)
				if found && stopAtFirstHit {
					return false
				}
			}
		}
		return true
	})

	return best, found
}

// walkLimit returns how far a cell walk must go. Unbounded rays stop where
// they leave the occupied cells.
func (g *Grid) walkLimit(ray geom.Ray, maxDist float64) float64 {
	if !math.IsInf(maxDist, 1) {
		return maxDist
	}

	bounds := geom.EmptyAABB()
	for _, c := range g.cells {
		bounds = bounds.Union(c.bounds)
	}

	_, exit, ok := geom.IntersectAABB(ray, bounds, maxDist)
	if !ok {
		return -1
	}
	return exit
}

// Region returns the leaves whose bounds overlap the given box.
func (g *Grid) Region(box geom.AABB) []models.Leaf {
	if box.IsEmpty() {
		return nil
	}

	minKey := g.CellKeyOf(box.Min)
	maxKey := g.CellKeyOf(box.Max)

	var leaves []models.Leaf
	for y := minKey.Y - g.overhang; y <= maxKey.Y+g.overhang; y++ {
		for x := minKey.X - g.overhang; x <= maxKey.X+g.overhang; x++ {
			c, ok := g.cells[CellKey{X: x, Y: y}]
			if !ok {
				continue
			}

			for _, l := range c.members {
				if l.Bounds().Overlaps(box) {
					leaves = append(leaves, l)
				}
			}
		}
	}

	sort.Slice(leaves, func(i, j int) bool {
		return leaves[i].Handle() < leaves[j].Handle()
	})
	return leaves
}

// overhangOf returns by how many cells the bounds stick out of the given
// cell.
func (g *Grid) overhangOf(key CellKey, bounds geom.AABB) int {
	minKey := g.CellKeyOf(bounds.Min)
	maxKey := g.CellKeyOf(bounds.Max)

	overhang := 0
	for _, o := range []int{
		key.X - minKey.X,
		key.Y - minKey.Y,
		maxKey.X - key.X,
		maxKey.Y - key.Y,
	} {
		if o > overhang {
			overhang = o
		}
	}
	return overhang
}
