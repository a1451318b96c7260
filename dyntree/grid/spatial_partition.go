package grid

import (
	"sort"

	"github.com/aukilabs/dyntree/geom"
	"github.com/aukilabs/dyntree/models"
)

// CellInfo describes the occupancy of one cell.
type CellInfo struct {
	Key     CellKey `json:"key"`
	Leaves  int     `json:"leaves"`
	Pending int     `json:"pending"`
	Stale   int     `json:"stale"`
	Depth   int     `json:"depth"`
}

type DebugInfo struct {
	CellSize  float64    `json:"cell_size"`
	CellCount int        `json:"cell_count"`
	LeafCount int        `json:"leaf_count"`
	Pending   int        `json:"pending"`
	Stale     int        `json:"stale"`
	Dirty     int        `json:"dirty"`
	Overhang  int        `json:"overhang"`
	Occupancy []CellInfo `json:"occupancy"`
}

type SpatialPartition interface {
	Insert(l models.Leaf) bool
	Remove(l models.Leaf) bool
	Contains(l models.Leaf) bool
	Size() int
	IntersectRay(ray geom.Ray, maxDist float64, hit models.HitFunc, stopAtFirstHit bool) (float64, bool)
	Region(box geom.AABB) []models.Leaf
	Balance(reclaim bool) int

	// debug stuff:
	Dirty() int
	DebugInfo() DebugInfo
}

var _ SpatialPartition = (*Grid)(nil)

// DebugInfo returns the grid occupancy, cells ordered by key.
func (g *Grid) DebugInfo() DebugInfo {
	info := DebugInfo{
		CellSize:  g.cellSize,
		CellCount: len(g.cells),
		LeafCount: len(g.index),
		Dirty:     len(g.dirty),
		Overhang:  g.overhang,
		Occupancy: make([]CellInfo, 0, len(g.cells)),
	}

	for key, c := range g.cells {
		info.Pending += len(c.pending)
		info.Stale += len(c.stale)
		info.Occupancy = append(info.Occupancy, CellInfo{
			Key:     key,
			Leaves:  c.size(),
			Pending: len(c.pending),
			Stale:   len(c.stale),
			Depth:   c.tree.Stats().Depth,
		})
	}

	sort.Slice(info.Occupancy, func(i, j int) bool {
		a, b := info.Occupancy[i].Key, info.Occupancy[j].Key
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	return info
}
