package grid

import (
	"sort"

	"github.com/aukilabs/dyntree/dyntree/bih"
	"github.com/aukilabs/dyntree/geom"
	"github.com/aukilabs/dyntree/models"
)

// CellKey is the coordinate of a grid cell on the horizontal plane.
type CellKey struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// cell holds the leaves whose position falls in one grid cell.
//
// The tree is built from the members as of the last rebuild. Leaves inserted
// since then wait in pending and are scanned linearly. Leaves removed since
// then stay in the tree but are listed in stale and skipped.
type cell struct {
	key      CellKey
	members  map[models.Handle]models.Leaf
	tree     *bih.Tree
	pending  []models.Leaf
	stale    map[models.Handle]struct{}
	dirty    int
	bounds   geom.AABB
	overhang int
}

func newCell(key CellKey) *cell {
	return &cell{
		key:     key,
		members: make(map[models.Handle]models.Leaf),
		tree:    bih.Build(nil),
		stale:   make(map[models.Handle]struct{}),
		bounds:  geom.EmptyAABB(),
	}
}

func (c *cell) insert(l models.Leaf, overhang int) {
	c.members[l.Handle()] = l
	c.pending = append(c.pending, l)
	c.bounds = c.bounds.Union(l.Bounds())
	if overhang > c.overhang {
		c.overhang = overhang
	}
	c.dirty++
}

func (c *cell) remove(h models.Handle) {
	delete(c.members, h)

	for i, l := range c.pending {
		if l.Handle() == h {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			break
		}
	}

	if c.tree.Has(h) {
		c.stale[h] = struct{}{}
	}
	c.dirty++
}

// rebuild builds a new tree over the current members and clears the change
// tracking.
func (c *cell) rebuild(overhangOf func(CellKey, geom.AABB) int) {
	leaves := make([]models.Leaf, 0, len(c.members))
	for _, l := range c.members {
		leaves = append(leaves, l)
	}
	sort.Slice(leaves, func(i, j int) bool {
		return leaves[i].Handle() < leaves[j].Handle()
	})

	c.tree = bih.Build(leaves)
	c.pending = c.pending[:0]
	c.stale = make(map[models.Handle]struct{})
	c.dirty = 0
	c.bounds = c.tree.Bounds()

	c.overhang = 0
	for _, l := range leaves {
		if o := overhangOf(c.key, l.Bounds()); o > c.overhang {
			c.overhang = o
		}
	}
}

func (c *cell) size() int {
	return len(c.members)
}

// intersectRay scans the pending leaves, then the tree, and returns the
// closest hit before maxDist.
func (c *cell) intersectRay(ray geom.Ray, maxDist float64, hit models.HitFunc, stopAtFirstHit bool) (float64, bool) {
	if len(c.members) == 0 {
		return maxDist, false
	}
	if _, _, ok := geom.IntersectAABB(ray, c.bounds, maxDist); !ok {
		return maxDist, false
	}

	best := maxDist
	found := false

	for _, l := range c.pending {
		dist, ok := hit(ray, l, best)
		if !ok || dist > best {
			continue
		}

		best = dist
		found = true
		if stopAtFirstHit {
			return best, true
		}
	}

	dist, ok := c.tree.IntersectRay(ray, best, func(leaf models.Leaf, maxDist float64) (float64, bool) {
		if _, isStale := c.stale[leaf.Handle()]; isStale {
			return 0, false
		}
		return hit(ray, leaf, maxDist)
	}, stopAtFirstHit)
	if ok && dist <= best {
		best = dist
		found = true
	}

	return best, found
}
