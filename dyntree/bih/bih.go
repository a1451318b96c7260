package bih

import (
	"sort"

	"github.com/aukilabs/dyntree/geom"
	"github.com/aukilabs/dyntree/models"
)

// Bounding Interval Hierarchy
//
// A static binary hierarchy of bounding boxes over a fixed set of leaves. The
// particularities are:
//   - nodes are split along the axis where leaf centroids spread the most, at
//     the middle of that spread. When every centroid falls on one side (stacked
//     or duplicated objects), the node is split at the centroid median instead
//     so that construction always terminates with a balanced tree.
//   - the tree is rebuilt from scratch. There is no incremental insert or
//     remove; callers track changes elsewhere until the next Build.

const MaxLeavesPerNode = 4

const noChild = -1

// Visitor tests a leaf reached by a ray traversal.
type Visitor func(leaf models.Leaf, maxDist float64) (float64, bool)

type node struct {
	bounds geom.AABB
	left   int32
	right  int32
	start  int
	count  int
}

func (n *node) isLeaf() bool {
	return n.left == noChild
}

type Stats struct {
	Leaves int `json:"leaves"`
	Nodes  int `json:"nodes"`
	Depth  int `json:"depth"`
}

type Tree struct {
	nodes   []node
	leaves  []models.Leaf
	boxes   []geom.AABB
	handles map[models.Handle]struct{}
	depth   int
}

// Build creates a tree over the given leaves. The slice is copied and can be
// reused by the caller.
func Build(leaves []models.Leaf) *Tree {
	t := &Tree{
		leaves:  make([]models.Leaf, len(leaves)),
		boxes:   make([]geom.AABB, len(leaves)),
		handles: make(map[models.Handle]struct{}, len(leaves)),
	}
	copy(t.leaves, leaves)

	for i, l := range t.leaves {
		t.boxes[i] = l.Bounds()
		t.handles[l.Handle()] = struct{}{}
	}

	if len(t.leaves) != 0 {
		t.nodes = make([]node, 0, 2*len(t.leaves)/MaxLeavesPerNode+1)
		t.build(0, len(t.leaves), 1)
	}
	return t
}

func (t *Tree) build(start, end, depth int) int32 {
	if depth > t.depth {
		t.depth = depth
	}

	bounds := geom.EmptyAABB()
	centroids := geom.EmptyAABB()
	for i := start; i < end; i++ {
		bounds = bounds.Union(t.boxes[i])
		c := t.boxes[i].Center()
		centroids = centroids.Union(geom.AABB{Min: c, Max: c})
	}

	index := int32(len(t.nodes))
	t.nodes = append(t.nodes, node{
		bounds: bounds,
		left:   noChild,
		right:  noChild,
		start:  start,
		count:  end - start,
	})

	if end-start <= MaxLeavesPerNode {
		return index
	}

	axis := centroids.LongestAxis()
	split := geom.Component(centroids.Center(), axis)

	mid := t.partition(start, end, axis, split)
	if mid == start || mid == end {
		mid = t.medianSplit(start, end, axis)
	}

	left := t.build(start, mid, depth+1)
	right := t.build(mid, end, depth+1)

	n := &t.nodes[index]
	n.left = left
	n.right = right
	n.start = 0
	n.count = 0
	return index
}

// partition moves leaves whose centroid is below split before the others and
// returns the index of the first leaf of the upper half.
func (t *Tree) partition(start, end int, axis geom.Axis, split float64) int {
	i := start
	for j := start; j < end; j++ {
		if geom.Component(t.boxes[j].Center(), axis) < split {
			t.swap(i, j)
			i++
		}
	}
	return i
}

func (t *Tree) medianSplit(start, end int, axis geom.Axis) int {
	sort.Sort(byCentroid{tree: t, start: start, end: end, axis: axis})
	return start + (end-start)/2
}

func (t *Tree) swap(i, j int) {
	t.leaves[i], t.leaves[j] = t.leaves[j], t.leaves[i]
	t.boxes[i], t.boxes[j] = t.boxes[j], t.boxes[i]
}

type byCentroid struct {
	tree       *Tree
	start, end int
	axis       geom.Axis
}

func (s byCentroid) Len() int {
	return s.end - s.start
}

func (s byCentroid) Less(i, j int) bool {
	a := geom.Component(s.tree.boxes[s.start+i].Center(), s.axis)
	b := geom.Component(s.tree.boxes[s.start+j].Center(), s.axis)
	return a < b
}

func (s byCentroid) Swap(i, j int) {
	s.tree.swap(s.start+i, s.start+j)
}

// Size returns the number of leaves in the tree.
func (t *Tree) Size() int {
	return len(t.leaves)
}

// Bounds returns the box covering every leaf of the tree.
func (t *Tree) Bounds() geom.AABB {
	if len(t.nodes) == 0 {
		return geom.EmptyAABB()
	}
	return t.nodes[0].bounds
}

// Has reports whether the leaf with the given handle was part of the build.
func (t *Tree) Has(h models.Handle) bool {
	_, ok := t.handles[h]
	return ok
}

// Leaves returns the leaves the tree was built with, in tree order.
func (t *Tree) Leaves() []models.Leaf {
	return t.leaves
}

func (t *Tree) Stats() Stats {
	return Stats{
		Leaves: len(t.leaves),
		Nodes:  len(t.nodes),
		Depth:  t.depth,
	}
}

type stackEntry struct {
	node  int32
	enter float64
}

// IntersectRay walks the nodes whose box the ray enters before maxDist,
// nearest child first, and returns the closest distance reported by visit.
// Once a hit is known, subtrees entered beyond it are skipped. With
// stopAtFirstHit, the first hit ends the traversal.
func (t *Tree) IntersectRay(ray geom.Ray, maxDist float64, visit Visitor, stopAtFirstHit bool) (float64, bool) {
	if len(t.nodes) == 0 {
		return maxDist, false
	}

	enter, _, ok := geom.IntersectAABB(ray, t.nodes[0].bounds, maxDist)
	if !ok {
		return maxDist, false
	}

	var stackBuf [64]stackEntry
	stack := append(stackBuf[:0], stackEntry{node: 0, enter: enter})

	best := maxDist
	hit := false

	for len(stack) != 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if e.enter > best {
			continue
		}

		n := &t.nodes[e.node]
		if n.isLeaf() {
			for i := n.start; i < n.start+n.count; i++ {
				dist, ok := visit(t.leaves[i], best)
				if !ok || dist > best {
					continue
				}

				best = dist
				hit = true
				if stopAtFirstHit {
					return best, true
				}
			}
			continue
		}

		leftEnter, _, leftOk := geom.IntersectAABB(ray, t.nodes[n.left].bounds, best)
		rightEnter, _, rightOk := geom.IntersectAABB(ray, t.nodes[n.right].bounds, best)

		switch {
		case leftOk && rightOk:
			// nearest child popped first:
			if leftEnter <= rightEnter {
				stack = append(stack,
					stackEntry{node: n.right, enter: rightEnter},
					stackEntry{node: n.left, enter: leftEnter})
			} else {
				stack = append(stack,
					stackEntry{node: n.left, enter: leftEnter},
					stackEntry{node: n.right, enter: rightEnter})
			}

		case leftOk:
			stack = append(stack, stackEntry{node: n.left, enter: leftEnter})

		case rightOk:
			stack = append(stack, stackEntry{node: n.right, enter: rightEnter})
		}
	}

	return best, hit
}
