package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/aukilabs/dyntree/geom"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"
)

// PhaseMask is the filter passed through ray queries. A leaf only counts as
// an obstruction when its own mask shares a bit with the query's.
type PhaseMask uint32

const AllPhases PhaseMask = math.MaxUint32

// Handle is the stable identity of a leaf: a slot index in the upper 32 bits
// and a generation in the lower 32 bits.
type Handle uint64

const InvalidHandle Handle = 0

func NewHandle(index uint32, generation uint32) Handle {
	return Handle(uint64(index)<<32 | uint64(generation))
}

func (h Handle) Index() uint32 {
	return uint32(h >> 32)
}

func (h Handle) Generation() uint32 {
	return uint32(h)
}

func (h Handle) String() string {
	return fmt.Sprintf("%d:%d", h.Index(), h.Generation())
}

// Leaf is an object that can be stored in the dynamic tree. The tree keeps a
// reference to it but never owns it.
//
// A leaf must not change its position or bounds while it is inserted. Moving
// a leaf means removing it, moving it and inserting it again.
type Leaf interface {
	// Returns the leaf identity.
	Handle() Handle

	// Returns the position used to pick the grid cell that holds the leaf.
	Position() r3.Vec

	// Returns a box enclosing the whole leaf.
	Bounds() geom.AABB

	// Reports whether the ray hits the leaf before maxDist, and the hit
	// distance.
	IntersectRay(ray geom.Ray, maxDist float64, filter PhaseMask) (float64, bool)
}

// HitFunc tests a leaf visited during a ray traversal. A reported hit
// distance becomes the new search limit.
type HitFunc func(ray geom.Ray, leaf Leaf, maxDist float64) (float64, bool)

// IntersectWithFilter returns the HitFunc that defers to the leaf's own
// intersection test.
func IntersectWithFilter(filter PhaseMask) HitFunc {
	return func(ray geom.Ray, leaf Leaf, maxDist float64) (float64, bool) {
		return leaf.IntersectRay(ray, maxDist, filter)
	}
}

// ParseHandle parses a handle formatted by Handle.String.
func ParseHandle(s string) (Handle, error) {
	indexStr, generationStr, ok := strings.Cut(s, ":")
	if !ok {
		return InvalidHandle, errors.New("invalid handle: missing separator").
			WithTag("handle", s)
	}

	index, err := strconv.ParseUint(indexStr, 10, 32)
	if err != nil {
		return InvalidHandle, errors.New("invalid handle index").
			WithTag("handle", s).
			Wrap(err)
	}

	generation, err := strconv.ParseUint(generationStr, 10, 32)
	if err != nil {
		return InvalidHandle, errors.New("invalid handle generation").
			WithTag("handle", s).
			Wrap(err)
	}
	return NewHandle(uint32(index), uint32(generation)), nil
}

func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Handle) UnmarshalText(b []byte) error {
	v, err := ParseHandle(string(b))
	if err != nil {
		return err
	}
	*h = v
	return nil
}
