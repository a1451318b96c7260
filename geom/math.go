package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

func EqualWithEpsilon(a float64, b float64, epsilon float64) bool {
	return math.Abs(a-b) <= epsilon
}

func InRangeWithEpsilon(value float64, min float64, max float64, epsilon float64) bool {
	return value+epsilon >= min && value-epsilon <= max
}

func NewVec(x, y, z float64) r3.Vec {
	return r3.Vec{X: x, Y: y, Z: z}
}

func VecEqualWithEpsilon(a r3.Vec, b r3.Vec, epsilon float64) bool {
	return EqualWithEpsilon(a.X, b.X, epsilon) &&
		EqualWithEpsilon(a.Y, b.Y, epsilon) &&
		EqualWithEpsilon(a.Z, b.Z, epsilon)
}

func IsFiniteVec(v r3.Vec) bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

// RotateZ rotates v by angle radians around the Z axis.
func RotateZ(v r3.Vec, angle float64) r3.Vec {
	sin, cos := math.Sincos(angle)
	return r3.Vec{
		X: v.X*cos - v.Y*sin,
		Y: v.X*sin + v.Y*cos,
		Z: v.Z,
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func Component(v r3.Vec, axis Axis) float64 {
	switch axis {
	case AxisX:
		return v.X
	case AxisY:
		return v.Y
	default:
		return v.Z
	}
}

// AABB is an axis-aligned bounding box. An AABB with Min greater than Max on
// any axis is empty.
type AABB struct {
	Min r3.Vec
	Max r3.Vec
}

// NewAABB returns the box centered on center with the given half extents.
func NewAABB(center r3.Vec, halfExtents r3.Vec) AABB {
	return AABB{
		Min: r3.Sub(center, halfExtents),
		Max: r3.Add(center, halfExtents),
	}
}

// EmptyAABB returns a box that any Union replaces.
func EmptyAABB() AABB {
	inf := math.Inf(1)
	return AABB{
		Min: r3.Vec{X: inf, Y: inf, Z: inf},
		Max: r3.Vec{X: -inf, Y: -inf, Z: -inf},
	}
}

func (b AABB) IsEmpty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z
}

func (b AABB) IsFinite() bool {
	return IsFiniteVec(b.Min) && IsFiniteVec(b.Max)
}

func (b AABB) Union(o AABB) AABB {
	return AABB{
		Min: r3.Vec{X: math.Min(b.Min.X, o.Min.X), Y: math.Min(b.Min.Y, o.Min.Y), Z: math.Min(b.Min.Z, o.Min.Z)},
		Max: r3.Vec{X: math.Max(b.Max.X, o.Max.X), Y: math.Max(b.Max.Y, o.Max.Y), Z: math.Max(b.Max.Z, o.Max.Z)},
	}
}

func (b AABB) Center() r3.Vec {
	return r3.Scale(0.5, r3.Add(b.Min, b.Max))
}

func (b AABB) Extent() r3.Vec {
	return r3.Sub(b.Max, b.Min)
}

// LongestAxis returns the axis along which the box is the widest. Ties go to
// the lowest axis.
func (b AABB) LongestAxis() Axis {
	e := b.Extent()
	axis := AxisX
	if e.Y > e.X {
		axis = AxisY
	}
	if e.Z > Component(e, axis) {
		axis = AxisZ
	}
	return axis
}

func (b AABB) ContainsPoint(p r3.Vec) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

func (b AABB) Overlaps(o AABB) bool {
	return b.Min.X <= o.Max.X && b.Max.X >= o.Min.X &&
		b.Min.Y <= o.Max.Y && b.Max.Y >= o.Min.Y &&
		b.Min.Z <= o.Max.Z && b.Max.Z >= o.Min.Z
}

// Ray is a half line with a unit direction.
type Ray struct {
	Origin    r3.Vec
	Direction r3.Vec
}

// NewRay returns a ray starting at origin. The direction is normalized; a
// zero direction is kept as is and such a ray never hits anything.
func NewRay(origin r3.Vec, direction r3.Vec) Ray {
	if n := r3.Norm(direction); n != 0 {
		direction = r3.Scale(1/n, direction)
	}
	return Ray{
		Origin:    origin,
		Direction: direction,
	}
}

// RayBetween returns the ray going from from to to and the distance between
// both points.
func RayBetween(from r3.Vec, to r3.Vec) (Ray, float64) {
	d := r3.Sub(to, from)
	return NewRay(from, d), r3.Norm(d)
}

func (r Ray) At(t float64) r3.Vec {
	return r3.Add(r.Origin, r3.Scale(t, r.Direction))
}

func (r Ray) IsDegenerate() bool {
	return r.Direction == r3.Vec{}
}

// IntersectAABB runs a slab test of the ray against the box, restricted to
// [0, maxDist]. It returns the entry and exit distances. The entry distance is
// 0 when the origin is inside the box.
func IntersectAABB(r Ray, b AABB, maxDist float64) (float64, float64, bool) {
	if r.IsDegenerate() || b.IsEmpty() {
		return 0, 0, false
	}

	tMin := 0.0
	tMax := maxDist

	for axis := AxisX; axis <= AxisZ; axis++ {
		o := Component(r.Origin, axis)
		d := Component(r.Direction, axis)
		lo := Component(b.Min, axis)
		hi := Component(b.Max, axis)

		if d == 0 {
			// parallel to the slab:
			if o < lo || o > hi {
				return 0, 0, false
			}
			continue
		}

		inv := 1 / d
		t0 := (lo - o) * inv
		t1 := (hi - o) * inv
		if t0 > t1 {
			t0, t1 = t1, t0
		}

		if t0 > tMin {
			tMin = t0
		}
		if t1 < tMax {
			tMax = t1
		}
		if tMin > tMax {
			return 0, 0, false
		}
	}

	return tMin, tMax, true
}
