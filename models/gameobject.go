package models

import (
	"math"

	"github.com/aukilabs/dyntree/geom"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"
)

// GameObjectTemplate describes how to build a game object.
type GameObjectTemplate struct {
	Name        string     `json:"name,omitempty"         jsonschema:"description=Display name of the object"`
	Position    [3]float64 `json:"position"               jsonschema:"description=Center of the box. Z is up"`
	HalfExtents [3]float64 `json:"half_extents"           jsonschema:"description=Half size of the box before scaling"`
	Yaw         float64    `json:"yaw,omitempty"          jsonschema:"description=Rotation around the Z axis in radians"`
	Scale       float64    `json:"scale,omitempty"        jsonschema:"description=Uniform scale. Zero reads as 1,minimum=0"`
	PhaseMask   PhaseMask  `json:"phase_mask,omitempty"   jsonschema:"description=Phases the object collides in. Zero reads as every phase"`
	Disabled    bool       `json:"disabled,omitempty"     jsonschema:"description=Spawns the object without collision"`
}

// GameObject is a world object modeled as an oriented box. It is the leaf
// type stored in map trees.
type GameObject struct {
	GUID uuid.UUID
	Name string

	handle      Handle
	position    r3.Vec
	halfExtents r3.Vec
	yaw         float64
	scale       float64
	phaseMask   PhaseMask
	enabled     bool
	bounds      geom.AABB
}

// NewGameObject creates a game object from a template. A zero scale is read
// as 1 and a zero phase mask as all phases.
func NewGameObject(h Handle, t GameObjectTemplate) *GameObject {
	scale := t.Scale
	if scale <= 0 {
		scale = 1
	}

	phaseMask := t.PhaseMask
	if phaseMask == 0 {
		phaseMask = AllPhases
	}

	o := &GameObject{
		GUID:        uuid.New(),
		Name:        t.Name,
		handle:      h,
		position:    r3.Vec{X: t.Position[0], Y: t.Position[1], Z: t.Position[2]},
		halfExtents: r3.Vec{X: math.Abs(t.HalfExtents[0]), Y: math.Abs(t.HalfExtents[1]), Z: math.Abs(t.HalfExtents[2])},
		yaw:         t.Yaw,
		scale:       scale,
		phaseMask:   phaseMask,
		enabled:     !t.Disabled,
	}
	o.updateBounds()
	return o
}

func (o *GameObject) Handle() Handle {
	return o.handle
}

func (o *GameObject) Position() r3.Vec {
	return o.position
}

func (o *GameObject) Bounds() geom.AABB {
	return o.bounds
}

func (o *GameObject) PhaseMask() PhaseMask {
	return o.phaseMask
}

func (o *GameObject) Enabled() bool {
	return o.enabled
}

// SetEnabled toggles collision, e.g. when a door opens. It does not change
// the bounds so the object can stay inserted.
func (o *GameObject) SetEnabled(v bool) {
	o.enabled = v
}

// Relocate moves the object. The object must not be inserted in a tree when
// relocated.
func (o *GameObject) Relocate(position r3.Vec, yaw float64) {
	o.position = position
	o.yaw = yaw
	o.updateBounds()
}

func (o *GameObject) Template() GameObjectTemplate {
	return GameObjectTemplate{
		Name:        o.Name,
		Position:    [3]float64{o.position.X, o.position.Y, o.position.Z},
		HalfExtents: [3]float64{o.halfExtents.X, o.halfExtents.Y, o.halfExtents.Z},
		Yaw:         o.yaw,
		Scale:       o.scale,
		PhaseMask:   o.phaseMask,
		Disabled:    !o.enabled,
	}
}

// IntersectRay tests the ray against the oriented box. A ray starting inside
// the box, or on its surface, hits the face it leaves through.
func (o *GameObject) IntersectRay(ray geom.Ray, maxDist float64, filter PhaseMask) (float64, bool) {
	if !o.enabled || o.phaseMask&filter == 0 {
		return 0, false
	}

	// model space, keeping the world ray parameter:
	invScale := 1 / o.scale
	local := geom.Ray{
		Origin:    r3.Scale(invScale, geom.RotateZ(r3.Sub(ray.Origin, o.position), -o.yaw)),
		Direction: r3.Scale(invScale, geom.RotateZ(ray.Direction, -o.yaw)),
	}
	box := geom.AABB{
		Min: r3.Scale(-1, o.halfExtents),
		Max: o.halfExtents,
	}

	enter, exit, ok := geom.IntersectAABB(local, box, math.Inf(1))
	switch {
	case !ok:
		return 0, false
	case enter > 0:
		return enter, enter <= maxDist
	case exit > 0:
		return exit, exit <= maxDist
	default:
		return 0, false
	}
}

func (o *GameObject) updateBounds() {
	sin, cos := math.Sincos(o.yaw)
	sin = math.Abs(sin)
	cos = math.Abs(cos)

	h := o.halfExtents
	extents := r3.Scale(o.scale, r3.Vec{
		X: cos*h.X + sin*h.Y,
		Y: sin*h.X + cos*h.Y,
		Z: h.Z,
	})
	o.bounds = geom.NewAABB(o.position, extents)
}
