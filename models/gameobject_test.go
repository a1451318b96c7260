package models

import (
	"math"
	"testing"

	"github.com/aukilabs/dyntree/geom"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func newTestBox(x, y, z float64) *GameObject {
	return NewGameObject(NewHandle(1, 1), GameObjectTemplate{
		Position:    [3]float64{x, y, z},
		HalfExtents: [3]float64{1, 1, 1},
	})
}

func TestNewGameObject(t *testing.T) {
	o := newTestBox(10, 0, 0)
	require.NotEqual(t, uuid.Nil, o.GUID)
	require.Equal(t, AllPhases, o.PhaseMask())
	require.True(t, o.Enabled())
	require.Equal(t, geom.NewVec(10, 0, 0), o.Position())
	require.Equal(t, geom.NewAABB(geom.NewVec(10, 0, 0), geom.NewVec(1, 1, 1)), o.Bounds())

	tmpl := o.Template()
	require.Equal(t, 1.0, tmpl.Scale)
	require.Equal(t, [3]float64{10, 0, 0}, tmpl.Position)
}

func TestGameObjectBounds(t *testing.T) {
	o := NewGameObject(NewHandle(1, 1), GameObjectTemplate{
		HalfExtents: [3]float64{2, 1, 1},
		Yaw:         math.Pi / 2,
		Scale:       2,
	})

	bounds := o.Bounds()
	require.True(t, geom.VecEqualWithEpsilon(geom.NewVec(-2, -4, -2), bounds.Min, 1e-9))
	require.True(t, geom.VecEqualWithEpsilon(geom.NewVec(2, 4, 2), bounds.Max, 1e-9))
}

func TestGameObjectIntersectRay(t *testing.T) {
	o := newTestBox(10, 0, 0)
	ray := geom.NewRay(geom.NewVec(0, 0, 0), geom.NewVec(1, 0, 0))

	t.Run("hits the near face", func(t *testing.T) {
		dist, hit := o.IntersectRay(ray, 20, AllPhases)
		require.True(t, hit)
		require.InDelta(t, 9, dist, 1e-9)
	})

	t.Run("out of range", func(t *testing.T) {
		_, hit := o.IntersectRay(ray, 8.5, AllPhases)
		require.False(t, hit)
	})

	t.Run("filtered by phase", func(t *testing.T) {
		phased := NewGameObject(NewHandle(2, 1), GameObjectTemplate{
			Position:    [3]float64{10, 0, 0},
			HalfExtents: [3]float64{1, 1, 1},
			PhaseMask:   2,
		})

		_, hit := phased.IntersectRay(ray, 20, 1)
		require.False(t, hit)

		_, hit = phased.IntersectRay(ray, 20, 3)
		require.True(t, hit)
	})

	t.Run("disabled", func(t *testing.T) {
		door := newTestBox(10, 0, 0)
		door.SetEnabled(false)

		_, hit := door.IntersectRay(ray, 20, AllPhases)
		require.False(t, hit)
	})

	t.Run("origin inside hits the exit face", func(t *testing.T) {
		inside := geom.NewRay(geom.NewVec(10, 0, 0), geom.NewVec(0, 0, -1))
		dist, hit := o.IntersectRay(inside, 20, AllPhases)
		require.True(t, hit)
		require.InDelta(t, 1, dist, 1e-9)
	})

	t.Run("rotated box", func(t *testing.T) {
		rotated := NewGameObject(NewHandle(3, 1), GameObjectTemplate{
			Position:    [3]float64{10, 0, 0},
			HalfExtents: [3]float64{1, 3, 1},
			Yaw:         math.Pi / 2,
		})

		dist, hit := rotated.IntersectRay(ray, 20, AllPhases)
		require.True(t, hit)
		require.InDelta(t, 7, dist, 1e-9)
	})

	t.Run("scaled box", func(t *testing.T) {
		scaled := NewGameObject(NewHandle(4, 1), GameObjectTemplate{
			Position:    [3]float64{10, 0, 0},
			HalfExtents: [3]float64{1, 1, 1},
			Scale:       2,
		})

		dist, hit := scaled.IntersectRay(ray, 20, AllPhases)
		require.True(t, hit)
		require.InDelta(t, 8, dist, 1e-9)
	})
}

func TestGameObjectRelocate(t *testing.T) {
	o := newTestBox(10, 0, 0)
	o.Relocate(r3.Vec{X: 20, Y: 5, Z: 0}, 0)

	require.Equal(t, geom.NewVec(20, 5, 0), o.Position())
	require.Equal(t, geom.NewAABB(geom.NewVec(20, 5, 0), geom.NewVec(1, 1, 1)), o.Bounds())

	ray := geom.NewRay(geom.NewVec(0, 0, 0), geom.NewVec(1, 0, 0))
	_, hit := o.IntersectRay(ray, 30, AllPhases)
	require.False(t, hit)
}
