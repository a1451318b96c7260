package world

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/aukilabs/dyntree/dyntree"
	"github.com/aukilabs/dyntree/geom"
	"github.com/aukilabs/dyntree/models"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func newTestMap(t *testing.T) *Map {
	m := NewMap("test", dyntree.Options{}, time.Millisecond)
	go m.Run()
	t.Cleanup(m.Close)
	return m
}

func cube(x, y, z float64) models.GameObjectTemplate {
	return models.GameObjectTemplate{
		Name:        "crate",
		Position:    [3]float64{x, y, z},
		HalfExtents: [3]float64{1, 1, 1},
	}
}

func TestMapSpawnDespawn(t *testing.T) {
	ctx := context.Background()
	m := newTestMap(t)

	obj, err := m.Spawn(ctx, cube(10, 0, 0))
	require.NoError(t, err)
	require.Equal(t, models.NewHandle(1, 1), obj.Handle)
	require.NotEmpty(t, obj.GUID)

	expected := cube(10, 0, 0)
	expected.Scale = 1
	expected.PhaseMask = models.AllPhases
	if diff := cmp.Diff(expected, obj.GameObjectTemplate); diff != "" {
		t.Fatalf("unexpected template (-want +got):\n%s", diff)
	}

	ray, maxDist := geom.RayBetween(geom.NewVec(0, 0, 0), geom.NewVec(20, 0, 0))
	dist, hit, err := m.FirstHit(ctx, ray, maxDist, models.AllPhases)
	require.NoError(t, err)
	require.True(t, hit)
	require.InDelta(t, 9, dist, 1e-9)

	require.NoError(t, m.Despawn(ctx, obj.Handle))
	_, hit, err = m.FirstHit(ctx, ray, maxDist, models.AllPhases)
	require.NoError(t, err)
	require.False(t, hit)

	err = m.Despawn(ctx, obj.Handle)
	require.Error(t, err)
	require.True(t, errors.IsType(err, ErrTypeObjectNotFound))

	// the slot is reused with a new generation:
	obj, err = m.Spawn(ctx, cube(10, 0, 0))
	require.NoError(t, err)
	require.Equal(t, models.NewHandle(1, 2), obj.Handle)
}

func TestMapSpawnInvalid(t *testing.T) {
	m := newTestMap(t)

	tmpl := cube(math.NaN(), 0, 0)
	_, err := m.Spawn(context.Background(), tmpl)
	require.Error(t, err)
	require.True(t, errors.IsType(err, ErrTypeInvalidObject))

	tmpl = cube(0, 0, 0)
	tmpl.HalfExtents[1] = 0
	_, err = m.Spawn(context.Background(), tmpl)
	require.Error(t, err)
	require.True(t, errors.IsType(err, ErrTypeInvalidObject))
}

func TestMapMove(t *testing.T) {
	ctx := context.Background()
	m := newTestMap(t)

	obj, err := m.Spawn(ctx, cube(10, 0, 0))
	require.NoError(t, err)

	moved, err := m.Move(ctx, obj.Handle, geom.NewVec(200, 0, 0), 0)
	require.NoError(t, err)
	require.Equal(t, [3]float64{200, 0, 0}, moved.Position)

	visible, err := m.IsVisible(ctx, geom.NewVec(0, 0, 0), geom.NewVec(20, 0, 0), models.AllPhases)
	require.NoError(t, err)
	require.True(t, visible)

	visible, err = m.IsVisible(ctx, geom.NewVec(150, 0, 0), geom.NewVec(250, 0, 0), models.AllPhases)
	require.NoError(t, err)
	require.False(t, visible)

	_, err = m.Move(ctx, models.NewHandle(42, 1), geom.NewVec(0, 0, 0), 0)
	require.True(t, errors.IsType(err, ErrTypeObjectNotFound))

	_, err = m.Move(ctx, obj.Handle, geom.NewVec(math.Inf(1), 0, 0), 0)
	require.True(t, errors.IsType(err, ErrTypeInvalidObject))
}

func TestMapSetEnabled(t *testing.T) {
	ctx := context.Background()
	m := newTestMap(t)

	door, err := m.Spawn(ctx, cube(10, 0, 0))
	require.NoError(t, err)

	door, err = m.SetEnabled(ctx, door.Handle, false)
	require.NoError(t, err)
	require.True(t, door.Disabled)

	point, hit, err := m.HitPosition(ctx, geom.NewVec(0, 0, 0), geom.NewVec(20, 0, 0), models.AllPhases, 0)
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, geom.NewVec(20, 0, 0), point)

	_, err = m.SetEnabled(ctx, door.Handle, true)
	require.NoError(t, err)

	point, hit, err = m.HitPosition(ctx, geom.NewVec(0, 0, 0), geom.NewVec(20, 0, 0), models.AllPhases, -0.5)
	require.NoError(t, err)
	require.True(t, hit)
	require.True(t, geom.VecEqualWithEpsilon(geom.NewVec(8.5, 0, 0), point, 1e-9))
}

func TestMapQueries(t *testing.T) {
	ctx := context.Background()
	m := newTestMap(t)

	floor := models.GameObjectTemplate{
		Name:        "floor",
		Position:    [3]float64{0, 0, -1},
		HalfExtents: [3]float64{100, 100, 1},
	}
	_, err := m.Spawn(ctx, floor)
	require.NoError(t, err)
	crate, err := m.Spawn(ctx, cube(10, 10, 1))
	require.NoError(t, err)

	height, err := m.GroundHeight(ctx, geom.NewVec(0, 0, 10), 100, models.AllPhases)
	require.NoError(t, err)
	require.InDelta(t, 0, height, 1e-9)

	height, err = m.GroundHeight(ctx, geom.NewVec(500, 0, 10), 100, models.AllPhases)
	require.NoError(t, err)
	require.True(t, math.IsInf(height, -1))

	objects, err := m.Region(ctx, geom.AABB{Min: geom.NewVec(8, 8, 0.5), Max: geom.NewVec(12, 12, 3)})
	require.NoError(t, err)
	require.Len(t, objects, 1)
	require.Equal(t, crate.Handle, objects[0].Handle)

	objects, err = m.Objects(ctx)
	require.NoError(t, err)
	require.Len(t, objects, 2)
	require.Equal(t, "floor", objects[0].Name)
	require.Equal(t, "crate", objects[1].Name)

	obj, err := m.Object(ctx, crate.Handle)
	require.NoError(t, err)
	require.Equal(t, crate, obj)

	cells, err := m.Balance(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, cells)

	info, err := m.Info(ctx)
	require.NoError(t, err)
	require.Equal(t, "test", info.Name)
	require.Equal(t, 2, info.Objects)
	require.Zero(t, info.Unbalanced)
	require.Equal(t, 1, info.Grid.CellCount)
	require.Equal(t, 2, info.Grid.LeafCount)
}

func TestMapFramesRebalance(t *testing.T) {
	ctx := context.Background()
	m := NewMap("frames", dyntree.Options{RebalancePeriod: 5 * time.Millisecond}, time.Millisecond)
	go m.Run()
	defer m.Close()

	_, err := m.Spawn(ctx, cube(10, 0, 0))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		info, err := m.Info(ctx)
		return err == nil && info.Unbalanced == 0 && info.Grid.Pending == 0
	}, time.Second, 5*time.Millisecond)
}

func TestMapClosed(t *testing.T) {
	m := NewMap("closed", dyntree.Options{}, time.Millisecond)
	go m.Run()
	m.Close()

	_, err := m.Spawn(context.Background(), cube(0, 0, 0))
	require.Error(t, err)
	require.True(t, errors.IsType(err, ErrTypeMapClosed))
}

func TestMapContextCanceled(t *testing.T) {
	// never run:
	m := NewMap("idle", dyntree.Options{}, time.Millisecond)
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := m.Info(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
