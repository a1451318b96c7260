package world

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aukilabs/dyntree/geom"
	"github.com/aukilabs/dyntree/models"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
)

func TestMapStore(t *testing.T) {
	var store MapStore
	defer store.Close()

	m, err := store.GetOrCreate("")
	require.NoError(t, err)
	require.Equal(t, DefaultMapName, m.Name)

	same, err := store.GetOrCreate(DefaultMapName)
	require.NoError(t, err)
	require.Same(t, m, same)

	_, err = store.GetOrCreate("dungeon")
	require.NoError(t, err)

	maps := store.Maps()
	require.Len(t, maps, 2)
	require.Equal(t, DefaultMapName, maps[0].Name)
	require.Equal(t, "dungeon", maps[1].Name)

	got, ok := store.Get("dungeon")
	require.True(t, ok)

	store.Remove("dungeon")
	_, ok = store.Get("dungeon")
	require.False(t, ok)

	_, err = got.Info(context.Background())
	require.True(t, errors.IsType(err, ErrTypeMapClosed))

	// the default map still serves requests:
	_, err = m.Spawn(context.Background(), cube(0, 0, 0))
	require.NoError(t, err)
}

func TestMapStoreJoinLeave(t *testing.T) {
	store := MapStore{FrameDuration: time.Millisecond}
	defer store.Close()

	t.Run("map removed after last client", func(t *testing.T) {
		a, err := store.Join("arena")
		require.NoError(t, err)

		b, err := store.Join("arena")
		require.NoError(t, err)
		require.Same(t, a, b)

		store.Leave(a)
		_, ok := store.Get("arena")
		require.True(t, ok)

		store.Leave(b)
		_, ok = store.Get("arena")
		require.False(t, ok)

		_, err = a.Info(context.Background())
		require.True(t, errors.IsType(err, ErrTypeMapClosed))
	})

	t.Run("kept map survives clients", func(t *testing.T) {
		kept, err := store.GetOrCreate("dungeon")
		require.NoError(t, err)

		m, err := store.Join("dungeon")
		require.NoError(t, err)
		require.Same(t, kept, m)

		store.Leave(m)
		_, ok := store.Get("dungeon")
		require.True(t, ok)

		_, err = kept.Info(context.Background())
		require.NoError(t, err)
	})

	t.Run("joined map kept by scene", func(t *testing.T) {
		m, err := store.Join("cave")
		require.NoError(t, err)

		_, err = store.GetOrCreate("cave")
		require.NoError(t, err)

		store.Leave(m)
		_, ok := store.Get("cave")
		require.True(t, ok)
	})

	t.Run("leave of a replaced map", func(t *testing.T) {
		old, err := store.Join("crypt")
		require.NoError(t, err)
		store.Remove("crypt")

		current, err := store.Join("crypt")
		require.NoError(t, err)

		store.Leave(old)
		_, ok := store.Get("crypt")
		require.True(t, ok)

		store.Leave(current)
		_, ok = store.Get("crypt")
		require.False(t, ok)
	})
}

func TestMapStoreClose(t *testing.T) {
	store := MapStore{FrameDuration: time.Millisecond}

	m, err := store.GetOrCreate("default")
	require.NoError(t, err)

	store.Close()
	require.Empty(t, store.Maps())

	_, err = m.Info(context.Background())
	require.True(t, errors.IsType(err, ErrTypeMapClosed))

	_, err = store.GetOrCreate("default")
	require.True(t, errors.IsType(err, ErrTypeMapClosed))

	_, err = store.Join("default")
	require.True(t, errors.IsType(err, ErrTypeMapClosed))
}

const testScene = `{
	"maps": [
		{
			"name": "default",
			"objects": [
				{"name": "floor", "position": [0, 0, -1], "half_extents": [100, 100, 1]},
				{"name": "door", "position": [10, 0, 1], "half_extents": [1, 2, 2], "yaw": 1.5707963267948966, "disabled": true}
			]
		},
		{
			"name": "dungeon",
			"objects": [
				{"name": "wall", "position": [10, 0, 0], "half_extents": [1, 5, 5], "phase_mask": 2}
			]
		}
	]
}`

func TestDecodeScene(t *testing.T) {
	scene, err := DecodeScene(strings.NewReader(testScene))
	require.NoError(t, err)
	require.Len(t, scene.Maps, 2)
	require.Len(t, scene.Maps[0].Objects, 2)
	require.True(t, scene.Maps[0].Objects[1].Disabled)
	require.Equal(t, models.PhaseMask(2), scene.Maps[1].Objects[0].PhaseMask)

	t.Run("malformed", func(t *testing.T) {
		_, err := DecodeScene(strings.NewReader(`{"maps": [`))
		require.True(t, errors.IsType(err, ErrTypeInvalidScene))
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := DecodeScene(strings.NewReader(`{"regions": []}`))
		require.True(t, errors.IsType(err, ErrTypeInvalidScene))
	})

	t.Run("invalid object", func(t *testing.T) {
		_, err := DecodeScene(strings.NewReader(`{"maps": [{"name": "x", "objects": [{"position": [0, 0, 0], "half_extents": [0, 1, 1]}]}]}`))
		require.True(t, errors.IsType(err, ErrTypeInvalidScene))
	})
}

func TestLoadScene(t *testing.T) {
	ctx := context.Background()
	filename := filepath.Join(t.TempDir(), "scene.json")
	require.NoError(t, os.WriteFile(filename, []byte(testScene), 0o600))

	scene, err := LoadSceneFile(filename)
	require.NoError(t, err)

	var store MapStore
	defer store.Close()
	require.NoError(t, store.LoadScene(ctx, scene))

	m, ok := store.Get("default")
	require.True(t, ok)

	info, err := m.Info(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, info.Objects)
	require.Zero(t, info.Unbalanced)

	// the door is open:
	visible, err := m.IsVisible(ctx, geom.NewVec(0, 0, 1), geom.NewVec(20, 0, 1), models.AllPhases)
	require.NoError(t, err)
	require.True(t, visible)

	dungeon, ok := store.Get("dungeon")
	require.True(t, ok)

	visible, err = dungeon.IsVisible(ctx, geom.NewVec(0, 0, 0), geom.NewVec(20, 0, 0), 1)
	require.NoError(t, err)
	require.True(t, visible)

	visible, err = dungeon.IsVisible(ctx, geom.NewVec(0, 0, 0), geom.NewVec(20, 0, 0), 2)
	require.NoError(t, err)
	require.False(t, visible)

	_, err = LoadSceneFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestSceneSchema(t *testing.T) {
	schema := SceneSchema()
	require.Equal(t, "Dyntree scene", schema.Title)

	b, err := json.Marshal(schema)
	require.NoError(t, err)
	require.Contains(t, string(b), `"maps"`)
	require.Contains(t, string(b), `"half_extents"`)
	require.Contains(t, string(b), `"phase_mask"`)
}
