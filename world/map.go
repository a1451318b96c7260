package world

import (
	"context"
	"sort"
	"time"

	"github.com/aukilabs/dyntree/dyntree"
	"github.com/aukilabs/dyntree/dyntree/grid"
	"github.com/aukilabs/dyntree/geom"
	"github.com/aukilabs/dyntree/models"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"gonum.org/v1/gonum/spatial/r3"
)

const DefaultFrameDuration = 50 * time.Millisecond

// Map is a world map holding game objects indexed in a dynamic tree. All the
// map state is owned by the map runner: every exported method is executed on
// the runner goroutine.
type Map struct {
	Name string

	runner  *Runner
	tree    *dyntree.Tree
	handles models.HandleGenerator
	objects map[models.Handle]*models.GameObject
}

// Object is a snapshot of a game object.
type Object struct {
	Handle models.Handle `json:"handle"`
	GUID   string        `json:"guid"`
	models.GameObjectTemplate
}

// MapInfo describes the state of a map.
type MapInfo struct {
	Name       string         `json:"name"`
	Objects    int            `json:"objects"`
	Unbalanced int            `json:"unbalanced"`
	Grid       grid.DebugInfo `json:"grid"`
}

// NewMap creates a map. Run must be called for the map to process frames and
// requests.
func NewMap(name string, opts dyntree.Options, frameDuration time.Duration) *Map {
	opts.Name = name

	m := &Map{
		Name:    name,
		tree:    dyntree.New(opts),
		objects: make(map[models.Handle]*models.GameObject),
	}
	m.runner = NewRunner(frameDuration, m.tree.Update)
	return m
}

func (m *Map) Run() {
	logs.WithTag("map", m.Name).Info("map started")
	m.runner.Run()
	logs.WithTag("map", m.Name).Info("map stopped")
}

func (m *Map) Close() {
	m.runner.Close()
}

// Spawn creates a game object from the template and inserts it in the map.
func (m *Map) Spawn(ctx context.Context, t models.GameObjectTemplate) (Object, error) {
	if err := ValidateTemplate(t); err != nil {
		return Object{}, err
	}

	var obj Object
	err := m.runner.Do(ctx, func() {
		o := models.NewGameObject(m.handles.New(), t)
		m.objects[o.Handle()] = o
		m.tree.Insert(o)
		obj = newObject(o)
	})
	if err != nil {
		return Object{}, err
	}

	instrumentObjectCount(m.Name, 1)
	return obj, nil
}

// Despawn removes the game object from the map.
func (m *Map) Despawn(ctx context.Context, h models.Handle) error {
	var err error
	if doErr := m.runner.Do(ctx, func() {
		o, ok := m.objects[h]
		if !ok {
			err = objectNotFound(m.Name, h)
			return
		}

		m.tree.Remove(o)
		delete(m.objects, h)
		m.handles.Release(h)
	}); doErr != nil {
		return doErr
	}

	if err == nil {
		instrumentObjectCount(m.Name, -1)
	}
	return err
}

// Move relocates the game object. The object leaves the tree while it moves.
func (m *Map) Move(ctx context.Context, h models.Handle, position r3.Vec, yaw float64) (Object, error) {
	if !geom.IsFiniteVec(position) || !isFinite(yaw) {
		return Object{}, errors.New("object position and yaw must be finite").
			WithTag("position", position).
			WithTag("yaw", yaw).
			WithType(ErrTypeInvalidObject)
	}

	return m.update(ctx, h, func(o *models.GameObject) {
		m.tree.Remove(o)
		o.Relocate(position, yaw)
		m.tree.Insert(o)
	})
}

// SetEnabled toggles the collision of the game object.
func (m *Map) SetEnabled(ctx context.Context, h models.Handle, enabled bool) (Object, error) {
	return m.update(ctx, h, func(o *models.GameObject) {
		o.SetEnabled(enabled)
	})
}

func (m *Map) update(ctx context.Context, h models.Handle, fn func(o *models.GameObject)) (Object, error) {
	var obj Object
	var err error

	if doErr := m.runner.Do(ctx, func() {
		o, ok := m.objects[h]
		if !ok {
			err = objectNotFound(m.Name, h)
			return
		}

		fn(o)
		obj = newObject(o)
	}); doErr != nil {
		return Object{}, doErr
	}
	return obj, err
}

// Object returns a snapshot of the game object.
func (m *Map) Object(ctx context.Context, h models.Handle) (Object, error) {
	return m.update(ctx, h, func(*models.GameObject) {})
}

// Objects returns a snapshot of every game object, ordered by handle.
func (m *Map) Objects(ctx context.Context) ([]Object, error) {
	var objects []Object

	err := m.runner.Do(ctx, func() {
		objects = make([]Object, 0, len(m.objects))
		for _, o := range m.objects {
			objects = append(objects, newObject(o))
		}
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].Handle < objects[j].Handle
	})
	return objects, nil
}

// FirstHit returns the distance to the closest object hit by the ray.
func (m *Map) FirstHit(ctx context.Context, ray geom.Ray, maxDist float64, filter models.PhaseMask) (float64, bool, error) {
	var dist float64
	var hit bool

	err := m.runner.Do(ctx, func() {
		dist, hit = m.tree.FirstHit(ray, maxDist, filter)
	})
	return dist, hit, err
}

// IsVisible reports whether b can be seen from a.
func (m *Map) IsVisible(ctx context.Context, a, b r3.Vec, filter models.PhaseMask) (bool, error) {
	var visible bool

	err := m.runner.Do(ctx, func() {
		visible = m.tree.IsVisible(a, b, filter)
	})
	return visible, err
}

// HitPosition returns where the segment from origin to target hits an object.
func (m *Map) HitPosition(ctx context.Context, origin, target r3.Vec, filter models.PhaseMask, pushback float64) (r3.Vec, bool, error) {
	var point r3.Vec
	var hit bool

	err := m.runner.Do(ctx, func() {
		point, hit = m.tree.HitPointAlongSegment(origin, target, filter, pushback)
	})
	return point, hit, err
}

// GroundHeight returns the height of the ground below the point.
func (m *Map) GroundHeight(ctx context.Context, p r3.Vec, maxSearch float64, filter models.PhaseMask) (float64, error) {
	var height float64

	err := m.runner.Do(ctx, func() {
		height = m.tree.GroundHeight(p, maxSearch, filter)
	})
	return height, err
}

// Region returns the objects whose bounds overlap the box.
func (m *Map) Region(ctx context.Context, box geom.AABB) ([]Object, error) {
	var objects []Object

	err := m.runner.Do(ctx, func() {
		for _, l := range m.tree.Region(box) {
			if o, ok := m.objects[l.Handle()]; ok {
				objects = append(objects, newObject(o))
			}
		}
	})
	return objects, err
}

// Balance forces a rebalance of the map tree.
func (m *Map) Balance(ctx context.Context) (int, error) {
	var cells int

	err := m.runner.Do(ctx, func() {
		cells = m.tree.Balance()
	})
	return cells, err
}

func (m *Map) Info(ctx context.Context) (MapInfo, error) {
	var info MapInfo

	err := m.runner.Do(ctx, func() {
		info = MapInfo{
			Name:       m.Name,
			Objects:    len(m.objects),
			Unbalanced: m.tree.Unbalanced(),
			Grid:       m.tree.DebugInfo(),
		}
	})
	return info, err
}

func newObject(o *models.GameObject) Object {
	return Object{
		Handle:             o.Handle(),
		GUID:               o.GUID.String(),
		GameObjectTemplate: o.Template(),
	}
}
