package world

import (
	"context"
	"io"
	"os"

	"github.com/aukilabs/dyntree/models"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/invopop/jsonschema"
	"github.com/segmentio/encoding/json"
)

// Scene lists the game objects to spawn in each map at startup.
type Scene struct {
	Maps []SceneMap `json:"maps" jsonschema:"description=The maps to populate"`
}

type SceneMap struct {
	Name    string                      `json:"name"    jsonschema:"description=The map name. Empty is the default map"`
	Objects []models.GameObjectTemplate `json:"objects" jsonschema:"description=The game objects spawned in the map"`
}

// SceneSchema returns the JSON schema of scene files.
func SceneSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{}

	schema := reflector.Reflect(new(Scene))
	schema.Title = "Dyntree scene"
	schema.Description = "Game objects spawned in the maps at startup"
	return schema
}

// DecodeScene reads a JSON scene and validates every object template.
func DecodeScene(r io.Reader) (Scene, error) {
	var scene Scene

	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&scene); err != nil {
		return Scene{}, errors.New("decoding scene failed").
			WithType(ErrTypeInvalidScene).
			Wrap(err)
	}

	for _, m := range scene.Maps {
		for i, t := range m.Objects {
			if err := ValidateTemplate(t); err != nil {
				return Scene{}, errors.New("invalid scene object").
					WithTag("map", m.Name).
					WithTag("object_index", i).
					WithType(ErrTypeInvalidScene).
					Wrap(err)
			}
		}
	}
	return scene, nil
}

func LoadSceneFile(filename string) (Scene, error) {
	f, err := os.Open(filename)
	if err != nil {
		return Scene{}, errors.New("opening scene file failed").
			WithTag("filename", filename).
			Wrap(err)
	}
	defer f.Close()

	return DecodeScene(f)
}

// LoadScene spawns the scene objects in the store maps. Maps are created when
// missing and balanced once their objects are spawned.
func (s *MapStore) LoadScene(ctx context.Context, scene Scene) error {
	for _, sm := range scene.Maps {
		m, err := s.GetOrCreate(sm.Name)
		if err != nil {
			return err
		}

		for _, t := range sm.Objects {
			if _, err := m.Spawn(ctx, t); err != nil {
				return errors.New("spawning scene object failed").
					WithTag("map", m.Name).
					WithTag("object", t.Name).
					Wrap(err)
			}
		}

		cells, err := m.Balance(ctx)
		if err != nil {
			return err
		}

		logs.WithTag("map", m.Name).
			WithTag("objects", len(sm.Objects)).
			WithTag("cells", cells).
			Info("scene loaded")
	}
	return nil
}
