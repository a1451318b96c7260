package world

import (
	"math"

	"github.com/aukilabs/dyntree/models"
	"github.com/aukilabs/go-tooling/pkg/errors"
)

const (
	ErrTypeObjectNotFound = "object_not_found"
	ErrTypeInvalidObject  = "invalid_object"
	ErrTypeMapClosed      = "map_closed"
	ErrTypeInvalidScene   = "invalid_scene"
)

var errMapClosed = errors.New("map is closed").WithType(ErrTypeMapClosed)

func objectNotFound(mapName string, h models.Handle) error {
	return errors.New("object not found").
		WithTag("map", mapName).
		WithTag("handle", h.String()).
		WithType(ErrTypeObjectNotFound)
}

// ValidateTemplate returns an error when the template would produce an object
// with non-finite or empty bounds.
func ValidateTemplate(t models.GameObjectTemplate) error {
	for i := 0; i < 3; i++ {
		if !isFinite(t.Position[i]) {
			return errors.New("object position is not finite").
				WithTag("position", t.Position).
				WithType(ErrTypeInvalidObject)
		}

		if !isFinite(t.HalfExtents[i]) || t.HalfExtents[i] <= 0 {
			return errors.New("object half extents must be finite and positive").
				WithTag("half_extents", t.HalfExtents).
				WithType(ErrTypeInvalidObject)
		}
	}

	if !isFinite(t.Yaw) || !isFinite(t.Scale) || t.Scale < 0 {
		return errors.New("object yaw and scale must be finite").
			WithTag("yaw", t.Yaw).
			WithTag("scale", t.Scale).
			WithType(ErrTypeInvalidObject)
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
