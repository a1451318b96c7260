package http

import (
	"context"
	"net/http"

	"github.com/aukilabs/dyntree/world"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/segmentio/encoding/json"
)

const mapNameQueryParam = "name"

func HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func HandleReadyCheck(readinessCheck func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !readinessCheck() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func HandleVersion(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(version))
	}
}

// HandleWithCORS allows the handler to be called from any origin.
func HandleWithCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// HandleMaps writes the debug info of the running maps. The name query
// parameter restricts the output to a single map.
func HandleMaps(store *world.MapStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		maps := store.Maps()

		if name := r.URL.Query().Get(mapNameQueryParam); name != "" {
			m, ok := store.Get(name)
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			maps = []*world.Map{m}
		}

		infos := make([]world.MapInfo, 0, len(maps))
		for _, m := range maps {
			info, err := m.Info(r.Context())
			if errors.IsType(err, world.ErrTypeMapClosed) {
				continue
			}
			if errors.Is(err, context.Canceled) {
				return
			}
			if err != nil {
				logs.WithTag("map", m.Name).
					Error(errors.New("getting map debug info failed").Wrap(err))
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			infos = append(infos, info)
		}

		writeJSON(w, http.StatusOK, infos)
	}
}

// HandleSceneSchema writes the JSON schema of scene files.
func HandleSceneSchema() http.HandlerFunc {
	schema := world.SceneSchema()

	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, schema)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		logs.Warn(errors.New("encoding response failed").Wrap(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}
