package http

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aukilabs/dyntree/models"
	"github.com/aukilabs/dyntree/world"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
)

func TestHandleHealthCheck(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleHealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleReadyCheck(t *testing.T) {
	ready := false
	h := HandleReadyCheck(func() bool { return ready })

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ready = true
	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleVersion(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleVersion("v1.2.3")(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "v1.2.3", rec.Body.String())
}

func TestHandleWithCORS(t *testing.T) {
	h := HandleWithCORS(http.HandlerFunc(HandleHealthCheck))

	t.Run("preflight", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/health", nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("request", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestHandleMaps(t *testing.T) {
	store := &world.MapStore{FrameDuration: time.Millisecond * 5}
	defer store.Close()

	dungeon, err := store.GetOrCreate("dungeon")
	require.NoError(t, err)
	_, err = store.GetOrCreate("")
	require.NoError(t, err)

	_, err = dungeon.Spawn(context.Background(), models.GameObjectTemplate{
		Name:        "crate",
		HalfExtents: [3]float64{1, 1, 1},
	})
	require.NoError(t, err)

	h := HandleMaps(store)

	t.Run("all maps", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/debug/maps", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var infos []world.MapInfo
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
		require.Len(t, infos, 2)
		require.Equal(t, world.DefaultMapName, infos[0].Name)
		require.Equal(t, "dungeon", infos[1].Name)
		require.Equal(t, 1, infos[1].Objects)
	})

	t.Run("single map", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/debug/maps?name=dungeon", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var infos []world.MapInfo
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
		require.Len(t, infos, 1)
		require.Equal(t, "dungeon", infos[0].Name)
	})

	t.Run("unknown map", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/debug/maps?name=cave", nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandleSceneSchema(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleSceneSchema()(rec, httptest.NewRequest(http.MethodGet, "/debug/scene-schema", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	require.Contains(t, body, `"maps"`)
	require.Contains(t, body, `"half_extents"`)
	require.Contains(t, body, "Dyntree scene")
}

func TestListenAndServe(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("/health", HandleHealthCheck)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ListenAndServe(ctx, &http.Server{Addr: addr, Handler: mux})
	}()

	require.Eventually(t, func() bool {
		res, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		res.Body.Close()
		return res.StatusCode == http.StatusOK
	}, time.Second*5, time.Millisecond*10)

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second * 5):
		t.Fatal("servers are not stopped")
	}
}

func TestMetricsPathFormatter(t *testing.T) {
	require.Equal(t, "/health", MetricsPathFormatter(http.StatusOK, "/health"))
	require.Empty(t, MetricsPathFormatter(http.StatusNotFound, "/wp-admin"))
	require.Empty(t, MetricsPathFormatter(http.StatusMethodNotAllowed, "/health"))
}
