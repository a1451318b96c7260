package websocket

import (
	"context"
	"math"
	"time"

	"github.com/aukilabs/dyntree/geom"
	"github.com/aukilabs/dyntree/models"
	"github.com/aukilabs/dyntree/world"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/google/uuid"
	"golang.org/x/net/websocket"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// The query parameter selecting the map a client works with.
	MapQueryParam = "map"

	// The header carrying the client id.
	HeaderClientID = "X-Client-Id"
)

// ConsoleHandler serves the debug query console of a map.
type ConsoleHandler struct {
	// The time a client is idle before being disconnected.
	ClientIdleTimeout time.Duration

	// The store where maps are looked up.
	Maps *world.MapStore

	conn     *websocket.Conn
	clientID string
	m        *world.Map
	joinErr  error
	left     bool
}

func (h *ConsoleHandler) HandleConnect(conn *websocket.Conn) {
	req := conn.Request()

	h.clientID = req.Header.Get(HeaderClientID)
	if h.clientID == "" {
		h.clientID = uuid.NewString()
	}
	h.conn = conn

	mapName := req.URL.Query().Get(MapQueryParam)

	m, err := h.Maps.Join(mapName)
	if err != nil {
		h.joinErr = errors.New("joining map failed").
			WithTag("map", mapName).
			WithType(world.ErrTypeMapClosed).
			Wrap(err)
		logs.WithTag("client_id", h.clientID).Warn(h.joinErr)
		return
	}
	h.m = m
}

func (h *ConsoleHandler) HandleDisconnect(_ error) {
	if h.m == nil || h.left {
		return
	}
	h.left = true
	h.Maps.Leave(h.m)
}

func (h *ConsoleHandler) currentMap() (*world.Map, error) {
	if h.joinErr != nil {
		return nil, h.joinErr
	}
	if h.m == nil || h.left {
		return nil, errors.New("no map attached to the connection").
			WithType(world.ErrTypeMapClosed)
	}
	return h.m, nil
}

func (h *ConsoleHandler) HandleSpawn(ctx context.Context, respond ResponseSender, msg Msg) error {
	var req SpawnRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	m, err := h.currentMap()
	if err != nil {
		return err
	}

	obj, err := m.Spawn(ctx, req.Object)
	if err != nil {
		return err
	}

	respond.Send(msg.Type.Response(), msg.RequestID, ObjectResponse{Object: obj})
	return nil
}

func (h *ConsoleHandler) HandleDespawn(ctx context.Context, respond ResponseSender, msg Msg) error {
	var req HandleRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	m, err := h.currentMap()
	if err != nil {
		return err
	}

	if err := m.Despawn(ctx, req.Handle); err != nil {
		return err
	}

	respond.Send(msg.Type.Response(), msg.RequestID, nil)
	return nil
}

func (h *ConsoleHandler) HandleMove(ctx context.Context, respond ResponseSender, msg Msg) error {
	var req MoveRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	m, err := h.currentMap()
	if err != nil {
		return err
	}

	obj, err := m.Move(ctx, req.Handle, vec(req.Position), req.Yaw)
	if err != nil {
		return err
	}

	respond.Send(msg.Type.Response(), msg.RequestID, ObjectResponse{Object: obj})
	return nil
}

func (h *ConsoleHandler) HandleSetEnabled(ctx context.Context, respond ResponseSender, msg Msg) error {
	var req SetEnabledRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	m, err := h.currentMap()
	if err != nil {
		return err
	}

	obj, err := m.SetEnabled(ctx, req.Handle, req.Enabled)
	if err != nil {
		return err
	}

	respond.Send(msg.Type.Response(), msg.RequestID, ObjectResponse{Object: obj})
	return nil
}

func (h *ConsoleHandler) HandleRay(ctx context.Context, respond ResponseSender, msg Msg) error {
	var req RayRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	origin := vec(req.Origin)
	dir := vec(req.Direction)
	if !geom.IsFiniteVec(origin) || !geom.IsFiniteVec(dir) || math.IsNaN(req.MaxDistance) || req.MaxDistance < 0 {
		return errors.New("invalid ray").
			WithTag("origin", req.Origin).
			WithTag("direction", req.Direction).
			WithTag("max_distance", req.MaxDistance).
			WithType(ErrTypeInvalidMsg)
	}

	m, err := h.currentMap()
	if err != nil {
		return err
	}

	dist, hit, err := m.FirstHit(ctx, geom.NewRay(origin, dir), req.MaxDistance, phaseMask(req.PhaseMask))
	if err != nil {
		return err
	}

	res := RayResponse{Hit: hit}
	if hit {
		res.Distance = dist
	}
	respond.Send(msg.Type.Response(), msg.RequestID, res)
	return nil
}

func (h *ConsoleHandler) HandleLineOfSight(ctx context.Context, respond ResponseSender, msg Msg) error {
	var req SegmentRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	from, to, err := segment(req)
	if err != nil {
		return err
	}

	m, err := h.currentMap()
	if err != nil {
		return err
	}

	visible, err := m.IsVisible(ctx, from, to, phaseMask(req.PhaseMask))
	if err != nil {
		return err
	}

	respond.Send(msg.Type.Response(), msg.RequestID, LineOfSightResponse{Visible: visible})
	return nil
}

func (h *ConsoleHandler) HandleHitPosition(ctx context.Context, respond ResponseSender, msg Msg) error {
	var req SegmentRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	from, to, err := segment(req)
	if err != nil {
		return err
	}

	m, err := h.currentMap()
	if err != nil {
		return err
	}

	point, hit, err := m.HitPosition(ctx, from, to, phaseMask(req.PhaseMask), req.Pushback)
	if err != nil {
		return err
	}

	respond.Send(msg.Type.Response(), msg.RequestID, HitPositionResponse{
		Hit:      hit,
		Position: [3]float64{point.X, point.Y, point.Z},
	})
	return nil
}

func (h *ConsoleHandler) HandleHeight(ctx context.Context, respond ResponseSender, msg Msg) error {
	var req HeightRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	p := vec(req.Position)
	if !geom.IsFiniteVec(p) || math.IsNaN(req.MaxSearch) || req.MaxSearch < 0 {
		return errors.New("invalid height query").
			WithTag("position", req.Position).
			WithTag("max_search", req.MaxSearch).
			WithType(ErrTypeInvalidMsg)
	}

	m, err := h.currentMap()
	if err != nil {
		return err
	}

	height, err := m.GroundHeight(ctx, p, req.MaxSearch, phaseMask(req.PhaseMask))
	if err != nil {
		return err
	}

	var res HeightResponse
	if !math.IsInf(height, -1) {
		res.Found = true
		res.Height = height
	}
	respond.Send(msg.Type.Response(), msg.RequestID, res)
	return nil
}

func (h *ConsoleHandler) HandleRegion(ctx context.Context, respond ResponseSender, msg Msg) error {
	var req RegionRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	box := geom.AABB{Min: vec(req.Min), Max: vec(req.Max)}
	if !box.IsFinite() {
		return errors.New("invalid region").
			WithTag("min", req.Min).
			WithTag("max", req.Max).
			WithType(ErrTypeInvalidMsg)
	}

	m, err := h.currentMap()
	if err != nil {
		return err
	}

	objects, err := m.Region(ctx, box)
	if err != nil {
		return err
	}

	respond.Send(msg.Type.Response(), msg.RequestID, ObjectsResponse{Objects: objects})
	return nil
}

func (h *ConsoleHandler) HandleObjects(ctx context.Context, respond ResponseSender, msg Msg) error {
	m, err := h.currentMap()
	if err != nil {
		return err
	}

	objects, err := m.Objects(ctx)
	if err != nil {
		return err
	}

	respond.Send(msg.Type.Response(), msg.RequestID, ObjectsResponse{Objects: objects})
	return nil
}

func (h *ConsoleHandler) HandleDebugInfo(ctx context.Context, respond ResponseSender, msg Msg) error {
	m, err := h.currentMap()
	if err != nil {
		return err
	}

	info, err := m.Info(ctx)
	if err != nil {
		return err
	}

	respond.Send(msg.Type.Response(), msg.RequestID, info)
	return nil
}

func (h *ConsoleHandler) Receiver() Receiver {
	return func() (Msg, int, error) {
		return Receive(h.conn)
	}
}

func (h *ConsoleHandler) Sender() Sender {
	return func(msg Msg) (int, error) {
		return Send(h.conn, msg)
	}
}

func (h *ConsoleHandler) Close() {
}

func (h *ConsoleHandler) IdleTimeout() time.Duration {
	return h.ClientIdleTimeout
}

func (h *ConsoleHandler) GetClientID() string {
	return h.clientID
}

func (h *ConsoleHandler) MapName() string {
	if h.m == nil {
		return ""
	}
	return h.m.Name
}

func vec(v [3]float64) r3.Vec {
	return geom.NewVec(v[0], v[1], v[2])
}

func phaseMask(v models.PhaseMask) models.PhaseMask {
	if v == 0 {
		return models.AllPhases
	}
	return v
}

func segment(req SegmentRequest) (r3.Vec, r3.Vec, error) {
	from := vec(req.From)
	to := vec(req.To)
	if !geom.IsFiniteVec(from) || !geom.IsFiniteVec(to) || math.IsNaN(req.Pushback) || math.IsInf(req.Pushback, 0) {
		return from, to, errors.New("invalid segment").
			WithTag("from", req.From).
			WithTag("to", req.To).
			WithType(ErrTypeInvalidMsg)
	}
	return from, to, nil
}
