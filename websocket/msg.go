package websocket

import (
	"github.com/aukilabs/dyntree/models"
	"github.com/aukilabs/dyntree/world"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const (
	ErrTypeUnknownMsg = "unknown_msg"
	ErrTypeInvalidMsg = "invalid_msg"
)

// MsgType identifies the payload of a console message. Responses carry the
// request type with a _response suffix.
type MsgType string

const (
	MsgTypeSpawn       MsgType = "spawn"
	MsgTypeDespawn     MsgType = "despawn"
	MsgTypeMove        MsgType = "move"
	MsgTypeSetEnabled  MsgType = "set_enabled"
	MsgTypeRay         MsgType = "ray"
	MsgTypeLineOfSight MsgType = "line_of_sight"
	MsgTypeHitPosition MsgType = "hit_position"
	MsgTypeHeight      MsgType = "height"
	MsgTypeRegion      MsgType = "region"
	MsgTypeObjects     MsgType = "objects"
	MsgTypeDebugInfo   MsgType = "debug_info"
	MsgTypeError       MsgType = "error"
)

const responseTypeSuffix = "_response"

func (t MsgType) Response() MsgType {
	return t + responseTypeSuffix
}

// Msg is a console message. One websocket frame holds one message.
type Msg struct {
	Type      MsgType         `json:"type"`
	RequestID uint32          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// DataTo decodes the message payload into v.
func (m Msg) DataTo(v any) error {
	if len(m.Data) == 0 {
		return nil
	}

	if err := json.Unmarshal(m.Data, v); err != nil {
		return errors.New("decoding message data failed").
			WithTag("msg_type", m.Type).
			WithType(ErrTypeInvalidMsg).
			Wrap(err)
	}
	return nil
}

// MsgFromData creates a message with the encoded payload.
func MsgFromData(t MsgType, requestID uint32, v any) (Msg, error) {
	msg := Msg{
		Type:      t,
		RequestID: requestID,
	}
	if v == nil {
		return msg, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return Msg{}, errors.New("encoding message data failed").
			WithTag("msg_type", t).
			Wrap(err)
	}
	msg.Data = data
	return msg, nil
}

// Receive reads a message from the connection and returns the number of bytes
// read.
func Receive(conn *websocket.Conn) (Msg, int, error) {
	var b []byte
	if err := websocket.Message.Receive(conn, &b); err != nil {
		return Msg{}, 0, err
	}

	var msg Msg
	if err := json.Unmarshal(b, &msg); err != nil {
		return Msg{}, len(b), errors.New("decoding message failed").
			WithType(ErrTypeInvalidMsg).
			Wrap(err)
	}
	return msg, len(b), nil
}

// Send writes a message on the connection and returns the number of bytes
// written.
func Send(conn *websocket.Conn, msg Msg) (int, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return 0, errors.New("encoding message failed").Wrap(err)
	}

	if err := websocket.Message.Send(conn, string(b)); err != nil {
		return 0, err
	}
	return len(b), nil
}

type SpawnRequest struct {
	Object models.GameObjectTemplate `json:"object"`
}

type HandleRequest struct {
	Handle models.Handle `json:"handle"`
}

type MoveRequest struct {
	Handle   models.Handle `json:"handle"`
	Position [3]float64    `json:"position"`
	Yaw      float64       `json:"yaw"`
}

type SetEnabledRequest struct {
	Handle  models.Handle `json:"handle"`
	Enabled bool          `json:"enabled"`
}

type ObjectResponse struct {
	Object world.Object `json:"object"`
}

type ObjectsResponse struct {
	Objects []world.Object `json:"objects"`
}

type RayRequest struct {
	Origin      [3]float64       `json:"origin"`
	Direction   [3]float64       `json:"direction"`
	MaxDistance float64          `json:"max_distance"`
	PhaseMask   models.PhaseMask `json:"phase_mask,omitempty"`
}

type RayResponse struct {
	Hit      bool    `json:"hit"`
	Distance float64 `json:"distance,omitempty"`
}

type SegmentRequest struct {
	From      [3]float64       `json:"from"`
	To        [3]float64       `json:"to"`
	PhaseMask models.PhaseMask `json:"phase_mask,omitempty"`
	Pushback  float64          `json:"pushback,omitempty"`
}

type LineOfSightResponse struct {
	Visible bool `json:"visible"`
}

type HitPositionResponse struct {
	Hit      bool       `json:"hit"`
	Position [3]float64 `json:"position"`
}

type HeightRequest struct {
	Position  [3]float64       `json:"position"`
	MaxSearch float64          `json:"max_search"`
	PhaseMask models.PhaseMask `json:"phase_mask,omitempty"`
}

// HeightResponse reports the ground height. Found is false when there is no
// ground within the search distance.
type HeightResponse struct {
	Found  bool    `json:"found"`
	Height float64 `json:"height,omitempty"`
}

type RegionRequest struct {
	Min [3]float64 `json:"min"`
	Max [3]float64 `json:"max"`
}

type ErrorResponse struct {
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
}
