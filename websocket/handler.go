package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/dyntree/world"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"golang.org/x/net/websocket"
)

const (
	sendChanSize    = 512
	receiveChanSize = 64
)

// Receiver reads the next message of a connection.
type Receiver func() (Msg, int, error)

// Sender writes a message to a connection.
type Sender func(Msg) (int, error)

// ResponseSender queues messages to be sent to the client.
type ResponseSender interface {
	// Encodes v and queues it as a message of the given type.
	Send(t MsgType, requestID uint32, v any)

	// Queues a message.
	SendMsg(msg Msg)
}

// Handler represents a console handler.
type Handler interface {
	// Handles a client connection.
	HandleConnect(conn *websocket.Conn)

	// Handles a client's disconnection.
	HandleDisconnect(error)

	// Handles a request to spawn a game object.
	HandleSpawn(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request to despawn a game object.
	HandleDespawn(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request to move a game object.
	HandleMove(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request to toggle the collision of a game object.
	HandleSetEnabled(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a ray query.
	HandleRay(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a line of sight query.
	HandleLineOfSight(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a hit position query.
	HandleHitPosition(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a ground height query.
	HandleHeight(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a region query.
	HandleRegion(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request to list the game objects.
	HandleObjects(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request for the map debug info.
	HandleDebugInfo(ctx context.Context, respond ResponseSender, msg Msg) error

	// Creates a message receiver used to receive incoming messages.
	Receiver() Receiver

	// Creates a message sender passed in service methods in order to send
	// messages.
	Sender() Sender

	// Closes the handler and releases its allocated resources.
	Close()

	// The time a client is idle before being disconnected.
	IdleTimeout() time.Duration

	// Returns the client id.
	GetClientID() string
}

// Handle serves the connection with the given handler until the client
// disconnects, goes idle or the context is canceled.
func Handle(ctx context.Context, conn *websocket.Conn, h Handler) {
	handler := handler{
		Conn:    conn,
		Handler: h,
	}

	handler.Handle(ctx)
}

type handler struct {
	// The WebSocket connection.
	Conn *websocket.Conn

	// The console handler.
	Handler Handler

	sendChan       chan Msg
	receiveChan    chan Msg
	sender         Sender
	receiver       Receiver
	disconnectChan chan error
}

func (h *handler) Handle(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.Handler.HandleConnect(h.Conn)

	h.disconnectChan = make(chan error, 8)
	defer func() {
		for len(h.disconnectChan) != 0 {
			<-h.disconnectChan
		}
	}()

	var wg sync.WaitGroup

	h.sendChan = make(chan Msg, sendChanSize)
	h.sender = h.Handler.Sender()

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startSending(ctx)
	}()

	h.receiveChan = make(chan Msg, receiveChanSize)
	h.receiver = h.Handler.Receiver()

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startReceiving(ctx)
	}()

	idleTimeout := h.Handler.IdleTimeout()
	idleTimer := time.NewTimer(idleTimeout)
	defer idleTimer.Stop()

	responder := responseSender{
		clientID: h.Handler.GetClientID(),
		sendMsg:  h.sendMsg,
	}

	disconnected := false
	for ctx.Err() == nil {
		select {
		case <-ctx.Done():
			h.disconnect(ctx.Err())

		case <-idleTimer.C:
			h.disconnect(errors.New("idle connection").WithTag("duration", idleTimeout))

		case msg := <-h.receiveChan:
			idleTimer.Stop()
			idleTimer.Reset(idleTimeout)

			if err := h.handleMessage(ctx, msg, responder); err != nil {
				respondError(responder, msg, err)
			}

		case err := <-h.disconnectChan:
			disconnected = true
			h.Handler.HandleDisconnect(err)
			if ctx.Err() == nil {
				// cancel context so go routines can cleanly exit
				cancel()
			}
		}
	}

	if !disconnected {
		h.Handler.HandleDisconnect(ctx.Err())
	}

	// unblocks the receiver:
	h.Conn.Close()
	wg.Wait()
}

func (h *handler) sendMsg(msg Msg) {
	select {
	case h.sendChan <- msg:
	default:
		h.disconnect(errors.New("send queue is full").WithTag("size", sendChanSize))
	}
}

func (h *handler) startSending(ctx context.Context) {
	defer func() {
		for len(h.sendChan) != 0 {
			<-h.sendChan
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-h.sendChan:
			if _, err := h.sender(msg); err != nil {
				h.disconnect(errors.New("sending message failed").Wrap(err))
				return
			}
		}
	}
}

func (h *handler) startReceiving(ctx context.Context) {
	for {
		msg, _, err := h.receiver()
		if errors.IsType(err, ErrTypeInvalidMsg) {
			h.sendMsg(errorMsg(msg, err))
			continue
		}
		if err != nil {
			h.disconnect(errors.New("receiving message failed").Wrap(err))
			return
		}

		select {
		case <-ctx.Done():
			return
		case h.receiveChan <- msg:
		}
	}
}

func (h *handler) handleMessage(ctx context.Context, msg Msg, respond ResponseSender) error {
	switch msg.Type {
	case MsgTypeSpawn:
		return h.Handler.HandleSpawn(ctx, respond, msg)

	case MsgTypeDespawn:
		return h.Handler.HandleDespawn(ctx, respond, msg)

	case MsgTypeMove:
		return h.Handler.HandleMove(ctx, respond, msg)

	case MsgTypeSetEnabled:
		return h.Handler.HandleSetEnabled(ctx, respond, msg)

	case MsgTypeRay:
		return h.Handler.HandleRay(ctx, respond, msg)

	case MsgTypeLineOfSight:
		return h.Handler.HandleLineOfSight(ctx, respond, msg)

	case MsgTypeHitPosition:
		return h.Handler.HandleHitPosition(ctx, respond, msg)

	case MsgTypeHeight:
		return h.Handler.HandleHeight(ctx, respond, msg)

	case MsgTypeRegion:
		return h.Handler.HandleRegion(ctx, respond, msg)

	case MsgTypeObjects:
		return h.Handler.HandleObjects(ctx, respond, msg)

	case MsgTypeDebugInfo:
		return h.Handler.HandleDebugInfo(ctx, respond, msg)

	default:
		return errors.New("unknown message type").
			WithTag("msg_type", msg.Type).
			WithType(ErrTypeUnknownMsg)
	}
}

func (h *handler) disconnect(err error) {
	select {
	case h.disconnectChan <- err:
	default:
	}
}

type responseSender struct {
	clientID string
	sendMsg  func(Msg)
}

func (s responseSender) Send(t MsgType, requestID uint32, v any) {
	msg, err := MsgFromData(t, requestID, v)
	if err != nil {
		logs.WithTag("client_id", s.clientID).
			WithTag("msg_type", t).
			Debug(err)
		return
	}
	s.sendMsg(msg)
}

func (s responseSender) SendMsg(msg Msg) {
	s.sendMsg(msg)
}

func respondError(respond ResponseSender, req Msg, err error) {
	respond.SendMsg(errorMsg(req, err))
}

// The error types reported to console clients. Other errors are reported as
// internal.
var consoleErrorTypes = []string{
	ErrTypeUnknownMsg,
	ErrTypeInvalidMsg,
	world.ErrTypeObjectNotFound,
	world.ErrTypeInvalidObject,
	world.ErrTypeMapClosed,
}

const errTypeInternal = "internal"

func consoleErrorType(err error) string {
	for _, t := range consoleErrorTypes {
		if errors.IsType(err, t) {
			return t
		}
	}
	return errTypeInternal
}

func errorMsg(req Msg, err error) Msg {
	msg, _ := MsgFromData(MsgTypeError, req.RequestID, ErrorResponse{
		ErrorType: consoleErrorType(err),
		Message:   err.Error(),
	})
	return msg
}
