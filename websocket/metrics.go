package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/net/websocket"
)

const (
	errTypeLabel  = "error_type"
	msgTypeLabel  = "msg_type"
	endpointLabel = "endpoint"
)

var (
	consoleConnectedClients = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "console_connected_clients",
		Help: "The number of connected console clients.",
	}, []string{
		endpointLabel,
	})

	consoleReceivedMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "console_received_msgs",
		Help: "The number of messages received from console connections.",
	}, []string{
		endpointLabel,
		msgTypeLabel,
	})

	consoleReceivedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "console_received_bytes",
		Help: "The number of bytes received from console connections.",
	}, []string{
		endpointLabel,
		msgTypeLabel,
	})

	consoleReceiveErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "console_receive_errors",
		Help: "The errors that occurred while receiving a console message.",
	}, []string{
		endpointLabel,
		errTypeLabel,
	})

	consoleSentMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "console_sent_msgs",
		Help: "The number of messages sent to console connections.",
	}, []string{
		endpointLabel,
		msgTypeLabel,
	})

	consoleSentBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "console_sent_bytes",
		Help: "The number of bytes sent to console connections.",
	}, []string{
		endpointLabel,
		msgTypeLabel,
	})

	consoleSendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "console_send_errors",
		Help: "The errors that occurred while sending a console message.",
	}, []string{
		endpointLabel,
		errTypeLabel,
		msgTypeLabel,
	})

	consoleMsgLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "console_msg_latency",
		Help: "The time to process a console message.",
	}, []string{
		endpointLabel,
		msgTypeLabel,
		errTypeLabel,
	})
)

// HandlerWithMetrics wraps the handler with prometheus metrics labelled with
// the given endpoint.
func HandlerWithMetrics(h Handler, endpoint string) Handler {
	return &handlerWithMetrics{
		Handler:  h,
		endpoint: endpoint,
	}
}

type handlerWithMetrics struct {
	Handler

	endpoint string
}

func (h *handlerWithMetrics) HandleConnect(conn *websocket.Conn) {
	consoleConnectedClients.
		With(prometheus.Labels{endpointLabel: h.endpoint}).
		Inc()

	h.Handler.HandleConnect(conn)
}

func (h *handlerWithMetrics) HandleDisconnect(err error) {
	consoleConnectedClients.
		With(prometheus.Labels{endpointLabel: h.endpoint}).
		Dec()

	h.Handler.HandleDisconnect(err)
}

func (h *handlerWithMetrics) HandleSpawn(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.measureLatency(msg, func() error {
		return h.Handler.HandleSpawn(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleDespawn(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.measureLatency(msg, func() error {
		return h.Handler.HandleDespawn(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleMove(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.measureLatency(msg, func() error {
		return h.Handler.HandleMove(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleSetEnabled(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.measureLatency(msg, func() error {
		return h.Handler.HandleSetEnabled(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleRay(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.measureLatency(msg, func() error {
		return h.Handler.HandleRay(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleLineOfSight(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.measureLatency(msg, func() error {
		return h.Handler.HandleLineOfSight(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleHitPosition(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.measureLatency(msg, func() error {
		return h.Handler.HandleHitPosition(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleHeight(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.measureLatency(msg, func() error {
		return h.Handler.HandleHeight(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleRegion(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.measureLatency(msg, func() error {
		return h.Handler.HandleRegion(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleObjects(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.measureLatency(msg, func() error {
		return h.Handler.HandleObjects(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleDebugInfo(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.measureLatency(msg, func() error {
		return h.Handler.HandleDebugInfo(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) Receiver() Receiver {
	receive := h.Handler.Receiver()

	return func() (Msg, int, error) {
		msg, n, err := receive()
		if err != nil {
			consoleReceiveErrors.
				With(prometheus.Labels{
					endpointLabel: h.endpoint,
					errTypeLabel:  errors.Type(err),
				}).
				Inc()
		} else {
			consoleReceivedMsgs.
				With(prometheus.Labels{
					endpointLabel: h.endpoint,
					msgTypeLabel:  string(msg.Type),
				}).
				Inc()
		}

		if n != 0 {
			consoleReceivedBytes.
				With(prometheus.Labels{
					endpointLabel: h.endpoint,
					msgTypeLabel:  string(msg.Type),
				}).
				Add(float64(n))
		}

		return msg, n, err
	}
}

func (h *handlerWithMetrics) Sender() Sender {
	sender := h.Handler.Sender()

	return func(msg Msg) (int, error) {
		msgType := string(msg.Type)

		n, err := sender(msg)
		if err != nil {
			consoleSendErrors.
				With(prometheus.Labels{
					endpointLabel: h.endpoint,
					msgTypeLabel:  msgType,
					errTypeLabel:  errors.Type(err),
				}).
				Inc()
		}

		if n != 0 {
			consoleSentMsgs.
				With(prometheus.Labels{
					endpointLabel: h.endpoint,
					msgTypeLabel:  msgType,
				}).
				Inc()
			consoleSentBytes.
				With(prometheus.Labels{
					endpointLabel: h.endpoint,
					msgTypeLabel:  msgType,
				}).
				Add(float64(n))
		}

		return n, err
	}
}

func (h *handlerWithMetrics) measureLatency(msg Msg, f func() error) error {
	start := time.Now()
	err := f()

	var errType string
	if err != nil {
		errType = consoleErrorType(err)
	}

	consoleMsgLatency.With(prometheus.Labels{
		endpointLabel: h.endpoint,
		msgTypeLabel:  string(msg.Type),
		errTypeLabel:  errType,
	}).Observe(time.Since(start).Seconds())

	return err
}
