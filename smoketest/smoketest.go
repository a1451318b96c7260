// Package smoketest runs a scripted session against a query console to check
// that a server spawns objects and answers ray queries end to end.
package smoketest

import (
	"context"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aukilabs/dyntree/models"
	dwebsocket "github.com/aukilabs/dyntree/websocket"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"

	DefaultTimeout = time.Second * 10

	mapNamePrefix = "smoke-test-"
)

type Options struct {
	// The endpoint of the server running the smoke test.
	Endpoint string

	// The user agent set on console connections.
	UserAgent string

	// Creates the access token of the tested console for the given map.
	// Connections are not authenticated when nil.
	MakeToken func(mapName string) (string, error)

	// Reports the results of a smoke test.
	SendResult func(context.Context, Results) error
}

// Request is the body of a smoke test request.
type Request struct {
	// The console endpoint to test. A http(s) scheme is turned into ws(s).
	Endpoint string `json:"endpoint"`

	// The maximum duration of the test.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// Results describes a smoke test run.
type Results struct {
	FromEndpoint    string  `json:"from_endpoint"`
	ToEndpoint      string  `json:"to_endpoint"`
	Map             string  `json:"map"`
	Status          string  `json:"status"`
	LatencyMilliSec float64 `json:"latency_ms"`
	Steps           []Step  `json:"steps"`
}

// Step is a request of the smoke test scenario.
type Step struct {
	Name            string  `json:"name"`
	LatencyMilliSec float64 `json:"latency_ms"`
	Error           string  `json:"error,omitempty"`
}

// HandleSmokeTest starts a smoke test against the requested endpoint. The
// test runs in the background and its results are passed to
// opts.SendResult.
func HandleSmokeTest(ctx context.Context, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		b, err := io.ReadAll(r.Body)
		if err != nil {
			logs.Warn(errors.New("reading smoke test body failed").Wrap(err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		var req Request
		if err := json.Unmarshal(b, &req); err != nil || req.Endpoint == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		go func() {
			res, err := Run(ctx, opts, req)
			if err != nil {
				logs.WithTag("from_endpoint", opts.Endpoint).
					WithTag("to_endpoint", req.Endpoint).
					Warn(err)
			}

			if opts.SendResult == nil {
				return
			}

			if err := opts.SendResult(ctx, res); err != nil {
				logs.WithTag("from_endpoint", opts.Endpoint).
					WithTag("to_endpoint", req.Endpoint).
					Warn(errors.New("sending smoke test result failed").Wrap(err))
			}
		}()

		w.WriteHeader(http.StatusOK)
	}
}

// Run connects to the console at req.Endpoint on a fresh map and plays the
// smoke test scenario: spawn a crate, hit it with a ray, check the line of
// sight it blocks, despawn it and check the ray misses.
func Run(ctx context.Context, opts Options, req Request) (Results, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res := Results{
		FromEndpoint: opts.Endpoint,
		ToEndpoint:   req.Endpoint,
		Map:          mapNamePrefix + uuid.NewString(),
		Status:       StatusFailed,
	}

	start := time.Now()

	var err error
	var token string
	if opts.MakeToken != nil {
		if token, err = opts.MakeToken(res.Map); err != nil {
			return res, errors.New("making console token failed").Wrap(err)
		}
	}

	conn, err := dial(ctx, req.Endpoint, res.Map, opts.UserAgent, token)
	if err != nil {
		return res, err
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return res, errors.New("setting connection deadline failed").Wrap(err)
	}

	c := client{conn: conn}

	for _, s := range scenario() {
		stepStart := time.Now()
		err := s.run(&c)

		step := Step{
			Name:            s.name,
			LatencyMilliSec: milliseconds(time.Since(stepStart)),
		}
		if err != nil {
			step.Error = err.Error()
		}
		res.Steps = append(res.Steps, step)

		if err != nil {
			return res, errors.New("smoke test step failed").
				WithTag("step", s.name).
				WithTag("map", res.Map).
				Wrap(err)
		}
	}

	res.Status = StatusSuccess
	res.LatencyMilliSec = milliseconds(time.Since(start))
	return res, nil
}

func dial(ctx context.Context, endpoint, mapName, userAgent, token string) (*websocket.Conn, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.New("invalid endpoint").
			WithTag("endpoint", endpoint).
			Wrap(err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	q := u.Query()
	q.Set(dwebsocket.MapQueryParam, mapName)
	u.RawQuery = q.Encode()

	origin := "http://" + strings.TrimSuffix(u.Host, "/")

	config, err := websocket.NewConfig(u.String(), origin)
	if err != nil {
		return nil, errors.New("creating websocket config failed").Wrap(err)
	}
	config.Header.Set(dwebsocket.HeaderClientID, mapName)
	if userAgent != "" {
		config.Header.Set("User-Agent", userAgent)
	}
	if token != "" {
		config.Header.Set("Authorization", "Bearer "+token)
	}

	conn, err := config.DialContext(ctx)
	if err != nil {
		return nil, errors.New("dialing console failed").
			WithTag("endpoint", u.String()).
			Wrap(err)
	}
	return conn, nil
}

type step struct {
	name string
	run  func(c *client) error
}

func scenario() []step {
	var handle models.Handle

	return []step{
		{
			name: "spawn",
			run: func(c *client) error {
				var res dwebsocket.ObjectResponse
				err := c.request(dwebsocket.MsgTypeSpawn, dwebsocket.SpawnRequest{
					Object: models.GameObjectTemplate{
						Name:        "smoke-test-crate",
						HalfExtents: [3]float64{1, 1, 1},
					},
				}, &res)
				handle = res.Object.Handle
				return err
			},
		},
		{
			name: "ray_hit",
			run: func(c *client) error {
				var res dwebsocket.RayResponse
				if err := c.request(dwebsocket.MsgTypeRay, dwebsocket.RayRequest{
					Origin:      [3]float64{-10, 0, 0},
					Direction:   [3]float64{1, 0, 0},
					MaxDistance: 100,
				}, &res); err != nil {
					return err
				}

				if !res.Hit || math.Abs(res.Distance-9) > 1e-6 {
					return errors.New("unexpected ray result").
						WithTag("hit", res.Hit).
						WithTag("distance", res.Distance)
				}
				return nil
			},
		},
		{
			name: "line_of_sight",
			run: func(c *client) error {
				var res dwebsocket.LineOfSightResponse
				if err := c.request(dwebsocket.MsgTypeLineOfSight, dwebsocket.SegmentRequest{
					From: [3]float64{-10, 0, 0},
					To:   [3]float64{10, 0, 0},
				}, &res); err != nil {
					return err
				}

				if res.Visible {
					return errors.New("line of sight is not blocked")
				}
				return nil
			},
		},
		{
			name: "despawn",
			run: func(c *client) error {
				return c.request(dwebsocket.MsgTypeDespawn, dwebsocket.HandleRequest{
					Handle: handle,
				}, nil)
			},
		},
		{
			name: "ray_miss",
			run: func(c *client) error {
				var res dwebsocket.RayResponse
				if err := c.request(dwebsocket.MsgTypeRay, dwebsocket.RayRequest{
					Origin:      [3]float64{-10, 0, 0},
					Direction:   [3]float64{1, 0, 0},
					MaxDistance: 100,
				}, &res); err != nil {
					return err
				}

				if res.Hit {
					return errors.New("despawned object is still hit").
						WithTag("distance", res.Distance)
				}
				return nil
			},
		},
	}
}

type client struct {
	conn      *websocket.Conn
	requestID uint32
}

func (c *client) request(t dwebsocket.MsgType, req any, res any) error {
	c.requestID++

	msg, err := dwebsocket.MsgFromData(t, c.requestID, req)
	if err != nil {
		return err
	}

	if _, err := dwebsocket.Send(c.conn, msg); err != nil {
		return errors.New("sending request failed").
			WithTag("msg_type", t).
			Wrap(err)
	}

	for {
		msg, _, err := dwebsocket.Receive(c.conn)
		if err != nil {
			return errors.New("receiving response failed").
				WithTag("msg_type", t).
				Wrap(err)
		}
		if msg.RequestID != c.requestID {
			continue
		}

		if msg.Type == dwebsocket.MsgTypeError {
			var errRes dwebsocket.ErrorResponse
			if err := msg.DataTo(&errRes); err != nil {
				return err
			}
			return errors.New(errRes.Message).WithType(errRes.ErrorType)
		}

		if msg.Type != t.Response() {
			return errors.New("unexpected response type").
				WithTag("expected", t.Response()).
				WithTag("msg_type", msg.Type)
		}

		if res == nil {
			return nil
		}
		return msg.DataTo(res)
	}
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
