package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/pprof"
	"net/url"
	"os"
	"reflect"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aukilabs/dyntree/dyntree"
	"github.com/aukilabs/dyntree/dyntree/grid"
	"github.com/aukilabs/dyntree/featureflag"
	dyntreehttp "github.com/aukilabs/dyntree/http"
	"github.com/aukilabs/dyntree/smoketest"
	dwebsocket "github.com/aukilabs/dyntree/websocket"
	"github.com/aukilabs/dyntree/world"
	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

var (
	// The dyntree server version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "dyntree_info",
		Help:        "Dyntree server information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// Keeps the config keys readable when the binary is obfuscated.
var _ = reflect.TypeOf(config{})

type config struct {
	Addr               string        `cli:""        env:"DYNTREE_ADDR"                 help:"Listening address for console connections."`
	AdminAddr          string        `cli:""        env:"DYNTREE_ADMIN_ADDR"           help:"Admin listening address."`
	PublicEndpoint     string        `cli:""        env:"DYNTREE_PUBLIC_ENDPOINT"      help:"The public endpoint where this server is reachable."`
	LogLevel           string        `cli:""        env:"DYNTREE_LOG_LEVEL"            help:"Log level (debug|info|warning|error)."`
	LogIndent          bool          `cli:""        env:"DYNTREE_LOG_INDENT"           help:"Indent logs."`
	SceneFile          string        `cli:""        env:"DYNTREE_SCENE_FILE"           help:"JSON scene loaded into the maps at startup."`
	ConsoleSecret      string        `cli:",hidden" env:"DYNTREE_CONSOLE_SECRET"       help:"The HS256 secret of console access tokens. Console access is not authenticated when empty."`
	Tree               treeConfig    `cli:",hidden" env:"-"                            help:"Spatial index configuration."`
	FrameDuration      time.Duration `cli:",hidden" env:"DYNTREE_FRAME_DURATION"       help:"The duration of a map frame."`
	ClientIdleTimeout  time.Duration `cli:",hidden" env:"DYNTREE_CLIENT_IDLE_TIMEOUT"  help:"Time until an idle console client will be disconnected."`
	LogSummaryInterval time.Duration `cli:",hidden" env:"DYNTREE_LOG_SUMMARY_INTERVAL" help:"The duration between each log summary by connection."`
	Events             eventsConfig  `cli:",hidden" env:"-"                            help:"Event pusher configuration."`
	FeatureFlags       []string      `cli:",hidden" env:"DYNTREE_FEATURE_FLAGS"        help:"Comma separated feature flags."`
	SceneSchema        bool          `cli:""        env:"-"                            help:"Show the JSON schema of scene files."`
	Version            bool          `cli:""        env:"-"                            help:"Show version."`
	Help               bool          `cli:""        env:"-"                            help:"Show help."`
}

type treeConfig struct {
	CellSize          float64       `cli:",hidden" env:"DYNTREE_CELL_SIZE"          help:"The edge length of a grid cell."`
	RebalancePeriod   time.Duration `cli:",hidden" env:"DYNTREE_REBALANCE_PERIOD"   help:"The time between two rebalance passes."`
	DegenerateEpsilon float64       `cli:",hidden" env:"DYNTREE_DEGENERATE_EPSILON" help:"Segments shorter than this are treated as points."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"DYNTREE_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed."`
	FlushInterval time.Duration `cli:",hidden" env:"DYNTREE_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"DYNTREE_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"DYNTREE_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func defaultConfig() config {
	return config{
		Addr:           ":4100",
		AdminAddr:      ":18191",
		PublicEndpoint: "http://localhost:4100",
		LogLevel:       logs.InfoLevel.String(),
		Tree: treeConfig{
			CellSize:          grid.DefaultCellSize,
			RebalancePeriod:   dyntree.DefaultRebalancePeriod,
			DegenerateEpsilon: dyntree.DefaultDegenerateEpsilon,
		},
		FrameDuration:      world.DefaultFrameDuration,
		ClientIdleTimeout:  time.Minute * 5,
		LogSummaryInterval: time.Minute,
		Events: eventsConfig{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}
}

func main() {
	conf := defaultConfig()

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts the dyntree server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if conf.SceneSchema {
		b, err := json.MarshalIndent(world.SceneSchema(), "", "  ")
		if err != nil {
			logs.Fatal(errors.New("encoding scene schema failed").Wrap(err))
		}
		fmt.Println(string(b))
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     metrics.HTTPTransport(http.DefaultTransport),
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "dyntree",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	flags := featureflag.New(conf.FeatureFlags)

	maps := &world.MapStore{
		TreeOptions:   treeOptions(conf, flags),
		FrameDuration: conf.FrameDuration,
	}
	defer maps.Close()

	var ready atomic.Bool
	readinessCheck := ready.Load

	go func() {
		if err := loadScene(ctx, maps, conf.SceneFile); err != nil {
			logs.Fatal(err)
		}
		ready.Store(true)
	}()

	secret := []byte(conf.ConsoleSecret)
	authenticated := func(h http.Handler) http.Handler {
		if len(secret) == 0 {
			return h
		}
		return dyntreehttp.VerifyAuthTokenHandler(secret, h)
	}

	var handshake func(*websocket.Config, *http.Request) error
	var makeToken func(string) (string, error)
	if len(secret) != 0 {
		handshake = dyntreehttp.VerifyAuthToken(secret)
		makeToken = func(mapName string) (string, error) {
			return dyntreehttp.GenerateToken(secret, "smoke-test", []string{mapName}, smoketest.DefaultTimeout)
		}
	}

	var service http.ServeMux
	service.Handle("/health", dyntreehttp.HandleWithCORS(http.HandlerFunc(dyntreehttp.HandleHealthCheck)))
	service.Handle("/ready", dyntreehttp.HandleWithCORS(dyntreehttp.HandleReadyCheck(readinessCheck)))
	service.Handle("/version", dyntreehttp.HandleWithCORS(dyntreehttp.HandleVersion(version)))
	service.Handle("/debug/maps", dyntreehttp.HandleWithCORS(authenticated(dyntreehttp.HandleMaps(maps))))
	service.Handle("/smoke-test", authenticated(smoketest.HandleSmokeTest(ctx, smoketest.Options{
		Endpoint:  conf.PublicEndpoint,
		UserAgent: fmt.Sprintf("dyntree %s", version),
		MakeToken: makeToken,
		SendResult: func(_ context.Context, res smoketest.Results) error {
			logs.WithTag("results", res).Info("smoke test completed")
			return nil
		},
	})))

	flags.IfNotSet(featureflag.FlagDisableConsole, func() {
		service.Handle("/", dyntreehttp.HandleWithCORS(websocket.Server{
			Handshake: handshake,
			Handler: func(conn *websocket.Conn) {
				defer conn.Close()

				var h dwebsocket.Handler = &dwebsocket.ConsoleHandler{
					ClientIdleTimeout: conf.ClientIdleTimeout,
					Maps:              maps,
				}
				h = dwebsocket.HandlerWithLogs(h, conf.LogSummaryInterval)
				h = dwebsocket.HandlerWithMetrics(h, conf.PublicEndpoint)
				defer h.Close()

				dwebsocket.Handle(ctx, conn, h)
			},
		}))
	})

	service.Handle("/ping", websocket.Server{
		Handler: func(ws *websocket.Conn) {
			defer ws.Close()
			io.Copy(ws, ws)
		},
	})

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", dyntreehttp.HandleHealthCheck)
	admin.HandleFunc("/ready", dyntreehttp.HandleReadyCheck(readinessCheck))
	admin.HandleFunc("/debug/maps", dyntreehttp.HandleMaps(maps))
	admin.HandleFunc("/debug/scene-schema", dyntreehttp.HandleSceneSchema())
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("endpoint", conf.PublicEndpoint).
		WithTag("cell_size", conf.Tree.CellSize).
		WithTag("rebalance_period", conf.Tree.RebalancePeriod).
		WithTag("feature_flags", flags.Flags()).
		WithTag("console_auth", len(secret) != 0).
		Info("starting dyntree server")

	dyntreehttp.ListenAndServe(ctx,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(&service,
			dyntreehttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	)
}

func loadScene(ctx context.Context, maps *world.MapStore, filename string) error {
	if filename == "" {
		return nil
	}

	scene, err := world.LoadSceneFile(filename)
	if err != nil {
		return err
	}

	if err := maps.LoadScene(ctx, scene); err != nil {
		return errors.New("loading scene failed").
			WithTag("file", filename).
			Wrap(err)
	}
	return nil
}

func treeOptions(conf config, flags featureflag.FeatureFlag) dyntree.Options {
	opts := dyntree.Options{
		CellSize:          conf.Tree.CellSize,
		RebalancePeriod:   conf.Tree.RebalancePeriod,
		DegenerateEpsilon: conf.Tree.DegenerateEpsilon,
	}
	flags.ApplyTreeOptions(&opts)
	return opts
}

func validateConfig(conf config) error {
	if _, err := url.ParseRequestURI(conf.PublicEndpoint); err != nil {
		return errors.New("invalid public endpoint").Wrap(err)
	}

	if math.IsNaN(conf.Tree.CellSize) || math.IsInf(conf.Tree.CellSize, 0) || conf.Tree.CellSize <= 0 {
		return errors.New("cell size must be a positive number").
			WithTag("cell_size", conf.Tree.CellSize)
	}

	if math.IsNaN(conf.Tree.DegenerateEpsilon) || conf.Tree.DegenerateEpsilon < 0 {
		return errors.New("degenerate epsilon must not be negative").
			WithTag("degenerate_epsilon", conf.Tree.DegenerateEpsilon)
	}

	if conf.FrameDuration <= 0 {
		return errors.New("frame duration must be positive").
			WithTag("frame_duration", conf.FrameDuration)
	}

	if conf.ClientIdleTimeout <= 0 {
		return errors.New("client idle timeout must be positive").
			WithTag("client_idle_timeout", conf.ClientIdleTimeout)
	}

	if conf.LogSummaryInterval <= 0 {
		return errors.New("log summary interval must be positive").
			WithTag("log_summary_interval", conf.LogSummaryInterval)
	}

	return nil
}
