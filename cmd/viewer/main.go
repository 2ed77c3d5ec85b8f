package main

import (
	"context"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/cimena/cinecast/internal/config"
	"github.com/cimena/cinecast/internal/httputil"
	"github.com/cimena/cinecast/internal/log"
	"github.com/cimena/cinecast/internal/otel"
	"github.com/cimena/cinecast/internal/redis"
	"github.com/cimena/cinecast/internal/workflow"
	"github.com/cimena/cinecast/notify"
	notifyredis "github.com/cimena/cinecast/notify/redis"
	"github.com/cimena/cinecast/player/remote"
	"github.com/cimena/cinecast/statestore"
	"github.com/cimena/cinecast/viewer"
	"github.com/cimena/cinecast/viewer/transport"
)

type Config struct {
	App   config.App        `mapstructure:"app"`
	HTTP  httputil.Config   `mapstructure:"http"`
	Etcd  statestore.Config `mapstructure:"etcd"`
	Redis redis.Config      `mapstructure:"redis"`
	Otel  otel.Config       `mapstructure:"otel"`

	AllowedOrigins     []string      `mapstructure:"allowed_origins"`
	NotifyChannel      string        `mapstructure:"notify_channel"`
	NotifyDismissAfter time.Duration `mapstructure:"notify_dismiss_after"`
}

func loadConfig() (*Config, error) {
	return config.Load(&Config{}, func(v *viper.Viper) {
		v.SetDefault("allowed_origins", []string{"*"})
		v.SetDefault("notify_channel", "cinecast:toasts")
		v.SetDefault("notify_dismiss_after", "4s")

		config.Setup(v, "app")
		statestore.Setup(v, "etcd")
		redis.Setup(v, "redis")
		otel.Setup(v, "otel")
		httputil.Setup(v, "http")

		// override default addrs to ease testing
		v.SetDefault("http.addr", "0.0.0.0:3001")
	})
}

func main() {
	config, err := loadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration", err)
	}

	logger, err := log.NewLogger(config.App.LogConfigFile)
	if err != nil {
		log.Fatal("Failed to create logger", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	otelShutdown, err := otel.Init(ctx, &config.Otel, logger)
	if err != nil {
		logger.Fatal("Failed to initialize OTEL provider", log.Error(err))
	}

	logger.Info("Starting viewer service",
		log.String("addr", config.HTTP.Addr),
		log.Any("etcdUrl", config.Etcd.Endpoints))

	etcdClient, err := statestore.NewEtcdClient(&config.Etcd)
	if err != nil {
		logger.Fatal("Failed to create etcd client", log.Error(err))
	}

	store, err := statestore.Connect(ctx, etcdClient, config.Etcd.SessionTTL, logger.Module("Store"))
	if err != nil {
		logger.Fatal("Failed to connect state store", log.Error(err))
	}

	clock := clockwork.NewRealClock()

	redisClient := redis.NewClient(&config.Redis)
	toasts := notify.NewQueue(
		notify.MultiSink{
			notify.NewLogSink(logger),
			notifyredis.NewSink(redisClient, config.NotifyChannel, logger),
		},
		config.NotifyDismissAfter,
		clock,
		logger.Module("Toasts"),
	)

	bridge := remote.NewBridge(config.AllowedOrigins, logger.Module("Bridge"))
	observer := viewer.NewObserver(viewer.ObserverConfig{
		Store:    store,
		Factory:  bridge,
		Notifier: toasts,
		Logger:   logger.Module("Viewer"),
	})
	presence := viewer.NewPresence(store, clock, logger.Module("Viewer"))

	logger.Info("Viewer identity assigned", log.String("viewerId", presence.ViewerID()))

	runCtx, stopRun := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error { return observer.Run(groupCtx) })
	group.Go(func() error { return presence.Run(groupCtx) })

	router := transport.NewRouter(observer, config.AllowedOrigins, logger.Module("Router"))
	mux := http.NewServeMux()
	mux.HandleFunc("/player/ws", bridge.HandleWebSocket)
	mux.Handle("/", router.Handler())
	server := httputil.NewServer(&config.HTTP, mux)

	go func() {
		logger.Info("Starting HTTP server", log.String("addr", config.HTTP.Addr))
		if err := server.Listen(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start HTTP server", log.Error(err))
		}
	}()

	logger.Info("Viewer started")

	cleanup := func(ctx context.Context) {
		_ = server.Shutdown(ctx)

		stopRun()
		if err := group.Wait(); err != nil && err != context.Canceled {
			logger.Error("Run loop stopped with error", log.Error(err))
		}
		toasts.Stop()
		if err := store.Close(ctx); err != nil {
			logger.Error("Failed to close state store", log.Error(err))
		}
		if err := etcdClient.Close(); err != nil {
			logger.Error("Failed to close etcd client", log.Error(err))
		}
		if err := redisClient.Close(); err != nil {
			logger.Error("Failed to close redis client", log.Error(err))
		}
		if err := otelShutdown(ctx); err != nil {
			logger.Error("Failed to shutdown OTEL", log.Error(err))
		}
	}
	workflow.WaitGracefulShutdown(ctx, logger.Module("CleanUp"), cleanup, config.App.ShutdownTimeout)
}
