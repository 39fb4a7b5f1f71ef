package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/Chat/internal/adapters/http"
	"github.com/dkeye/Chat/internal/adapters/roomindex"
	"github.com/dkeye/Chat/internal/app"
	"github.com/dkeye/Chat/internal/app/orch"
	"github.com/dkeye/Chat/internal/auth"
	"github.com/dkeye/Chat/internal/config"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/store/memstore"
	"github.com/dkeye/Chat/internal/store/mongostore"
	"github.com/dkeye/Chat/internal/store/sqlstore"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg)

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open store")
	}

	var (
		hooks  []core.RoomHooks
		recent router.RecentRooms
		rdb    *redis.Client
	)
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		idx := roomindex.New(rdb, cfg.Redis.Prefix)
		if err := idx.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable, room index disabled")
			_ = rdb.Close()
			rdb = nil
		} else {
			hooks = append(hooks, idx)
			recent = idx
		}
	}

	authSvc := auth.NewService(store, auth.NewPasswordHasher(auth.DefaultBcryptCost), auth.NewTokenManager(cfg.Secret, cfg.TokenTTL))

	rooms := app.NewRoomRegistry(store, hooks...)
	if err := rooms.Load(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to load rooms")
	}
	if _, err := rooms.EnsureDefaultRoom(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure default room")
	}
	hub := app.NewConnectionHub(authSvc, app.SimplePolicy{})

	limiter := app.NewRateLimiter(cfg.RateLimit.Messages, cfg.RateLimit.Interval)
	go limiter.Run(ctx)

	o := &orch.Orchestrator{
		Rooms:    rooms,
		Hub:      hub,
		Messages: store,
		Limiter:  limiter,
	}

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Orch:   o,
		Auth:   authSvc,
		Health: store,
		Recent: recent,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop := func(ctx context.Context) error {
		log.Info().Msg("Shutting down")
		err := srv.Shutdown(ctx)
		cancel()
		hub.CloseAll()
		for hub.Count() > 0 && ctx.Err() == nil {
			time.Sleep(50 * time.Millisecond)
		}
		if rdb != nil {
			err = errors.Join(err, rdb.Close())
		}
		return errors.Join(err, store.Close())
	}
	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		"chat": stop,
	})

	exitCode := serve(srv, wait, stop, cfg.ShutdownTimeout)
	log.Info().Int("code", exitCode).Msg("Server exited")
	os.Exit(exitCode)
}

// serve runs srv until the shutdown handler reports an exit code. A listener
// that fails on its own runs stop directly and exits non-zero.
func serve(srv *http.Server, wait <-chan int, stop func(context.Context) error, timeout time.Duration) int {
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Chat server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case code := <-wait:
		return code
	case err := <-serveErr:
		log.Error().Err(err).Str("addr", srv.Addr).Msg("server error")
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := stop(ctx); err != nil {
			log.Error().Err(err).Msg("shutdown after server error")
		}
		return 1
	}
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Mode != "debug" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func openStore(ctx context.Context, cfg *config.Config) (core.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverMongo:
		s, err := mongostore.Open(ctx, mongostore.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverMemory:
		return memstore.New(), nil
	default:
		s, err := sqlstore.Open(cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
