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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Signage/internal/adapters/auth"
	"github.com/dkeye/Signage/internal/adapters/fanout"
	router "github.com/dkeye/Signage/internal/adapters/http"
	"github.com/dkeye/Signage/internal/adapters/memstore"
	"github.com/dkeye/Signage/internal/app"
	"github.com/dkeye/Signage/internal/app/orch"
	"github.com/dkeye/Signage/internal/config"
	"github.com/dkeye/Signage/internal/core"
	"github.com/dkeye/Signage/internal/domain"
	"github.com/dkeye/Signage/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	rc := &cfg.Relay
	if rc.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	am, err := auth.NewManager(rc.Secret, rc.Issuer, rc.TokenTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("relay.secret must be set")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(),
		Policy:   &app.SimplePolicy{MaxDrops: rc.MaxDrops},
		Metrics:  m,
	}

	if rc.RedisURL != "" {
		opts, err := redis.ParseURL(rc.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid relay.redis_url")
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		bus := fanout.NewRedis(rdb, rc.RedisChannel)
		o.Fanout = bus
		go func() {
			deliver := func(key domain.RoomKey, frame core.Frame) {
				m.Fanout.WithLabelValues("in", "ok").Inc()
				o.Deliver(key, frame)
			}
			if err := bus.Run(ctx, deliver, nil); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Str("module", "relay").Msg("fanout stopped")
			}
		}()
		log.Info().Str("module", "relay").Str("origin", bus.Origin()).Msg("redis fanout enabled")
	}

	deps := router.Deps{Auth: am, Metrics: m}
	if rc.EmbeddedStore {
		store := memstore.New()
		if rc.StoreEvents {
			store.SetPublisher(o)
		}
		deps.Store = store
	}

	r := router.SetupRouter(ctx, rc, o, deps)
	addr := fmt.Sprintf(":%d", rc.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Signage relay started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
