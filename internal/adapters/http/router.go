package http

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Signage/internal/adapters/auth"
	"github.com/dkeye/Signage/internal/adapters/signal"
	"github.com/dkeye/Signage/internal/app/orch"
	"github.com/dkeye/Signage/internal/config"
	"github.com/dkeye/Signage/internal/core"
	"github.com/dkeye/Signage/internal/metrics"
	"github.com/dkeye/Signage/internal/protocol"
	transport "github.com/dkeye/Signage/internal/transport/http"
)

// Deps are the collaborators the relay routes need. Store is optional; when
// set, the playlist REST surface is mounted under /api.
type Deps struct {
	Auth    *auth.Manager
	Metrics *metrics.Metrics
	Store   core.PlaylistStore
}

func signalConfig(cfg *config.RelayConfig) signal.Config {
	return signal.Config{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		SendBuffer: cfg.SendBuffer,
		FrameRate:  cfg.FrameRate,
		FrameBurst: cfg.FrameBurst,
	}
}

func SetupRouter(ctx context.Context, cfg *config.RelayConfig, o *orch.Orchestrator, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	api := r.Group("/api")

	ctrl := signal.NewSignalWSController(o, deps.Auth, signalConfig(cfg))
	api.GET("/ws", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("remote", c.ClientIP()).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	api.GET("/rooms", deps.Auth.Middleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": o.Rooms.List()})
	})

	api.POST("/events", deps.Auth.Middleware(auth.RoleService), func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": core.KindValidation.String(), "message": err.Error()}})
			return
		}
		delivered, err := injectFrame(o, body)
		if err != nil {
			kind := core.KindOf(err)
			c.JSON(transport.StatusOf(kind), gin.H{"error": gin.H{"code": kind.String(), "message": err.Error()}})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"delivered": delivered})
	})

	if deps.Store != nil {
		store := api.Group("", deps.Auth.Middleware())
		(&transport.StoreHandlers{Store: deps.Store}).Register(store)
		log.Info().Str("module", "adapters.http").Msg("embedded playlist store mounted")
	}

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}

// injectFrame decodes one playlist event envelope and relays it.
func injectFrame(o *orch.Orchestrator, body []byte) (int, error) {
	ev, err := protocol.Decode(body)
	if err != nil {
		return 0, core.E(core.KindValidation, "events.decode", err)
	}
	pe, ok := ev.(protocol.PlaylistEvent)
	if !ok {
		return 0, core.E(core.KindValidation, "events.decode", errUnsupported(ev.EventType()))
	}
	if err := protocol.Validate(pe); err != nil {
		return 0, core.E(core.KindValidation, "events.validate", err)
	}
	return o.Inject(pe)
}

type errUnsupported protocol.Type

func (e errUnsupported) Error() string { return "not a playlist event: " + string(e) }
