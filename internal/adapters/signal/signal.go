package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dkeye/Signage/internal/adapters/auth"
	"github.com/dkeye/Signage/internal/app/orch"
	"github.com/dkeye/Signage/internal/core"
	"github.com/dkeye/Signage/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrRateLimited  = errors.New("rate limited")
)

type Config struct {
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
	// FrameRate and FrameBurst bound inbound frames per session.
	FrameRate  float64
	FrameBurst int
}

func (c *Config) defaults() {
	if c.ReadLimit <= 0 {
		c.ReadLimit = 32 << 10
	}
	if c.PingPeriod <= 0 {
		c.PingPeriod = 54 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.FrameRate <= 0 {
		c.FrameRate = 50
	}
	if c.FrameBurst <= 0 {
		c.FrameBurst = 100
	}
}

type SignalWSController struct {
	Orch *orch.Orchestrator
	Auth *auth.Manager
	cfg  Config
}

func NewSignalWSController(o *orch.Orchestrator, a *auth.Manager, cfg Config) *SignalWSController {
	cfg.defaults()
	return &SignalWSController{Orch: o, Auth: a, cfg: cfg}
}

type WsSignalConn struct {
	conn    *websocket.Conn
	send    chan core.Frame
	limiter *rate.Limiter

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal authenticates the bearer token, upgrades the request and
// starts the session's pumps. Their lifetime is bounded by ctx.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	user, _, err := ctl.Auth.Verify(auth.BearerToken(c.Request))
	if err != nil {
		log.Warn().Str("module", "signal").Err(err).Msg("rejected ws handshake")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": core.KindAuthentication.String(), "message": "invalid or missing token"}})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Str("module", "signal").Err(err).Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.cfg.ReadLimit)

	conn := &WsSignalConn{
		conn:    ws,
		send:    make(chan core.Frame, ctl.cfg.SendBuffer),
		limiter: rate.NewLimiter(rate.Limit(ctl.cfg.FrameRate), ctl.cfg.FrameBurst),
	}

	sid := core.SessionID(uuid.NewString())
	sess := core.NewMemberSession(sid, domain.NewMember(user, time.Now().UTC()), conn)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Attach(sid, sess, cancel)
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("user", string(user.ID)).Msg("new WS connection")

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, sid, conn)
}
