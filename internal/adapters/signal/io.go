package signal

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Signage/internal/core"
	"github.com/dkeye/Signage/internal/domain"
	"github.com/dkeye/Signage/internal/protocol"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			c.Close()
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				c.Close()
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				c.Close()
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, sid core.SessionID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		cancel()
		ctl.Orch.OnDisconnect(sid)
		c.Close()
	}()

	deadline := 2 * ctl.cfg.PingPeriod
	_ = c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(deadline))
		ctl.handleSignal(sid, c, data)
	}
}

func (ctl *SignalWSController) handleSignal(sid core.SessionID, c *WsSignalConn, data []byte) {
	if !c.limiter.Allow() {
		ctl.Orch.Notify(sid, core.E(core.KindValidation, "signal", ErrRateLimited))
		return
	}
	ev, err := protocol.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad frame")
		ctl.Orch.Notify(sid, err)
		return
	}
	if m := ctl.Orch.Metrics; m != nil {
		m.FramesIn.WithLabelValues(string(ev.EventType())).Inc()
	}

	if pe, ok := ev.(protocol.PlaylistEvent); ok {
		if err := ctl.Orch.Publish(sid, pe); err != nil {
			ctl.Orch.Notify(sid, err)
		}
		return
	}
	if err := protocol.Validate(ev); err != nil {
		ctl.Orch.Notify(sid, err)
		return
	}

	switch e := ev.(type) {
	case *protocol.JoinPlaylist:
		ctl.handleJoin(sid, domain.PlaylistRoom(e.PlaylistID))
	case *protocol.LeavePlaylist:
		ctl.handleLeave(sid, domain.PlaylistRoom(e.PlaylistID))
	case *protocol.JoinUser:
		ctl.handleJoin(sid, domain.UserRoom(e.UserID))
	case *protocol.LeaveUser:
		ctl.handleLeave(sid, domain.UserRoom(e.UserID))
	case *protocol.Heartbeat:
		ctl.handleHeartbeat(c)
	default:
		log.Warn().Str("module", "signal").Str("type", string(ev.EventType())).Msg("unexpected signal")
		ctl.Orch.Notify(sid, core.E(core.KindValidation, "signal", fmt.Errorf("event %s is not accepted from clients", ev.EventType())))
	}
}

func (ctl *SignalWSController) sendEvent(c *WsSignalConn, ev protocol.Event) {
	b, err := protocol.Encode(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendEvent encode")
		return
	}
	_ = c.TrySend(b)
}
