package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Signage/internal/core"
	"github.com/dkeye/Signage/internal/domain"
)

func (ctl *SignalWSController) handleJoin(sid core.SessionID, key domain.RoomKey) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(key)).Msg("join")
	if err := ctl.Orch.Join(sid, key); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("join rejected")
		ctl.Orch.Notify(sid, err)
	}
}

// handleLeave leaves one room; the connection stays open.
func (ctl *SignalWSController) handleLeave(sid core.SessionID, key domain.RoomKey) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(key)).Msg("leave")
	if err := ctl.Orch.Leave(sid, key); err != nil {
		ctl.Orch.Notify(sid, err)
	}
}
