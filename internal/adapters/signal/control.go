package signal

import (
	"time"

	"github.com/dkeye/Signage/internal/protocol"
)

// handleHeartbeat answers a client heartbeat so both ends see traffic.
func (ctl *SignalWSController) handleHeartbeat(conn *WsSignalConn) {
	ctl.sendEvent(conn, &protocol.Heartbeat{Timestamp: time.Now().UTC()})
}
