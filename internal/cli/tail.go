package cli

import (
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dkeye/Signage/internal/app/conflict"
	"github.com/dkeye/Signage/internal/app/editor"
	"github.com/dkeye/Signage/internal/domain"
	"github.com/dkeye/Signage/internal/protocol"
	"github.com/dkeye/Signage/internal/session"
)

// printer serializes listener output, which arrives on several goroutines.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, time.Now().Format("15:04:05")+" "+format+"\n", args...)
}

func (p *printer) listener() editor.Listener {
	return editor.Listener{
		PlaylistChanged: func(id domain.PlaylistID, pl *domain.Playlist) {
			if pl == nil {
				p.printf("playlist %s removed", id)
				return
			}
			p.printf("playlist %s %q items=%d screens=%d by=%s", id, pl.Name, len(pl.Items), len(pl.ScreenIDs), pl.UpdatedBy)
		},
		ConflictRaised: func(rec *conflict.Record) {
			p.printf("conflict on %s (%s): local=%s remote=%s", rec.PlaylistID, rec.Category, rec.LocalActor, rec.RemoteActor)
		},
		PresenceChanged: func(key domain.RoomKey, present []domain.Presence) {
			ids := make([]string, 0, len(present))
			for _, u := range present {
				ids = append(ids, string(u.UserID))
			}
			p.printf("presence %s %v", key, ids)
		},
		StatusChanged: func(s session.Status, err error) {
			if err != nil {
				p.printf("status %s: %v", s, err)
				return
			}
			p.printf("status %s", s)
		},
		Notice: func(n *protocol.ErrorNotice) {
			p.printf("relay error %s: %s", n.Code, n.Message)
		},
	}
}

func newTailCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tail <playlist>",
		Short: "Follow a playlist room until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ed, err := o.newEditor()
			if err != nil {
				return err
			}
			defer ed.Logout()

			out := &printer{w: cmd.OutOrStdout()}
			ed.SetListener(out.listener())
			if err := ed.Start(ctx); err != nil {
				return err
			}
			id := domain.PlaylistID(args[0])
			p, err := ed.OpenPlaylist(ctx, id)
			if err != nil {
				return err
			}
			out.printf("following %s %q items=%d", p.ID, p.Name, len(p.Items))
			<-ctx.Done()
			return nil
		},
	}
}
