// Package cli implements syncctl, the operator tool for the playlist relay.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/Signage/internal/adapters/auth"
	"github.com/dkeye/Signage/internal/adapters/httpstore"
	"github.com/dkeye/Signage/internal/app/editor"
	"github.com/dkeye/Signage/internal/config"
	"github.com/dkeye/Signage/internal/core"
	"github.com/dkeye/Signage/internal/domain"
	"github.com/dkeye/Signage/internal/session"
)

type rootOptions struct {
	configFile string
	relayURL   string
	storeURL   string
	token      string

	cfg *config.Config
}

func NewRootCmd() *cobra.Command {
	o := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "syncctl",
		Short:         "Operate the Signage playlist relay",
		Long:          `syncctl mints development tokens, tails playlist rooms and edits playlists through the same client core editors use.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.load()
		},
	}
	cmd.PersistentFlags().StringVar(&o.configFile, "config", "", "config file (default config/config.$CONFIG_ENV.yaml)")
	cmd.PersistentFlags().StringVar(&o.relayURL, "relay", "", "relay websocket url")
	cmd.PersistentFlags().StringVar(&o.storeURL, "store", "", "playlist store base url")
	cmd.PersistentFlags().StringVar(&o.token, "token", "", "bearer token")

	cmd.AddCommand(newTokenCmd(o), newTailCmd(o), newPlaylistsCmd(o))
	return cmd
}

// Execute runs syncctl with os.Args.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		log.Error().Err(err).Msg("syncctl failed")
	}
	return err
}

func (o *rootOptions) load() error {
	var (
		cfg *config.Config
		err error
	)
	if o.configFile != "" {
		cfg, err = config.LoadFile(o.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if o.relayURL != "" {
		cfg.Client.RelayURL = o.relayURL
	}
	if o.storeURL != "" {
		cfg.Client.StoreURL = o.storeURL
	}
	if o.token != "" {
		cfg.Client.Token = o.token
	}
	o.cfg = cfg
	return nil
}

func (o *rootOptions) store() *httpstore.Client {
	return httpstore.New(httpstore.Options{
		BaseURL: o.cfg.Client.StoreURL,
		Token:   o.cfg.Client.Token,
		Timeout: o.cfg.Client.RequestTimeout,
	})
}

func (o *rootOptions) newEditor() (*editor.Editor, error) {
	if o.cfg.Client.Token == "" {
		return nil, core.E(core.KindAuthentication, "syncctl", session.ErrNoToken)
	}
	user, err := auth.Subject(o.cfg.Client.Token)
	if err != nil {
		return nil, err
	}
	return editor.New(o.store(), session.WSDialer{}, editor.Options{
		User:           user,
		Session:        o.cfg.Client.SessionOptions(),
		RequestTimeout: o.cfg.Client.RequestTimeout,
	})
}

// withPlaylist opens id in a connected editor, runs fn and logs out. A relay
// that cannot be reached only costs the live notification of other editors.
func (o *rootOptions) withPlaylist(ctx context.Context, id domain.PlaylistID, fn func(ctx context.Context, ed *editor.Editor) error) error {
	ed, err := o.newEditor()
	if err != nil {
		return err
	}
	defer ed.Logout()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := ed.Start(startCtx); err != nil {
		log.Warn().Str("module", "cli").Err(err).Msg("relay unavailable, editing without live sync")
	}
	if _, err := ed.OpenPlaylist(ctx, id); err != nil {
		return fmt.Errorf("open playlist %s: %w", id, err)
	}
	return fn(ctx, ed)
}
