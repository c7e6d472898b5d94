package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/dkeye/Signage/internal/app/editor"
	"github.com/dkeye/Signage/internal/domain"
)

func newPlaylistsCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "playlists",
		Aliases: []string{"pl"},
		Short:   "List and edit playlists",
	}
	cmd.AddCommand(
		newListCmd(o),
		newGetCmd(o),
		newCreateCmd(o),
		newDeleteCmd(o),
		newRenameCmd(o),
		newAddItemCmd(o),
		newRemoveItemCmd(o),
		newReorderCmd(o),
		newScreensCmd(o, domain.ActionAssign),
		newScreensCmd(o, domain.ActionUnassign),
	)
	return cmd
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func newListCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List playlists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := o.store().ListPlaylists(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tITEMS\tSCREENS\tUPDATED BY")
			for _, p := range list {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", p.ID, p.Name, len(p.Items), len(p.ScreenIDs), p.UpdatedBy)
			}
			return tw.Flush()
		},
	}
}

func newGetCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <playlist>",
		Short: "Print a playlist as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.store().GetPlaylist(cmd.Context(), domain.PlaylistID(args[0]))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	}
}

func newCreateCmd(o *rootOptions) *cobra.Command {
	var req domain.NewPlaylist
	var screens []string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a playlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Name = args[0]
			for _, s := range screens {
				req.ScreenIDs = append(req.ScreenIDs, domain.ScreenID(s))
			}
			p, err := o.store().CreatePlaylist(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	}
	cmd.Flags().StringVar(&req.Description, "description", "", "playlist description")
	cmd.Flags().StringSliceVar(&screens, "screens", nil, "screen ids to assign")
	return cmd
}

func newDeleteCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <playlist>",
		Short: "Delete a playlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.PlaylistID(args[0])
			return o.withPlaylist(cmd.Context(), id, func(ctx context.Context, ed *editor.Editor) error {
				if err := ed.DeletePlaylist(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
				return nil
			})
		},
	}
}

// edit runs a playlist mutation through a live editor and prints the result.
func (o *rootOptions) edit(cmd *cobra.Command, id domain.PlaylistID, fn func(ctx context.Context, ed *editor.Editor) (*domain.Playlist, error)) error {
	return o.withPlaylist(cmd.Context(), id, func(ctx context.Context, ed *editor.Editor) error {
		p, err := fn(ctx, ed)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), p)
	})
}

func newRenameCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <playlist> <name>",
		Short: "Rename a playlist",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.PlaylistID(args[0])
			return o.edit(cmd, id, func(ctx context.Context, ed *editor.Editor) (*domain.Playlist, error) {
				return ed.Rename(ctx, id, args[1])
			})
		},
	}
}

func newAddItemCmd(o *rootOptions) *cobra.Command {
	var position, duration int
	cmd := &cobra.Command{
		Use:   "add-item <playlist> <media>",
		Short: "Add a media item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.PlaylistID(args[0])
			req := domain.NewItem{MediaID: domain.MediaID(args[1])}
			if cmd.Flags().Changed("position") {
				req.Position = domain.IntPtr(position)
			}
			if cmd.Flags().Changed("duration") {
				req.Duration = domain.IntPtr(duration)
			}
			return o.withPlaylist(cmd.Context(), id, func(ctx context.Context, ed *editor.Editor) error {
				it, err := ed.AddItem(ctx, id, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), it)
			})
		},
	}
	cmd.Flags().IntVar(&position, "position", 0, "insert position (default end)")
	cmd.Flags().IntVar(&duration, "duration", 0, "duration override in seconds")
	return cmd
}

func newRemoveItemCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-item <playlist> <item>",
		Short: "Remove an item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.PlaylistID(args[0])
			return o.edit(cmd, id, func(ctx context.Context, ed *editor.Editor) (*domain.Playlist, error) {
				return ed.RemoveItem(ctx, id, domain.ItemID(args[1]))
			})
		},
	}
}

func newReorderCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <playlist> <item>...",
		Short: "Reorder items; list every item id in the new order",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.PlaylistID(args[0])
			order := make([]domain.ItemOrder, 0, len(args)-1)
			for i, item := range args[1:] {
				order = append(order, domain.ItemOrder{ItemID: domain.ItemID(item), Position: i})
			}
			return o.edit(cmd, id, func(ctx context.Context, ed *editor.Editor) (*domain.Playlist, error) {
				return ed.Reorder(ctx, id, order)
			})
		},
	}
}

func newScreensCmd(o *rootOptions, action domain.AssignAction) *cobra.Command {
	return &cobra.Command{
		Use:   string(action) + " <playlist> <screen>...",
		Short: "Change the screens showing a playlist (" + string(action) + ")",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.PlaylistID(args[0])
			screens := make([]domain.ScreenID, 0, len(args)-1)
			for _, s := range args[1:] {
				screens = append(screens, domain.ScreenID(s))
			}
			return o.edit(cmd, id, func(ctx context.Context, ed *editor.Editor) (*domain.Playlist, error) {
				if action == domain.ActionAssign {
					return ed.AssignScreens(ctx, id, screens)
				}
				return ed.UnassignScreens(ctx, id, screens)
			})
		},
	}
}
