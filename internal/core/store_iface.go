package core

import (
	"context"

	"github.com/dkeye/Signage/internal/domain"
)

//go:generate mockgen -destination=mocks/store_mock.go -package=mocks . PlaylistStore

// PlaylistStore is the authoritative store. Every method returns either the
// authoritative entity or a *Error with a machine-readable Kind.
type PlaylistStore interface {
	CreatePlaylist(ctx context.Context, req domain.NewPlaylist) (*domain.Playlist, error)
	GetPlaylist(ctx context.Context, id domain.PlaylistID) (*domain.Playlist, error)
	UpdatePlaylist(ctx context.Context, id domain.PlaylistID, patch domain.PlaylistPatch) (*domain.Playlist, error)
	DeletePlaylist(ctx context.Context, id domain.PlaylistID) error

	AddItem(ctx context.Context, id domain.PlaylistID, req domain.NewItem) (*domain.PlaylistItem, error)
	RemoveItem(ctx context.Context, id domain.PlaylistID, itemID domain.ItemID) error
	ReorderItems(ctx context.Context, id domain.PlaylistID, order []domain.ItemOrder) (*domain.Playlist, error)
	UpdateItem(ctx context.Context, id domain.PlaylistID, itemID domain.ItemID, patch domain.ItemPatch) (*domain.PlaylistItem, error)
	AssignScreens(ctx context.Context, id domain.PlaylistID, screens []domain.ScreenID, action domain.AssignAction) (*domain.Playlist, error)
}
