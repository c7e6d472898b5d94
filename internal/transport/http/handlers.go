// Package http exposes a core.PlaylistStore over the REST surface consumed by
// the httpstore client.
package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Signage/internal/adapters/auth"
	"github.com/dkeye/Signage/internal/core"
	"github.com/dkeye/Signage/internal/domain"
)

// Lister is implemented by stores that can enumerate playlists.
type Lister interface {
	List() []*domain.Playlist
}

type OrderRequest struct {
	Items []domain.ItemOrder `json:"items"`
}

type ScreensRequest struct {
	ScreenIDs []domain.ScreenID   `json:"screenIds"`
	Action    domain.AssignAction `json:"action"`
}

type StoreHandlers struct {
	Store core.PlaylistStore
}

// Register mounts the playlist routes on rg.
func (h *StoreHandlers) Register(rg *gin.RouterGroup) {
	rg.GET("/playlists", h.list)
	rg.POST("/playlists", h.create)
	rg.GET("/playlists/:id", h.get)
	rg.PATCH("/playlists/:id", h.update)
	rg.DELETE("/playlists/:id", h.delete)
	rg.POST("/playlists/:id/items", h.addItem)
	rg.DELETE("/playlists/:id/items/:itemId", h.removeItem)
	rg.PATCH("/playlists/:id/items/:itemId", h.updateItem)
	rg.PUT("/playlists/:id/order", h.reorder)
	rg.POST("/playlists/:id/screens", h.screens)
}

func StatusOf(kind core.Kind) int {
	switch kind {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindAuthentication:
		return http.StatusUnauthorized
	case core.KindConflict:
		return http.StatusConflict
	case core.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	kind := core.KindOf(err)
	if kind == core.KindUnknown {
		kind = core.KindInternal
	}
	status := StatusOf(kind)
	ev := log.Warn()
	if status >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Str("module", "transport.http").Str("path", c.FullPath()).Int("status", status).Err(err).Msg("store request failed")
	c.JSON(status, gin.H{"error": gin.H{"code": kind.String(), "message": err.Error()}})
}

func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		writeError(c, core.E(core.KindValidation, "decode body", err))
		return false
	}
	return true
}

// requestCtx carries the authenticated user as the write actor.
func requestCtx(c *gin.Context) context.Context {
	ctx := c.Request.Context()
	if u, ok := auth.UserFrom(c); ok {
		ctx = core.WithActor(ctx, u.ID)
	}
	return ctx
}

func playlistID(c *gin.Context) domain.PlaylistID { return domain.PlaylistID(c.Param("id")) }

func (h *StoreHandlers) list(c *gin.Context) {
	l, ok := h.Store.(Lister)
	if !ok {
		writeError(c, core.E(core.KindInternal, "list", errors.New("store cannot list playlists")))
		return
	}
	c.JSON(http.StatusOK, gin.H{"playlists": l.List()})
}

func (h *StoreHandlers) create(c *gin.Context) {
	var req domain.NewPlaylist
	if !bind(c, &req) {
		return
	}
	p, err := h.Store.CreatePlaylist(requestCtx(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *StoreHandlers) get(c *gin.Context) {
	p, err := h.Store.GetPlaylist(requestCtx(c), playlistID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *StoreHandlers) update(c *gin.Context) {
	var patch domain.PlaylistPatch
	if !bind(c, &patch) {
		return
	}
	p, err := h.Store.UpdatePlaylist(requestCtx(c), playlistID(c), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *StoreHandlers) delete(c *gin.Context) {
	if err := h.Store.DeletePlaylist(requestCtx(c), playlistID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *StoreHandlers) addItem(c *gin.Context) {
	var req domain.NewItem
	if !bind(c, &req) {
		return
	}
	it, err := h.Store.AddItem(requestCtx(c), playlistID(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, it)
}

func (h *StoreHandlers) removeItem(c *gin.Context) {
	if err := h.Store.RemoveItem(requestCtx(c), playlistID(c), domain.ItemID(c.Param("itemId"))); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *StoreHandlers) updateItem(c *gin.Context) {
	var patch domain.ItemPatch
	if !bind(c, &patch) {
		return
	}
	it, err := h.Store.UpdateItem(requestCtx(c), playlistID(c), domain.ItemID(c.Param("itemId")), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, it)
}

func (h *StoreHandlers) reorder(c *gin.Context) {
	var req OrderRequest
	if !bind(c, &req) {
		return
	}
	p, err := h.Store.ReorderItems(requestCtx(c), playlistID(c), req.Items)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *StoreHandlers) screens(c *gin.Context) {
	var req ScreensRequest
	if !bind(c, &req) {
		return
	}
	p, err := h.Store.AssignScreens(requestCtx(c), playlistID(c), req.ScreenIDs, req.Action)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
