// Package httpstore is a core.PlaylistStore backed by the REST playlist API.
package httpstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/dkeye/Signage/internal/core"
	"github.com/dkeye/Signage/internal/domain"
)

type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// MaxFailures consecutive failures open the breaker for OpenTimeout.
	MaxFailures uint32
	OpenTimeout time.Duration
	HTTPClient  *http.Client
}

type Client struct {
	base string
	http *http.Client
	cb   *gobreaker.CircuitBreaker[[]byte]

	mu    sync.RWMutex
	token string
}

var _ core.PlaylistStore = (*Client)(nil)

func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxFailures == 0 {
		opts.MaxFailures = 5
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 30 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	maxFailures := opts.MaxFailures
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "playlist-store",
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			switch core.KindOf(err) {
			case core.KindNetwork, core.KindTimeout, core.KindInternal, core.KindUnknown:
				return false
			}
			return true
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("module", "adapters.httpstore").Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("breaker state change")
		},
	})
	return &Client{base: strings.TrimRight(opts.BaseURL, "/"), http: hc, cb: cb, token: opts.Token}
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func kindOfStatus(status int) core.Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return core.KindAuthentication
	case status == http.StatusNotFound:
		return core.KindNotFound
	case status == http.StatusConflict:
		return core.KindConflict
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return core.KindValidation
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return core.KindTimeout
	default:
		return core.KindInternal
	}
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return core.E(core.KindValidation, op, err)
		}
		body = b
	}

	raw, err := c.cb.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(body))
		if err != nil {
			return nil, core.E(core.KindInternal, op, err)
		}
		req.Header.Set("Accept", "application/json")
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		c.mu.RLock()
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		c.mu.RUnlock()

		resp, err := c.http.Do(req)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return nil, core.E(core.KindTimeout, op, err)
			}
			return nil, core.E(core.KindNetwork, op, err)
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, core.E(core.KindNetwork, op, err)
		}
		if resp.StatusCode >= http.StatusBadRequest {
			var eb errorBody
			kind := kindOfStatus(resp.StatusCode)
			msg := http.StatusText(resp.StatusCode)
			if json.Unmarshal(data, &eb) == nil && eb.Error.Code != "" {
				if k := core.ParseKind(eb.Error.Code); k != core.KindUnknown {
					kind = k
				}
				msg = eb.Error.Message
			}
			return nil, &core.Error{Kind: kind, Op: op, Status: resp.StatusCode, Err: errors.New(msg)}
		}
		return data, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return core.E(core.KindNetwork, op, err)
		}
		return err
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return core.E(core.KindInternal, op, fmt.Errorf("decode response: %w", err))
		}
	}
	return nil
}

func playlistPath(id domain.PlaylistID, rest ...string) string {
	p := "/api/playlists/" + url.PathEscape(string(id))
	for _, r := range rest {
		p += "/" + url.PathEscape(r)
	}
	return p
}

func (c *Client) CreatePlaylist(ctx context.Context, req domain.NewPlaylist) (*domain.Playlist, error) {
	var p domain.Playlist
	if err := c.do(ctx, "httpstore.create", http.MethodPost, "/api/playlists", req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) GetPlaylist(ctx context.Context, id domain.PlaylistID) (*domain.Playlist, error) {
	var p domain.Playlist
	if err := c.do(ctx, "httpstore.get", http.MethodGet, playlistPath(id), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPlaylists is not part of core.PlaylistStore; syncctl uses it.
func (c *Client) ListPlaylists(ctx context.Context) ([]*domain.Playlist, error) {
	var out struct {
		Playlists []*domain.Playlist `json:"playlists"`
	}
	if err := c.do(ctx, "httpstore.list", http.MethodGet, "/api/playlists", nil, &out); err != nil {
		return nil, err
	}
	return out.Playlists, nil
}

func (c *Client) UpdatePlaylist(ctx context.Context, id domain.PlaylistID, patch domain.PlaylistPatch) (*domain.Playlist, error) {
	var p domain.Playlist
	if err := c.do(ctx, "httpstore.update", http.MethodPatch, playlistPath(id), patch, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) DeletePlaylist(ctx context.Context, id domain.PlaylistID) error {
	return c.do(ctx, "httpstore.delete", http.MethodDelete, playlistPath(id), nil, nil)
}

func (c *Client) AddItem(ctx context.Context, id domain.PlaylistID, req domain.NewItem) (*domain.PlaylistItem, error) {
	var it domain.PlaylistItem
	if err := c.do(ctx, "httpstore.add_item", http.MethodPost, playlistPath(id, "items"), req, &it); err != nil {
		return nil, err
	}
	return &it, nil
}

func (c *Client) RemoveItem(ctx context.Context, id domain.PlaylistID, itemID domain.ItemID) error {
	return c.do(ctx, "httpstore.remove_item", http.MethodDelete, playlistPath(id, "items", string(itemID)), nil, nil)
}

func (c *Client) ReorderItems(ctx context.Context, id domain.PlaylistID, order []domain.ItemOrder) (*domain.Playlist, error) {
	var p domain.Playlist
	body := struct {
		Items []domain.ItemOrder `json:"items"`
	}{order}
	if err := c.do(ctx, "httpstore.reorder", http.MethodPut, playlistPath(id, "order"), body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) UpdateItem(ctx context.Context, id domain.PlaylistID, itemID domain.ItemID, patch domain.ItemPatch) (*domain.PlaylistItem, error) {
	var it domain.PlaylistItem
	if err := c.do(ctx, "httpstore.update_item", http.MethodPatch, playlistPath(id, "items", string(itemID)), patch, &it); err != nil {
		return nil, err
	}
	return &it, nil
}

func (c *Client) AssignScreens(ctx context.Context, id domain.PlaylistID, screens []domain.ScreenID, action domain.AssignAction) (*domain.Playlist, error) {
	var p domain.Playlist
	body := struct {
		ScreenIDs []domain.ScreenID   `json:"screenIds"`
		Action    domain.AssignAction `json:"action"`
	}{screens, action}
	if err := c.do(ctx, "httpstore.assign", http.MethodPost, playlistPath(id, "screens"), body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
