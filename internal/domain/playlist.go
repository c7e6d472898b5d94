package domain

import (
	"errors"
	"slices"
	"sort"
	"time"
)

type (
	PlaylistID string
	ItemID     string
	MediaID    string
	ScreenID   string
)

var (
	ErrPlaylistNameEmpty = errors.New("playlist name empty")
	ErrDuplicateOrder    = errors.New("duplicate item order")
	ErrItemNotFound      = errors.New("item not found")
)

const MaxPlaylistNameLen = 120

// ChangeType is the category of a playlist change and of a conflict.
type ChangeType string

const (
	ChangeMetadata   ChangeType = "metadata"
	ChangeItems      ChangeType = "items"
	ChangeAssignment ChangeType = "assignment"
)

func (c ChangeType) Valid() bool {
	switch c {
	case ChangeMetadata, ChangeItems, ChangeAssignment:
		return true
	}
	return false
}

type Transition struct {
	Kind       string `json:"kind" validate:"required"`
	DurationMs int    `json:"durationMs" validate:"min=0"`
}

// Condition restricts when an item plays.
type Condition struct {
	DaysOfWeek []int  `json:"daysOfWeek,omitempty" validate:"omitempty,dive,min=0,max=6"`
	StartTime  string `json:"startTime,omitempty"`
	EndTime    string `json:"endTime,omitempty"`
}

type PlaylistItem struct {
	ID         ItemID      `json:"id" validate:"required"`
	MediaID    MediaID     `json:"mediaId" validate:"required"`
	Order      int         `json:"order" validate:"min=0"`
	Duration   *int        `json:"duration,omitempty" validate:"omitempty,min=0"`
	Transition *Transition `json:"transition,omitempty"`
	Conditions *Condition  `json:"conditions,omitempty"`
}

func (it PlaylistItem) Clone() PlaylistItem {
	out := it
	if it.Duration != nil {
		d := *it.Duration
		out.Duration = &d
	}
	if it.Transition != nil {
		t := *it.Transition
		out.Transition = &t
	}
	if it.Conditions != nil {
		c := *it.Conditions
		c.DaysOfWeek = slices.Clone(it.Conditions.DaysOfWeek)
		out.Conditions = &c
	}
	return out
}

// Playlist is the locally cached projection of an authoritative playlist.
// UpdatedAt doubles as the version marker.
type Playlist struct {
	ID          PlaylistID     `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Items       []PlaylistItem `json:"items"`
	ScreenIDs   []ScreenID     `json:"screenIds"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	UpdatedBy   UserID         `json:"updatedBy,omitempty"`
}

func (p *Playlist) Clone() *Playlist {
	if p == nil {
		return nil
	}
	out := *p
	out.Items = make([]PlaylistItem, len(p.Items))
	for i, it := range p.Items {
		out.Items[i] = it.Clone()
	}
	out.ScreenIDs = slices.Clone(p.ScreenIDs)
	return &out
}

func (p *Playlist) ItemIndex(id ItemID) int {
	for i := range p.Items {
		if p.Items[i].ID == id {
			return i
		}
	}
	return -1
}

func (p *Playlist) Item(id ItemID) (PlaylistItem, bool) {
	if i := p.ItemIndex(id); i >= 0 {
		return p.Items[i], true
	}
	return PlaylistItem{}, false
}

// SortItems orders Items by Order, keeping the relative order of ties.
func (p *Playlist) SortItems() {
	sort.SliceStable(p.Items, func(i, j int) bool { return p.Items[i].Order < p.Items[j].Order })
}

// Renumber sorts items and rewrites Order as 0..n-1.
func (p *Playlist) Renumber() {
	p.SortItems()
	for i := range p.Items {
		p.Items[i].Order = i
	}
}

// InsertItem places it at position (clamped), shifting later items.
// A nil position appends.
func (p *Playlist) InsertItem(it PlaylistItem, position *int) {
	p.Renumber()
	at := len(p.Items)
	if position != nil && *position >= 0 && *position < at {
		at = *position
	}
	p.Items = slices.Insert(p.Items, at, it)
	for i := range p.Items {
		p.Items[i].Order = i
	}
}

func (p *Playlist) RemoveItem(id ItemID) bool {
	i := p.ItemIndex(id)
	if i < 0 {
		return false
	}
	p.Items = slices.Delete(p.Items, i, i+1)
	p.Renumber()
	return true
}

// CheckOrders reports ErrDuplicateOrder if two items share an Order.
func (p *Playlist) CheckOrders() error {
	seen := make(map[int]struct{}, len(p.Items))
	for _, it := range p.Items {
		if _, ok := seen[it.Order]; ok {
			return ErrDuplicateOrder
		}
		seen[it.Order] = struct{}{}
	}
	return nil
}

func (p *Playlist) HasScreen(id ScreenID) bool {
	return slices.Contains(p.ScreenIDs, id)
}

// AddScreens appends ids not already assigned.
func (p *Playlist) AddScreens(ids []ScreenID) {
	for _, id := range ids {
		if !p.HasScreen(id) {
			p.ScreenIDs = append(p.ScreenIDs, id)
		}
	}
}

func (p *Playlist) RemoveScreens(ids []ScreenID) {
	p.ScreenIDs = slices.DeleteFunc(p.ScreenIDs, func(s ScreenID) bool {
		return slices.Contains(ids, s)
	})
}

// NewPlaylist is the create request.
type NewPlaylist struct {
	Name        string     `json:"name" validate:"required,max=120"`
	Description string     `json:"description,omitempty"`
	ScreenIDs   []ScreenID `json:"screenIds,omitempty"`
}

// NewItem is the add-media request.
type NewItem struct {
	MediaID  MediaID `json:"mediaId" validate:"required"`
	Position *int    `json:"position,omitempty" validate:"omitempty,min=0"`
	Duration *int    `json:"duration,omitempty" validate:"omitempty,min=0"`
}

// ItemOrder is one entry of a full target ordering.
type ItemOrder struct {
	ItemID   ItemID `json:"id" validate:"required"`
	Position int    `json:"position" validate:"min=0"`
}

// ItemPatch updates per-item settings. Nil fields are left alone.
type ItemPatch struct {
	Duration   *int        `json:"duration,omitempty" validate:"omitempty,min=0"`
	Transition *Transition `json:"transition,omitempty"`
	Conditions *Condition  `json:"conditions,omitempty"`
}

func (ip ItemPatch) Apply(it *PlaylistItem) {
	if ip.Duration != nil {
		d := *ip.Duration
		it.Duration = &d
	}
	if ip.Transition != nil {
		t := *ip.Transition
		it.Transition = &t
	}
	if ip.Conditions != nil {
		c := *ip.Conditions
		c.DaysOfWeek = slices.Clone(ip.Conditions.DaysOfWeek)
		it.Conditions = &c
	}
}

type AssignAction string

const (
	ActionAssign   AssignAction = "assign"
	ActionUnassign AssignAction = "unassign"
)
