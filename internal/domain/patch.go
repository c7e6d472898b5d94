package domain

import (
	"slices"
	"time"
)

// Metadata field names carried by PlaylistPatch.
const (
	FieldName        = "name"
	FieldDescription = "description"
)

// PlaylistPatch is a partial playlist. Nil fields are absent.
type PlaylistPatch struct {
	Name        *string         `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Description *string         `json:"description,omitempty"`
	Items       *[]PlaylistItem `json:"items,omitempty"`
	ScreenIDs   *[]ScreenID     `json:"screenIds,omitempty"`
	UpdatedAt   *time.Time      `json:"updatedAt,omitempty"`
}

func (pp PlaylistPatch) IsEmpty() bool {
	return pp.Name == nil && pp.Description == nil && pp.Items == nil && pp.ScreenIDs == nil
}

// MetadataFields lists the metadata fields present in the patch.
func (pp PlaylistPatch) MetadataFields() []string {
	var out []string
	if pp.Name != nil {
		out = append(out, FieldName)
	}
	if pp.Description != nil {
		out = append(out, FieldDescription)
	}
	return out
}

// ApplyCategory copies the patch fields belonging to category onto p.
// Fields of other categories are left untouched.
func (pp PlaylistPatch) ApplyCategory(p *Playlist, category ChangeType) {
	switch category {
	case ChangeMetadata:
		if pp.Name != nil {
			p.Name = *pp.Name
		}
		if pp.Description != nil {
			p.Description = *pp.Description
		}
	case ChangeItems:
		if pp.Items != nil {
			p.Items = make([]PlaylistItem, len(*pp.Items))
			for i, it := range *pp.Items {
				p.Items[i] = it.Clone()
			}
			p.SortItems()
		}
	case ChangeAssignment:
		if pp.ScreenIDs != nil {
			p.ScreenIDs = slices.Clone(*pp.ScreenIDs)
		}
	}
	if pp.UpdatedAt != nil && pp.UpdatedAt.After(p.UpdatedAt) {
		p.UpdatedAt = *pp.UpdatedAt
	}
}

// Apply copies every present field onto p.
func (pp PlaylistPatch) Apply(p *Playlist) {
	pp.ApplyCategory(p, ChangeMetadata)
	pp.ApplyCategory(p, ChangeItems)
	pp.ApplyCategory(p, ChangeAssignment)
}

// PatchOf captures the fields of category from p.
func PatchOf(p *Playlist, category ChangeType) PlaylistPatch {
	var pp PlaylistPatch
	switch category {
	case ChangeMetadata:
		name, desc := p.Name, p.Description
		pp.Name, pp.Description = &name, &desc
	case ChangeItems:
		items := p.Clone().Items
		pp.Items = &items
	case ChangeAssignment:
		screens := slices.Clone(p.ScreenIDs)
		pp.ScreenIDs = &screens
	}
	at := p.UpdatedAt
	pp.UpdatedAt = &at
	return pp
}

func StringPtr(s string) *string { return &s }
func IntPtr(n int) *int          { return &n }
