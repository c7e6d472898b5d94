package protocol

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Signage/internal/core"
	"github.com/dkeye/Signage/internal/domain"
)

var ts = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestEncode_EnvelopeShape(t *testing.T) {
	b, err := Encode(&ItemRemoved{PlaylistID: "p1", ItemID: "b", RemovedBy: "u1", Timestamp: ts})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, "playlist:item:removed", raw["type"])
	data, ok := raw["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "p1", data["playlistId"])
	assert.Equal(t, "b", data["itemId"])
	assert.Equal(t, "u1", data["removedBy"])
	assert.NotEmpty(t, data["timestamp"])
}

func TestDecode_Catalogue(t *testing.T) {
	frames := map[Type]string{
		TypePlaylistUpdated:   `{"type":"playlist:updated","data":{"playlistId":"p1","playlist":{"name":"Evening"},"updatedBy":"u2","timestamp":"2026-03-01T09:00:00Z","changeType":"metadata"}}`,
		TypeItemAdded:         `{"type":"playlist:item:added","data":{"playlistId":"p1","item":{"id":"c","mediaId":"m3","order":2},"position":2,"updatedBy":"u2","timestamp":"2026-03-01T09:00:00Z"}}`,
		TypeItemsReordered:    `{"type":"playlist:item:reordered","data":{"playlistId":"p1","items":[{"id":"b","position":0},{"id":"a","position":1}],"updatedBy":"u2","timestamp":"2026-03-01T09:00:00Z"}}`,
		TypeScreensAssigned:   `{"type":"playlist:assigned","data":{"playlistId":"p1","screenIds":["s1"],"actorId":"u2","timestamp":"2026-03-01T09:00:00Z"}}`,
		TypeScreensUnassigned: `{"type":"playlist:unassigned","data":{"playlistId":"p1","screenIds":["s1"],"actorId":"u2","timestamp":"2026-03-01T09:00:00Z"}}`,
		TypeUserJoined:        `{"type":"user:joined:playlist","data":{"userId":"u2","userEmail":"b@example.com","playlistId":"p1","timestamp":"2026-03-01T09:00:00Z"}}`,
		TypeUserLeft:          `{"type":"user:left:playlist","data":{"userId":"u2","playlistId":"p1","timestamp":"2026-03-01T09:00:00Z"}}`,
	}
	for typ, frame := range frames {
		t.Run(string(typ), func(t *testing.T) {
			ev, err := Decode([]byte(frame))
			require.NoError(t, err)
			assert.Equal(t, typ, ev.EventType())
			require.NoError(t, Validate(ev))
		})
	}
}

func TestDecode_PlaylistEventAccessors(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"playlist:updated","data":{"playlistId":"p1","playlist":{"name":"Evening"},"updatedBy":"u2","timestamp":"2026-03-01T09:00:00Z","changeType":"metadata"}}`))
	require.NoError(t, err)

	pe, ok := ev.(PlaylistEvent)
	require.True(t, ok)
	assert.Equal(t, domain.PlaylistID("p1"), pe.Playlist())
	assert.Equal(t, domain.UserID("u2"), pe.Actor())
	assert.Equal(t, domain.ChangeMetadata, pe.Category())
	assert.True(t, ts.Equal(pe.At()))

	upd := ev.(*PlaylistUpdated)
	require.NotNil(t, upd.Patch.Name)
	assert.Equal(t, "Evening", *upd.Patch.Name)
	assert.Nil(t, upd.Patch.Items)
}

func TestDecode_AssignmentCategory(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"playlist:assigned","data":{"playlistId":"p1","screenIds":["s1","s2"],"actorId":"u2","timestamp":"2026-03-01T09:00:00Z"}}`))
	require.NoError(t, err)
	pe := ev.(PlaylistEvent)
	assert.Equal(t, domain.ChangeAssignment, pe.Category())
	pe.Stamp("u9")
	assert.Equal(t, domain.UserID("u9"), pe.Actor())
	assert.Equal(t, []domain.ScreenID{"s1", "s2"}, ev.(*ScreensAssigned).ScreenIDs)
}

func TestDecode_UnknownTypeIsNotAnError(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"screen:rebooted","data":{"screenId":"s1"}}`))
	require.NoError(t, err)
	u, ok := ev.(*Unknown)
	require.True(t, ok)
	assert.Equal(t, Type("screen:rebooted"), u.Type)
	assert.JSONEq(t, `{"screenId":"s1"}`, string(u.Raw))
	assert.False(t, Known(u.Type))
}

func TestDecode_Malformed(t *testing.T) {
	for name, frame := range map[string]string{
		"not json":     `{"type":`,
		"missing type": `{"data":{}}`,
		"bad payload":  `{"type":"playlist:item:removed","data":{"playlistId":42}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(frame))
			require.Error(t, err)
			assert.Equal(t, core.KindValidation, core.KindOf(err))
		})
	}
}

func TestEncode_RejectsInvalidOutbound(t *testing.T) {
	cases := map[string]Event{
		"reorder negative position": &ItemsReordered{PlaylistID: "p1", Items: []domain.ItemOrder{{ItemID: "a", Position: -1}}, UpdatedBy: "u1", Timestamp: ts},
		"reorder empty id":          &ItemsReordered{PlaylistID: "p1", Items: []domain.ItemOrder{{ItemID: "", Position: 0}}, UpdatedBy: "u1", Timestamp: ts},
		"join without playlist":     &JoinPlaylist{},
		"assign without screens":    &ScreensAssigned{ScreenAssignment{PlaylistID: "p1", ActorID: "u1", Timestamp: ts}},
		"heartbeat zero time":       &Heartbeat{},
		"add without actor":         &ItemAdded{PlaylistID: "p1", Item: domain.PlaylistItem{ID: "a", MediaID: "m"}, Timestamp: ts},
	}
	for name, ev := range cases {
		t.Run(name, func(t *testing.T) {
			b, err := Encode(ev)
			require.Error(t, err)
			assert.Nil(t, b)
			assert.ErrorIs(t, err, core.ErrValidation)
		})
	}
}

func TestEncodeDecode_Assigned(t *testing.T) {
	in := &ScreensAssigned{ScreenAssignment{PlaylistID: "p1", ScreenIDs: []domain.ScreenID{"s1"}, ActorID: "u1", Timestamp: ts}}
	b, err := Encode(in)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"screenIds":["s1"]`)

	out, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
