package domain

import "time"

// Presence is one user known to be present in a room.
type Presence struct {
	UserID   UserID    `json:"userId"`
	Email    string    `json:"userEmail,omitempty"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Member represents user's participation meta for a relay room.
type Member struct {
	User     *User
	JoinedAt time.Time
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(user *User, at time.Time) *Member {
	return &Member{User: user, JoinedAt: at}
}

func (m *Member) Presence() Presence {
	return Presence{UserID: m.User.ID, Email: m.User.Email, JoinedAt: m.JoinedAt}
}
