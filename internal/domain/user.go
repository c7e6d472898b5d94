// Package domain holds the playlist, user and room entities shared by the
// client core and the relay. No transport or lifecycle logic here.
package domain

import (
	"errors"
)

const (
	MaxUserIDLen = 64
	MaxEmailLen  = 254
)

var (
	ErrUserIDEmpty   = errors.New("user id empty")
	ErrUserIDTooLong = errors.New("user id too long")
	ErrEmailTooLong  = errors.New("email too long")
)

type UserID string

// User is the acting identity attached to every event.
type User struct {
	ID    UserID `json:"id"`
	Email string `json:"email,omitempty"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(id, email string) (*User, error) {
	if len(id) == 0 {
		return nil, ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return nil, ErrUserIDTooLong
	}
	if len(email) > MaxEmailLen {
		return nil, ErrEmailTooLong
	}
	return &User{ID: UserID(id), Email: email}, nil
}

func (u *User) SetEmail(email string) error {
	if len(email) > MaxEmailLen {
		return ErrEmailTooLong
	}
	u.Email = email
	return nil
}
