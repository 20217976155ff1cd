// Package session keeps the signed-in user's token, name, role and id, and tells interested
// views when any of them change.
package session

import (
	"context"
	"strings"

	"github.com/noah-isme/gema-classroom/internal/authz"
)

// Storage keys.
const (
	KeyToken    = "token"
	KeyUsername = "username"
	KeyRole     = "role"
	KeyUserID   = "userId"
)

// Session is the signed-in user's state.
type Session struct {
	Token    string
	Username string
	Role     string
	UserID   string
}

// Authenticated reports whether a token is present.
func (s Session) Authenticated() bool {
	return strings.TrimSpace(s.Token) != ""
}

// RoleValue parses the stored role name.
func (s Session) RoleValue() authz.Role {
	return authz.ParseRole(s.Role)
}

func (s Session) values() map[string]string {
	return map[string]string{
		KeyToken:    s.Token,
		KeyUsername: s.Username,
		KeyRole:     s.Role,
		KeyUserID:   s.UserID,
	}
}

func fromValues(values map[string]string) Session {
	return Session{
		Token:    values[KeyToken],
		Username: values[KeyUsername],
		Role:     values[KeyRole],
		UserID:   values[KeyUserID],
	}
}

// Storage persists session values.
type Storage interface {
	Load(ctx context.Context) (map[string]string, error)
	Save(ctx context.Context, values map[string]string) error
	Clear(ctx context.Context) error
}

// Notifier is implemented by storages that announce writes made by any process.
type Notifier interface {
	Changes(ctx context.Context) (<-chan struct{}, error)
}
