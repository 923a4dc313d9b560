// Package principal models the two kinds of callers the platform accounts
// for: registered users and anonymous sessions.
package principal

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind tags a principal as registered or anonymous
type Kind string

const (
	KindRegistered Kind = "registered"
	KindAnonymous  Kind = "anonymous"
)

// IsValid checks if the kind is valid
func (k Kind) IsValid() bool {
	return k == KindRegistered || k == KindAnonymous
}

// String returns the string representation
func (k Kind) String() string {
	return string(k)
}

// Role is the authorization role of a principal
type Role string

const (
	RoleGuest Role = "guest"
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// IsValid checks if the role is valid
func (r Role) IsValid() bool {
	switch r {
	case RoleGuest, RoleUser, RoleAdmin:
		return true
	}
	return false
}

// Ref identifies a principal without loading it
type Ref struct {
	Kind Kind      `json:"kind"`
	ID   uuid.UUID `json:"id"`
}

// RegisteredRef builds a Ref for a user id
func RegisteredRef(id uuid.UUID) Ref {
	return Ref{Kind: KindRegistered, ID: id}
}

// AnonymousRef builds a Ref for a session id
func AnonymousRef(id uuid.UUID) Ref {
	return Ref{Kind: KindAnonymous, ID: id}
}

// IsZero reports whether the ref is unset
func (r Ref) IsZero() bool {
	return r.Kind == "" && r.ID == uuid.Nil
}

func (r Ref) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}

// Principal is either Registered or Anonymous. The interface is sealed; use
// Match to handle both cases.
type Principal interface {
	Ref() Ref
	Balance() int64
	Role() Role
	CreatedAt() time.Time
	LastActivityAt() time.Time

	sealed()
}

// Registered wraps a User
type Registered struct {
	User *User
}

// Anonymous wraps a Session
type Anonymous struct {
	Session *Session
}

func (Registered) sealed() {}
func (Anonymous) sealed()  {}

func (p Registered) Ref() Ref                  { return RegisteredRef(p.User.ID) }
func (p Registered) Balance() int64            { return p.User.Balance }
func (p Registered) Role() Role                { return p.User.Role }
func (p Registered) CreatedAt() time.Time      { return p.User.CreatedAt }
func (p Registered) LastActivityAt() time.Time { return p.User.LastActivityAt }

func (p Anonymous) Ref() Ref                  { return AnonymousRef(p.Session.ID) }
func (p Anonymous) Balance() int64            { return p.Session.Balance }
func (p Anonymous) Role() Role                { return RoleGuest }
func (p Anonymous) CreatedAt() time.Time      { return p.Session.CreatedAt }
func (p Anonymous) LastActivityAt() time.Time { return p.Session.LastActivityAt }

// Match dispatches on the concrete principal. Both branches are required.
func Match[T any](p Principal, registered func(*User) T, anonymous func(*Session) T) T {
	switch v := p.(type) {
	case Registered:
		return registered(v.User)
	case Anonymous:
		return anonymous(v.Session)
	default:
		panic(fmt.Sprintf("principal: unknown principal type %T", p))
	}
}

// IsAdmin reports whether the principal holds the admin role
func IsAdmin(p Principal) bool {
	return p != nil && p.Role() == RoleAdmin
}
