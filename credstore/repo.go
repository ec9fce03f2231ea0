// Package credstore persists the credential pair and cached user profile so
// a session survives process restarts.
package credstore

import "github.com/jrsteele09/go-auth-client/session"

// Snapshot is the full persisted state. Zero values mean "not stored".
type Snapshot struct {
	AccessToken  string
	RefreshToken string
	User         session.User
}

// Update is a partial write; nil fields are left untouched.
type Update struct {
	AccessToken  *string
	RefreshToken *string
	User         *session.User
}

// Repo is the persistence contract. Load never fails on absent data; it
// returns an empty snapshot instead.
type Repo interface {
	Load() (Snapshot, error)
	Save(partial Update) error
	Clear() error
}
