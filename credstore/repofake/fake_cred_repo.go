package repofake

import (
	"sync"

	"github.com/jrsteele09/go-auth-client/credstore"
)

// FakeCredentialRepo is an in-memory implementation of credstore.Repo for
// tests.
type FakeCredentialRepo struct {
	mu       sync.Mutex
	snapshot credstore.Snapshot

	LoadErr  error
	SaveErr  error
	ClearErr error
}

// NewFakeCredentialRepo creates an empty fake repo.
func NewFakeCredentialRepo() *FakeCredentialRepo {
	return &FakeCredentialRepo{}
}

// Seed replaces the stored snapshot, bypassing Save bookkeeping.
func (r *FakeCredentialRepo) Seed(snapshot credstore.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshot = snapshot
}

// Load returns the current snapshot.
func (r *FakeCredentialRepo) Load() (credstore.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.LoadErr != nil {
		return credstore.Snapshot{}, r.LoadErr
	}
	snapshot := r.snapshot
	snapshot.User = r.snapshot.User.Clone()
	return snapshot, nil
}

// Save applies the partial update in memory.
func (r *FakeCredentialRepo) Save(partial credstore.Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SaveErr != nil {
		return r.SaveErr
	}
	if partial.AccessToken != nil {
		r.snapshot.AccessToken = *partial.AccessToken
	}
	if partial.RefreshToken != nil {
		r.snapshot.RefreshToken = *partial.RefreshToken
	}
	if partial.User != nil {
		r.snapshot.User = (*partial.User).Clone()
	}
	return nil
}

// Clear empties the stored snapshot.
func (r *FakeCredentialRepo) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ClearErr != nil {
		return r.ClearErr
	}
	r.snapshot = credstore.Snapshot{}
	return nil
}

var _ credstore.Repo = (*FakeCredentialRepo)(nil)
