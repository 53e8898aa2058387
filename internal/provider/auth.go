package provider

import (
	"errors"
	"sync"
)

// ErrNoKeys is returned when NewAuthProfile is called without any keys.
var ErrNoKeys = errors.New("AuthProfile requires at least one key")

// AuthProfile holds the API keys of one provider. The chain rotates to the
// next key when the provider reports a rate limit.
type AuthProfile struct {
	mu   sync.Mutex
	keys []string
	idx  int
}

// NewAuthProfile creates an AuthProfile. Empty keys are skipped; at least
// one non-empty key is required.
func NewAuthProfile(keys ...string) (*AuthProfile, error) {
	var kept []string
	for _, k := range keys {
		if k != "" {
			kept = append(kept, k)
		}
	}
	if len(kept) == 0 {
		return nil, ErrNoKeys
	}
	return &AuthProfile{keys: kept}, nil
}

// CurrentKey returns the active API key.
func (a *AuthProfile) CurrentKey() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.keys[a.idx]
}

// Keys returns a copy of every configured key.
func (a *AuthProfile) Keys() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.keys...)
}

// Rotate advances to the next key, wrapping around. It reports false when
// there is only one key.
func (a *AuthProfile) Rotate() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.keys) <= 1 {
		return false
	}
	a.idx = (a.idx + 1) % len(a.keys)
	return true
}

// CurrentIndex returns the zero-based index of the active key.
func (a *AuthProfile) CurrentIndex() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.idx
}
