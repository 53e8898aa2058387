// Package checkpoint persists the conversation state of each thread key
// between turns.
//
// A Store holds one committed Checkpoint per key. Stores that also
// implement WriteLog keep the per-node writes of a turn in flight, so an
// interrupted turn can be resumed from the last completed node. Committing
// a checkpoint discards the writes of its key.
package checkpoint

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups that require an existing record.
var ErrNotFound = errors.New("checkpoint not found")

// ServiceName is the service under which the configured Store is
// published.
const ServiceName = "checkpoint.store"

// Checkpoint is the committed state of one thread key.
type Checkpoint struct {
	Key       string    `json:"key"`
	Turn      string    `json:"turn"`
	Step      int       `json:"step"`
	LastNode  string    `json:"last_node"`
	State     []byte    `json:"-"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Write is one entry of the pending write log: the state produced by a
// node of the turn identified by Turn.
type Write struct {
	Key       string
	Turn      string
	Step      int
	Node      string
	Payload   []byte
	CreatedAt time.Time
}

// Scope selects the checkpoints removed by Reset.
type Scope struct {
	key string
}

// ScopeAll selects every checkpoint in the store.
var ScopeAll = Scope{}

// ScopeKey selects the checkpoint of a single thread key.
func ScopeKey(key string) Scope { return Scope{key: key} }

// All reports whether the scope covers the whole store.
func (s Scope) All() bool { return s.key == "" }

// Key returns the selected key, empty for ScopeAll.
func (s Scope) Key() string { return s.key }

// Matches reports whether key falls inside the scope.
func (s Scope) Matches(key string) bool { return s.key == "" || s.key == key }

func (s Scope) String() string {
	if s.All() {
		return "all"
	}
	return "key:" + s.key
}

// Store is the committed checkpoint contract.
type Store interface {
	// Load returns the checkpoint for key, or nil and no error if the key
	// has never been saved.
	Load(ctx context.Context, key string) (*Checkpoint, error)

	// Save atomically replaces the checkpoint for key and discards any
	// pending writes of that key.
	Save(ctx context.Context, key string, cp Checkpoint) error

	// Reset deletes every checkpoint in scope, along with its pending
	// writes, and returns the number of checkpoints deleted.
	Reset(ctx context.Context, scope Scope) (int, error)

	// Keys lists the keys with a committed checkpoint, sorted.
	Keys(ctx context.Context) ([]string, error)
}

// WriteLog is implemented by stores that record in-flight node writes.
type WriteLog interface {
	// PutWrite appends w to the log of w.Key.
	PutWrite(ctx context.Context, w Write) error

	// PendingWrites returns the writes of key ordered by step.
	PendingWrites(ctx context.Context, key string) ([]Write, error)

	// DiscardWrites drops every pending write of key.
	DiscardWrites(ctx context.Context, key string) error

	// PruneWrites drops writes created before cutoff and returns how many
	// were removed.
	PruneWrites(ctx context.Context, cutoff time.Time) (int, error)
}
