package workflow

import "errors"

var (
	// ErrGeneration wraps completion failures. The turn is aborted and
	// nothing is committed.
	ErrGeneration = errors.New("generation failed")

	// ErrPersistence wraps checkpoint load, write and save failures. The
	// turn is aborted before a reply is returned.
	ErrPersistence = errors.New("persistence failed")

	// ErrTurnInProgress is returned in reject mode when the key already has
	// a turn in flight.
	ErrTurnInProgress = errors.New("turn already in progress for this thread")

	// ErrNothingToResume is returned by Resume when the key has no
	// interrupted turn.
	ErrNothingToResume = errors.New("no interrupted turn to resume")
)
