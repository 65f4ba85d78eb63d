package session

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionCompleted is returned when answering a session that has been scored.
	ErrSessionCompleted = errors.New("session already completed")
	// ErrNotInProgress is returned when answering a session that is neither
	// in progress nor completed.
	ErrNotInProgress = errors.New("session is not in progress")
	// ErrNotCompleted is returned when asking for results of an unfinished session.
	ErrNotCompleted = errors.New("session not completed yet")
	// ErrQuestionNotInFlow is returned for answers to questions that are not on
	// the session's current path.
	ErrQuestionNotInFlow = errors.New("question is not part of the current flow")
)

// PersistenceError wraps a failed store call. The manager does not retry.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s session: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// SchemaDriftError describes a resume pointer that no longer fits the
// current flow. The manager recovers from it and only logs it.
type SchemaDriftError struct {
	UserID     string
	QuestionID string
	Version    string
}

func (e *SchemaDriftError) Error() string {
	return fmt.Sprintf("user %s: resume question %q not in flow of catalog %s", e.UserID, e.QuestionID, e.Version)
}
