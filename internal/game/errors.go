package game

import (
	"errors"
	"fmt"
)

// Sentinel failure values. Every interpreter/processor call returns either a
// success result or one of these wrapped with context; callers branch with
// errors.Is.
var (
	ErrInvalidTarget        = errors.New("invalid target")
	ErrZoneFull             = errors.New("zone full")
	ErrInsufficientResource = errors.New("insufficient resource")
	ErrUnknownActionKind    = errors.New("unknown action kind")
	ErrReplacementExhausted = errors.New("replacement effect exhausted")
	ErrNotImplemented       = errors.New("not implemented")
	ErrNotFound             = errors.New("instance not found")
	ErrNotAuthoritative     = errors.New("not authoritative for autonomous transitions")
	ErrBattleLocked         = errors.New("attack declaration locked")
	ErrBadStep              = errors.New("wrong battle step")
	ErrGameOver             = errors.New("game is over")
)

// DecisionKind names the kind of player input a pending decision requires.
type DecisionKind string

const (
	DecisionAccept      DecisionKind = "ACCEPT"       // optional (may) action: accept or decline
	DecisionMode        DecisionKind = "MODE"         // choose-mode branch index
	DecisionReplacement DecisionKind = "REPLACEMENT"  // choose among applicable replacement effects
)

// DecisionRequest describes a decision the engine needs before resolution can
// proceed. The engine blocks structurally: no further mutation happens until
// a matching Decision is supplied.
type DecisionRequest struct {
	Kind    DecisionKind
	Player  string   // player who must decide
	Prompt  string   // human-readable description
	Options []string // legal options (mode labels or replacement effect ids)
}

// PendingDecisionError signals that execution stopped at a decision point.
// It carries the typed request; the state that was passed in is unchanged.
type PendingDecisionError struct {
	Request DecisionRequest
}

func (e *PendingDecisionError) Error() string {
	return fmt.Sprintf("pending %s decision for %s", e.Request.Kind, e.Request.Player)
}

// AsPendingDecision unwraps a PendingDecisionError if err contains one.
func AsPendingDecision(err error) (*PendingDecisionError, bool) {
	var pd *PendingDecisionError
	if errors.As(err, &pd) {
		return pd, true
	}
	return nil, false
}

// ReplayError is fatal to a replay operation: it pins the failure to an index
// in the action log so divergence is diagnosable rather than silently skipped.
type ReplayError struct {
	Index int
	Err   error
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("replay failed at log index %d: %v", e.Index, e.Err)
}

func (e *ReplayError) Unwrap() error { return e.Err }
