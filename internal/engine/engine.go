// Package engine defines the contract with the external rules engine: a
// stateful process, one per game, reached over a line-oriented JSON
// protocol. The engine owns rule enforcement; this side owns the log and
// derived states.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/TankGameOrg/ui-sub000/internal/logbook"
	"github.com/TankGameOrg/ui-sub000/internal/position"
)

// ErrEngineUnavailable wraps transport-level failures talking to the engine
// process. It is propagated, never retried here; retry policy belongs to the
// caller.
var ErrEngineUnavailable = errors.New("engine: unavailable")

// RejectedActionError is the expected, recoverable failure: the engine
// examined an action and refused it. The caller may resubmit a corrected
// entry.
type RejectedActionError struct {
	Reason string
}

func (e *RejectedActionError) Error() string {
	return fmt.Sprintf("engine rejected action: %s", e.Reason)
}

// State is one derived board state as reported by the engine. It is treated
// as opaque JSON here; version-specific rendering interprets it elsewhere.
type State map[string]any

// Clone returns a shallow copy, enough to keep stored states independent of
// later top-level mutation.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// RuleField describes one input of an engine-native rule: its name, the
// engine-enumerated legal values, and a coarse type hint.
type RuleField struct {
	Name   string `json:"name"`
	Type   string `json:"type,omitempty"`
	Values []any  `json:"range,omitempty"`
}

// Rule is one legal (or explained-illegal) action the engine reports for a
// subject.
type Rule struct {
	Name   string      `json:"rule"`
	Fields []RuleField `json:"fields,omitempty"`
	Errors []string    `json:"errors,omitempty"`
}

// Engine is the capability surface of the external rules engine. All calls
// are I/O-bound suspension points with bounded timeouts enforced by the
// transport; transport failures surface as ErrEngineUnavailable.
//
// Callers must never run two calls concurrently for one connection; the
// interactor's worker loop guarantees that.
type Engine interface {
	// SetBoardState replaces the engine's working state. It must be called
	// before every ProcessAction.
	SetBoardState(ctx context.Context, state State) error

	// ProcessAction applies one entry to the working state. A rule
	// violation returns (nil, *RejectedActionError); the working state is
	// then unspecified and must be reset before the next ProcessAction.
	ProcessAction(ctx context.Context, entry *logbook.Entry) (State, error)

	// PossibleActions enumerates the subject's currently legal rules.
	PossibleActions(ctx context.Context, player string) ([]Rule, error)

	// LineOfSight lists the positions the subject can currently see.
	LineOfSight(ctx context.Context, player string) ([]position.Position, error)

	// Shutdown asks the engine process to exit, force-killing on failure.
	Shutdown(ctx context.Context) error
}
