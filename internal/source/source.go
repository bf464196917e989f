// Package source contributes the possible actions for a player and state.
// Each source is one closed variant (engine-derived, start-of-day, shoot);
// a Set aggregates them into one catalog.
package source

import (
	"context"

	"github.com/TankGameOrg/ui-sub000/internal/action"
	"github.com/TankGameOrg/ui-sub000/internal/dice"
	"github.com/TankGameOrg/ui-sub000/internal/engine"
	"github.com/TankGameOrg/ui-sub000/internal/logbook"
)

// Query is the shared context every source receives: the acting subject
// (empty for subjectless day actions), the state to evaluate against, and
// the engine connection for live questions.
type Query struct {
	PlayerName string
	State      engine.State
	Engine     engine.Engine
}

// ActionSource contributes zero or more possible actions for a query.
// Returning an empty slice means "nothing from this source", not an error.
type ActionSource interface {
	ActionsForPlayer(ctx context.Context, q Query) ([]action.PossibleAction, error)
}

// DiceContext carries what a dice factory may inspect. Entry is nil during
// catalog construction and set during validation of a concrete candidate.
type DiceContext struct {
	State engine.State
	Entry *logbook.Entry
}

// DiceFactory builds the dice pools for one field of one action type.
// Supplied by the game-version config.
type DiceFactory func(actionType, field string, dc DiceContext) []dice.Dice

// Set aggregates the actions of several independent sources.
//
// The set never deduplicates by action name: sources are configured with
// skip lists so exactly one source produces each name. Two sources emitting
// the same name is a configuration bug that shows up as a duplicate in the
// catalog, on purpose.
type Set struct {
	sources []ActionSource
}

// NewSet builds an aggregate over the given sources.
func NewSet(sources ...ActionSource) *Set {
	return &Set{sources: sources}
}

// ActionsForPlayer calls every source with the same query and concatenates
// their results in source order.
func (s *Set) ActionsForPlayer(ctx context.Context, q Query) ([]action.PossibleAction, error) {
	var out []action.PossibleAction
	for _, src := range s.sources {
		actions, err := src.ActionsForPlayer(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, a := range actions {
			if a != nil {
				out = append(out, a)
			}
		}
	}
	return out, nil
}
