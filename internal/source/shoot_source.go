package source

import (
	"context"

	"github.com/TankGameOrg/ui-sub000/internal/action"
)

// ShootSource specializes the shoot action: targets come from the engine's
// line-of-sight report and dice pools from the ruleset's factory, instead of
// the engine's generic rule description.
type ShootSource struct {
	actionName string
	diceFor    DiceFactory
}

// NewShootSource builds the source. diceFor supplies the hit and damage
// pools for the ruleset in play.
func NewShootSource(actionName string, diceFor DiceFactory) *ShootSource {
	return &ShootSource{actionName: actionName, diceFor: diceFor}
}

// ActionsForPlayer implements ActionSource.
func (s *ShootSource) ActionsForPlayer(ctx context.Context, q Query) ([]action.PossibleAction, error) {
	if q.PlayerName == "" {
		return nil, nil
	}

	sights, err := q.Engine.LineOfSight(ctx, q.PlayerName)
	if err != nil {
		return nil, err
	}
	if len(sights) == 0 {
		unavailable := action.NewUnavailableAction(s.actionName, action.ActionError{
			Category: "no-targets",
			Message:  "no targets in line of sight",
		})
		return []action.PossibleAction{unavailable}, nil
	}

	targetSpec, err := action.NewPositionSpec("target", sights)
	if err != nil {
		return nil, err
	}

	specs := []action.Spec{targetSpec}
	dc := DiceContext{State: q.State}
	if pools := s.diceFor(s.actionName, action.HitRollField, dc); len(pools) > 0 {
		specs = append(specs, action.NewDiceFieldSpec(action.HitRollField, pools...))
	}
	if pools := s.diceFor(s.actionName, action.DamageRollField, dc); len(pools) > 0 {
		specs = append(specs, action.NewDiceFieldSpec(action.DamageRollField, pools...))
	}

	return []action.PossibleAction{action.NewShootAction(s.actionName, specs...)}, nil
}
