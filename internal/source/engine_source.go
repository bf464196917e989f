package source

import (
	"context"
	"fmt"

	"github.com/TankGameOrg/ui-sub000/internal/action"
	"github.com/TankGameOrg/ui-sub000/internal/engine"
	"github.com/TankGameOrg/ui-sub000/internal/position"
)

// EngineSource turns the engine's own legal-rule report into possible
// actions. Names on the skip list are suppressed so a specialized source can
// own them instead.
type EngineSource struct {
	skip map[string]bool
}

// NewEngineSource builds the source; skipNames suppresses engine rules that
// another source produces (e.g. "shoot").
func NewEngineSource(skipNames ...string) *EngineSource {
	skip := make(map[string]bool, len(skipNames))
	for _, n := range skipNames {
		skip[n] = true
	}
	return &EngineSource{skip: skip}
}

// ActionsForPlayer implements ActionSource. Subjectless queries produce
// nothing; the engine only answers for named subjects.
func (s *EngineSource) ActionsForPlayer(ctx context.Context, q Query) ([]action.PossibleAction, error) {
	if q.PlayerName == "" {
		return nil, nil
	}

	rules, err := q.Engine.PossibleActions(ctx, q.PlayerName)
	if err != nil {
		return nil, err
	}

	var out []action.PossibleAction
	for _, rule := range rules {
		if s.skip[rule.Name] {
			continue
		}
		out = append(out, actionFromRule(rule))
	}
	return out, nil
}

// actionFromRule converts one engine rule into a possible action. Rules the
// engine flags with errors, and rules with an enumerated field that has no
// legal values, become visible-but-unselectable actions so the UI can
// explain why.
func actionFromRule(rule engine.Rule) action.PossibleAction {
	if len(rule.Errors) > 0 {
		errs := make([]action.ActionError, len(rule.Errors))
		for i, msg := range rule.Errors {
			errs[i] = action.ActionError{Category: "engine", Message: msg}
		}
		return action.NewUnavailableAction(rule.Name, errs...)
	}

	specs := make([]action.Spec, 0, len(rule.Fields))
	for _, f := range rule.Fields {
		spec, err := specFromRuleField(rule.Name, f)
		if err != nil {
			return action.NewUnavailableAction(rule.Name, action.ActionError{
				Category: "no-legal-values",
				Message:  err.Error(),
			})
		}
		specs = append(specs, spec)
	}
	return action.NewGenericAction(rule.Name, specs...)
}

// specFromRuleField maps one engine field description to a field spec.
func specFromRuleField(ruleName string, f engine.RuleField) (action.Spec, error) {
	switch f.Type {
	case "position":
		positions := make([]position.Position, 0, len(f.Values))
		for _, v := range f.Values {
			label, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("rule %q field %q has non-string position %v", ruleName, f.Name, v)
			}
			p, err := position.ParseHumanReadable(label)
			if err != nil {
				return nil, fmt.Errorf("rule %q field %q: %v", ruleName, f.Name, err)
			}
			positions = append(positions, p)
		}
		if len(positions) == 0 {
			return nil, fmt.Errorf("rule %q has no legal values for %q", ruleName, f.Name)
		}
		return action.NewPositionSpec(f.Name, positions)

	case "integer":
		if len(f.Values) == 0 {
			return action.NewFieldSpec(f.Name, action.FieldInputNumber, nil)
		}
		return action.NewFieldSpec(f.Name, action.FieldSelect, optionsFromValues(f.Values))

	case "input":
		return action.NewFieldSpec(f.Name, action.FieldInput, nil)

	default:
		if len(f.Values) == 0 {
			return nil, fmt.Errorf("rule %q has no legal values for %q", ruleName, f.Name)
		}
		return action.NewFieldSpec(f.Name, action.FieldSelect, optionsFromValues(f.Values))
	}
}

func optionsFromValues(values []any) []action.Option {
	options := make([]action.Option, len(values))
	for i, v := range values {
		options[i] = action.Option{Display: fmt.Sprintf("%v", v), Value: v}
	}
	return options
}
