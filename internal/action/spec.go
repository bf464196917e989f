// Package action describes the actions a subject may currently take: their
// input fields, legal values, validation, and finalization of randomized
// outcomes.
package action

import (
	"errors"
	"fmt"

	"github.com/TankGameOrg/ui-sub000/internal/dice"
	"github.com/TankGameOrg/ui-sub000/internal/logbook"
	"github.com/TankGameOrg/ui-sub000/internal/position"
)

// FieldType is the UI shape of one entry field.
type FieldType string

const (
	FieldSelect         FieldType = "select"
	FieldSelectPosition FieldType = "select-position"
	FieldInput          FieldType = "input"
	FieldInputNumber    FieldType = "input-number"
	// FieldSetValue is a fixed, hidden, single-valued field used to record
	// implied facts (e.g. "hit: true" on a melee that rolls nothing).
	FieldSetValue FieldType = "set-value"
)

// ErrNoOptions is returned when a select-typed spec is built without any
// legal values. Sources are expected to catch that case earlier and emit an
// action-level error instead.
var ErrNoOptions = errors.New("action: select field requires at least one option")

// Option is one legal value of an enumerated field: the UI-facing display
// string and the value actually stored in the log entry.
type Option struct {
	Display string
	Value   any
}

// Spec describes one input field of a possible action and validates or
// translates submitted values against that description.
type Spec interface {
	FieldName() string
	// IsValid reports whether a stored value satisfies this field. nil is
	// never valid.
	IsValid(value any) bool
	// TranslateValue maps a UI-facing display value to the stored value.
	TranslateValue(display any) (any, error)
}

// FieldSpec is the plain (non-dice) Spec implementation.
type FieldSpec struct {
	Name    string
	Type    FieldType
	Options []Option

	byDisplay map[string]any
	valid     map[string]bool
}

// NewFieldSpec builds a spec, precomputing the valid-value set. Every
// select-typed spec must carry a non-empty option list.
func NewFieldSpec(name string, fieldType FieldType, options []Option) (*FieldSpec, error) {
	enumerated := fieldType == FieldSelect || fieldType == FieldSelectPosition || fieldType == FieldSetValue
	if enumerated && len(options) == 0 {
		return nil, fmt.Errorf("%w: field %q", ErrNoOptions, name)
	}

	s := &FieldSpec{
		Name:      name,
		Type:      fieldType,
		Options:   options,
		byDisplay: make(map[string]any, len(options)),
		valid:     make(map[string]bool, len(options)),
	}
	for _, o := range options {
		s.byDisplay[o.Display] = o.Value
		s.valid[canonicalValue(o.Value)] = true
	}
	return s, nil
}

// NewSetValueSpec builds the one-value hidden field form.
func NewSetValueSpec(name string, value any) *FieldSpec {
	s, _ := NewFieldSpec(name, FieldSetValue, []Option{{Display: fmt.Sprintf("%v", value), Value: value}})
	return s
}

// NewPositionSpec builds a select-position spec from concrete positions.
func NewPositionSpec(name string, positions []position.Position) (*FieldSpec, error) {
	options := make([]Option, len(positions))
	for i, p := range positions {
		options[i] = Option{Display: p.HumanReadable(), Value: p}
	}
	return NewFieldSpec(name, FieldSelectPosition, options)
}

// FieldName implements Spec.
func (s *FieldSpec) FieldName() string { return s.Name }

// IsValid implements Spec.
func (s *FieldSpec) IsValid(value any) bool {
	if value == nil {
		return false
	}
	switch s.Type {
	case FieldSelect, FieldSelectPosition, FieldSetValue:
		return s.valid[canonicalValue(value)]
	case FieldInputNumber:
		_, ok := asNumber(value)
		return ok
	default: // FieldInput
		return true
	}
}

// TranslateValue implements Spec. Position fields parse the display label
// into a concrete position; enumerated fields map display to stored value;
// free inputs pass through.
func (s *FieldSpec) TranslateValue(display any) (any, error) {
	label, isString := display.(string)

	if s.Type == FieldSelectPosition {
		if p, ok := display.(position.Position); ok {
			return p, nil
		}
		if !isString {
			return nil, fmt.Errorf("%w: field %q got %T", position.ErrInvalidPosition, s.Name, display)
		}
		return position.ParseHumanReadable(label)
	}

	if isString {
		if stored, ok := s.byDisplay[label]; ok {
			return stored, nil
		}
	}
	return display, nil
}

// canonicalValue normalizes a stored value for set membership: positions by
// label, numbers with int/float64 collapsed (JSON decodes numbers as
// float64).
func canonicalValue(v any) string {
	switch n := v.(type) {
	case position.Position:
		return "pos:" + n.HumanReadable()
	case string:
		// A position label and its parsed form must compare equal.
		if p, err := position.ParseHumanReadable(n); err == nil {
			return "pos:" + p.HumanReadable()
		}
		return "s:" + n
	case int:
		return fmt.Sprintf("n:%d", n)
	case int64:
		return fmt.Sprintf("n:%d", n)
	case float64:
		if n == float64(int64(n)) {
			return fmt.Sprintf("n:%d", int64(n))
		}
		return fmt.Sprintf("n:%g", n)
	case bool:
		return fmt.Sprintf("b:%t", n)
	default:
		return fmt.Sprintf("v:%v", n)
	}
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// DiceFieldSpec describes a field whose value is a dice roll against a pool.
type DiceFieldSpec struct {
	Name  string
	Pools []dice.Dice
}

// NewDiceFieldSpec builds a dice spec over one or more pools.
func NewDiceFieldSpec(name string, pools ...dice.Dice) *DiceFieldSpec {
	return &DiceFieldSpec{Name: name, Pools: pools}
}

// FieldName implements Spec.
func (s *DiceFieldSpec) FieldName() string { return s.Name }

// expandedCount is the number of individual die values a full roll carries.
func (s *DiceFieldSpec) expandedCount() int {
	n := 0
	for _, p := range s.Pools {
		n += p.Count
	}
	return n
}

// IsValid implements Spec. An auto roll is always valid once dice are
// assigned; a manual roll must carry exactly one defined side per expanded
// die.
func (s *DiceFieldSpec) IsValid(value any) bool {
	roll, ok := logbook.RollFromField(value)
	if !ok {
		return false
	}
	if !roll.Manual {
		return s.expandedCount() > 0
	}

	expanded := dice.ExpandPools(s.Pools)
	if len(roll.Values) != len(expanded) {
		return false
	}
	for i, v := range roll.Values {
		if v == nil {
			return false
		}
		if _, defined := expanded[i].SideByValue(v); !defined {
			return false
		}
	}
	return true
}

// TranslateValue implements Spec. Manual roll values arrive as display
// labels and are mapped to raw side values; anything else passes through.
func (s *DiceFieldSpec) TranslateValue(display any) (any, error) {
	roll, ok := logbook.RollFromField(display)
	if !ok || !roll.Manual {
		return display, nil
	}

	expanded := dice.ExpandPools(s.Pools)
	if len(roll.Values) != len(expanded) {
		return nil, fmt.Errorf("action: field %q expects %d die values, got %d",
			s.Name, len(expanded), len(roll.Values))
	}
	translated := make([]any, len(roll.Values))
	for i, v := range roll.Values {
		label, isString := v.(string)
		if !isString {
			translated[i] = v
			continue
		}
		side, defined := expanded[i].SideByDisplay(label)
		if !defined {
			return nil, fmt.Errorf("action: field %q die %d has no side %q", s.Name, i, label)
		}
		translated[i] = side.Value
	}
	return logbook.NewManualRoll(translated), nil
}

// Roll resolves an auto roll: one rolled side value per expanded die.
func (s *DiceFieldSpec) Roll(r dice.Roller) []any {
	expanded := dice.ExpandPools(s.Pools)
	values := make([]any, len(expanded))
	for i, d := range expanded {
		values[i] = d.Roll(r).Value
	}
	return values
}
