package action

import (
	"fmt"
	"time"

	"github.com/TankGameOrg/ui-sub000/internal/logbook"
)

// ActionError explains why an action is currently unavailable. It is purely
// descriptive and is never raised as a control-flow error; actions carrying
// errors stay visible so the UI can say why they cannot be taken.
type ActionError struct {
	Category string
	Message  string
	// Expires is when the error stops applying (e.g. a cooldown), zero if
	// it has no natural expiry.
	Expires time.Time
}

// nestedKey identifies a branch of field specs activated once a prior field
// holds a particular value. The value half is the canonical stored value,
// never a display string.
type nestedKey struct {
	Field string
	Value string
}

// Finalizer derives implied fields from a resolved entry, e.g. hit from a
// hit roll. Applied after auto dice are rolled.
type Finalizer func(entry *logbook.Entry) error

// PossibleAction is one action a subject may currently take.
type PossibleAction interface {
	ActionName() string
	// FieldSpecs returns the base (unconditionally active) specs.
	FieldSpecs() []Spec
	// SpecsForEntry returns base specs plus any nested specs activated by
	// values already present on the candidate entry.
	SpecsForEntry(entry *logbook.Entry) []Spec
	Errors() []ActionError
	// Submittable reports whether the action may be taken at all.
	Submittable() bool
	// ValidateEntry checks a full candidate entry against every active
	// spec.
	ValidateEntry(entry *logbook.Entry) error
	// Finalizer returns the action's post-roll derivation step, or nil.
	Finalizer() Finalizer
}

// GenericAction is the standard PossibleAction implementation. It is built
// once per turn and never mutated afterwards.
type GenericAction struct {
	name      string
	specs     []Spec
	nested    map[nestedKey][]Spec
	errors    []ActionError
	finalizer Finalizer
}

// NewGenericAction builds an action with ordered field specs.
func NewGenericAction(name string, specs ...Spec) *GenericAction {
	return &GenericAction{
		name:   name,
		specs:  specs,
		nested: make(map[nestedKey][]Spec),
	}
}

// NewUnavailableAction builds a visible-but-unselectable action: populated
// errors, no field specs.
func NewUnavailableAction(name string, errs ...ActionError) *GenericAction {
	a := NewGenericAction(name)
	a.errors = errs
	return a
}

// WithNestedSpecs registers specs that activate once field holds value. The
// lookup key uses the canonical stored value.
func (a *GenericAction) WithNestedSpecs(field string, value any, specs ...Spec) *GenericAction {
	key := nestedKey{Field: field, Value: canonicalValue(value)}
	a.nested[key] = append(a.nested[key], specs...)
	return a
}

// WithFinalizer configures the post-roll derivation step.
func (a *GenericAction) WithFinalizer(f Finalizer) *GenericAction {
	a.finalizer = f
	return a
}

// ActionName implements PossibleAction.
func (a *GenericAction) ActionName() string { return a.name }

// FieldSpecs implements PossibleAction.
func (a *GenericAction) FieldSpecs() []Spec { return a.specs }

// Errors implements PossibleAction.
func (a *GenericAction) Errors() []ActionError { return a.errors }

// Submittable implements PossibleAction.
func (a *GenericAction) Submittable() bool { return len(a.errors) == 0 }

// Finalizer implements PossibleAction.
func (a *GenericAction) Finalizer() Finalizer { return a.finalizer }

// SpecsForEntry implements PossibleAction.
func (a *GenericAction) SpecsForEntry(entry *logbook.Entry) []Spec {
	active := a.specs
	if len(a.nested) == 0 || entry == nil {
		return active
	}
	out := make([]Spec, len(active), len(active)+2)
	copy(out, active)
	for _, s := range a.specs {
		v, ok := entry.Field(s.FieldName())
		if !ok {
			continue
		}
		key := nestedKey{Field: s.FieldName(), Value: canonicalValue(v)}
		out = append(out, a.nested[key]...)
	}
	return out
}

// ValidateEntry implements PossibleAction.
func (a *GenericAction) ValidateEntry(entry *logbook.Entry) error {
	if !a.Submittable() {
		return fmt.Errorf("action %q is not available: %s", a.name, a.errors[0].Message)
	}
	for _, s := range a.SpecsForEntry(entry) {
		v, ok := entry.Field(s.FieldName())
		if !ok {
			return fmt.Errorf("action %q is missing field %q", a.name, s.FieldName())
		}
		if !s.IsValid(v) {
			return fmt.Errorf("action %q field %q has invalid value %v", a.name, s.FieldName(), v)
		}
	}
	return nil
}
