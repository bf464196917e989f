package action

import (
	"fmt"

	"github.com/TankGameOrg/ui-sub000/internal/logbook"
)

// Field names the shoot finalizer reads and writes.
const (
	HitRollField    = "hit_roll"
	DamageRollField = "damage_roll"
	HitField        = "hit"
	DamageField     = "damage"
)

// HitSide is the raw side value counted as a hit on a hit die.
const HitSide = "hit"

// ShootAction is the shoot specialization: a generic action whose finalizer
// converts resolved dice rolls into derived hit and damage fields.
type ShootAction struct {
	*GenericAction
}

// NewShootAction wraps the configured specs with the hit/damage finalizer.
func NewShootAction(name string, specs ...Spec) *ShootAction {
	s := &ShootAction{GenericAction: NewGenericAction(name, specs...)}
	s.WithFinalizer(s.finalize)
	return s
}

// finalize derives hit from the hit roll (any hit side counts) and sums a
// damage roll into a scalar damage, when those fields are present.
func (s *ShootAction) finalize(entry *logbook.Entry) error {
	if v, ok := entry.Field(HitRollField); ok {
		roll, isRoll := logbook.RollFromField(v)
		if !isRoll || !roll.Resolved() {
			return fmt.Errorf("action %q: %s is not a resolved roll", s.ActionName(), HitRollField)
		}
		hit := false
		for _, side := range roll.Values {
			if side == HitSide {
				hit = true
				break
			}
		}
		entry.SetField(HitField, hit)
	}

	if v, ok := entry.Field(DamageRollField); ok {
		roll, isRoll := logbook.RollFromField(v)
		if !isRoll || !roll.Resolved() {
			return fmt.Errorf("action %q: %s is not a resolved roll", s.ActionName(), DamageRollField)
		}
		total := 0.0
		for _, side := range roll.Values {
			n, ok := asNumber(side)
			if !ok {
				return fmt.Errorf("action %q: %s contains non-numeric side %v", s.ActionName(), DamageRollField, side)
			}
			total += n
		}
		entry.SetField(DamageField, int(total))
	}

	return nil
}
