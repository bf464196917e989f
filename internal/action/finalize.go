package action

import (
	"fmt"

	"github.com/TankGameOrg/ui-sub000/internal/dice"
	"github.com/TankGameOrg/ui-sub000/internal/logbook"
)

// FinalizeEntry resolves randomness for a candidate entry just before it is
// handed to the engine:
//
//  1. Every dice field holding an unresolved auto roll is rolled now —
//     exactly once, at submission time. Action catalogs built for display
//     and validation never touch the roller.
//  2. The action's finalizer, if any, derives implied fields from the
//     resolved rolls.
func FinalizeEntry(entry *logbook.Entry, act PossibleAction, roller dice.Roller) error {
	for _, s := range act.SpecsForEntry(entry) {
		ds, isDice := s.(*DiceFieldSpec)
		if !isDice {
			continue
		}
		v, ok := entry.Field(ds.Name)
		if !ok {
			continue
		}
		roll, isRoll := logbook.RollFromField(v)
		if !isRoll {
			return fmt.Errorf("action %q field %q does not hold a roll", act.ActionName(), ds.Name)
		}
		if roll.Manual || roll.Resolved() {
			continue
		}
		resolved := &logbook.Roll{Values: ds.Roll(roller)}
		entry.SetField(ds.Name, resolved)
	}

	if f := act.Finalizer(); f != nil {
		return f(entry)
	}
	return nil
}
