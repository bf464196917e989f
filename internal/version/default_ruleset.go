package version

import (
	"fmt"
	"strings"

	"github.com/TankGameOrg/ui-sub000/internal/action"
	"github.com/TankGameOrg/ui-sub000/internal/dice"
	"github.com/TankGameOrg/ui-sub000/internal/engine"
	"github.com/TankGameOrg/ui-sub000/internal/logbook"
	"github.com/TankGameOrg/ui-sub000/internal/source"
)

// DefaultRulesetName is the ruleset installed at init and used when no
// version is named.
const DefaultRulesetName = "default-v3"

// HitDie is the standard to-hit die: two hit faces in six.
func HitDie() *dice.Die {
	return dice.NewDie("hit die", "hit dice", []dice.Side{
		{Value: "hit", Display: "hit"},
		{Value: "hit", Display: "hit"},
		{Value: "miss", Display: "miss"},
		{Value: "miss", Display: "miss"},
		{Value: "miss", Display: "miss"},
		{Value: "miss", Display: "miss"},
	})
}

// DamageDie is the standard d6 damage die.
func DamageDie() *dice.Die {
	sides := make([]dice.Side, 6)
	for i := range sides {
		sides[i] = dice.Side{Value: i + 1, Display: fmt.Sprintf("%d", i+1)}
	}
	return dice.NewDie("damage die", "damage dice", sides)
}

func init() {
	Register(NewDefaultRuleset())
}

// NewDefaultRuleset wires the standard source set: engine rules with shoot
// suppressed, the day-boundary source, and the specialized shoot source.
func NewDefaultRuleset() *Ruleset {
	diceFor := defaultDiceFor
	return &Ruleset{
		Name: DefaultRulesetName,
		Sources: source.NewSet(
			source.NewEngineSource("shoot"),
			source.NewStartOfDaySource(),
			source.NewShootSource("shoot", diceFor),
		),
		Format:  defaultFormat,
		DiceFor: diceFor,
	}
}

// defaultDiceFor assigns three hit dice and two damage dice to shoot rolls.
func defaultDiceFor(actionType, field string, dc source.DiceContext) []dice.Dice {
	if actionType != "shoot" {
		return nil
	}
	switch field {
	case action.HitRollField:
		return []dice.Dice{dice.NewDice(3, HitDie())}
	case action.DamageRollField:
		return []dice.Dice{dice.NewDice(2, DamageDie())}
	}
	return nil
}

// defaultFormat renders an entry as a short past-tense sentence.
func defaultFormat(e *logbook.Entry, previous engine.State) string {
	switch e.Action() {
	case logbook.StartOfDayAction:
		return fmt.Sprintf("Start of day %d", e.Day)

	case "shoot":
		subject, _ := e.Field("subject")
		target, _ := e.Field("target")
		outcome := "missed"
		if hit, ok := e.Field(action.HitField); ok && hit == true {
			outcome = "hit"
			if damage, ok := e.Field(action.DamageField); ok {
				outcome = fmt.Sprintf("hit for %v damage", damage)
			}
		}
		return fmt.Sprintf("%v shot at %v and %s", subject, formatValue(target), outcome)

	default:
		subject, _ := e.Field("subject")
		parts := []string{fmt.Sprintf("%v used %s", subject, e.Action())}
		if target, ok := e.Field("target"); ok {
			parts = append(parts, fmt.Sprintf("on %v", formatValue(target)))
		}
		return strings.Join(parts, " ")
	}
}

func formatValue(v any) string {
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", v)
}
