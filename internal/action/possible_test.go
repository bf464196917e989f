package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TankGameOrg/ui-sub000/internal/dice"
	"github.com/TankGameOrg/ui-sub000/internal/logbook"
)

// seqRoller returns scripted indices for deterministic rolls.
type seqRoller struct {
	seq []int
	i   int
}

func (r *seqRoller) Intn(n int) int {
	v := r.seq[r.i%len(r.seq)]
	r.i++
	return v % n
}

func entryWith(fields map[string]any) *logbook.Entry {
	return &logbook.Entry{ID: -1, Day: 0, Fields: fields}
}

func TestValidateEntry(t *testing.T) {
	target, err := NewFieldSpec("target", FieldSelect, []Option{
		{Display: "Corey", Value: "Corey"},
	})
	require.NoError(t, err)
	a := NewGenericAction("shoot", target)

	assert.NoError(t, a.ValidateEntry(entryWith(map[string]any{"action": "shoot", "target": "Corey"})))

	err = a.ValidateEntry(entryWith(map[string]any{"action": "shoot"}))
	assert.ErrorContains(t, err, "missing field")

	err = a.ValidateEntry(entryWith(map[string]any{"action": "shoot", "target": "Dave"}))
	assert.ErrorContains(t, err, "invalid value")
}

func TestUnavailableAction(t *testing.T) {
	a := NewUnavailableAction("shoot", ActionError{
		Category: "no-targets",
		Message:  "no targets in line of sight",
	})

	assert.False(t, a.Submittable())
	assert.Empty(t, a.FieldSpecs())
	require.Len(t, a.Errors(), 1)

	err := a.ValidateEntry(entryWith(map[string]any{"action": "shoot"}))
	assert.ErrorContains(t, err, "no targets in line of sight")
}

func TestNestedSpecsActivate(t *testing.T) {
	weapon, err := NewFieldSpec("weapon", FieldSelect, []Option{
		{Display: "cannon", Value: "cannon"},
		{Display: "ram", Value: "ram"},
	})
	require.NoError(t, err)
	cannonRoll := NewDiceFieldSpec("hit_roll", dice.NewDice(1, hitDie()))

	a := NewGenericAction("attack", weapon).
		WithNestedSpecs("weapon", "cannon", cannonRoll)

	// Ram chosen: only the weapon spec is active.
	ram := entryWith(map[string]any{"weapon": "ram"})
	assert.Len(t, a.SpecsForEntry(ram), 1)
	assert.NoError(t, a.ValidateEntry(ram))

	// Cannon chosen: the hit roll activates and is required.
	cannon := entryWith(map[string]any{"weapon": "cannon"})
	assert.Len(t, a.SpecsForEntry(cannon), 2)
	assert.ErrorContains(t, a.ValidateEntry(cannon), "missing field")

	cannonRolled := entryWith(map[string]any{
		"weapon":   "cannon",
		"hit_roll": logbook.NewAutoRoll(),
	})
	assert.NoError(t, a.ValidateEntry(cannonRolled))
}

func TestFinalizeRollsAutoDiceOnce(t *testing.T) {
	spec := NewDiceFieldSpec("hit_roll", dice.NewDice(3, hitDie()))
	a := NewGenericAction("shoot", spec)

	e := entryWith(map[string]any{"hit_roll": logbook.NewAutoRoll()})
	roller := &seqRoller{seq: []int{0, 1, 0}}
	require.NoError(t, FinalizeEntry(e, a, roller))

	v, _ := e.Field("hit_roll")
	roll, ok := logbook.RollFromField(v)
	require.True(t, ok)
	assert.Equal(t, []any{"hit", "miss", "hit"}, roll.Values)
	assert.Equal(t, 3, roller.i, "each die rolled exactly once")

	// Finalizing again must not reroll.
	require.NoError(t, FinalizeEntry(e, a, roller))
	assert.Equal(t, 3, roller.i)
}

func TestFinalizeLeavesManualRolls(t *testing.T) {
	spec := NewDiceFieldSpec("hit_roll", dice.NewDice(2, hitDie()))
	a := NewGenericAction("shoot", spec)

	e := entryWith(map[string]any{"hit_roll": logbook.NewManualRoll([]any{"hit", "miss"})})
	roller := &seqRoller{seq: []int{0}}
	require.NoError(t, FinalizeEntry(e, a, roller))

	assert.Equal(t, 0, roller.i, "manual rolls are never rerolled")
}

func TestShootActionFinalizesHitAndDamage(t *testing.T) {
	damageDie := dice.NewDie("damage die", "damage dice", []dice.Side{
		{Value: 1, Display: "1"},
		{Value: 2, Display: "2"},
		{Value: 3, Display: "3"},
	})
	shoot := NewShootAction("shoot",
		NewDiceFieldSpec(HitRollField, dice.NewDice(2, hitDie())),
		NewDiceFieldSpec(DamageRollField, dice.NewDice(2, damageDie)),
	)

	e := entryWith(map[string]any{
		HitRollField:    logbook.NewManualRoll([]any{"miss", "hit"}),
		DamageRollField: logbook.NewManualRoll([]any{2, 3}),
	})
	require.NoError(t, FinalizeEntry(e, shoot, &seqRoller{seq: []int{0}}))

	hit, _ := e.Field(HitField)
	assert.Equal(t, true, hit)
	damage, _ := e.Field(DamageField)
	assert.Equal(t, 5, damage)
}

func TestShootActionAllMisses(t *testing.T) {
	shoot := NewShootAction("shoot",
		NewDiceFieldSpec(HitRollField, dice.NewDice(2, hitDie())),
	)

	e := entryWith(map[string]any{
		HitRollField: logbook.NewManualRoll([]any{"miss", "miss"}),
	})
	require.NoError(t, FinalizeEntry(e, shoot, &seqRoller{seq: []int{0}}))

	hit, _ := e.Field(HitField)
	assert.Equal(t, false, hit)
}
