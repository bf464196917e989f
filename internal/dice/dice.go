// Package dice models named dice with labeled sides and pools of dice used
// for randomized action outcomes.
package dice

import (
	"fmt"
	"math/rand"
	"time"
)

// Side is one face of a die: the raw value recorded in log entries and the
// label shown to players. For numeric dice the two are usually identical.
type Side struct {
	Value   any
	Display string
}

// Die is an immutable catalog entry describing one kind of die.
type Die struct {
	Name       string
	PluralName string
	Sides      []Side

	byValue   map[string]int
	byDisplay map[string]int
}

// NewDie builds a Die and precomputes side lookup tables.
func NewDie(name, pluralName string, sides []Side) *Die {
	d := &Die{
		Name:       name,
		PluralName: pluralName,
		Sides:      sides,
		byValue:    make(map[string]int, len(sides)),
		byDisplay:  make(map[string]int, len(sides)),
	}
	for i, s := range sides {
		d.byValue[sideKey(s.Value)] = i
		d.byDisplay[s.Display] = i
	}
	return d
}

// sideKey normalizes a raw side value for map lookup. JSON decoding hands us
// float64 for numbers, so integers and floats must collide.
func sideKey(v any) string {
	switch n := v.(type) {
	case int:
		return fmt.Sprintf("%d", n)
	case float64:
		if n == float64(int64(n)) {
			return fmt.Sprintf("%d", int64(n))
		}
		return fmt.Sprintf("%g", n)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// SideByValue returns the side whose raw value matches v.
func (d *Die) SideByValue(v any) (Side, bool) {
	i, ok := d.byValue[sideKey(v)]
	if !ok {
		return Side{}, false
	}
	return d.Sides[i], true
}

// SideByDisplay returns the side whose display label matches label.
func (d *Die) SideByDisplay(label string) (Side, bool) {
	i, ok := d.byDisplay[label]
	if !ok {
		return Side{}, false
	}
	return d.Sides[i], true
}

// Roll picks one side using the supplied roller.
func (d *Die) Roll(r Roller) Side {
	return d.Sides[r.Intn(len(d.Sides))]
}

// Dice pairs a Die with a count, e.g. "3 hit dice".
type Dice struct {
	Die   *Die
	Count int
}

// NewDice constructs a dice pool.
func NewDice(count int, die *Die) Dice {
	return Dice{Die: die, Count: count}
}

// Expand produces Count independent die handles, one per value to roll or
// validate.
func (d Dice) Expand() []*Die {
	out := make([]*Die, d.Count)
	for i := range out {
		out[i] = d.Die
	}
	return out
}

// Describe renders the pool for humans, e.g. "3 hit dice" or "1 die".
func (d Dice) Describe() string {
	if d.Count == 1 {
		return fmt.Sprintf("1 %s", d.Die.Name)
	}
	return fmt.Sprintf("%d %s", d.Count, d.Die.PluralName)
}

// ExpandPools flattens several pools into one ordered die list.
func ExpandPools(pools []Dice) []*Die {
	var out []*Die
	for _, p := range pools {
		out = append(out, p.Expand()...)
	}
	return out
}

// Roller is the injectable randomness source used for all die rolls. Tests
// supply deterministic sequences; production uses a seeded math/rand.
type Roller interface {
	// Intn returns a uniform value in [0, n).
	Intn(n int) int
}

// NewRoller returns the default time-seeded roller.
func NewRoller() Roller {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}
