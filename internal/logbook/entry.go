// Package logbook holds the authoritative, append-only history of game
// actions and the day-boundary index used to navigate it.
package logbook

import (
	"encoding/json"
	"time"
)

// StartOfDayAction is the sentinel action type for entries that mark a day
// boundary rather than a player action.
const StartOfDayAction = "start_of_day"

// Entry is one recorded game action or day-boundary marker.
//
// Entries are created two ways: as candidates from raw user input (no
// timestamp yet) or deserialized from storage (timestamp present). The
// cached rendering (Message, DieRolls) is recomputed by the formatter and is
// never persisted as authoritative.
type Entry struct {
	// ID is the entry's position in its book, assigned on append. -1 for
	// candidates not yet added.
	ID int

	// Day the action happened on. Non-decreasing across a book.
	Day int

	// Timestamp is server-assigned at acceptance time. Zero for candidates.
	Timestamp time.Time

	// Fields holds the action name and its typed inputs: subject, target,
	// numeric amounts, dice rolls. Day and timestamp live in the struct,
	// not here.
	Fields map[string]any

	// Message is the cached human rendering. Recomputed, never persisted.
	Message string

	// DieRolls maps dice field names to expanded display labels. Recomputed,
	// never persisted.
	DieRolls map[string][]string
}

// Action returns the entry's action type. Entries without an action field
// are day-boundary markers.
func (e *Entry) Action() string {
	if a, ok := e.Fields["action"].(string); ok && a != "" {
		return a
	}
	return StartOfDayAction
}

// Field returns a raw field value. The day lives in the struct but stays
// addressable as a field, matching its place in the wire form.
func (e *Entry) Field(name string) (any, bool) {
	if name == "day" {
		return e.Day, true
	}
	v, ok := e.Fields[name]
	return v, ok
}

// SetField records a field value, e.g. a finalized roll result.
func (e *Entry) SetField(name string, value any) {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[name] = value
}

// wireEntry is the persisted form: the field bag flattened together with day
// and timestamp, matching the engine's raw-entry framing.
type wireEntry map[string]any

// MarshalJSON flattens the entry into a single JSON object.
func (e *Entry) MarshalJSON() ([]byte, error) {
	w := make(wireEntry, len(e.Fields)+2)
	for k, v := range e.Fields {
		w[k] = v
	}
	w["day"] = e.Day
	if !e.Timestamp.IsZero() {
		w["timestamp"] = e.Timestamp.Unix()
	}
	return json.Marshal(w)
}

// UnmarshalJSON splits day and timestamp back out of the flat object.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var w wireEntry
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = *entryFromRaw(w)
	return nil
}

// entryFromRaw builds an entry from a flat field map, pulling day and
// timestamp out of the bag. Missing day yields -1 so callers can apply their
// own default.
func entryFromRaw(raw map[string]any) *Entry {
	e := &Entry{ID: -1, Day: -1, Fields: make(map[string]any, len(raw))}
	for k, v := range raw {
		switch k {
		case "day":
			if d, ok := asInt(v); ok {
				e.Day = d
			}
		case "timestamp":
			if ts, ok := asInt64(v); ok {
				e.Timestamp = time.Unix(ts, 0).UTC()
			}
		default:
			e.Fields[k] = v
		}
	}
	return e
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}
