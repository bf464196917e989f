package logbook

import "encoding/json"

// Roll is the stored value of a dice field. An auto roll starts unresolved
// (no values) and is filled in exactly once at submission time; a manual
// roll carries player-supplied side values from the start.
type Roll struct {
	Manual bool
	Values []any
}

// MarshalJSON tags the roll with its wire type so RollFromField recognizes
// it again after a storage round trip.
func (r *Roll) MarshalJSON() ([]byte, error) {
	values := r.Values
	if values == nil {
		values = []any{}
	}
	return json.Marshal(map[string]any{
		"type":   "die-roll",
		"manual": r.Manual,
		"roll":   values,
	})
}

// Resolved reports whether side values have been recorded.
func (r *Roll) Resolved() bool { return len(r.Values) > 0 }

// NewAutoRoll returns an unresolved roll to be filled at finalization.
func NewAutoRoll() *Roll { return &Roll{} }

// NewManualRoll wraps player-entered side values.
func NewManualRoll(values []any) *Roll { return &Roll{Manual: true, Values: values} }

// RollFromField interprets a raw entry field as a roll. Decoded JSON hands
// us a map, in-process construction hands us *Roll; both are accepted.
func RollFromField(v any) (*Roll, bool) {
	switch r := v.(type) {
	case *Roll:
		return r, true
	case map[string]any:
		t, _ := r["type"].(string)
		if t != "die-roll" {
			return nil, false
		}
		manual, _ := r["manual"].(bool)
		values, _ := r["roll"].([]any)
		return &Roll{Manual: manual, Values: values}, true
	}
	return nil, false
}
