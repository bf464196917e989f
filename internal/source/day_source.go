package source

import (
	"context"

	"github.com/TankGameOrg/ui-sub000/internal/action"
	"github.com/TankGameOrg/ui-sub000/internal/logbook"
)

// StartOfDaySource synthesizes the day-boundary action. It is the one
// subjectless action: it only appears when no player is named in the query.
type StartOfDaySource struct{}

// NewStartOfDaySource builds the source.
func NewStartOfDaySource() *StartOfDaySource {
	return &StartOfDaySource{}
}

// ActionsForPlayer implements ActionSource.
func (s *StartOfDaySource) ActionsForPlayer(ctx context.Context, q Query) ([]action.PossibleAction, error) {
	if q.PlayerName != "" {
		return nil, nil
	}

	// The new day is implied by the current state, not chosen by the user.
	day := 0
	if v, ok := q.State["day"]; ok {
		switch n := v.(type) {
		case int:
			day = n
		case float64:
			day = int(n)
		}
	}

	a := action.NewGenericAction(logbook.StartOfDayAction,
		action.NewSetValueSpec("day", day+1),
	)
	return []action.PossibleAction{a}, nil
}
