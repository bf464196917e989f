// Package storage persists the (initial state, log book) pair after every
// accepted submission. Persistence is best-effort: the in-memory model is
// the source of truth and a failed save is surfaced, not rolled back.
package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/TankGameOrg/ui-sub000/internal/engine"
	"github.com/TankGameOrg/ui-sub000/internal/logbook"
)

// Store is the persistence collaborator consumed by the interactor.
type Store interface {
	// SaveGame upserts the full replayable record of one game.
	SaveGame(ctx context.Context, gameID uuid.UUID, initial engine.State, book *logbook.Book) error
}
