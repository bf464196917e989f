package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TankGameOrg/ui-sub000/internal/engine"
	"github.com/TankGameOrg/ui-sub000/internal/logbook"
)

const createGamesTable = `
CREATE TABLE IF NOT EXISTS games (
	game_id       UUID PRIMARY KEY,
	initial_state JSONB NOT NULL,
	log_book      JSONB NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PGStore is the Postgres-backed Store.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects and ensures the games table exists.
func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, createGamesTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ensure schema: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

// SaveGame implements Store.
func (s *PGStore) SaveGame(ctx context.Context, gameID uuid.UUID, initial engine.State, book *logbook.Book) error {
	initialJSON, err := json.Marshal(initial)
	if err != nil {
		return fmt.Errorf("storage: encode initial state: %w", err)
	}
	bookJSON, err := json.Marshal(book.Entries())
	if err != nil {
		return fmt.Errorf("storage: encode log book: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO games (game_id, initial_state, log_book, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (game_id) DO UPDATE
		SET initial_state = EXCLUDED.initial_state,
		    log_book      = EXCLUDED.log_book,
		    updated_at    = now()`,
		gameID, initialJSON, bookJSON)
	if err != nil {
		return fmt.Errorf("storage: upsert game %s: %w", gameID, err)
	}
	return nil
}

// LoadGame reads one game's initial state and log book back out, rebuilding
// the book's day map in the process.
func (s *PGStore) LoadGame(ctx context.Context, gameID uuid.UUID) (engine.State, *logbook.Book, error) {
	var initialJSON, bookJSON []byte
	row := s.pool.QueryRow(ctx,
		`SELECT initial_state, log_book FROM games WHERE game_id = $1`, gameID)
	if err := row.Scan(&initialJSON, &bookJSON); err != nil {
		return nil, nil, fmt.Errorf("storage: load game %s: %w", gameID, err)
	}

	var initial engine.State
	if err := json.Unmarshal(initialJSON, &initial); err != nil {
		return nil, nil, fmt.Errorf("storage: decode initial state: %w", err)
	}
	var entries []*logbook.Entry
	if err := json.Unmarshal(bookJSON, &entries); err != nil {
		return nil, nil, fmt.Errorf("storage: decode log book: %w", err)
	}
	book, err := logbook.FromEntries(entries)
	if err != nil {
		return nil, nil, fmt.Errorf("storage: rebuild log book: %w", err)
	}
	return initial, book, nil
}

// Close releases the pool.
func (s *PGStore) Close() {
	s.pool.Close()
}
