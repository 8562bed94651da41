// Package postgres keeps the whole dispatch document as a single JSONB row
// per venue. Writes take a transaction-scoped advisory lock so concurrent
// saves serialize instead of tearing the document; the last writer wins.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MChihaya/smashBrosCallingSystem/internal/models"
	"github.com/MChihaya/smashBrosCallingSystem/internal/store"
)

type Store struct {
	pool    *pgxpool.Pool
	venueID string
}

func NewStore(pool *pgxpool.Pool, venueID string) *Store {
	if venueID == "" {
		venueID = "default"
	}
	return &Store{pool: pool, venueID: venueID}
}

// EnsureSchema creates the state table if it is missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS dispatch_state (
			venue_id   TEXT PRIMARY KEY,
			doc        JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`)
	return err
}

// Load returns the stored document, or the default empty state when no row
// exists yet. Absence is a valid result, never an error.
func (s *Store) Load(ctx context.Context) (models.State, error) {
	var raw []byte
	row := s.pool.QueryRow(ctx, `
		SELECT doc FROM dispatch_state WHERE venue_id = $1
	`, s.venueID)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.DefaultState(), nil
		}
		return models.State{}, err
	}

	var state models.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return models.State{}, err
	}
	if len(state.Tables) == 0 {
		state.Tables = store.DefaultTables()
	}
	return state, nil
}

// Save overwrites the venue's document wholesale.
func (s *Store) Save(ctx context.Context, state models.State) error {
	doc, err := json.Marshal(state)
	if err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, s.venueID); err != nil {
		return err
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO dispatch_state (venue_id, doc, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (venue_id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at
	`, s.venueID, doc, time.Now().UTC()); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
