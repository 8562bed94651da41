package store

import (
	"context"

	"github.com/MChihaya/smashBrosCallingSystem/internal/models"
)

// StateStore persists the whole dispatch document. Writes replace the
// document atomically with last-writer-wins semantics; there is no version
// token and no merge.
type StateStore interface {
	// Load returns the last durably written state. A store with no document
	// yet returns DefaultState(), never an error.
	Load(ctx context.Context) (models.State, error)
	// Save overwrites the entire document.
	Save(ctx context.Context, state models.State) error
}

const (
	defaultTableCount = 3
	defaultFontSize   = "medium"
	defaultColumns    = 8
)

// DefaultState is the document a fresh deployment starts from: three plain
// tables, no tickets, no history.
func DefaultState() models.State {
	tables := make([]models.Table, 0, defaultTableCount)
	for i := 1; i <= defaultTableCount; i++ {
		tables = append(tables, models.Table{ID: i})
	}
	return models.State{
		Tickets: []models.Ticket{},
		Tables:  tables,
		History: []models.HistoryItem{},
		UISettings: models.UISettings{
			FontSize: defaultFontSize,
			Columns:  defaultColumns,
		},
	}
}

// DefaultTables returns the fresh three-table layout used by resets.
func DefaultTables() []models.Table {
	return DefaultState().Tables
}
