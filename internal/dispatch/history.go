package dispatch

import (
	"time"

	"github.com/MChihaya/smashBrosCallingSystem/internal/models"
)

// historyCap bounds the undo log; the oldest snapshot is evicted first.
const historyCap = 300

// pushHistory appends a pre-action snapshot of tickets and tables to hist
// and returns the new log. The snapshot is an independent copy so later
// mutations cannot reach into it.
func pushHistory(hist []models.HistoryItem, desc string, tickets []models.Ticket, tables []models.Table, now time.Time) []models.HistoryItem {
	item := models.HistoryItem{
		Desc:    desc,
		TS:      now.UnixMilli(),
		Tickets: models.CloneTickets(tickets),
		Tables:  models.CloneTables(tables),
	}
	out := make([]models.HistoryItem, 0, len(hist)+1)
	out = append(out, hist...)
	out = append(out, item)
	if len(out) > historyCap {
		out = out[1:]
	}
	return out
}

// mergeIntoLast extends the description of the most recent history entry.
// Used when an auto-advance call rides on the action that freed a table, so
// the chained call shares that action's snapshot instead of getting its own.
func mergeIntoLast(hist []models.HistoryItem, suffix string) []models.HistoryItem {
	if len(hist) == 0 {
		return hist
	}
	hist[len(hist)-1].Desc += suffix
	return hist
}

// popHistory removes and returns the newest entry. The entry is discarded
// by the caller after restoring it; there is no redo.
func popHistory(hist []models.HistoryItem) (models.HistoryItem, []models.HistoryItem, bool) {
	if len(hist) == 0 {
		return models.HistoryItem{}, hist, false
	}
	last := hist[len(hist)-1]
	return last, hist[:len(hist)-1], true
}
