package dispatch

import (
	"fmt"

	"github.com/MChihaya/smashBrosCallingSystem/internal/models"
)

// TableOccupied reports whether the table with the given id holds a ticket.
// Unknown ids count as unoccupied.
func TableOccupied(tables []models.Table, id int) bool {
	idx := models.FindTable(tables, id)
	if idx == -1 {
		return false
	}
	return tables[idx].OccupiedBy != 0
}

func hasEmptyTable(tables []models.Table) bool {
	for _, tb := range tables {
		if tb.OccupiedBy == 0 {
			return true
		}
	}
	return false
}

func hasEmptyDLCTable(tables []models.Table) bool {
	for _, tb := range tables {
		if tb.OccupiedBy == 0 && tb.HasDLC {
			return true
		}
	}
	return false
}

// FindNextEligible scans tickets in arrival order and returns the index of
// the first one that can be called right now, or -1. Waiting and returned
// tickets are equally eligible. A nominated ticket needs exactly its table
// empty; a DLC ticket needs any empty DLC table; anything else needs any
// empty table. Tickets blocked by their own constraint are skipped, so the
// pick is FIFO among eligible candidates, not strict head-of-queue.
func FindNextEligible(tickets []models.Ticket, tables []models.Table) int {
	for i, t := range tickets {
		if t.Status != models.StatusWaiting && t.Status != models.StatusReturned {
			continue
		}

		if t.NominatedTable > 0 {
			idx := models.FindTable(tables, t.NominatedTable)
			if idx == -1 || tables[idx].OccupiedBy != 0 {
				continue
			}
			return i
		}

		if t.DLC {
			if hasEmptyDLCTable(tables) {
				return i
			}
			continue
		}

		if hasEmptyTable(tables) {
			return i
		}
	}
	return -1
}

// ExplainBlock produces a display-ready reason why the oldest waiting or
// returned ticket cannot be called. Diagnostic only: FindNextEligible may
// have skipped that ticket in favor of a later one, so this text does not
// necessarily explain the whole queue.
func ExplainBlock(tickets []models.Ticket, tables []models.Table) string {
	var head *models.Ticket
	for i := range tickets {
		if tickets[i].Status == models.StatusWaiting || tickets[i].Status == models.StatusReturned {
			head = &tickets[i]
			break
		}
	}
	if head == nil {
		return "no waiting tickets"
	}

	if head.NominatedTable > 0 {
		idx := models.FindTable(tables, head.NominatedTable)
		if idx == -1 {
			return fmt.Sprintf("ticket #%d nominates table %d, which does not exist", head.Num, head.NominatedTable)
		}
		if tables[idx].OccupiedBy != 0 {
			return fmt.Sprintf("ticket #%d nominates table %d, which is occupied", head.Num, head.NominatedTable)
		}
		// Nominations are kept DLC-consistent when set, re-checked here anyway.
		if head.DLC && !tables[idx].HasDLC {
			return fmt.Sprintf("ticket #%d (DLC) nominates table %d, which has no DLC support", head.Num, head.NominatedTable)
		}
	} else if head.DLC {
		if !hasEmptyDLCTable(tables) {
			return fmt.Sprintf("no empty DLC-capable table for ticket #%d (DLC)", head.Num)
		}
	} else {
		if !hasEmptyTable(tables) {
			return "no empty tables"
		}
	}

	return fmt.Sprintf("no empty table matches the constraints of ticket #%d or any ticket after it", head.Num)
}
