package models

// Ticket statuses. The status setter is deliberately permissive: any status
// is reachable from any other, callers pick transitions that make sense.
const (
	StatusWaiting   = "waiting"
	StatusCalled    = "called"
	StatusPlaying   = "playing"
	StatusCompleted = "completed"
	StatusAbsent    = "absent"
	StatusSkipped   = "skipped"
	StatusReturned  = "returned"
)

// ValidStatus reports whether s is one of the known ticket statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusWaiting, StatusCalled, StatusPlaying, StatusCompleted,
		StatusAbsent, StatusSkipped, StatusReturned:
		return true
	}
	return false
}

// Ticket is a numbered walk-in request. Field names mirror the persisted
// document and must not change.
type Ticket struct {
	Num            int    `json:"num"`
	Status         string `json:"status"`
	DLC            bool   `json:"dlc"`
	NominatedTable int    `json:"nominatedTable"` // 0 = no preference
	Table          int    `json:"table"`          // 0 = not seated
	Note           string `json:"note,omitempty"`
}

// Table is a physical station serving one ticket at a time.
type Table struct {
	ID         int  `json:"id"`
	OccupiedBy int  `json:"occupiedBy"` // ticket number, 0 = empty
	HasDLC     bool `json:"hasDlc"`
}

// HistoryItem holds the full tickets/tables snapshot taken immediately
// before an action, so undo can restore it wholesale.
type HistoryItem struct {
	Desc    string   `json:"desc"`
	TS      int64    `json:"ts"` // milliseconds since epoch
	Tickets []Ticket `json:"tickets"`
	Tables  []Table  `json:"tables"`
}

type UISettings struct {
	FontSize string `json:"fontsize"`
	Columns  int    `json:"columns"`
}

// State is the whole persisted document. The dispatcher is its single
// writer; everything else consumes fetched snapshots.
type State struct {
	Tickets    []Ticket      `json:"tickets"`
	Tables     []Table       `json:"tables"`
	History    []HistoryItem `json:"history"`
	UISettings UISettings    `json:"uiSettings"`
}

// CloneTickets returns an independent copy of ts.
func CloneTickets(ts []Ticket) []Ticket {
	if ts == nil {
		return nil
	}
	out := make([]Ticket, len(ts))
	copy(out, ts)
	return out
}

// CloneTables returns an independent copy of ts.
func CloneTables(ts []Table) []Table {
	if ts == nil {
		return nil
	}
	out := make([]Table, len(ts))
	copy(out, ts)
	return out
}

// Clone returns a deep copy of the state, including every history snapshot.
func (s State) Clone() State {
	out := State{
		Tickets:    CloneTickets(s.Tickets),
		Tables:     CloneTables(s.Tables),
		UISettings: s.UISettings,
	}
	if s.History != nil {
		out.History = make([]HistoryItem, len(s.History))
		for i, item := range s.History {
			out.History[i] = HistoryItem{
				Desc:    item.Desc,
				TS:      item.TS,
				Tickets: CloneTickets(item.Tickets),
				Tables:  CloneTables(item.Tables),
			}
		}
	}
	return out
}

// FindTicket returns the index of the ticket with the given number, or -1.
func FindTicket(tickets []Ticket, num int) int {
	for i := range tickets {
		if tickets[i].Num == num {
			return i
		}
	}
	return -1
}

// FindTable returns the index of the table with the given id, or -1.
func FindTable(tables []Table, id int) int {
	for i := range tables {
		if tables[i].ID == id {
			return i
		}
	}
	return -1
}

// CalledTicket returns the ticket currently in the called state, if any.
func CalledTicket(tickets []Ticket) (Ticket, bool) {
	for _, t := range tickets {
		if t.Status == StatusCalled {
			return t, true
		}
	}
	return Ticket{}, false
}
