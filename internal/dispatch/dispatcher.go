// Package dispatch owns the in-memory queue state and every rule about
// calling, seating, and undoing tickets. It is the single writer of the
// persisted document; readers consume snapshots.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MChihaya/smashBrosCallingSystem/internal/models"
	"github.com/MChihaya/smashBrosCallingSystem/internal/notify"
	"github.com/MChihaya/smashBrosCallingSystem/internal/store"
)

const saveTimeout = 10 * time.Second

type Options struct {
	// AutoCall chains a silent call-next onto seatings and skips.
	AutoCall bool
	// Now overrides the clock for history timestamps.
	Now func() time.Time
}

// Dispatcher composes the eligibility scan, the assignment rules, and the
// history log behind one mutex. Every action either fully succeeds (with
// the persistence attempt and audio cue already fired) or rejects with no
// state change; a failed persist is the one exception, logged and left
// optimistic in memory.
type Dispatcher struct {
	mu       sync.Mutex
	state    models.State
	autoCall bool

	store    store.StateStore
	notifier notify.Notifier
	now      func() time.Time

	saving atomic.Int32
	saveWG sync.WaitGroup
}

func New(st store.StateStore, notifier notify.Notifier, opts Options) *Dispatcher {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		state:    store.DefaultState(),
		autoCall: opts.AutoCall,
		store:    st,
		notifier: notifier,
		now:      now,
	}
}

// Load replaces the in-memory state with the stored document. Called once
// at boot; later refreshes go through Refresh.
func (d *Dispatcher) Load(ctx context.Context) error {
	state, err := d.store.Load(ctx)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.state = state
	d.mu.Unlock()
	return nil
}

// Refresh re-fetches the document so a second operator's writes become
// visible. Skipped while a save is in flight: pulling then would revert the
// optimistic local mutation with a stale read.
func (d *Dispatcher) Refresh(ctx context.Context) error {
	if d.saving.Load() > 0 {
		return nil
	}
	state, err := d.store.Load(ctx)
	if err != nil {
		return err
	}
	d.mu.Lock()
	if d.saving.Load() == 0 {
		d.state = state
	}
	d.mu.Unlock()
	return nil
}

// RunRefreshLoop polls the store on the given interval until ctx ends.
func (d *Dispatcher) RunRefreshLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.Refresh(ctx); err != nil {
				log.Printf("state refresh error: %v", err)
			}
		}
	}
}

// Snapshot returns a deep copy of the current state for display.
func (d *Dispatcher) Snapshot() models.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.Clone()
}

// AutoCall reports whether auto-advance is enabled.
func (d *Dispatcher) AutoCall() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.autoCall
}

// SetAutoCall toggles auto-advance. Not persisted: it is an operator
// console preference, not part of the shared document.
func (d *Dispatcher) SetAutoCall(enabled bool) {
	d.mu.Lock()
	d.autoCall = enabled
	d.mu.Unlock()
}

// CallNext calls the first eligible waiting or returned ticket. With no
// eligible candidate it returns a BlockedError when tickets are waiting and
// silently does nothing when the queue is empty.
func (d *Dispatcher) CallNext(ctx context.Context) (*models.Ticket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := models.CalledTicket(d.state.Tickets); ok {
		return nil, ErrCallInProgress
	}

	idx := FindNextEligible(d.state.Tickets, d.state.Tables)
	if idx == -1 {
		if hasWaiting(d.state.Tickets) {
			return nil, &BlockedError{Reason: ExplainBlock(d.state.Tickets, d.state.Tables)}
		}
		return nil, nil
	}

	d.state.History = pushHistory(d.state.History, fmt.Sprintf("Call #%d", d.state.Tickets[idx].Num), d.state.Tickets, d.state.Tables, d.now())
	d.state.Tickets[idx].Status = models.StatusCalled
	called := d.state.Tickets[idx]

	d.announce(ctx, called.Num)
	d.persistLocked()
	return &called, nil
}

// CallTicket calls a ticket by number, bypassing the queue scan but
// re-validating every constraint. Unknown numbers are a silent no-op.
func (d *Dispatcher) CallTicket(ctx context.Context, num int) (*models.Ticket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := models.CalledTicket(d.state.Tickets); ok {
		return nil, ErrCallInProgress
	}
	idx := models.FindTicket(d.state.Tickets, num)
	if idx == -1 {
		return nil, nil
	}
	ticket := d.state.Tickets[idx]

	if ticket.NominatedTable > 0 {
		tbIdx := models.FindTable(d.state.Tables, ticket.NominatedTable)
		if tbIdx == -1 {
			return nil, ErrNominatedTableMissing
		}
		if d.state.Tables[tbIdx].OccupiedBy != 0 {
			return nil, ErrNominatedTableOccupied
		}
		if ticket.DLC && !d.state.Tables[tbIdx].HasDLC {
			return nil, ErrDLCMismatch
		}
	} else if ticket.DLC && !hasEmptyDLCTable(d.state.Tables) {
		return nil, ErrNoDLCTableFree
	}

	d.state.History = pushHistory(d.state.History, fmt.Sprintf("Call #%d", num), d.state.Tickets, d.state.Tables, d.now())
	d.state.Tickets[idx].Status = models.StatusCalled
	called := d.state.Tickets[idx]

	d.announce(ctx, num)
	d.persistLocked()
	return &called, nil
}

// SetStatus moves a ticket to the given status. No transition graph is
// enforced. Entering skipped chains a silent call-next when auto-advance is
// on. Unknown numbers are a silent no-op.
func (d *Dispatcher) SetStatus(ctx context.Context, num int, status string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx := models.FindTicket(d.state.Tickets, num)
	if idx == -1 {
		return nil
	}

	desc := fmt.Sprintf("Status #%d -> %s", num, status)
	switch status {
	case models.StatusWaiting:
		desc = fmt.Sprintf("Return #%d", num)
	case models.StatusAbsent:
		desc = fmt.Sprintf("Absent #%d", num)
	case models.StatusSkipped:
		desc = fmt.Sprintf("Skip #%d", num)
	}

	d.state.History = pushHistory(d.state.History, desc, d.state.Tickets, d.state.Tables, d.now())
	d.state.Tickets[idx].Status = status

	if status == models.StatusSkipped && d.autoCall {
		d.chainedCallLocked(ctx)
	}
	d.persistLocked()
	return nil
}

// Assign seats a ticket at a table. A ticket already linked to another
// table is released from it first (re-seating). Auto-advance chains a
// silent call when a table remains free afterward.
func (d *Dispatcher) Assign(ctx context.Context, num, tableID int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.assignLocked(ctx, num, tableID); err != nil {
		return err
	}
	d.persistLocked()
	return nil
}

func (d *Dispatcher) assignLocked(ctx context.Context, num, tableID int) error {
	tIdx := models.FindTicket(d.state.Tickets, num)
	tbIdx := models.FindTable(d.state.Tables, tableID)
	if tIdx == -1 || tbIdx == -1 {
		return nil
	}
	if d.state.Tables[tbIdx].OccupiedBy != 0 {
		return ErrTableOccupied
	}

	d.state.History = pushHistory(d.state.History, fmt.Sprintf("Assign #%d -> Table %d", num, tableID), d.state.Tickets, d.state.Tables, d.now())

	if prev := d.state.Tickets[tIdx].Table; prev != 0 {
		if prevIdx := models.FindTable(d.state.Tables, prev); prevIdx != -1 {
			d.state.Tables[prevIdx].OccupiedBy = 0
		}
	}

	d.state.Tables[tbIdx].OccupiedBy = num
	d.state.Tickets[tIdx].Status = models.StatusPlaying
	d.state.Tickets[tIdx].Table = tableID

	if hasEmptyTable(d.state.Tables) && d.autoCall {
		d.chainedCallLocked(ctx)
	}
	return nil
}

// chainedCallLocked runs the auto-advance call: no blocking diagnostics,
// and the history entry of the triggering action absorbs the call instead
// of a fresh snapshot being taken.
func (d *Dispatcher) chainedCallLocked(ctx context.Context) {
	if _, ok := models.CalledTicket(d.state.Tickets); ok {
		return
	}
	idx := FindNextEligible(d.state.Tickets, d.state.Tables)
	if idx == -1 {
		return
	}
	d.state.Tickets[idx].Status = models.StatusCalled
	d.state.History = mergeIntoLast(d.state.History, fmt.Sprintf(" -> Call #%d", d.state.Tickets[idx].Num))
	d.announce(ctx, d.state.Tickets[idx].Num)
}

// SeatOrRelease is the station button: an occupied table ends its match, an
// empty one seats the currently called ticket. Seating against a different
// nomination needs the caller to confirm and retry with override set.
func (d *Dispatcher) SeatOrRelease(ctx context.Context, tableID int, override bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tbIdx := models.FindTable(d.state.Tables, tableID)
	if tbIdx == -1 {
		return nil
	}
	table := d.state.Tables[tbIdx]

	if table.OccupiedBy != 0 {
		num := table.OccupiedBy
		d.state.History = pushHistory(d.state.History, fmt.Sprintf("Match end #%d Table %d", num, tableID), d.state.Tickets, d.state.Tables, d.now())
		if tIdx := models.FindTicket(d.state.Tickets, num); tIdx != -1 {
			d.state.Tickets[tIdx].Status = models.StatusCompleted
			d.state.Tickets[tIdx].Table = 0
		}
		d.state.Tables[tbIdx].OccupiedBy = 0
		d.persistLocked()
		return nil
	}

	called, ok := models.CalledTicket(d.state.Tickets)
	if !ok {
		return ErrNoCalledTicket
	}
	if called.DLC && !table.HasDLC {
		return ErrDLCMismatch
	}
	if called.NominatedTable > 0 && called.NominatedTable != tableID && !override {
		return ErrConfirmRequired
	}

	if err := d.assignLocked(ctx, called.Num, tableID); err != nil {
		return err
	}
	d.persistLocked()
	return nil
}

// AddTickets appends count fresh waiting tickets sharing the same flag and
// nomination. Numbers continue from the newest ticket; a nomination of an
// existing table forces the flag to match that table, whatever the caller
// asked for.
func (d *Dispatcher) AddTickets(ctx context.Context, count int, dlc bool, nominated int) ([]models.Ticket, error) {
	if count < 1 {
		return nil, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	lastNum := 0
	if n := len(d.state.Tickets); n > 0 {
		lastNum = d.state.Tickets[n-1].Num
	}

	finalDLC := dlc
	if nominated > 0 {
		if tbIdx := models.FindTable(d.state.Tables, nominated); tbIdx != -1 {
			finalDLC = d.state.Tables[tbIdx].HasDLC
		}
	}

	desc := fmt.Sprintf("Add tickets x%d", count)
	if finalDLC {
		desc += " (DLC)"
	}
	if nominated > 0 {
		desc += fmt.Sprintf(" (Table %d)", nominated)
	}
	d.state.History = pushHistory(d.state.History, desc, d.state.Tickets, d.state.Tables, d.now())

	added := make([]models.Ticket, 0, count)
	for i := 1; i <= count; i++ {
		added = append(added, models.Ticket{
			Num:            lastNum + i,
			Status:         models.StatusWaiting,
			DLC:            finalDLC,
			NominatedTable: nominated,
		})
	}
	d.state.Tickets = append(d.state.Tickets, added...)

	d.persistLocked()
	return added, nil
}

// TicketPatch carries the editable ticket fields. Nil means leave as-is.
type TicketPatch struct {
	DLC            *bool
	NominatedTable *int
	Note           *string
}

// UpdateTicket patches a ticket's editable fields. Setting a positive
// nomination recomputes the flag from the target table, discarding any flag
// in the same patch. Field edits do not snapshot history. Unknown numbers
// are a silent no-op.
func (d *Dispatcher) UpdateTicket(ctx context.Context, num int, patch TicketPatch) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx := models.FindTicket(d.state.Tickets, num)
	if idx == -1 {
		return nil
	}

	if patch.DLC != nil {
		d.state.Tickets[idx].DLC = *patch.DLC
	}
	if patch.Note != nil {
		d.state.Tickets[idx].Note = *patch.Note
	}
	if patch.NominatedTable != nil {
		nom := *patch.NominatedTable
		d.state.Tickets[idx].NominatedTable = nom
		if nom > 0 {
			if tbIdx := models.FindTable(d.state.Tables, nom); tbIdx != -1 {
				d.state.Tickets[idx].DLC = d.state.Tables[tbIdx].HasDLC
			}
		}
	}

	d.persistLocked()
	return nil
}

// ToggleTableDLC flips a table's DLC flag. No history snapshot. Unknown ids
// are a silent no-op.
func (d *Dispatcher) ToggleTableDLC(ctx context.Context, tableID int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx := models.FindTable(d.state.Tables, tableID)
	if idx == -1 {
		return nil
	}
	d.state.Tables[idx].HasDLC = !d.state.Tables[idx].HasDLC

	d.persistLocked()
	return nil
}

// ResizeTables grows or shrinks the table set to ids 1..n. Existing tables
// keep their state; new ones start empty and unflagged. Shrinking drops
// tables above n even when occupied, which can leave a playing ticket
// pointing at a table that no longer exists.
func (d *Dispatcher) ResizeTables(ctx context.Context, n int) error {
	if n < 1 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.state.History = pushHistory(d.state.History, fmt.Sprintf("Table count -> %d", n), d.state.Tickets, d.state.Tables, d.now())

	tables := make([]models.Table, 0, n)
	for i := 1; i <= n; i++ {
		if idx := models.FindTable(d.state.Tables, i); idx != -1 {
			tables = append(tables, d.state.Tables[idx])
		} else {
			tables = append(tables, models.Table{ID: i})
		}
	}
	d.state.Tables = tables

	d.persistLocked()
	return nil
}

// Reset clears tickets and restores the default tables, keeping history so
// the reset itself can be undone.
func (d *Dispatcher) Reset(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.state.History = pushHistory(d.state.History, "Reset", d.state.Tickets, d.state.Tables, d.now())
	d.state.Tickets = []models.Ticket{}
	d.state.Tables = store.DefaultTables()

	d.persistLocked()
	return nil
}

// EraseAll wipes tickets, tables, and the history log. Not undoable.
func (d *Dispatcher) EraseAll(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.state.Tickets = []models.Ticket{}
	d.state.Tables = store.DefaultTables()
	d.state.History = []models.HistoryItem{}

	d.persistLocked()
	return nil
}

// Undo restores the newest history snapshot and discards it. One step,
// destructive, no redo. Returns the undone action's description.
func (d *Dispatcher) Undo(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	last, rest, ok := popHistory(d.state.History)
	if !ok {
		return "", ErrEmptyHistory
	}
	d.state.Tickets = models.CloneTickets(last.Tickets)
	d.state.Tables = models.CloneTables(last.Tables)
	d.state.History = rest

	d.persistLocked()
	return last.Desc, nil
}

// Reannounce repeats the audio cue for the currently called ticket. Pure
// audio replay: no history entry and no persistence.
func (d *Dispatcher) Reannounce(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	called, ok := models.CalledTicket(d.state.Tickets)
	if !ok {
		return ErrNoCalledTicket
	}
	d.announce(ctx, called.Num)
	return nil
}

// UpdateUISettings stores display preferences in the shared document.
func (d *Dispatcher) UpdateUISettings(ctx context.Context, settings models.UISettings) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.state.UISettings = settings
	d.persistLocked()
	return nil
}

func (d *Dispatcher) announce(ctx context.Context, num int) {
	d.notifier.Announce(ctx, fmt.Sprintf("Now calling number %d", num))
	d.notifier.Tone(ctx)
}

// persistLocked writes the full document in the background. The in-memory
// state is already the source of truth; a failed write is logged and left
// to the next successful save.
func (d *Dispatcher) persistLocked() {
	snapshot := d.state.Clone()
	d.saving.Add(1)
	d.saveWG.Add(1)
	go func() {
		defer d.saveWG.Done()
		defer d.saving.Add(-1)
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := d.store.Save(ctx, snapshot); err != nil {
			log.Printf("state save failed: %v", err)
		}
	}()
}

// Flush waits for in-flight saves. Used at shutdown and in tests.
func (d *Dispatcher) Flush() {
	d.saveWG.Wait()
}

func hasWaiting(tickets []models.Ticket) bool {
	for _, t := range tickets {
		if t.Status == models.StatusWaiting || t.Status == models.StatusReturned {
			return true
		}
	}
	return false
}
