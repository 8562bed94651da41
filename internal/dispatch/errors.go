package dispatch

import (
	"errors"
	"fmt"
)

var (
	ErrCallInProgress         = errors.New("a call is already in progress")
	ErrTableOccupied          = errors.New("table already occupied")
	ErrNoCalledTicket         = errors.New("no ticket is being called")
	ErrDLCMismatch            = errors.New("table does not support DLC")
	ErrNominatedTableMissing  = errors.New("nominated table does not exist")
	ErrNominatedTableOccupied = errors.New("nominated table is occupied")
	ErrNoDLCTableFree         = errors.New("no empty DLC-capable table")
	ErrConfirmRequired        = errors.New("seating overrides a nomination, confirmation required")
	ErrEmptyHistory           = errors.New("history is empty")
)

// BlockedError is returned by CallNext when the queue is non-empty but no
// waiting ticket can be called. Reason explains the head-of-queue ticket
// only; a later ticket may be blocked for a different cause.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("cannot call next: %s", e.Reason)
}
