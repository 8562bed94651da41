package models

import "testing"

func TestCloneIsIndependent(t *testing.T) {
	original := State{
		Tickets: []Ticket{{Num: 1, Status: StatusWaiting}},
		Tables:  []Table{{ID: 1}},
		History: []HistoryItem{
			{Desc: "Call #1", TS: 1, Tickets: []Ticket{{Num: 1, Status: StatusWaiting}}, Tables: []Table{{ID: 1}}},
		},
	}

	clone := original.Clone()
	clone.Tickets[0].Status = StatusCalled
	clone.Tables[0].OccupiedBy = 1
	clone.History[0].Tickets[0].Status = StatusPlaying

	if original.Tickets[0].Status != StatusWaiting {
		t.Fatal("clone shares the tickets slice")
	}
	if original.Tables[0].OccupiedBy != 0 {
		t.Fatal("clone shares the tables slice")
	}
	if original.History[0].Tickets[0].Status != StatusWaiting {
		t.Fatal("clone shares a history snapshot")
	}
}

func TestFinders(t *testing.T) {
	tickets := []Ticket{{Num: 3}, {Num: 7, Status: StatusCalled}}
	tables := []Table{{ID: 1}, {ID: 4}}

	if got := FindTicket(tickets, 7); got != 1 {
		t.Fatalf("FindTicket(7)=%d, want 1", got)
	}
	if got := FindTicket(tickets, 99); got != -1 {
		t.Fatalf("FindTicket(99)=%d, want -1", got)
	}
	if got := FindTable(tables, 4); got != 1 {
		t.Fatalf("FindTable(4)=%d, want 1", got)
	}
	if got := FindTable(tables, 2); got != -1 {
		t.Fatalf("FindTable(2)=%d, want -1", got)
	}

	called, ok := CalledTicket(tickets)
	if !ok || called.Num != 7 {
		t.Fatalf("CalledTicket = (%+v, %v)", called, ok)
	}
	if _, ok := CalledTicket(nil); ok {
		t.Fatal("CalledTicket on empty queue must report none")
	}
}

func TestValidStatus(t *testing.T) {
	for _, s := range []string{StatusWaiting, StatusCalled, StatusPlaying, StatusCompleted, StatusAbsent, StatusSkipped, StatusReturned} {
		if !ValidStatus(s) {
			t.Fatalf("ValidStatus(%q)=false", s)
		}
	}
	if ValidStatus("vanished") || ValidStatus("") {
		t.Fatal("unknown statuses must be rejected")
	}
}
