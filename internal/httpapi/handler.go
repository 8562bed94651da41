package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/MChihaya/smashBrosCallingSystem/internal/dispatch"
	"github.com/MChihaya/smashBrosCallingSystem/internal/models"
)

// Dispatcher is the slice of the dispatch engine the HTTP layer drives.
type Dispatcher interface {
	Snapshot() models.State
	CallNext(ctx context.Context) (*models.Ticket, error)
	CallTicket(ctx context.Context, num int) (*models.Ticket, error)
	SetStatus(ctx context.Context, num int, status string) error
	Assign(ctx context.Context, num, tableID int) error
	SeatOrRelease(ctx context.Context, tableID int, override bool) error
	AddTickets(ctx context.Context, count int, dlc bool, nominated int) ([]models.Ticket, error)
	UpdateTicket(ctx context.Context, num int, patch dispatch.TicketPatch) error
	ToggleTableDLC(ctx context.Context, tableID int) error
	ResizeTables(ctx context.Context, n int) error
	Reset(ctx context.Context) error
	EraseAll(ctx context.Context) error
	Undo(ctx context.Context) (string, error)
	Reannounce(ctx context.Context) error
	UpdateUISettings(ctx context.Context, settings models.UISettings) error
	SetAutoCall(enabled bool)
	AutoCall() bool
}

type Handler struct {
	dispatcher Dispatcher
	sessions   *Sessions
}

func NewHandler(dispatcher Dispatcher, sessions *Sessions) *Handler {
	return &Handler{dispatcher: dispatcher, sessions: sessions}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/login", h.handleLogin)
	mux.HandleFunc("/api/state", h.handleState)
	mux.HandleFunc("/api/tickets", h.handleAddTickets)
	mux.HandleFunc("/api/tickets/actions/call-next", h.handleCallNext)
	mux.HandleFunc("/api/tickets/", h.handleTicketActions)
	mux.HandleFunc("/api/tables/actions/resize", h.handleResize)
	mux.HandleFunc("/api/tables/", h.handleTableActions)
	mux.HandleFunc("/api/actions/undo", h.handleUndo)
	mux.HandleFunc("/api/actions/reset", h.handleReset)
	mux.HandleFunc("/api/actions/erase-all", h.handleEraseAll)
	mux.HandleFunc("/api/actions/reannounce", h.handleReannounce)
	mux.HandleFunc("/api/settings/ui", h.handleUISettings)
	mux.HandleFunc("/api/settings/auto-call", h.handleAutoCall)
	return h.sessions.Middleware(mux)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleState serves the display snapshot. Public: the waiting board polls
// it without a session.
func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	state := h.dispatcher.Snapshot()
	writeJSON(w, http.StatusOK, stateResponse{
		State:    state,
		AutoCall: h.dispatcher.AutoCall(),
	})
}

type stateResponse struct {
	models.State
	AutoCall bool `json:"autoCall"`
}

type addTicketsRequest struct {
	Count          int  `json:"count"`
	DLC            bool `json:"dlc"`
	NominatedTable int  `json:"nominatedTable"`
}

func (h *Handler) handleAddTickets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req addTicketsRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if req.Count < 1 {
		writeError(w, http.StatusBadRequest, "invalid_request", "count must be a positive integer")
		return
	}
	if req.NominatedTable < 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "nominatedTable must be zero or a table id")
		return
	}

	added, err := h.dispatcher.AddTickets(r.Context(), req.Count, req.DLC, req.NominatedTable)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, added)
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ticket, err := h.dispatcher.CallNext(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if ticket == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

// handleTicketActions routes /api/tickets/{num}/actions/{action}.
func (h *Handler) handleTicketActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/tickets/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[1] != "actions" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	num, err := strconv.Atoi(parts[0])
	if err != nil || num < 1 {
		writeError(w, http.StatusBadRequest, "invalid_request", "ticket number must be a positive integer")
		return
	}

	switch parts[2] {
	case "call":
		h.handleCallTicket(w, r, num)
	case "status":
		h.handleSetStatus(w, r, num)
	case "update":
		h.handleUpdateTicket(w, r, num)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleCallTicket(w http.ResponseWriter, r *http.Request, num int) {
	ticket, err := h.dispatcher.CallTicket(r.Context(), num)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if ticket == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

type setStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) handleSetStatus(w http.ResponseWriter, r *http.Request, num int) {
	var req setStatusRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.Status = strings.TrimSpace(req.Status)
	if !models.ValidStatus(req.Status) {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown ticket status")
		return
	}

	if err := h.dispatcher.SetStatus(r.Context(), num, req.Status); err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeOK(w)
}

type updateTicketRequest struct {
	DLC            *bool   `json:"dlc"`
	NominatedTable *int    `json:"nominatedTable"`
	Note           *string `json:"note"`
}

func (h *Handler) handleUpdateTicket(w http.ResponseWriter, r *http.Request, num int) {
	var req updateTicketRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if req.NominatedTable != nil && *req.NominatedTable < 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "nominatedTable must be zero or a table id")
		return
	}

	err := h.dispatcher.UpdateTicket(r.Context(), num, dispatch.TicketPatch{
		DLC:            req.DLC,
		NominatedTable: req.NominatedTable,
		Note:           req.Note,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeOK(w)
}

type resizeRequest struct {
	Count int `json:"count"`
}

func (h *Handler) handleResize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req resizeRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if req.Count < 1 {
		writeError(w, http.StatusBadRequest, "invalid_request", "count must be a positive integer")
		return
	}

	if err := h.dispatcher.ResizeTables(r.Context(), req.Count); err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeOK(w)
}

// handleTableActions routes /api/tables/{id}/actions/{action}.
func (h *Handler) handleTableActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/tables/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[1] != "actions" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	tableID, err := strconv.Atoi(parts[0])
	if err != nil || tableID < 1 {
		writeError(w, http.StatusBadRequest, "invalid_request", "table id must be a positive integer")
		return
	}

	switch parts[2] {
	case "toggle-dlc":
		if err := h.dispatcher.ToggleTableDLC(r.Context(), tableID); err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeOK(w)
	case "seat-or-release":
		h.handleSeatOrRelease(w, r, tableID)
	case "assign":
		h.handleAssign(w, r, tableID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type seatOrReleaseRequest struct {
	Override bool `json:"override"`
}

func (h *Handler) handleSeatOrRelease(w http.ResponseWriter, r *http.Request, tableID int) {
	var req seatOrReleaseRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if err := h.dispatcher.SeatOrRelease(r.Context(), tableID, req.Override); err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeOK(w)
}

type assignRequest struct {
	Num int `json:"num"`
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request, tableID int) {
	var req assignRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if req.Num < 1 {
		writeError(w, http.StatusBadRequest, "invalid_request", "num must be a positive integer")
		return
	}
	if err := h.dispatcher.Assign(r.Context(), req.Num, tableID); err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeOK(w)
}

func (h *Handler) handleUndo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	desc, err := h.dispatcher.Undo(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"undone": desc})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := h.dispatcher.Reset(r.Context()); err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeOK(w)
}

func (h *Handler) handleEraseAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := h.dispatcher.EraseAll(r.Context()); err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeOK(w)
}

func (h *Handler) handleReannounce(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := h.dispatcher.Reannounce(r.Context()); err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeOK(w)
}

type uiSettingsRequest struct {
	FontSize string `json:"fontsize"`
	Columns  int    `json:"columns"`
}

func (h *Handler) handleUISettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req uiSettingsRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.FontSize = strings.TrimSpace(req.FontSize)
	if req.FontSize == "" || req.Columns < 1 {
		writeError(w, http.StatusBadRequest, "invalid_request", "fontsize and a positive columns value are required")
		return
	}

	err := h.dispatcher.UpdateUISettings(r.Context(), models.UISettings{
		FontSize: req.FontSize,
		Columns:  req.Columns,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeOK(w)
}

type autoCallRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) handleAutoCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req autoCallRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	h.dispatcher.SetAutoCall(req.Enabled)
	writeOK(w)
}

func decodeRequest(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		// A missing body means "all defaults" for action endpoints.
		if errors.Is(err, io.EOF) {
			return true
		}
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func mapError(err error) (int, string, string) {
	var blocked *dispatch.BlockedError
	if errors.As(err, &blocked) {
		return http.StatusConflict, "queue_blocked", blocked.Reason
	}
	switch {
	case errors.Is(err, dispatch.ErrCallInProgress):
		return http.StatusConflict, "call_in_progress", "a ticket is already being called"
	case errors.Is(err, dispatch.ErrTableOccupied):
		return http.StatusConflict, "table_occupied", "table is already occupied"
	case errors.Is(err, dispatch.ErrNoCalledTicket):
		return http.StatusConflict, "no_called_ticket", "no ticket is being called"
	case errors.Is(err, dispatch.ErrDLCMismatch):
		return http.StatusConflict, "dlc_mismatch", "table does not support DLC"
	case errors.Is(err, dispatch.ErrNominatedTableMissing):
		return http.StatusConflict, "nominated_table_missing", "nominated table does not exist"
	case errors.Is(err, dispatch.ErrNominatedTableOccupied):
		return http.StatusConflict, "nominated_table_occupied", "nominated table is occupied"
	case errors.Is(err, dispatch.ErrNoDLCTableFree):
		return http.StatusConflict, "no_dlc_table_free", "no empty DLC-capable table"
	case errors.Is(err, dispatch.ErrConfirmRequired):
		return http.StatusConflict, "confirm_required", "seating overrides the ticket's nomination; retry with override"
	case errors.Is(err, dispatch.ErrEmptyHistory):
		return http.StatusConflict, "empty_history", "nothing to undo"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
