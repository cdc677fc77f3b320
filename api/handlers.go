/*
handlers.go - HTTP API handlers for the leave ledger engine

PURPOSE:
  Exposes the accrual/carry-over engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Users:
    POST   /api/users                   Register user (display name)
    GET    /api/users/{id}/settings     List a user's policy settings
    GET    /api/users/{id}/summary      Ledger rollup for a date range

  Settings:
    GET    /api/settings/{id}           Get one policy setting
    GET    /api/settings/{id}/ledger    Full ledger for a setting

  Templates:
    GET    /api/templates               List built-in policy templates
    POST   /api/templates/{id}/assign   Instantiate a template for a user

  Bookings:
    POST   /api/deductions              Record an approved leave deduction
    POST   /api/adjustments             Manual admin correction

  Sweeps:
    POST   /api/sweeps/accrual          Run (or dry-run) the accrual sweep
    POST   /api/sweeps/carryover        Run (or dry-run) year-end carry-over

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Setting or user not found
  - 409: Duplicate accrual / concurrent modification
  - 422: Insufficient balance, carry-over not eligible
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. Run behind a trusted gateway.

SEE ALSO:
  - dto.go: Request/response data structures
  - templates.go: Built-in policy templates
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-ledger/leave"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for the HTTP endpoints.
type Handler struct {
	Store      leave.TxStore
	Users      leave.UserDirectory
	Processor  *leave.Processor
	Sweeper    *leave.Sweeper
	Aggregator *leave.Aggregator
	Templates  map[leave.TemplateID]PolicyTemplate

	// Now supplies default event dates when requests omit them.
	Now func() time.Time
}

func NewHandler(store leave.TxStore, users leave.UserDirectory) *Handler {
	return &Handler{
		Store:      store,
		Users:      users,
		Processor:  leave.NewProcessor(store),
		Sweeper:    leave.NewSweeper(store, users),
		Aggregator: &leave.Aggregator{Store: store},
		Templates:  BuiltinTemplates(),
		Now:        time.Now,
	}
}

// =============================================================================
// USER ENDPOINTS
// =============================================================================

// CreateUser registers a display name for reporting.
// POST /api/users
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	u := leave.User{ID: leave.UserID(req.ID), Name: req.Name}
	if err := h.Users.SaveUser(r.Context(), u); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save user", err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// ListUserSettings returns all policy settings for a user.
// GET /api/users/{id}/settings
func (h *Handler) ListUserSettings(w http.ResponseWriter, r *http.Request) {
	userID := leave.UserID(chi.URLParam(r, "id"))

	settings, err := h.Store.ListSettingsForUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list settings", err)
		return
	}

	dtos := make([]SettingDTO, 0, len(settings))
	for _, s := range settings {
		dtos = append(dtos, toSettingDTO(s))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSummary returns the ledger rollup for a user in a date range.
// GET /api/users/{id}/summary?from=YYYY-MM-DD&to=YYYY-MM-DD&limit=N
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	userID := leave.UserID(chi.URLParam(r, "id"))

	now := h.Now().UTC()
	// Default range: current calendar year to date.
	from := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	to := now

	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
			return
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
			return
		}
		to = t
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	summary, err := h.Aggregator.Summarize(r.Context(), userID, from, to, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build summary", err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(summary))
}

// =============================================================================
// SETTING ENDPOINTS
// =============================================================================

// GetSetting returns one policy setting.
// GET /api/settings/{id}
func (h *Handler) GetSetting(w http.ResponseWriter, r *http.Request) {
	id := leave.SettingID(chi.URLParam(r, "id"))

	s, err := h.Store.GetSetting(r.Context(), id)
	if err != nil {
		if leave.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Setting not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get setting", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingDTO(s))
}

// GetLedger returns the full ledger for a setting, oldest first.
// GET /api/settings/{id}/ledger
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	id := leave.SettingID(chi.URLParam(r, "id"))

	if _, err := h.Store.GetSetting(r.Context(), id); err != nil {
		if leave.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Setting not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get setting", err)
		return
	}

	entries, err := h.Store.EntriesForSetting(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load ledger", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

// =============================================================================
// TEMPLATE ENDPOINTS
// =============================================================================

// ListTemplates returns the built-in policy templates.
// GET /api/templates
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	dtos := make([]TemplateDTO, 0, len(h.Templates))
	for _, t := range h.Templates {
		dtos = append(dtos, toTemplateDTO(t))
	}
	sort.Slice(dtos, func(i, j int) bool { return dtos[i].ID < dtos[j].ID })
	writeJSON(w, http.StatusOK, dtos)
}

// AssignTemplate instantiates a template as a new setting for a user.
// POST /api/templates/{id}/assign
func (h *Handler) AssignTemplate(w http.ResponseWriter, r *http.Request) {
	templateID := leave.TemplateID(chi.URLParam(r, "id"))

	tmpl, ok := h.Templates[templateID]
	if !ok {
		writeError(w, http.StatusNotFound, "Template not found", nil)
		return
	}

	var req AssignTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	startDate := h.Now().UTC().Truncate(24 * time.Hour)
	if req.StartDate != "" {
		t, err := time.Parse(dateLayout, req.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
			return
		}
		startDate = t
	}

	setting, err := tmpl.Instantiate(leave.UserID(req.UserID), startDate, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid setting", err)
		return
	}

	if err := h.Store.SaveSetting(r.Context(), setting); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save setting", err)
		return
	}

	log.Printf("[API] Assigned template %s to user %s (setting %s)", templateID, req.UserID, setting.ID)
	writeJSON(w, http.StatusCreated, toSettingDTO(setting))
}

// =============================================================================
// DEDUCTION & ADJUSTMENT ENDPOINTS
// =============================================================================

// CreateDeduction records an approved leave booking against a setting.
// Balance sufficiency is validated HERE, at the approval boundary; the
// processor itself records whatever the caller approved.
// POST /api/deductions
func (h *Handler) CreateDeduction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req DeductionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	if !amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "Amount must be positive", nil)
		return
	}

	eventDate := h.Now().UTC()
	if req.EventDate != "" {
		t, perr := time.Parse(dateLayout, req.EventDate)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "Invalid event_date format (use YYYY-MM-DD)", perr)
			return
		}
		eventDate = t
	}

	settingID := leave.SettingID(req.SettingID)
	setting, err := h.Store.GetSetting(ctx, settingID)
	if err != nil {
		if leave.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Setting not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get setting", err)
		return
	}

	// Snapshot check only: a concurrent approval can commit between this
	// read and ApplyDeduction, and the processor records approved deductions
	// without re-checking balances. Serializing approvals per setting is the
	// approval workflow's responsibility.
	if !setting.CanDeduct(amount) {
		ibe := &leave.InsufficientBalanceError{
			SettingID: setting.ID,
			UserID:    setting.UserID,
			Available: setting.CurrentBalance,
			Requested: amount,
		}
		writeError(w, http.StatusUnprocessableEntity, "Insufficient balance", ibe)
		return
	}

	entry, err := h.Processor.ApplyDeduction(ctx, settingID, amount, eventDate, req.Description, req.RequestRef)
	if err != nil {
		writeDomainError(w, "Failed to apply deduction", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(entry))
}

// CreateAdjustment records a manual admin correction (signed amount).
// POST /api/adjustments
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Reason == "" {
		writeError(w, http.StatusBadRequest, "reason is required", nil)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	if amount.IsZero() {
		writeError(w, http.StatusBadRequest, "Amount must be non-zero", nil)
		return
	}

	eventDate := h.Now().UTC()
	if req.EventDate != "" {
		t, perr := time.Parse(dateLayout, req.EventDate)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "Invalid event_date format (use YYYY-MM-DD)", perr)
			return
		}
		eventDate = t
	}

	entry, err := h.Processor.ApplyAdjustment(r.Context(), leave.SettingID(req.SettingID), amount, eventDate, req.Reason, req.AdjustedBy)
	if err != nil {
		writeDomainError(w, "Failed to apply adjustment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(entry))
}

// =============================================================================
// SWEEP ENDPOINTS
// =============================================================================

// RunAccrualSweep evaluates all active accrual settings and posts due
// accruals. With dry_run the decisions are logged but nothing is written.
// POST /api/sweeps/accrual
func (h *Handler) RunAccrualSweep(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	asOf := h.Now().UTC()
	if req.AsOf != "" {
		t, err := time.Parse(dateLayout, req.AsOf)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of format (use YYYY-MM-DD)", err)
			return
		}
		asOf = t
	}

	result, err := h.Sweeper.RunAccrualSweep(r.Context(), asOf, req.DryRun, leave.UserID(req.UserID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Accrual sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, SweepResultDTO{
		Processed: result.Processed,
		Skipped:   result.Skipped,
		Errors:    result.Errors,
		DryRun:    req.DryRun,
	})
}

// RunCarryOverSweep runs the year-end carry-over for eligible settings.
// POST /api/sweeps/carryover
func (h *Handler) RunCarryOverSweep(w http.ResponseWriter, r *http.Request) {
	var req CarryOverSweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Year < 2000 || req.Year > 2200 {
		writeError(w, http.StatusBadRequest, "Invalid year", nil)
		return
	}

	result, err := h.Sweeper.RunCarryOverSweep(r.Context(), req.Year, req.DryRun, leave.UserID(req.UserID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Carry-over sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, SweepResultDTO{
		Processed: result.Processed,
		Skipped:   result.Skipped,
		Errors:    result.Errors,
		DryRun:    req.DryRun,
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// writeDomainError maps engine sentinel errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case leave.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, leave.ErrInsufficientBalance):
		writeError(w, http.StatusUnprocessableEntity, message, err)
	case errors.Is(err, leave.ErrCarryOverNotEligible):
		writeError(w, http.StatusUnprocessableEntity, message, err)
	case errors.Is(err, leave.ErrDuplicateAccrual), errors.Is(err, leave.ErrConcurrentModification):
		writeError(w, http.StatusConflict, message, err)
	case leave.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
