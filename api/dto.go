/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the
  internal domain model from the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS:
  Decimal amounts cross the wire as strings ("2.5") to avoid float
  round-tripping. Dates are "2006-01-02"; timestamps RFC3339.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data
  carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/leave-ledger/leave"
)

const dateLayout = "2006-01-02"

// =============================================================================
// SETTINGS
// =============================================================================

// SettingDTO represents a policy setting in API responses.
type SettingDTO struct {
	ID             string  `json:"id"`
	UserID         string  `json:"user_id"`
	TemplateID     string  `json:"template_id,omitempty"`
	LeaveType      string  `json:"leave_type"`
	StartDate      string  `json:"start_date"`
	EndDate        *string `json:"end_date,omitempty"`
	AccrualType    string  `json:"accrual_type"`
	Frequency      *string `json:"frequency,omitempty"`
	AccrualAmount  *string `json:"accrual_amount,omitempty"`
	MaxCap         string  `json:"max_cap"`
	AllowCarryOver bool    `json:"allow_carry_over"`
	MaxCarryOver   string  `json:"max_carry_over"`
	CurrentBalance string  `json:"current_balance"`
	CarriedOver    string  `json:"carried_over"`
}

func toSettingDTO(s leave.PolicySetting) SettingDTO {
	dto := SettingDTO{
		ID:             string(s.ID),
		UserID:         string(s.UserID),
		TemplateID:     string(s.TemplateID),
		LeaveType:      s.LeaveType,
		StartDate:      s.StartDate.Format(dateLayout),
		AccrualType:    string(s.AccrualType),
		MaxCap:         s.MaxCap.String(),
		AllowCarryOver: s.AllowCarryOver,
		MaxCarryOver:   s.MaxCarryOver.String(),
		CurrentBalance: s.CurrentBalance.String(),
		CarriedOver:    s.CarriedOver.String(),
	}
	if s.EndDate != nil {
		e := s.EndDate.Format(dateLayout)
		dto.EndDate = &e
	}
	if s.Frequency != nil {
		f := string(*s.Frequency)
		dto.Frequency = &f
	}
	if s.AccrualAmount != nil {
		a := s.AccrualAmount.String()
		dto.AccrualAmount = &a
	}
	return dto
}

// =============================================================================
// LEDGER
// =============================================================================

// EntryDTO represents a ledger entry in API responses.
type EntryDTO struct {
	ID            string `json:"id"`
	SettingID     string `json:"setting_id"`
	UserID        string `json:"user_id"`
	Type          string `json:"type"`
	Amount        string `json:"amount"`
	BalanceBefore string `json:"balance_before"`
	BalanceAfter  string `json:"balance_after"`
	Description   string `json:"description,omitempty"`
	EventDate     string `json:"event_date"`
	ProcessedAt   string `json:"processed_at"`
}

func toEntryDTO(e leave.LedgerEntry) EntryDTO {
	return EntryDTO{
		ID:            string(e.ID),
		SettingID:     string(e.SettingID),
		UserID:        string(e.UserID),
		Type:          string(e.Type),
		Amount:        e.Amount.String(),
		BalanceBefore: e.BalanceBefore.String(),
		BalanceAfter:  e.BalanceAfter.String(),
		Description:   e.Description,
		EventDate:     e.EventDate.Format(dateLayout),
		ProcessedAt:   e.ProcessedAt.Format(time.RFC3339),
	}
}

func toEntryDTOs(entries []leave.LedgerEntry) []EntryDTO {
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	return dtos
}

// =============================================================================
// SWEEPS
// =============================================================================

// SweepRequest triggers an accrual sweep.
type SweepRequest struct {
	AsOf   string `json:"as_of,omitempty"` // default: now
	DryRun bool   `json:"dry_run,omitempty"`
	UserID string `json:"user_id,omitempty"`
}

// CarryOverSweepRequest triggers a year-end carry-over sweep.
type CarryOverSweepRequest struct {
	Year   int    `json:"year"`
	DryRun bool   `json:"dry_run,omitempty"`
	UserID string `json:"user_id,omitempty"`
}

// SweepResultDTO reports batch-run counts.
type SweepResultDTO struct {
	Processed int  `json:"processed"`
	Skipped   int  `json:"skipped"`
	Errors    int  `json:"errors"`
	DryRun    bool `json:"dry_run"`
}

// =============================================================================
// DEDUCTIONS & ADJUSTMENTS
// =============================================================================

// DeductionRequest is submitted by the leave-approval workflow when a
// request transitions to approved.
type DeductionRequest struct {
	SettingID   string `json:"setting_id"`
	Amount      string `json:"amount"`
	EventDate   string `json:"event_date,omitempty"` // default: today
	Description string `json:"description,omitempty"`
	RequestRef  string `json:"request_ref,omitempty"`
}

// AdjustmentRequest records a manual admin correction.
type AdjustmentRequest struct {
	SettingID  string `json:"setting_id"`
	Amount     string `json:"amount"` // signed
	EventDate  string `json:"event_date,omitempty"`
	Reason     string `json:"reason"`
	AdjustedBy string `json:"adjusted_by,omitempty"`
}

// =============================================================================
// SUMMARY
// =============================================================================

// SummaryDTO is the rollup returned by the summary endpoint. Totals are
// signed sums: deductions come out negative.
type SummaryDTO struct {
	UserID            string            `json:"user_id"`
	From              string            `json:"from"`
	To                string            `json:"to"`
	TotalsByType      map[string]string `json:"totals_by_type"`
	TotalsByLeaveType map[string]string `json:"totals_by_leave_type"`
	Recent            []EntryDTO        `json:"recent_transactions"`
}

func toSummaryDTO(s leave.Summary) SummaryDTO {
	dto := SummaryDTO{
		UserID:            string(s.UserID),
		From:              s.From.Format(dateLayout),
		To:                s.To.Format(dateLayout),
		TotalsByType:      make(map[string]string, len(s.TotalsByType)),
		TotalsByLeaveType: make(map[string]string, len(s.TotalsByLeaveType)),
		Recent:            toEntryDTOs(s.Recent),
	}
	for t, v := range s.TotalsByType {
		dto.TotalsByType[string(t)] = v.String()
	}
	for name, v := range s.TotalsByLeaveType {
		dto.TotalsByLeaveType[name] = v.String()
	}
	return dto
}

// =============================================================================
// TEMPLATES & USERS
// =============================================================================

// TemplateDTO describes a policy template.
type TemplateDTO struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	AccrualType    string  `json:"accrual_type"`
	Frequency      *string `json:"frequency,omitempty"`
	AccrualAmount  *string `json:"accrual_amount,omitempty"`
	MaxCap         string  `json:"max_cap"`
	AllowCarryOver bool    `json:"allow_carry_over"`
	MaxCarryOver   string  `json:"max_carry_over"`
}

// AssignTemplateRequest instantiates a template as a user's setting.
type AssignTemplateRequest struct {
	UserID    string `json:"user_id"`
	StartDate string `json:"start_date"` // default: today

	// Per-user overrides; omitted fields inherit the template's values.
	AccrualAmount *string `json:"accrual_amount,omitempty"`
	MaxCap        *string `json:"max_cap,omitempty"`
	MaxCarryOver  *string `json:"max_carry_over,omitempty"`
}

// CreateUserRequest registers a display name for reporting.
type CreateUserRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
