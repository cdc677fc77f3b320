/*
Package leave implements the leave accrual and carry-over ledger engine.

PURPOSE:
  This package contains the core types and algorithms for per-user leave
  balances: deciding when an accrual is due, applying capped balance
  increments, performing year-end carry-over with forfeiture accounting,
  and recording every balance change in an append-only ledger.

KEY CONCEPTS IN THIS FILE (types.go):
  - PolicySetting: Per-user leave entitlement configuration (accrual rate,
    cap, carry-over rule) plus the mutable current balance
  - LedgerEntry: An immutable record of one balance-affecting event
  - EntryMeta: Typed per-entry-type metadata (accrual, carry-over, ...)

DESIGN PRINCIPLES:
  1. Immutability: Ledger entries are never modified; corrections are new
     ADJUSTMENT entries
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Explicit time: Evaluators and processors take asOf/eventDate as
     parameters, never a global clock
  4. Type Safety: Closed enums for accrual type, frequency, and entry type

SEE ALSO:
  - schedule.go: Due-date evaluation and calendar arithmetic
  - processor.go: Balance mutation + ledger append (atomic)
  - summary.go: Read-only rollups over the ledger
  - store.go: Persistence interfaces
*/
package leave

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type SettingID string
type UserID string
type TemplateID string
type EntryID string

// =============================================================================
// ACCRUAL CONFIGURATION ENUMS
// =============================================================================

// AccrualType determines whether a setting accrues over time or is a fixed
// grant managed outside the accrual sweep.
type AccrualType string

const (
	// AccrualTypeFixed: balance is granted by administrators; the due-date
	// evaluator never fires for these settings.
	AccrualTypeFixed AccrualType = "FIXED"

	// AccrualTypeAccrual: balance grows by AccrualAmount once per Frequency
	// period, clamped at MaxCap.
	AccrualTypeAccrual AccrualType = "ACCRUAL"
)

// Frequency is the accrual period for ACCRUAL-type settings.
type Frequency string

const (
	FreqMonthly   Frequency = "MONTHLY"
	FreqBimonthly Frequency = "BIMONTHLY"
	FreqQuarterly Frequency = "QUARTERLY"
	FreqYearly    Frequency = "YEARLY"

	// FreqPerMinute exists to support fast iteration against a live system.
	// It behaves identically to the calendar frequencies with a one-minute
	// period.
	FreqPerMinute Frequency = "PER_MINUTE"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FreqMonthly, FreqBimonthly, FreqQuarterly, FreqYearly, FreqPerMinute:
		return true
	}
	return false
}

// =============================================================================
// POLICY SETTING - Per (user, leave entitlement) configuration
// =============================================================================

// PolicySetting is one user's configuration for one leave entitlement.
//
// CurrentBalance and CarriedOver are the only mutable fields, and they are
// mutated exclusively by the Processor inside a store transaction. Version is
// an optimistic-lock counter bumped on every balance write; see
// Store.UpdateSettingBalance.
type PolicySetting struct {
	ID         SettingID
	UserID     UserID
	TemplateID TemplateID

	// LeaveType is the display name of the underlying leave type
	// ("Annual Leave", "Sick Leave"). Used for summary grouping.
	LeaveType string

	StartDate time.Time
	EndDate   *time.Time // nil = open-ended

	AccrualType   AccrualType
	Frequency     *Frequency       // required iff AccrualType == ACCRUAL
	AccrualAmount *decimal.Decimal // required iff AccrualType == ACCRUAL

	MaxCap         decimal.Decimal
	AllowCarryOver bool
	MaxCarryOver   decimal.Decimal

	CurrentBalance decimal.Decimal
	CarriedOver    decimal.Decimal // cumulative all-time carried-over total

	Version int
}

// Validate checks structural invariants: frequency and amount must be set
// for ACCRUAL settings and absent for FIXED ones, caps must be non-negative,
// and the active window must be well-formed.
func (s *PolicySetting) Validate() error {
	switch s.AccrualType {
	case AccrualTypeAccrual:
		if s.Frequency == nil || s.AccrualAmount == nil {
			return fmt.Errorf("%w: ACCRUAL setting requires frequency and accrual amount", ErrInvalidSetting)
		}
		if !s.Frequency.Valid() {
			return fmt.Errorf("%w: unknown frequency %q", ErrInvalidSetting, *s.Frequency)
		}
		if s.AccrualAmount.IsNegative() {
			return fmt.Errorf("%w: accrual amount must not be negative", ErrInvalidSetting)
		}
	case AccrualTypeFixed:
		if s.Frequency != nil || s.AccrualAmount != nil {
			return fmt.Errorf("%w: FIXED setting must not carry frequency or accrual amount", ErrInvalidSetting)
		}
	default:
		return fmt.Errorf("%w: unknown accrual type %q", ErrInvalidSetting, s.AccrualType)
	}

	if s.MaxCap.IsNegative() || s.MaxCarryOver.IsNegative() {
		return fmt.Errorf("%w: caps must not be negative", ErrInvalidSetting)
	}
	if s.EndDate != nil && s.EndDate.Before(s.StartDate) {
		return fmt.Errorf("%w: end date before start date", ErrInvalidSetting)
	}
	return nil
}

// ActiveAt reports whether the setting is active at the given instant:
// StartDate <= asOf and (no EndDate or EndDate >= asOf).
func (s *PolicySetting) ActiveAt(asOf time.Time) bool {
	if asOf.Before(s.StartDate) {
		return false
	}
	if s.EndDate != nil && asOf.After(*s.EndDate) {
		return false
	}
	return true
}

// CanDeduct reports whether the current balance covers a deduction of amount.
// The leave-approval boundary calls this before ApplyDeduction; the processor
// itself does not re-validate.
func (s *PolicySetting) CanDeduct(amount decimal.Decimal) bool {
	return s.CurrentBalance.GreaterThanOrEqual(amount)
}

// =============================================================================
// LEDGER ENTRY - Immutable record of one balance-affecting event
// =============================================================================

type EntryType string

const (
	EntryAccrual    EntryType = "ACCRUAL"
	EntryDeduction  EntryType = "DEDUCTION"
	EntryCarryOver  EntryType = "CARRY_OVER"
	EntryAdjustment EntryType = "ADJUSTMENT"
)

// LedgerEntry records a single balance change.
//
// INVARIANT: BalanceAfter = BalanceBefore + Amount, for every entry type.
// Entries are append-only; corrections are new ADJUSTMENT entries.
type LedgerEntry struct {
	ID        EntryID
	SettingID SettingID
	UserID    UserID

	Type EntryType

	// Amount is signed: positive for ACCRUAL/CARRY_OVER, negative for
	// DEDUCTION (including forfeiture), either sign for ADJUSTMENT.
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal

	Description string
	Meta        EntryMeta

	// EventDate is the date the event logically applies to. It may differ
	// from ProcessedAt, e.g. during a catch-up sweep.
	EventDate   time.Time
	ProcessedAt time.Time
}

// CheckConsistency verifies the per-entry balance identity.
func (e *LedgerEntry) CheckConsistency() error {
	if !e.BalanceBefore.Add(e.Amount).Equal(e.BalanceAfter) {
		return fmt.Errorf("%w: %s + %s != %s (entry %s)",
			ErrInconsistentEntry, e.BalanceBefore, e.Amount, e.BalanceAfter, e.ID)
	}
	return nil
}

// =============================================================================
// ENTRY METADATA - Typed variant per entry type
// =============================================================================

// EntryMeta is the closed union of per-entry-type metadata. Using concrete
// structs instead of a loose key-value bag makes a missing field a compile
// error rather than a silent absence.
type EntryMeta interface {
	metaKind() string
}

// AccrualMeta accompanies ACCRUAL entries.
type AccrualMeta struct {
	Frequency       Frequency       `json:"frequency"`
	ScheduledAmount decimal.Decimal `json:"scheduled_amount"`
	ActualAmount    decimal.Decimal `json:"actual_amount"`
	MaxCap          decimal.Decimal `json:"max_cap"`
	Capped          bool            `json:"capped"`
}

func (AccrualMeta) metaKind() string { return "accrual" }

// CarryOverMeta accompanies CARRY_OVER entries.
type CarryOverMeta struct {
	YearEndDate  time.Time       `json:"year_end_date"`
	MaxCarryOver decimal.Decimal `json:"max_carry_over"`
	Forfeited    decimal.Decimal `json:"forfeited"`
}

func (CarryOverMeta) metaKind() string { return "carry_over" }

// DeductionMeta accompanies DEDUCTION entries.
type DeductionMeta struct {
	// Forfeiture marks the synthetic deduction written alongside a capped
	// carry-over, as opposed to a leave-request deduction.
	Forfeiture bool `json:"forfeiture"`

	// RequestRef links back to the leave request that triggered the
	// deduction, when there is one.
	RequestRef string `json:"request_ref,omitempty"`
}

func (DeductionMeta) metaKind() string { return "deduction" }

// AdjustmentMeta accompanies ADJUSTMENT entries.
type AdjustmentMeta struct {
	Reason     string `json:"reason"`
	AdjustedBy string `json:"adjusted_by,omitempty"`
}

func (AdjustmentMeta) metaKind() string { return "adjustment" }

// =============================================================================
// METADATA SERIALIZATION - Tagged JSON envelope for persistence
// =============================================================================

type metaEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// EncodeMeta serializes metadata for storage. Nil metadata encodes to nil.
func EncodeMeta(m EntryMeta) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode entry meta: %w", err)
	}
	return json.Marshal(metaEnvelope{Kind: m.metaKind(), Data: data})
}

// DecodeMeta deserializes metadata written by EncodeMeta.
func DecodeMeta(raw []byte) (EntryMeta, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var env metaEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode entry meta: %w", err)
	}

	var m EntryMeta
	switch env.Kind {
	case "accrual":
		m = &AccrualMeta{}
	case "carry_over":
		m = &CarryOverMeta{}
	case "deduction":
		m = &DeductionMeta{}
	case "adjustment":
		m = &AdjustmentMeta{}
	default:
		return nil, fmt.Errorf("decode entry meta: unknown kind %q", env.Kind)
	}
	if err := json.Unmarshal(env.Data, m); err != nil {
		return nil, fmt.Errorf("decode entry meta (%s): %w", env.Kind, err)
	}

	switch v := m.(type) {
	case *AccrualMeta:
		return *v, nil
	case *CarryOverMeta:
		return *v, nil
	case *DeductionMeta:
		return *v, nil
	case *AdjustmentMeta:
		return *v, nil
	}
	return nil, nil
}

// =============================================================================
// USERS - Display-name directory for batch-run reporting
// =============================================================================

// User carries the display name the sweeps use in their reporting lines.
// User management itself lives outside the engine.
type User struct {
	ID   UserID
	Name string
}
