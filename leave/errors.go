/*
errors.go - Centralized error types for the leave engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match with errors.Is / errors.As; the structured types carry
  enough context for operator-facing messages.

ERROR CATEGORIES:
  1. Precondition failures - rejected before any mutation (insufficient
     balance, ineligible carry-over, invalid setting)
  2. Ledger errors - append/consistency failures
  3. Concurrency errors - optimistic-lock conflicts (retryable)

SEE ALSO:
  - processor.go: Produces concurrency and ledger errors
  - sweep.go: Classifies per-item vs. fatal errors
*/
package leave

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidSetting is returned when a PolicySetting violates a
	// structural invariant (e.g. ACCRUAL without a frequency).
	ErrInvalidSetting = errors.New("invalid policy setting")

	// ErrSettingNotFound is returned when a referenced setting doesn't exist.
	ErrSettingNotFound = errors.New("policy setting not found")

	// ErrUserNotFound is returned when a referenced user doesn't exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrInsufficientBalance is returned at the leave-approval boundary when
	// a deduction would drive the balance negative.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrCarryOverNotEligible is returned when carry-over preconditions are
	// not met (carry-over disallowed, zero balance, or not yet started).
	ErrCarryOverNotEligible = errors.New("setting not eligible for carry-over")

	// ErrConcurrentModification is returned when the optimistic lock on a
	// setting's balance detects a conflicting write. Safe to retry.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrDuplicateAccrual is returned when an accrual entry already exists
	// for the same setting and event date. This is expected behavior for
	// re-runs of the same scheduled accrual.
	ErrDuplicateAccrual = errors.New("accrual already recorded for event date")

	// ErrInconsistentEntry is returned when a ledger entry violates
	// balance_after = balance_before + amount.
	ErrInconsistentEntry = errors.New("inconsistent ledger entry")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	SettingID SettingID
	UserID    UserID
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance on setting %s: available %s, requested %s",
		e.SettingID, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid caller input
// rather than an engine or store failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidSetting) ||
		errors.Is(err, ErrCarryOverNotEligible) ||
		errors.Is(err, ErrDuplicateAccrual)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSettingNotFound) || errors.Is(err, ErrUserNotFound)
}
