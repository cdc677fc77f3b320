/*
processor.go - Balance mutation + ledger append, atomically

PURPOSE:
  The Processor is the only writer of PolicySetting balances and ledger
  entries. Each operation runs inside a single store transaction covering
  the balance read, the balance write, and the ledger append, and retries
  on optimistic-lock conflicts.

OPERATIONS:
  ApplyAccrual:           capped incremental accrual (sweep-driven)
  ApplyDeduction:         leave-request deduction (approval-driven)
  ApplyYearEndCarryOver:  rollover with cap and forfeiture accounting
  ApplyAdjustment:        manual admin correction

CARRY-OVER LEDGER SHAPE:
  A capped carry-over is one balance mutation (before -> carried) recorded
  as two entries that each satisfy balance_after = balance_before + amount:

    CARRY_OVER  {before: 0,      after: carried, amount: +carried}
    DEDUCTION   {before: before, after: carried, amount: -forfeited}

  The CARRY_OVER entry opens the new year with the surviving balance; the
  forfeiture DEDUCTION closes the old one. The pair nets to the single
  mutation; nothing is subtracted twice.

CONCURRENCY:
  UpdateSettingBalance is a version CAS. On ErrConcurrentModification the
  whole transaction is retried with a fresh read, up to maxRetries.
*/
package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// maxRetries bounds optimistic-lock retries per operation.
const maxRetries = 3

// Processor applies balance-affecting operations to settings and the ledger.
type Processor struct {
	Store TxStore

	// Now supplies ProcessedAt timestamps. Overridable for deterministic
	// tests; defaults to time.Now via NewProcessor.
	Now func() time.Time
}

func NewProcessor(store TxStore) *Processor {
	return &Processor{Store: store, Now: time.Now}
}

// =============================================================================
// ACCRUAL
// =============================================================================

// ApplyAccrual applies one capped accrual to the setting and appends the
// matching ACCRUAL entry. eventDate is the scheduled accrual date from the
// evaluator, which may lag behind wall-clock time during catch-up runs.
func (p *Processor) ApplyAccrual(ctx context.Context, settingID SettingID, eventDate time.Time) (LedgerEntry, error) {
	var entry LedgerEntry
	err := p.withRetry(ctx, func(st Store) error {
		s, err := st.GetSetting(ctx, settingID)
		if err != nil {
			return err
		}
		if s.AccrualType != AccrualTypeAccrual || s.AccrualAmount == nil || s.Frequency == nil {
			return fmt.Errorf("%w: setting %s is not accrual-type", ErrInvalidSetting, settingID)
		}

		before := s.CurrentBalance
		proposed := before.Add(*s.AccrualAmount)
		after := decimal.Min(proposed, s.MaxCap)
		actual := after.Sub(before) // may be zero when already at cap

		if err := st.UpdateSettingBalance(ctx, s.ID, after, s.CarriedOver, s.Version); err != nil {
			return err
		}

		entry = LedgerEntry{
			ID:            newEntryID(),
			SettingID:     s.ID,
			UserID:        s.UserID,
			Type:          EntryAccrual,
			Amount:        actual,
			BalanceBefore: before,
			BalanceAfter:  after,
			Description:   fmt.Sprintf("%s accrual of %s (%s)", *s.Frequency, actual, s.LeaveType),
			EventDate:     eventDate,
			ProcessedAt:   p.Now().UTC(),
			Meta: AccrualMeta{
				Frequency:       *s.Frequency,
				ScheduledAmount: *s.AccrualAmount,
				ActualAmount:    actual,
				MaxCap:          s.MaxCap,
				Capped:          actual.LessThan(*s.AccrualAmount),
			},
		}
		return st.AppendEntry(ctx, entry)
	})
	if err != nil {
		return LedgerEntry{}, err
	}
	return entry, nil
}

// =============================================================================
// DEDUCTION
// =============================================================================

// ApplyDeduction decrements the balance by amount and appends a DEDUCTION
// entry. amount must be positive.
//
// The processor does NOT re-validate available balance: the leave-approval
// workflow checks CanDeduct and rejects with InsufficientBalanceError before
// calling. Invoking this with an uncovered amount is a caller bug.
func (p *Processor) ApplyDeduction(ctx context.Context, settingID SettingID, amount decimal.Decimal, eventDate time.Time, description, requestRef string) (LedgerEntry, error) {
	if !amount.IsPositive() {
		return LedgerEntry{}, fmt.Errorf("%w: deduction amount must be positive, got %s", ErrInvalidSetting, amount)
	}

	var entry LedgerEntry
	err := p.withRetry(ctx, func(st Store) error {
		s, err := st.GetSetting(ctx, settingID)
		if err != nil {
			return err
		}

		before := s.CurrentBalance
		after := before.Sub(amount)

		if err := st.UpdateSettingBalance(ctx, s.ID, after, s.CarriedOver, s.Version); err != nil {
			return err
		}

		if description == "" {
			description = fmt.Sprintf("Leave deduction of %s (%s)", amount, s.LeaveType)
		}
		entry = LedgerEntry{
			ID:            newEntryID(),
			SettingID:     s.ID,
			UserID:        s.UserID,
			Type:          EntryDeduction,
			Amount:        amount.Neg(),
			BalanceBefore: before,
			BalanceAfter:  after,
			Description:   description,
			EventDate:     eventDate,
			ProcessedAt:   p.Now().UTC(),
			Meta:          DeductionMeta{RequestRef: requestRef},
		}
		return st.AppendEntry(ctx, entry)
	})
	if err != nil {
		return LedgerEntry{}, err
	}
	return entry, nil
}

// =============================================================================
// YEAR-END CARRY-OVER
// =============================================================================

// CarryOverResult holds the entries written by a year-end carry-over.
// Forfeiture is nil when the whole balance fit under the carry-over cap.
type CarryOverResult struct {
	CarryOver  LedgerEntry
	Forfeiture *LedgerEntry

	Carried   decimal.Decimal
	Forfeited decimal.Decimal
}

// ApplyYearEndCarryOver rolls the remaining balance into the next year,
// capped at MaxCarryOver; the excess is forfeited. CarriedOver accumulates
// across years.
func (p *Processor) ApplyYearEndCarryOver(ctx context.Context, settingID SettingID, yearEndDate time.Time) (CarryOverResult, error) {
	var result CarryOverResult
	err := p.withRetry(ctx, func(st Store) error {
		s, err := st.GetSetting(ctx, settingID)
		if err != nil {
			return err
		}
		if !s.AllowCarryOver || !s.CurrentBalance.IsPositive() || s.StartDate.After(yearEndDate) {
			return fmt.Errorf("%w: setting %s", ErrCarryOverNotEligible, settingID)
		}

		before := s.CurrentBalance
		carried := decimal.Min(before, s.MaxCarryOver)
		forfeited := before.Sub(carried)

		if err := st.UpdateSettingBalance(ctx, s.ID, carried, s.CarriedOver.Add(carried), s.Version); err != nil {
			return err
		}

		now := p.Now().UTC()
		meta := CarryOverMeta{
			YearEndDate:  yearEndDate,
			MaxCarryOver: s.MaxCarryOver,
			Forfeited:    forfeited,
		}

		carryEntry := LedgerEntry{
			ID:            newEntryID(),
			SettingID:     s.ID,
			UserID:        s.UserID,
			Type:          EntryCarryOver,
			Amount:        carried,
			BalanceBefore: decimal.Zero,
			BalanceAfter:  carried,
			Description:   fmt.Sprintf("Year-end carry-over of %s (%s)", carried, s.LeaveType),
			EventDate:     yearEndDate,
			ProcessedAt:   now,
			Meta:          meta,
		}
		if err := st.AppendEntry(ctx, carryEntry); err != nil {
			return err
		}
		result = CarryOverResult{CarryOver: carryEntry, Carried: carried, Forfeited: forfeited}

		if forfeited.IsPositive() {
			forfeitEntry := LedgerEntry{
				ID:            newEntryID(),
				SettingID:     s.ID,
				UserID:        s.UserID,
				Type:          EntryDeduction,
				Amount:        forfeited.Neg(),
				BalanceBefore: before,
				BalanceAfter:  carried,
				Description:   fmt.Sprintf("Year-end forfeiture of %s above carry-over cap (%s)", forfeited, s.LeaveType),
				EventDate:     yearEndDate,
				ProcessedAt:   now,
				Meta:          DeductionMeta{Forfeiture: true},
			}
			if err := st.AppendEntry(ctx, forfeitEntry); err != nil {
				return err
			}
			result.Forfeiture = &forfeitEntry
		}
		return nil
	})
	if err != nil {
		return CarryOverResult{}, err
	}
	return result, nil
}

// =============================================================================
// MANUAL ADJUSTMENT
// =============================================================================

// ApplyAdjustment records a signed manual correction. The resulting balance
// must stay within [0, MaxCap].
func (p *Processor) ApplyAdjustment(ctx context.Context, settingID SettingID, amount decimal.Decimal, eventDate time.Time, reason, adjustedBy string) (LedgerEntry, error) {
	if amount.IsZero() {
		return LedgerEntry{}, fmt.Errorf("%w: adjustment amount must be non-zero", ErrInvalidSetting)
	}

	var entry LedgerEntry
	err := p.withRetry(ctx, func(st Store) error {
		s, err := st.GetSetting(ctx, settingID)
		if err != nil {
			return err
		}

		before := s.CurrentBalance
		after := before.Add(amount)
		if after.IsNegative() {
			return &InsufficientBalanceError{
				SettingID: s.ID,
				UserID:    s.UserID,
				Available: before,
				Requested: amount.Neg(),
			}
		}
		if after.GreaterThan(s.MaxCap) {
			return fmt.Errorf("%w: adjustment would exceed cap %s", ErrInvalidSetting, s.MaxCap)
		}

		if err := st.UpdateSettingBalance(ctx, s.ID, after, s.CarriedOver, s.Version); err != nil {
			return err
		}

		entry = LedgerEntry{
			ID:            newEntryID(),
			SettingID:     s.ID,
			UserID:        s.UserID,
			Type:          EntryAdjustment,
			Amount:        amount,
			BalanceBefore: before,
			BalanceAfter:  after,
			Description:   fmt.Sprintf("Manual adjustment of %s: %s", amount, reason),
			EventDate:     eventDate,
			ProcessedAt:   p.Now().UTC(),
			Meta:          AdjustmentMeta{Reason: reason, AdjustedBy: adjustedBy},
		}
		return st.AppendEntry(ctx, entry)
	})
	if err != nil {
		return LedgerEntry{}, err
	}
	return entry, nil
}

// =============================================================================
// INTERNALS
// =============================================================================

// withRetry runs fn inside a store transaction, retrying the whole
// transaction (with a fresh setting read) on optimistic-lock conflicts.
func (p *Processor) withRetry(ctx context.Context, fn func(Store) error) error {
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err = p.Store.WithTx(ctx, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
	}
	return err
}

func newEntryID() EntryID {
	return EntryID(uuid.NewString())
}
