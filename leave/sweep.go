/*
sweep.go - Batch entry points for accrual and carry-over runs

PURPOSE:
  Runs the due-date evaluator over every candidate setting and applies the
  due mutations, with per-setting isolation: one setting's failure is
  logged and counted, never aborting the rest of the sweep. Only the
  initial candidate query is fatal.

CONCURRENCY:
  Settings are independent (no cross-setting ordering), so the sweep fans
  out over a bounded worker pool. Per-setting serialization is handled
  underneath by the processor's transaction + version CAS.

CANCELLATION:
  A canceled context stops dispatching new settings; in-flight
  transactions run to completion. A sweep never aborts a commit mid-way.

DRY RUN:
  dryRun performs the full evaluation and reports the counts a live run
  would produce, without writing a single ledger entry or touching any
  balance.
*/
package leave

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// DefaultSweepWorkers bounds concurrent per-setting processing.
const DefaultSweepWorkers = 8

// SweepResult summarizes a batch run.
type SweepResult struct {
	Processed int // settings mutated (or that would be, under dryRun)
	Skipped   int // settings evaluated not due / not eligible
	Errors    int // settings that failed; details are logged
}

// Sweeper runs accrual and carry-over batches.
type Sweeper struct {
	Store     TxStore
	Evaluator *Evaluator
	Processor *Processor

	// Users resolves display names for reporting lines. Optional.
	Users UserDirectory

	// Workers bounds the pool; zero selects DefaultSweepWorkers.
	Workers int
}

func NewSweeper(store TxStore, users UserDirectory) *Sweeper {
	return &Sweeper{
		Store:     store,
		Evaluator: &Evaluator{Store: store},
		Processor: NewProcessor(store),
		Users:     users,
		Workers:   DefaultSweepWorkers,
	}
}

// =============================================================================
// ACCRUAL SWEEP
// =============================================================================

// RunAccrualSweep evaluates every active ACCRUAL-type setting at asOf and
// applies one accrual to each due setting. userFilter narrows the sweep to a
// single user when non-empty.
//
// A setting more than one period behind catches up across successive sweeps,
// one period per run, each accrual stamped with its scheduled event date.
func (sw *Sweeper) RunAccrualSweep(ctx context.Context, asOf time.Time, dryRun bool, userFilter UserID) (SweepResult, error) {
	settings, err := sw.Store.ActiveAccrualSettings(ctx, asOf, userFilter)
	if err != nil {
		// Systemic failure: abort, claim no partial success.
		return SweepResult{}, fmt.Errorf("accrual sweep: list settings: %w", err)
	}

	result := sw.forEach(ctx, settings, func(ctx context.Context, s PolicySetting) (bool, error) {
		decision, err := sw.Evaluator.Evaluate(ctx, s, asOf)
		if err != nil {
			return false, err
		}
		if !decision.Due {
			return false, nil
		}
		if dryRun {
			log.Printf("[Sweep] dry-run: would accrue for %s (%s) at %s",
				sw.displayName(ctx, s.UserID), s.LeaveType, decision.EventDate.Format("2006-01-02"))
			return true, nil
		}

		entry, err := sw.Processor.ApplyAccrual(ctx, s.ID, decision.EventDate)
		if err != nil {
			return false, err
		}
		log.Printf("[Sweep] accrued %s for %s (%s), balance %s",
			entry.Amount, sw.displayName(ctx, s.UserID), s.LeaveType, entry.BalanceAfter)
		return true, nil
	})

	log.Printf("[Sweep] accrual sweep at %s: %d processed, %d skipped, %d errors (dry-run=%t)",
		asOf.Format(time.RFC3339), result.Processed, result.Skipped, result.Errors, dryRun)
	return result, nil
}

// =============================================================================
// CARRY-OVER SWEEP
// =============================================================================

// RunCarryOverSweep applies year-end carry-over for every eligible setting
// (carry-over allowed, positive balance, started on or before Dec 31 of
// year).
func (sw *Sweeper) RunCarryOverSweep(ctx context.Context, year int, dryRun bool, userFilter UserID) (SweepResult, error) {
	yearEnd := YearEnd(year)

	settings, err := sw.Store.CarryOverEligibleSettings(ctx, yearEnd, userFilter)
	if err != nil {
		return SweepResult{}, fmt.Errorf("carry-over sweep: list settings: %w", err)
	}

	result := sw.forEach(ctx, settings, func(ctx context.Context, s PolicySetting) (bool, error) {
		if dryRun {
			log.Printf("[Sweep] dry-run: would carry over for %s (%s), balance %s, cap %s",
				sw.displayName(ctx, s.UserID), s.LeaveType, s.CurrentBalance, s.MaxCarryOver)
			return true, nil
		}

		res, err := sw.Processor.ApplyYearEndCarryOver(ctx, s.ID, yearEnd)
		if err != nil {
			return false, err
		}
		log.Printf("[Sweep] carried over %s for %s (%s), forfeited %s",
			res.Carried, sw.displayName(ctx, s.UserID), s.LeaveType, res.Forfeited)
		return true, nil
	})

	log.Printf("[Sweep] carry-over sweep for %d: %d processed, %d errors (dry-run=%t)",
		year, result.Processed, result.Errors, dryRun)
	return result, nil
}

// =============================================================================
// INTERNALS
// =============================================================================

// forEach fans settings out over the worker pool. fn returns (processed,
// err); false/nil counts as skipped.
func (sw *Sweeper) forEach(ctx context.Context, settings []PolicySetting, fn func(context.Context, PolicySetting) (bool, error)) SweepResult {
	workers := sw.Workers
	if workers <= 0 {
		workers = DefaultSweepWorkers
	}

	var (
		mu     sync.Mutex
		result SweepResult
		wg     sync.WaitGroup
		sem    = make(chan struct{}, workers)
	)

	// Workers run on a detached context: cancellation stops dispatch only,
	// a setting already handed to a worker commits or fails on its own.
	runCtx := context.WithoutCancel(ctx)

	for _, s := range settings {
		// Stop dispatching on cancellation; in-flight workers finish.
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(s PolicySetting) {
			defer wg.Done()
			defer func() { <-sem }()

			processed, err := fn(runCtx, s)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.Errors++
				log.Printf("[Sweep] error on setting %s (user %s): %v", s.ID, s.UserID, err)
			case processed:
				result.Processed++
			default:
				result.Skipped++
			}
		}(s)
	}

	wg.Wait()
	return result
}

func (sw *Sweeper) displayName(ctx context.Context, id UserID) string {
	if sw.Users == nil {
		return string(id)
	}
	return sw.Users.DisplayName(ctx, id)
}
