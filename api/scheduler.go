/*
scheduler.go - Automated sweep scheduler

PURPOSE:
  Runs the accrual and carry-over sweeps on a cron schedule so balances
  stay current without manual sweep calls.

DESIGN:
  - Daily accrual sweep shortly after midnight UTC; any setting whose
    next due date has been reached gets one period posted. Catch-up for
    longer outages happens one period per run.
  - Carry-over sweep in the early hours of January 1st, closing out the
    year that just ended.
  - Schedules are cron expressions and can be overridden for testing
    (e.g. every-minute accrual against PER_MINUTE settings).

USAGE:
  scheduler := NewScheduler(handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - leave/sweep.go: the sweeps themselves
  - handlers.go: manual sweep endpoints
*/
package api

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Default schedules, UTC.
const (
	DefaultAccrualSchedule   = "15 0 * * *" // daily at 00:15
	DefaultCarryOverSchedule = "0 2 1 1 *"  // Jan 1 at 02:00
)

// Scheduler wires the sweeps into a cron runner.
type Scheduler struct {
	Handler *Handler

	// Cron expressions; empty selects the defaults.
	AccrualSchedule   string
	CarryOverSchedule string

	cron *cron.Cron
}

func NewScheduler(h *Handler) *Scheduler {
	return &Scheduler{
		Handler:           h,
		AccrualSchedule:   DefaultAccrualSchedule,
		CarryOverSchedule: DefaultCarryOverSchedule,
		cron:              cron.New(cron.WithLocation(time.UTC)),
	}
}

// Start registers the jobs and begins the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.AccrualSchedule, s.runAccrual); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.CarryOverSchedule, s.runCarryOver); err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("[Scheduler] Started (accrual %q, carry-over %q)", s.AccrualSchedule, s.CarryOverSchedule)
	return nil
}

// Stop halts the cron loop and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("[Scheduler] Stopped")
}

func (s *Scheduler) runAccrual() {
	ctx := context.Background()
	asOf := s.Handler.Now().UTC()

	result, err := s.Handler.Sweeper.RunAccrualSweep(ctx, asOf, false, "")
	if err != nil {
		log.Printf("[Scheduler] Accrual sweep failed: %v", err)
		return
	}
	log.Printf("[Scheduler] Accrual sweep: processed=%d skipped=%d errors=%d",
		result.Processed, result.Skipped, result.Errors)
}

func (s *Scheduler) runCarryOver() {
	ctx := context.Background()
	// Running just after midnight on Jan 1 closes out the year that
	// has just ended.
	year := s.Handler.Now().UTC().Year() - 1

	result, err := s.Handler.Sweeper.RunCarryOverSweep(ctx, year, false, "")
	if err != nil {
		log.Printf("[Scheduler] Carry-over sweep for %d failed: %v", year, err)
		return
	}
	log.Printf("[Scheduler] Carry-over sweep for %d: processed=%d skipped=%d errors=%d",
		year, result.Processed, result.Skipped, result.Errors)
}
