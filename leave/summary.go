/*
summary.go - Read-only rollups over the ledger

PURPOSE:
  Aggregates a user's ledger entries over a date range: signed totals per
  entry type, the same totals grouped by leave type, and the most recent
  entries for display.

CONVENTION:
  Totals are sums of signed amounts as stored: DEDUCTION totals come out
  negative, ACCRUAL and CARRY_OVER positive. Pinned by summary_test.go;
  a UI that wants absolute "used" figures negates at the edge.
*/
package leave

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultRecentLimit caps Summary.Recent when the caller passes no limit.
const DefaultRecentLimit = 10

// Summary is the rollup returned by Aggregator.Summarize.
type Summary struct {
	UserID UserID
	From   time.Time
	To     time.Time

	// TotalsByType sums signed amounts per entry type. Types with no
	// entries in range are present with a zero total.
	TotalsByType map[EntryType]decimal.Decimal

	// TotalsByLeaveType groups the same signed sums by the leave-type name
	// of the entry's policy setting.
	TotalsByLeaveType map[string]decimal.Decimal

	// Recent holds the most recent entries (by event date, then
	// processed-at) in reverse-chronological order.
	Recent []LedgerEntry
}

// Aggregator is the pure read path over the ledger.
type Aggregator struct {
	Store Store
}

// Summarize rolls up a user's entries with event date in [from, to].
// recentLimit <= 0 selects DefaultRecentLimit. An empty range yields zero
// totals and an empty Recent, not an error.
func (a *Aggregator) Summarize(ctx context.Context, userID UserID, from, to time.Time, recentLimit int) (Summary, error) {
	if recentLimit <= 0 {
		recentLimit = DefaultRecentLimit
	}

	entries, err := a.Store.EntriesForUserInRange(ctx, userID, from, to)
	if err != nil {
		return Summary{}, fmt.Errorf("load entries for %s: %w", userID, err)
	}

	// Leave-type names come from the user's settings.
	settings, err := a.Store.ListSettingsForUser(ctx, userID)
	if err != nil {
		return Summary{}, fmt.Errorf("load settings for %s: %w", userID, err)
	}
	leaveTypes := make(map[SettingID]string, len(settings))
	for _, s := range settings {
		leaveTypes[s.ID] = s.LeaveType
	}

	summary := Summary{
		UserID: userID,
		From:   from,
		To:     to,
		TotalsByType: map[EntryType]decimal.Decimal{
			EntryAccrual:    decimal.Zero,
			EntryDeduction:  decimal.Zero,
			EntryCarryOver:  decimal.Zero,
			EntryAdjustment: decimal.Zero,
		},
		TotalsByLeaveType: make(map[string]decimal.Decimal),
	}

	for _, e := range entries {
		summary.TotalsByType[e.Type] = summary.TotalsByType[e.Type].Add(e.Amount)

		name := leaveTypes[e.SettingID]
		if name == "" {
			name = string(e.SettingID)
		}
		summary.TotalsByLeaveType[name] = summary.TotalsByLeaveType[name].Add(e.Amount)
	}

	// Store order is ascending; reverse-chronological for display.
	recent := make([]LedgerEntry, len(entries))
	copy(recent, entries)
	sort.SliceStable(recent, func(i, j int) bool {
		if !recent[i].EventDate.Equal(recent[j].EventDate) {
			return recent[i].EventDate.After(recent[j].EventDate)
		}
		return recent[i].ProcessedAt.After(recent[j].ProcessedAt)
	})
	if len(recent) > recentLimit {
		recent = recent[:recentLimit]
	}
	summary.Recent = recent

	return summary, nil
}
