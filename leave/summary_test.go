package leave_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-ledger/leave"
)

func TestSummarize_SignedTotalsPerEntryType(t *testing.T) {
	// GIVEN: Accruals of 1.25 in Feb/Mar/Apr and one 3.0 deduction
	// WHEN: Summarizing the year
	// THEN: ACCRUAL totals +3.75 and DEDUCTION totals -3.0 (signed sums)

	s := monthlySetting("set-1", "user-1", date(2025, time.January, 15))
	st := newTestStore(t, s)
	p := newTestProcessor(st)
	ctx := context.Background()

	for _, m := range []time.Month{time.February, time.March, time.April} {
		_, err := p.ApplyAccrual(ctx, s.ID, date(2025, m, 15))
		require.NoError(t, err)
	}
	_, err := p.ApplyDeduction(ctx, s.ID, dec("3"), date(2025, time.May, 2), "Long weekend", "req-7")
	require.NoError(t, err)

	agg := &leave.Aggregator{Store: st}
	summary, err := agg.Summarize(ctx, s.UserID, date(2025, time.January, 1), date(2025, time.December, 31), 0)
	require.NoError(t, err)

	assert.True(t, summary.TotalsByType[leave.EntryAccrual].Equal(dec("3.75")),
		"accrued %s", summary.TotalsByType[leave.EntryAccrual])
	assert.True(t, summary.TotalsByType[leave.EntryDeduction].Equal(dec("-3")),
		"deducted %s", summary.TotalsByType[leave.EntryDeduction])
	assert.True(t, summary.TotalsByType[leave.EntryCarryOver].IsZero())
	assert.True(t, summary.TotalsByType[leave.EntryAdjustment].IsZero())

	// Net movement checks out: 3.75 - 3.0 = 0.75.
	net := summary.TotalsByType[leave.EntryAccrual].Add(summary.TotalsByType[leave.EntryDeduction])
	assert.True(t, net.Equal(dec("0.75")))
}

func TestSummarize_GroupsByLeaveType(t *testing.T) {
	// GIVEN: A user with an annual-leave and a sick-leave setting
	// WHEN: Summarizing
	// THEN: Totals split by the settings' leave-type names

	annual := monthlySetting("set-annual", "user-1", date(2025, time.January, 1))
	sick := monthlySetting("set-sick", "user-1", date(2025, time.January, 1))
	sick.LeaveType = "Sick Leave"
	one := dec("1")
	sick.AccrualAmount = &one

	st := newTestStore(t, annual, sick)
	p := newTestProcessor(st)
	ctx := context.Background()

	_, err := p.ApplyAccrual(ctx, annual.ID, date(2025, time.February, 1))
	require.NoError(t, err)
	_, err = p.ApplyAccrual(ctx, sick.ID, date(2025, time.February, 1))
	require.NoError(t, err)

	agg := &leave.Aggregator{Store: st}
	summary, err := agg.Summarize(ctx, "user-1", date(2025, time.January, 1), date(2025, time.December, 31), 0)
	require.NoError(t, err)

	assert.True(t, summary.TotalsByLeaveType["Annual Leave"].Equal(dec("1.25")))
	assert.True(t, summary.TotalsByLeaveType["Sick Leave"].Equal(dec("1")))
}

func TestSummarize_RangeExcludesOutsideEvents(t *testing.T) {
	// GIVEN: Entries in March and September
	// WHEN: Summarizing January through June
	// THEN: Only the March entry counts

	s := monthlySetting("set-1", "user-1", date(2025, time.January, 1))
	st := newTestStore(t, s)
	p := newTestProcessor(st)
	ctx := context.Background()

	_, err := p.ApplyAccrual(ctx, s.ID, date(2025, time.March, 1))
	require.NoError(t, err)
	_, err = p.ApplyAccrual(ctx, s.ID, date(2025, time.September, 1))
	require.NoError(t, err)

	agg := &leave.Aggregator{Store: st}
	summary, err := agg.Summarize(ctx, s.UserID, date(2025, time.January, 1), date(2025, time.June, 30), 0)
	require.NoError(t, err)

	assert.True(t, summary.TotalsByType[leave.EntryAccrual].Equal(dec("1.25")))
	assert.Len(t, summary.Recent, 1)
}

func TestSummarize_RecentIsReverseChronologicalAndCapped(t *testing.T) {
	// GIVEN: Five monthly accruals
	// WHEN: Summarizing with a recent limit of 3
	// THEN: The three latest entries, newest first

	s := monthlySetting("set-1", "user-1", date(2025, time.January, 1))
	st := newTestStore(t, s)
	p := newTestProcessor(st)
	ctx := context.Background()

	for _, m := range []time.Month{time.February, time.March, time.April, time.May, time.June} {
		_, err := p.ApplyAccrual(ctx, s.ID, date(2025, m, 1))
		require.NoError(t, err)
	}

	agg := &leave.Aggregator{Store: st}
	summary, err := agg.Summarize(ctx, s.UserID, date(2025, time.January, 1), date(2025, time.December, 31), 3)
	require.NoError(t, err)

	require.Len(t, summary.Recent, 3)
	assert.Equal(t, date(2025, time.June, 1), summary.Recent[0].EventDate)
	assert.Equal(t, date(2025, time.May, 1), summary.Recent[1].EventDate)
	assert.Equal(t, date(2025, time.April, 1), summary.Recent[2].EventDate)
}

func TestSummarize_EmptyRange_ZeroTotals(t *testing.T) {
	// GIVEN: A user with no ledger activity
	// WHEN: Summarizing any range
	// THEN: All four entry types report zero; no error

	st := newTestStore(t)
	agg := &leave.Aggregator{Store: st}

	summary, err := agg.Summarize(context.Background(), "ghost", date(2025, time.January, 1), date(2025, time.December, 31), 0)
	require.NoError(t, err)

	require.Len(t, summary.TotalsByType, 4)
	for entryType, total := range summary.TotalsByType {
		assert.True(t, total.IsZero(), "type %s", entryType)
	}
	assert.Empty(t, summary.Recent)
}
