package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testSetting(id, user string) leave.PolicySetting {
	monthly := leave.FreqMonthly
	amount := dec("1.25")
	end := date(2026, time.December, 31)
	return leave.PolicySetting{
		ID:             leave.SettingID(id),
		UserID:         leave.UserID(user),
		TemplateID:     "annual-standard",
		LeaveType:      "Annual Leave",
		StartDate:      date(2025, time.January, 15),
		EndDate:        &end,
		AccrualType:    leave.AccrualTypeAccrual,
		Frequency:      &monthly,
		AccrualAmount:  &amount,
		MaxCap:         dec("30"),
		AllowCarryOver: true,
		MaxCarryOver:   dec("10"),
		CurrentBalance: dec("5.5"),
		CarriedOver:    dec("2"),
	}
}

func accrualEntry(id string, s leave.PolicySetting, eventDate time.Time, before, amount string) leave.LedgerEntry {
	b := dec(before)
	a := dec(amount)
	return leave.LedgerEntry{
		ID:            leave.EntryID(id),
		SettingID:     s.ID,
		UserID:        s.UserID,
		Type:          leave.EntryAccrual,
		Amount:        a,
		BalanceBefore: b,
		BalanceAfter:  b.Add(a),
		Description:   "MONTHLY accrual",
		EventDate:     eventDate,
		ProcessedAt:   eventDate.Add(6 * time.Hour),
		Meta: leave.AccrualMeta{
			Frequency:       leave.FreqMonthly,
			ScheduledAmount: a,
			ActualAmount:    a,
			MaxCap:          s.MaxCap,
		},
	}
}

// =============================================================================
// SETTINGS
// =============================================================================

func TestSaveSetting_RoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	s := testSetting("set-1", "user-1")

	require.NoError(t, st.SaveSetting(ctx, s))

	got, err := st.GetSetting(ctx, s.ID)
	require.NoError(t, err)

	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, s.UserID, got.UserID)
	assert.Equal(t, s.TemplateID, got.TemplateID)
	assert.Equal(t, s.LeaveType, got.LeaveType)
	assert.True(t, s.StartDate.Equal(got.StartDate))
	require.NotNil(t, got.EndDate)
	assert.True(t, s.EndDate.Equal(*got.EndDate))
	assert.Equal(t, leave.AccrualTypeAccrual, got.AccrualType)
	require.NotNil(t, got.Frequency)
	assert.Equal(t, leave.FreqMonthly, *got.Frequency)
	require.NotNil(t, got.AccrualAmount)
	assert.True(t, got.AccrualAmount.Equal(dec("1.25")))
	assert.True(t, got.MaxCap.Equal(dec("30")))
	assert.True(t, got.AllowCarryOver)
	assert.True(t, got.MaxCarryOver.Equal(dec("10")))
	assert.True(t, got.CurrentBalance.Equal(dec("5.5")))
	assert.True(t, got.CarriedOver.Equal(dec("2")))
	assert.Equal(t, 0, got.Version)
}

func TestSaveSetting_UpsertReplaces(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	s := testSetting("set-1", "user-1")
	require.NoError(t, st.SaveSetting(ctx, s))

	s.LeaveType = "Renamed Leave"
	require.NoError(t, st.SaveSetting(ctx, s))

	got, err := st.GetSetting(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed Leave", got.LeaveType)
}

func TestGetSetting_NotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.GetSetting(context.Background(), "missing")
	assert.ErrorIs(t, err, leave.ErrSettingNotFound)
}

func TestSaveSetting_RejectsInvalid(t *testing.T) {
	st := newTestStore(t)
	s := testSetting("set-1", "user-1")
	s.Frequency = nil // ACCRUAL without a frequency

	err := st.SaveSetting(context.Background(), s)
	assert.ErrorIs(t, err, leave.ErrInvalidSetting)
}

func TestActiveAccrualSettings_FiltersTypeWindowAndUser(t *testing.T) {
	// GIVEN: An active ACCRUAL setting, a FIXED one, an expired one, and
	//        one for another user
	// WHEN: Querying active accrual settings with a user filter
	// THEN: Only the matching active ACCRUAL setting comes back

	st := newTestStore(t)
	ctx := context.Background()

	active := testSetting("set-active", "user-1")
	require.NoError(t, st.SaveSetting(ctx, active))

	fixed := testSetting("set-fixed", "user-1")
	fixed.AccrualType = leave.AccrualTypeFixed
	fixed.Frequency = nil
	fixed.AccrualAmount = nil
	require.NoError(t, st.SaveSetting(ctx, fixed))

	expired := testSetting("set-expired", "user-1")
	expiredEnd := date(2025, time.February, 1)
	expired.EndDate = &expiredEnd
	require.NoError(t, st.SaveSetting(ctx, expired))

	other := testSetting("set-other", "user-2")
	require.NoError(t, st.SaveSetting(ctx, other))

	got, err := st.ActiveAccrualSettings(ctx, date(2025, time.June, 1), "user-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, active.ID, got[0].ID)
}

func TestCarryOverEligibleSettings_RequiresPositiveBalance(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	positive := testSetting("set-positive", "user-1")
	require.NoError(t, st.SaveSetting(ctx, positive))

	zero := testSetting("set-zero", "user-1")
	zero.CurrentBalance = decimal.Zero
	require.NoError(t, st.SaveSetting(ctx, zero))

	noCarry := testSetting("set-nocarry", "user-1")
	noCarry.AllowCarryOver = false
	require.NoError(t, st.SaveSetting(ctx, noCarry))

	got, err := st.CarryOverEligibleSettings(ctx, leave.YearEnd(2025), "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, positive.ID, got[0].ID)
}

// =============================================================================
// OPTIMISTIC LOCKING
// =============================================================================

func TestUpdateSettingBalance_VersionCAS(t *testing.T) {
	// GIVEN: A setting at version 0
	// WHEN: Writing with the right and then a stale version
	// THEN: The first write bumps the version; the stale one conflicts

	st := newTestStore(t)
	ctx := context.Background()
	s := testSetting("set-1", "user-1")
	require.NoError(t, st.SaveSetting(ctx, s))

	require.NoError(t, st.UpdateSettingBalance(ctx, s.ID, dec("6"), dec("2"), 0))

	got, err := st.GetSetting(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentBalance.Equal(dec("6")))
	assert.Equal(t, 1, got.Version)

	err = st.UpdateSettingBalance(ctx, s.ID, dec("7"), dec("2"), 0)
	assert.ErrorIs(t, err, leave.ErrConcurrentModification)

	err = st.UpdateSettingBalance(ctx, "missing", dec("1"), dec("0"), 0)
	assert.ErrorIs(t, err, leave.ErrSettingNotFound)
}

// =============================================================================
// LEDGER
// =============================================================================

func TestAppendEntry_RoundTripWithMeta(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	s := testSetting("set-1", "user-1")
	require.NoError(t, st.SaveSetting(ctx, s))

	e := accrualEntry("entry-1", s, date(2025, time.February, 15), "5.5", "1.25")
	require.NoError(t, st.AppendEntry(ctx, e))

	entries, err := st.EntriesForSetting(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got := entries[0]
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, leave.EntryAccrual, got.Type)
	assert.True(t, got.Amount.Equal(dec("1.25")))
	assert.True(t, got.BalanceBefore.Equal(dec("5.5")))
	assert.True(t, got.BalanceAfter.Equal(dec("6.75")))
	assert.True(t, got.EventDate.Equal(e.EventDate))

	meta, ok := got.Meta.(leave.AccrualMeta)
	require.True(t, ok, "meta decodes to its concrete type, got %T", got.Meta)
	assert.Equal(t, leave.FreqMonthly, meta.Frequency)
	assert.True(t, meta.ScheduledAmount.Equal(dec("1.25")))
}

func TestAppendEntry_RejectsInconsistentEntry(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	s := testSetting("set-1", "user-1")
	require.NoError(t, st.SaveSetting(ctx, s))

	e := accrualEntry("entry-bad", s, date(2025, time.February, 15), "5.5", "1.25")
	e.BalanceAfter = dec("100") // violates before + amount = after

	err := st.AppendEntry(ctx, e)
	assert.ErrorIs(t, err, leave.ErrInconsistentEntry)
}

func TestAppendEntry_DuplicateAccrualRejected(t *testing.T) {
	// GIVEN: An ACCRUAL entry for Feb 15
	// WHEN: Appending a second ACCRUAL for the same setting and event date
	// THEN: ErrDuplicateAccrual; a DEDUCTION on the same date is still fine

	st := newTestStore(t)
	ctx := context.Background()
	s := testSetting("set-1", "user-1")
	require.NoError(t, st.SaveSetting(ctx, s))
	feb15 := date(2025, time.February, 15)

	require.NoError(t, st.AppendEntry(ctx, accrualEntry("entry-1", s, feb15, "0", "1.25")))

	err := st.AppendEntry(ctx, accrualEntry("entry-2", s, feb15, "1.25", "1.25"))
	assert.ErrorIs(t, err, leave.ErrDuplicateAccrual)

	deduction := leave.LedgerEntry{
		ID:            "entry-3",
		SettingID:     s.ID,
		UserID:        s.UserID,
		Type:          leave.EntryDeduction,
		Amount:        dec("-1"),
		BalanceBefore: dec("1.25"),
		BalanceAfter:  dec("0.25"),
		EventDate:     feb15,
		ProcessedAt:   feb15,
		Meta:          leave.DeductionMeta{RequestRef: "req-1"},
	}
	assert.NoError(t, st.AppendEntry(ctx, deduction), "uniqueness applies to ACCRUAL entries only")
}

func TestAppendEntry_IDCollisionIsNotDuplicateAccrual(t *testing.T) {
	// GIVEN: An existing entry
	// WHEN: Appending a DEDUCTION that reuses its primary key
	// THEN: A plain storage error, not ErrDuplicateAccrual

	st := newTestStore(t)
	ctx := context.Background()
	s := testSetting("set-1", "user-1")
	require.NoError(t, st.SaveSetting(ctx, s))

	feb15 := date(2025, time.February, 15)
	require.NoError(t, st.AppendEntry(ctx, accrualEntry("entry-1", s, feb15, "0", "1.25")))

	clash := leave.LedgerEntry{
		ID:            "entry-1",
		SettingID:     s.ID,
		UserID:        s.UserID,
		Type:          leave.EntryDeduction,
		Amount:        dec("-1"),
		BalanceBefore: dec("1.25"),
		BalanceAfter:  dec("0.25"),
		EventDate:     date(2025, time.February, 20),
		ProcessedAt:   date(2025, time.February, 20),
		Meta:          leave.DeductionMeta{RequestRef: "req-1"},
	}
	err := st.AppendEntry(ctx, clash)
	require.Error(t, err)
	assert.NotErrorIs(t, err, leave.ErrDuplicateAccrual)
}

func TestLastAccrualEntry(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	s := testSetting("set-1", "user-1")
	require.NoError(t, st.SaveSetting(ctx, s))

	got, err := st.LastAccrualEntry(ctx, s.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "no accruals yet")

	require.NoError(t, st.AppendEntry(ctx, accrualEntry("entry-1", s, date(2025, time.February, 15), "0", "1.25")))
	require.NoError(t, st.AppendEntry(ctx, accrualEntry("entry-2", s, date(2025, time.March, 15), "1.25", "1.25")))

	got, err = st.LastAccrualEntry(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, leave.EntryID("entry-2"), got.ID)
}

func TestEntriesForUserInRange_Bounds(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	s := testSetting("set-1", "user-1")
	require.NoError(t, st.SaveSetting(ctx, s))

	require.NoError(t, st.AppendEntry(ctx, accrualEntry("entry-jan", s, date(2025, time.January, 31), "0", "1.25")))
	require.NoError(t, st.AppendEntry(ctx, accrualEntry("entry-mar", s, date(2025, time.March, 15), "1.25", "1.25")))
	require.NoError(t, st.AppendEntry(ctx, accrualEntry("entry-sep", s, date(2025, time.September, 15), "2.5", "1.25")))

	got, err := st.EntriesForUserInRange(ctx, s.UserID, date(2025, time.February, 1), date(2025, time.June, 30))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, leave.EntryID("entry-mar"), got[0].ID)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A transaction that writes a balance then fails
	// WHEN: WithTx returns the error
	// THEN: The balance write is rolled back

	st := newTestStore(t)
	ctx := context.Background()
	s := testSetting("set-1", "user-1")
	require.NoError(t, st.SaveSetting(ctx, s))

	boom := errors.New("boom")
	err := st.WithTx(ctx, func(tx leave.Store) error {
		if err := tx.UpdateSettingBalance(ctx, s.ID, dec("999"), dec("2"), 0); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := st.GetSetting(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentBalance.Equal(dec("5.5")), "rolled-back write must not persist")
	assert.Equal(t, 0, got.Version)
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	s := testSetting("set-1", "user-1")
	require.NoError(t, st.SaveSetting(ctx, s))

	err := st.WithTx(ctx, func(tx leave.Store) error {
		if err := tx.UpdateSettingBalance(ctx, s.ID, dec("6.75"), dec("2"), 0); err != nil {
			return err
		}
		return tx.AppendEntry(ctx, accrualEntry("entry-1", s, date(2025, time.February, 15), "5.5", "1.25"))
	})
	require.NoError(t, err)

	got, err := st.GetSetting(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentBalance.Equal(dec("6.75")))

	entries, err := st.EntriesForSetting(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// =============================================================================
// PROCESSOR INTEGRATION - full engine against SQLite
// =============================================================================

func TestProcessor_EndToEndOnSQLite(t *testing.T) {
	// GIVEN: A fresh setting persisted in SQLite
	// WHEN: Accruing twice, deducting once, then carrying over
	// THEN: Balances and the ledger agree across the store boundary

	st := newTestStore(t)
	ctx := context.Background()

	s := testSetting("set-1", "user-1")
	s.CurrentBalance = decimal.Zero
	s.CarriedOver = decimal.Zero
	s.MaxCarryOver = dec("1")
	require.NoError(t, st.SaveSetting(ctx, s))

	p := leave.NewProcessor(st)

	_, err := p.ApplyAccrual(ctx, s.ID, date(2025, time.February, 15))
	require.NoError(t, err)
	_, err = p.ApplyAccrual(ctx, s.ID, date(2025, time.March, 15))
	require.NoError(t, err)
	_, err = p.ApplyDeduction(ctx, s.ID, dec("1"), date(2025, time.April, 1), "One day off", "req-9")
	require.NoError(t, err)

	res, err := p.ApplyYearEndCarryOver(ctx, s.ID, leave.YearEnd(2025))
	require.NoError(t, err)
	assert.True(t, res.Carried.Equal(dec("1")))
	assert.True(t, res.Forfeited.Equal(dec("0.5")))

	got, err := st.GetSetting(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentBalance.Equal(dec("1")))
	assert.Equal(t, 4, got.Version, "one version bump per balance write")

	entries, err := st.EntriesForSetting(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 5) // 2 accruals + 1 deduction + carry-over + forfeiture
	for _, e := range entries {
		assert.NoError(t, e.CheckConsistency(), "entry %s (%s)", e.ID, e.Type)
	}
}

// =============================================================================
// USERS
// =============================================================================

func TestDisplayName_FallsBackToID(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	assert.Equal(t, "ghost", st.DisplayName(ctx, "ghost"))

	require.NoError(t, st.SaveUser(ctx, leave.User{ID: "user-1", Name: "Ada Lovelace"}))
	assert.Equal(t, "Ada Lovelace", st.DisplayName(ctx, "user-1"))

	require.NoError(t, st.SaveUser(ctx, leave.User{ID: "user-1", Name: "Ada L."}))
	assert.Equal(t, "Ada L.", st.DisplayName(ctx, "user-1"), "SaveUser upserts")
}
