/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements leave.TxStore and leave.UserDirectory using SQLite. In
  production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements touch ledger_entries
  - Corrections are new ADJUSTMENT entries
  - A partial unique index rejects a second ACCRUAL entry for the same
    (setting, event date), so re-running a scheduled accrual is a no-op
    error instead of a double credit

KEY TABLES:
  policy_settings:  Per-user leave entitlement configuration + balance
  ledger_entries:   Immutable ledger of all balance changes
  users:            Display names for batch-run reporting

CONCURRENCY:
  A process-wide write mutex serializes mutations, and every balance write
  is additionally guarded by a version compare-and-swap so a second
  process against the same file cannot interleave a read-modify-write.

WAL MODE:
  The database is opened with WAL (Write-Ahead Logging): readers don't
  block, single writer at a time, better crash recovery.

NUMERIC PRECISION:
  Balances and amounts are stored as TEXT and parsed with
  shopspring/decimal. REAL columns are not acceptable for balance-cap and
  forfeiture arithmetic.

SEE ALSO:
  - leave/store.go: Interface definitions
  - leave/store/memory.go: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-ledger/leave"
)

// Store implements leave.TxStore and leave.UserDirectory using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ leave.TxStore = (*Store)(nil)
var _ leave.UserDirectory = (*Store)(nil)

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: SQLite allows a single writer anyway, and pooled
	// connections against ":memory:" would each see a separate database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Policy settings: one row per (user, leave entitlement)
	CREATE TABLE IF NOT EXISTS policy_settings (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		template_id TEXT,
		leave_type TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT,
		accrual_type TEXT NOT NULL,
		frequency TEXT,
		accrual_amount TEXT,
		max_cap TEXT NOT NULL,
		allow_carry_over INTEGER NOT NULL DEFAULT 0,
		max_carry_over TEXT NOT NULL,
		current_balance TEXT NOT NULL,
		carried_over TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_settings_user
		ON policy_settings(user_id);
	CREATE INDEX IF NOT EXISTS idx_settings_accrual
		ON policy_settings(accrual_type, start_date);

	-- Ledger entries (append-only)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		setting_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		entry_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		balance_before TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		description TEXT,
		meta_json TEXT,
		event_date TEXT NOT NULL,
		processed_at TEXT NOT NULL
	);

	-- Hot path: last-accrual lookup and ledger listing
	CREATE INDEX IF NOT EXISTS idx_entries_setting_date
		ON ledger_entries(setting_id, event_date DESC);

	-- Summary queries
	CREATE INDEX IF NOT EXISTS idx_entries_user_date
		ON ledger_entries(user_id, event_date);

	-- CRITICAL: one ACCRUAL entry per (setting, event date). Re-running a
	-- scheduled accrual must not double-credit.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_accrual_unique
		ON ledger_entries(setting_id, event_date)
		WHERE entry_type = 'ACCRUAL';

	-- Users (display names for reporting)
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// runner abstracts *sql.DB and *sql.Tx so the same statements serve both
// direct and transactional paths.
type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// SETTINGS
// =============================================================================

func (s *Store) SaveSetting(ctx context.Context, setting leave.PolicySetting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveSetting(ctx, s.db, setting)
}

func saveSetting(ctx context.Context, db runner, setting leave.PolicySetting) error {
	if err := setting.Validate(); err != nil {
		return err
	}

	var endDate, frequency, accrualAmount, templateID any
	if setting.EndDate != nil {
		endDate = setting.EndDate.UTC().Format(time.RFC3339)
	}
	if setting.Frequency != nil {
		frequency = string(*setting.Frequency)
	}
	if setting.AccrualAmount != nil {
		accrualAmount = setting.AccrualAmount.String()
	}
	if setting.TemplateID != "" {
		templateID = string(setting.TemplateID)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	query := `
		INSERT INTO policy_settings
		(id, user_id, template_id, leave_type, start_date, end_date, accrual_type,
		 frequency, accrual_amount, max_cap, allow_carry_over, max_carry_over,
		 current_balance, carried_over, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			template_id = excluded.template_id,
			leave_type = excluded.leave_type,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			accrual_type = excluded.accrual_type,
			frequency = excluded.frequency,
			accrual_amount = excluded.accrual_amount,
			max_cap = excluded.max_cap,
			allow_carry_over = excluded.allow_carry_over,
			max_carry_over = excluded.max_carry_over,
			current_balance = excluded.current_balance,
			carried_over = excluded.carried_over,
			version = excluded.version,
			updated_at = excluded.updated_at
	`
	_, err := db.ExecContext(ctx, query,
		setting.ID, setting.UserID, templateID, setting.LeaveType,
		setting.StartDate.UTC().Format(time.RFC3339), endDate,
		setting.AccrualType, frequency, accrualAmount,
		setting.MaxCap.String(), setting.AllowCarryOver, setting.MaxCarryOver.String(),
		setting.CurrentBalance.String(), setting.CarriedOver.String(),
		setting.Version, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save setting: %w", err)
	}
	return nil
}

const settingColumns = `id, user_id, template_id, leave_type, start_date, end_date, accrual_type,
	frequency, accrual_amount, max_cap, allow_carry_over, max_carry_over,
	current_balance, carried_over, version`

func (s *Store) GetSetting(ctx context.Context, id leave.SettingID) (leave.PolicySetting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getSetting(ctx, s.db, id)
}

func getSetting(ctx context.Context, db runner, id leave.SettingID) (leave.PolicySetting, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+settingColumns+` FROM policy_settings WHERE id = ?`, id)
	if err != nil {
		return leave.PolicySetting{}, fmt.Errorf("failed to query setting: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return leave.PolicySetting{}, err
		}
		return leave.PolicySetting{}, leave.ErrSettingNotFound
	}
	return scanSetting(rows)
}

func (s *Store) ListSettingsForUser(ctx context.Context, userID leave.UserID) ([]leave.PolicySetting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return querySettings(ctx, s.db,
		`SELECT `+settingColumns+` FROM policy_settings WHERE user_id = ? ORDER BY id`, userID)
}

func (s *Store) ActiveAccrualSettings(ctx context.Context, asOf time.Time, userFilter leave.UserID) ([]leave.PolicySetting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return activeAccrualSettings(ctx, s.db, asOf, userFilter)
}

func activeAccrualSettings(ctx context.Context, db runner, asOf time.Time, userFilter leave.UserID) ([]leave.PolicySetting, error) {
	asOfStr := asOf.UTC().Format(time.RFC3339)
	query := `
		SELECT ` + settingColumns + `
		FROM policy_settings
		WHERE accrual_type = 'ACCRUAL'
		  AND start_date <= ?
		  AND (end_date IS NULL OR end_date >= ?)
	`
	args := []any{asOfStr, asOfStr}
	if userFilter != "" {
		query += ` AND user_id = ?`
		args = append(args, userFilter)
	}
	query += ` ORDER BY id`
	return querySettings(ctx, db, query, args...)
}

func (s *Store) CarryOverEligibleSettings(ctx context.Context, yearEnd time.Time, userFilter leave.UserID) ([]leave.PolicySetting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return carryOverEligibleSettings(ctx, s.db, yearEnd, userFilter)
}

func carryOverEligibleSettings(ctx context.Context, db runner, yearEnd time.Time, userFilter leave.UserID) ([]leave.PolicySetting, error) {
	// current_balance is TEXT; positivity is re-checked after scan rather
	// than in SQL to keep decimal semantics out of the database.
	query := `
		SELECT ` + settingColumns + `
		FROM policy_settings
		WHERE allow_carry_over = 1
		  AND start_date <= ?
	`
	args := []any{yearEnd.UTC().Format(time.RFC3339)}
	if userFilter != "" {
		query += ` AND user_id = ?`
		args = append(args, userFilter)
	}
	query += ` ORDER BY id`

	settings, err := querySettings(ctx, db, query, args...)
	if err != nil {
		return nil, err
	}
	eligible := settings[:0]
	for _, st := range settings {
		if st.CurrentBalance.IsPositive() {
			eligible = append(eligible, st)
		}
	}
	return eligible, nil
}

func (s *Store) UpdateSettingBalance(ctx context.Context, id leave.SettingID, balance, carriedOver decimal.Decimal, expectVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateSettingBalance(ctx, s.db, id, balance, carriedOver, expectVersion)
}

func updateSettingBalance(ctx context.Context, db runner, id leave.SettingID, balance, carriedOver decimal.Decimal, expectVersion int) error {
	res, err := db.ExecContext(ctx, `
		UPDATE policy_settings
		SET current_balance = ?, carried_over = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`, balance.String(), carriedOver.String(), time.Now().UTC().Format(time.RFC3339), id, expectVersion)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Either the row is gone or the version moved underneath us.
		if _, err := getSetting(ctx, db, id); err != nil {
			return err
		}
		return leave.ErrConcurrentModification
	}
	return nil
}

func querySettings(ctx context.Context, db runner, query string, args ...any) ([]leave.PolicySetting, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	var settings []leave.PolicySetting
	for rows.Next() {
		setting, err := scanSetting(rows)
		if err != nil {
			return nil, err
		}
		settings = append(settings, setting)
	}
	return settings, rows.Err()
}

func scanSetting(rows *sql.Rows) (leave.PolicySetting, error) {
	var (
		setting       leave.PolicySetting
		templateID    sql.NullString
		startDate     string
		endDate       sql.NullString
		frequency     sql.NullString
		accrualAmount sql.NullString
		maxCap        string
		maxCarryOver  string
		balance       string
		carriedOver   string
	)

	err := rows.Scan(
		&setting.ID, &setting.UserID, &templateID, &setting.LeaveType,
		&startDate, &endDate, &setting.AccrualType,
		&frequency, &accrualAmount, &maxCap, &setting.AllowCarryOver,
		&maxCarryOver, &balance, &carriedOver, &setting.Version,
	)
	if err != nil {
		return setting, fmt.Errorf("failed to scan setting: %w", err)
	}

	setting.TemplateID = leave.TemplateID(templateID.String)
	if setting.StartDate, err = time.Parse(time.RFC3339, startDate); err != nil {
		return setting, fmt.Errorf("bad start_date for %s: %w", setting.ID, err)
	}
	if endDate.Valid {
		t, err := time.Parse(time.RFC3339, endDate.String)
		if err != nil {
			return setting, fmt.Errorf("bad end_date for %s: %w", setting.ID, err)
		}
		setting.EndDate = &t
	}
	if frequency.Valid {
		f := leave.Frequency(frequency.String)
		setting.Frequency = &f
	}
	if accrualAmount.Valid {
		d, err := decimal.NewFromString(accrualAmount.String)
		if err != nil {
			return setting, fmt.Errorf("bad accrual_amount for %s: %w", setting.ID, err)
		}
		setting.AccrualAmount = &d
	}
	if setting.MaxCap, err = decimal.NewFromString(maxCap); err != nil {
		return setting, fmt.Errorf("bad max_cap for %s: %w", setting.ID, err)
	}
	if setting.MaxCarryOver, err = decimal.NewFromString(maxCarryOver); err != nil {
		return setting, fmt.Errorf("bad max_carry_over for %s: %w", setting.ID, err)
	}
	if setting.CurrentBalance, err = decimal.NewFromString(balance); err != nil {
		return setting, fmt.Errorf("bad current_balance for %s: %w", setting.ID, err)
	}
	if setting.CarriedOver, err = decimal.NewFromString(carriedOver); err != nil {
		return setting, fmt.Errorf("bad carried_over for %s: %w", setting.ID, err)
	}
	return setting, nil
}

// =============================================================================
// LEDGER (append-only)
// =============================================================================

func (s *Store) AppendEntry(ctx context.Context, e leave.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendEntry(ctx, s.db, e)
}

func appendEntry(ctx context.Context, db runner, e leave.LedgerEntry) error {
	if err := e.CheckConsistency(); err != nil {
		return err
	}

	metaJSON, err := leave.EncodeMeta(e.Meta)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO ledger_entries
		(id, setting_id, user_id, entry_type, amount, balance_before, balance_after,
		 description, meta_json, event_date, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.SettingID, e.UserID, e.Type,
		e.Amount.String(), e.BalanceBefore.String(), e.BalanceAfter.String(),
		e.Description, nullBytes(metaJSON),
		e.EventDate.UTC().Format(time.RFC3339),
		e.ProcessedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isAccrualUniqueError(err) {
			return leave.ErrDuplicateAccrual
		}
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

const entryColumns = `id, setting_id, user_id, entry_type, amount, balance_before,
	balance_after, description, meta_json, event_date, processed_at`

func (s *Store) LastAccrualEntry(ctx context.Context, settingID leave.SettingID) (*leave.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lastAccrualEntry(ctx, s.db, settingID)
}

func lastAccrualEntry(ctx context.Context, db runner, settingID leave.SettingID) (*leave.LedgerEntry, error) {
	entries, err := queryEntries(ctx, db, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE setting_id = ? AND entry_type = 'ACCRUAL'
		ORDER BY event_date DESC, processed_at DESC
		LIMIT 1
	`, settingID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

func (s *Store) EntriesForSetting(ctx context.Context, settingID leave.SettingID) ([]leave.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryEntries(ctx, s.db, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE setting_id = ?
		ORDER BY event_date ASC, processed_at ASC
	`, settingID)
}

func (s *Store) EntriesForUserInRange(ctx context.Context, userID leave.UserID, from, to time.Time) ([]leave.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryEntries(ctx, s.db, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE user_id = ? AND event_date >= ? AND event_date <= ?
		ORDER BY event_date ASC, processed_at ASC
	`, userID, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
}

func queryEntries(ctx context.Context, db runner, query string, args ...any) ([]leave.LedgerEntry, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []leave.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (leave.LedgerEntry, error) {
	var (
		e             leave.LedgerEntry
		amount        string
		balanceBefore string
		balanceAfter  string
		description   sql.NullString
		metaJSON      sql.NullString
		eventDate     string
		processedAt   string
	)

	err := rows.Scan(
		&e.ID, &e.SettingID, &e.UserID, &e.Type,
		&amount, &balanceBefore, &balanceAfter,
		&description, &metaJSON, &eventDate, &processedAt,
	)
	if err != nil {
		return e, fmt.Errorf("failed to scan entry: %w", err)
	}

	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return e, fmt.Errorf("bad amount for entry %s: %w", e.ID, err)
	}
	if e.BalanceBefore, err = decimal.NewFromString(balanceBefore); err != nil {
		return e, fmt.Errorf("bad balance_before for entry %s: %w", e.ID, err)
	}
	if e.BalanceAfter, err = decimal.NewFromString(balanceAfter); err != nil {
		return e, fmt.Errorf("bad balance_after for entry %s: %w", e.ID, err)
	}
	e.Description = description.String
	if metaJSON.Valid && metaJSON.String != "" {
		if e.Meta, err = leave.DecodeMeta([]byte(metaJSON.String)); err != nil {
			return e, err
		}
	}
	if e.EventDate, err = time.Parse(time.RFC3339, eventDate); err != nil {
		return e, fmt.Errorf("bad event_date for entry %s: %w", e.ID, err)
	}
	if e.ProcessedAt, err = time.Parse(time.RFC3339, processedAt); err != nil {
		return e, fmt.Errorf("bad processed_at for entry %s: %w", e.ID, err)
	}
	return e, nil
}

// =============================================================================
// USERS
// =============================================================================

func (s *Store) SaveUser(ctx context.Context, u leave.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, u.ID, u.Name, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// DisplayName returns the stored name, falling back to the raw ID so
// reporting never fails on an unknown user.
func (s *Store) DisplayName(ctx context.Context, id leave.UserID) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM users WHERE id = ?`, id).Scan(&name)
	if err != nil || name == "" {
		return string(id)
	}
	return name
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction. The write mutex is held
// for the duration so the balance read, balance write, and ledger append
// commit as one serialized unit.
func (s *Store) WithTx(ctx context.Context, fn func(leave.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore routes every statement through the open transaction.
type txStore struct {
	tx *sql.Tx
}

var _ leave.Store = (*txStore)(nil)

func (ts *txStore) SaveSetting(ctx context.Context, setting leave.PolicySetting) error {
	return saveSetting(ctx, ts.tx, setting)
}

func (ts *txStore) GetSetting(ctx context.Context, id leave.SettingID) (leave.PolicySetting, error) {
	return getSetting(ctx, ts.tx, id)
}

func (ts *txStore) ListSettingsForUser(ctx context.Context, userID leave.UserID) ([]leave.PolicySetting, error) {
	return querySettings(ctx, ts.tx,
		`SELECT `+settingColumns+` FROM policy_settings WHERE user_id = ? ORDER BY id`, userID)
}

func (ts *txStore) ActiveAccrualSettings(ctx context.Context, asOf time.Time, userFilter leave.UserID) ([]leave.PolicySetting, error) {
	return activeAccrualSettings(ctx, ts.tx, asOf, userFilter)
}

func (ts *txStore) CarryOverEligibleSettings(ctx context.Context, yearEnd time.Time, userFilter leave.UserID) ([]leave.PolicySetting, error) {
	return carryOverEligibleSettings(ctx, ts.tx, yearEnd, userFilter)
}

func (ts *txStore) UpdateSettingBalance(ctx context.Context, id leave.SettingID, balance, carriedOver decimal.Decimal, expectVersion int) error {
	return updateSettingBalance(ctx, ts.tx, id, balance, carriedOver, expectVersion)
}

func (ts *txStore) AppendEntry(ctx context.Context, e leave.LedgerEntry) error {
	return appendEntry(ctx, ts.tx, e)
}

func (ts *txStore) LastAccrualEntry(ctx context.Context, settingID leave.SettingID) (*leave.LedgerEntry, error) {
	return lastAccrualEntry(ctx, ts.tx, settingID)
}

func (ts *txStore) EntriesForSetting(ctx context.Context, settingID leave.SettingID) ([]leave.LedgerEntry, error) {
	return queryEntries(ctx, ts.tx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE setting_id = ?
		ORDER BY event_date ASC, processed_at ASC
	`, settingID)
}

func (ts *txStore) EntriesForUserInRange(ctx context.Context, userID leave.UserID, from, to time.Time) ([]leave.LedgerEntry, error) {
	return queryEntries(ctx, ts.tx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE user_id = ? AND event_date >= ? AND event_date <= ?
		ORDER BY event_date ASC, processed_at ASC
	`, userID, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
}

// =============================================================================
// HELPERS
// =============================================================================

// isAccrualUniqueError reports whether err is a violation of the partial
// unique index on (setting_id, event_date) for ACCRUAL rows. Other unique
// violations, such as an id primary-key collision, are not duplicates of an
// accrual and must surface as plain storage errors.
func isAccrualUniqueError(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique &&
		strings.Contains(se.Error(), "ledger_entries.setting_id")
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
