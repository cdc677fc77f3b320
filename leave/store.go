/*
store.go - Persistence interfaces for settings and the ledger

PURPOSE:
  Defines the interface between the engine and the database. Different
  implementations can use SQLite, PostgreSQL, or in-memory storage; the
  invariants (append-only ledger, serialized balance writes) hold for all
  of them.

APPEND-ONLY CONTRACT:
  Ledger entries have exactly one write operation: AppendEntry. There is
  no update or delete. Corrections are new ADJUSTMENT entries.

BALANCE WRITES:
  UpdateSettingBalance is a compare-and-swap on the setting's Version.
  A stale version returns ErrConcurrentModification so two concurrent
  processors cannot interleave a read-modify-write on the same setting.

TRANSACTIONS:
  TxStore.WithTx brackets the balance read, balance write, and ledger
  append into one atomic unit. A crash between the two writes must never
  leave a mutated balance without its ledger entry (or vice versa).

IMPLEMENTATIONS:
  - store/sqlite: production SQLite (WAL)
  - leave/store: in-memory for tests and development

SEE ALSO:
  - processor.go: The only writer of balances and ledger entries
*/
package leave

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store handles persistence of policy settings and ledger entries.
type Store interface {
	// SaveSetting inserts or replaces a policy setting.
	SaveSetting(ctx context.Context, s PolicySetting) error

	// GetSetting returns a setting by ID, or ErrSettingNotFound.
	GetSetting(ctx context.Context, id SettingID) (PolicySetting, error)

	// ListSettingsForUser returns all settings for a user.
	ListSettingsForUser(ctx context.Context, userID UserID) ([]PolicySetting, error)

	// ActiveAccrualSettings returns all ACCRUAL-type settings active as of
	// asOf, optionally filtered to one user (empty userFilter = all users).
	ActiveAccrualSettings(ctx context.Context, asOf time.Time, userFilter UserID) ([]PolicySetting, error)

	// CarryOverEligibleSettings returns all settings with AllowCarryOver,
	// a positive balance, and StartDate <= yearEnd, optionally filtered to
	// one user.
	CarryOverEligibleSettings(ctx context.Context, yearEnd time.Time, userFilter UserID) ([]PolicySetting, error)

	// UpdateSettingBalance writes a new balance and cumulative carried-over
	// total for a setting, guarded by the optimistic version: the write
	// succeeds only if the stored Version equals expectVersion, and bumps
	// it by one. A mismatch returns ErrConcurrentModification.
	UpdateSettingBalance(ctx context.Context, id SettingID, balance, carriedOver decimal.Decimal, expectVersion int) error

	// AppendEntry adds a ledger entry. This is the ONLY ledger write.
	// Appending a second ACCRUAL entry for the same (setting, event date)
	// returns ErrDuplicateAccrual.
	AppendEntry(ctx context.Context, e LedgerEntry) error

	// LastAccrualEntry returns the most recent ACCRUAL entry for a setting
	// by event date, or nil if none exists.
	LastAccrualEntry(ctx context.Context, settingID SettingID) (*LedgerEntry, error)

	// EntriesForSetting returns all entries for a setting, ordered by
	// event date then processed-at, ascending.
	EntriesForSetting(ctx context.Context, settingID SettingID) ([]LedgerEntry, error)

	// EntriesForUserInRange returns a user's entries with event date in
	// [from, to], ordered by event date then processed-at, ascending.
	EntriesForUserInRange(ctx context.Context, userID UserID, from, to time.Time) ([]LedgerEntry, error)
}

// TxStore wraps Store with transaction support. Every processor mutation
// runs inside WithTx.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// UserDirectory resolves user display names for batch-run reporting.
type UserDirectory interface {
	SaveUser(ctx context.Context, u User) error

	// DisplayName returns the user's display name, or the raw ID when the
	// user is unknown (reporting must not fail on a missing name).
	DisplayName(ctx context.Context, id UserID) string
}
