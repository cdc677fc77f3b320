// Package store provides an in-memory Store implementation for tests and
// development. The SQLite-backed production store lives in store/sqlite.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-ledger/leave"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	settings map[leave.SettingID]leave.PolicySetting
	entries  map[leave.SettingID][]leave.LedgerEntry
	users    map[leave.UserID]leave.User
}

func NewMemory() *Memory {
	return &Memory{
		settings: make(map[leave.SettingID]leave.PolicySetting),
		entries:  make(map[leave.SettingID][]leave.LedgerEntry),
		users:    make(map[leave.UserID]leave.User),
	}
}

var _ leave.TxStore = (*Memory)(nil)
var _ leave.UserDirectory = (*Memory)(nil)

// =============================================================================
// SETTINGS
// =============================================================================

func (m *Memory) SaveSetting(_ context.Context, s leave.PolicySetting) error {
	if err := s.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[s.ID] = s
	return nil
}

func (m *Memory) GetSetting(_ context.Context, id leave.SettingID) (leave.PolicySetting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.settings[id]
	if !ok {
		return leave.PolicySetting{}, leave.ErrSettingNotFound
	}
	return s, nil
}

func (m *Memory) ListSettingsForUser(_ context.Context, userID leave.UserID) ([]leave.PolicySetting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []leave.PolicySetting
	for _, s := range m.settings {
		if s.UserID == userID {
			result = append(result, s)
		}
	}
	sortSettings(result)
	return result, nil
}

func (m *Memory) ActiveAccrualSettings(_ context.Context, asOf time.Time, userFilter leave.UserID) ([]leave.PolicySetting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []leave.PolicySetting
	for _, s := range m.settings {
		if s.AccrualType != leave.AccrualTypeAccrual || !s.ActiveAt(asOf) {
			continue
		}
		if userFilter != "" && s.UserID != userFilter {
			continue
		}
		result = append(result, s)
	}
	sortSettings(result)
	return result, nil
}

func (m *Memory) CarryOverEligibleSettings(_ context.Context, yearEnd time.Time, userFilter leave.UserID) ([]leave.PolicySetting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []leave.PolicySetting
	for _, s := range m.settings {
		if !s.AllowCarryOver || !s.CurrentBalance.IsPositive() || s.StartDate.After(yearEnd) {
			continue
		}
		if userFilter != "" && s.UserID != userFilter {
			continue
		}
		result = append(result, s)
	}
	sortSettings(result)
	return result, nil
}

func (m *Memory) UpdateSettingBalance(_ context.Context, id leave.SettingID, balance, carriedOver decimal.Decimal, expectVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.settings[id]
	if !ok {
		return leave.ErrSettingNotFound
	}
	if s.Version != expectVersion {
		return leave.ErrConcurrentModification
	}
	s.CurrentBalance = balance
	s.CarriedOver = carriedOver
	s.Version++
	m.settings[id] = s
	return nil
}

// =============================================================================
// LEDGER (append-only)
// =============================================================================

func (m *Memory) AppendEntry(_ context.Context, e leave.LedgerEntry) error {
	if err := e.CheckConsistency(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(e)
}

func (m *Memory) appendLocked(e leave.LedgerEntry) error {
	entries := m.entries[e.SettingID]

	if e.Type == leave.EntryAccrual {
		for _, existing := range entries {
			if existing.Type == leave.EntryAccrual && existing.EventDate.Equal(e.EventDate) {
				return leave.ErrDuplicateAccrual
			}
		}
	}

	// Insert keeping (event date, processed-at) order, as the SQL store's
	// ORDER BY does on read.
	i := sort.Search(len(entries), func(i int) bool {
		return entryAfter(entries[i], e)
	})
	entries = append(entries, leave.LedgerEntry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = e
	m.entries[e.SettingID] = entries
	return nil
}

func (m *Memory) LastAccrualEntry(_ context.Context, settingID leave.SettingID) (*leave.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.entries[settingID]
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Type == leave.EntryAccrual {
			e := entries[i]
			return &e, nil
		}
	}
	return nil, nil
}

func (m *Memory) EntriesForSetting(_ context.Context, settingID leave.SettingID) ([]leave.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]leave.LedgerEntry, len(m.entries[settingID]))
	copy(result, m.entries[settingID])
	return result, nil
}

func (m *Memory) EntriesForUserInRange(_ context.Context, userID leave.UserID, from, to time.Time) ([]leave.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []leave.LedgerEntry
	for _, entries := range m.entries {
		for _, e := range entries {
			if e.UserID != userID {
				continue
			}
			if e.EventDate.Before(from) || e.EventDate.After(to) {
				continue
			}
			result = append(result, e)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return entryAfter(result[j], result[i])
	})
	return result, nil
}

// =============================================================================
// USERS
// =============================================================================

func (m *Memory) SaveUser(_ context.Context, u leave.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *Memory) DisplayName(_ context.Context, id leave.UserID) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.users[id]; ok && u.Name != "" {
		return u.Name
	}
	return string(id)
}

// =============================================================================
// TRANSACTIONS - snapshot + rollback on error
// =============================================================================

// WithTx executes fn against the store, restoring a snapshot if fn fails.
// The store lock is held for the duration, which also serializes competing
// balance mutations (the version CAS remains the cross-process guard).
func (m *Memory) WithTx(ctx context.Context, fn func(leave.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	settings map[leave.SettingID]leave.PolicySetting
	entries  map[leave.SettingID][]leave.LedgerEntry
}

func (m *Memory) snapshot() memorySnapshot {
	settings := make(map[leave.SettingID]leave.PolicySetting, len(m.settings))
	for k, v := range m.settings {
		settings[k] = v
	}
	entries := make(map[leave.SettingID][]leave.LedgerEntry, len(m.entries))
	for k, v := range m.entries {
		entries[k] = append([]leave.LedgerEntry{}, v...)
	}
	return memorySnapshot{settings: settings, entries: entries}
}

func (m *Memory) restore(s memorySnapshot) {
	m.settings = s.settings
	m.entries = s.entries
}

// txView gives fn lock-free access to the already-locked parent.
type txView struct {
	parent *Memory
}

var _ leave.Store = (*txView)(nil)

func (tv *txView) SaveSetting(_ context.Context, s leave.PolicySetting) error {
	if err := s.Validate(); err != nil {
		return err
	}
	tv.parent.settings[s.ID] = s
	return nil
}

func (tv *txView) GetSetting(_ context.Context, id leave.SettingID) (leave.PolicySetting, error) {
	s, ok := tv.parent.settings[id]
	if !ok {
		return leave.PolicySetting{}, leave.ErrSettingNotFound
	}
	return s, nil
}

func (tv *txView) ListSettingsForUser(ctx context.Context, userID leave.UserID) ([]leave.PolicySetting, error) {
	var result []leave.PolicySetting
	for _, s := range tv.parent.settings {
		if s.UserID == userID {
			result = append(result, s)
		}
	}
	sortSettings(result)
	return result, nil
}

func (tv *txView) ActiveAccrualSettings(_ context.Context, asOf time.Time, userFilter leave.UserID) ([]leave.PolicySetting, error) {
	var result []leave.PolicySetting
	for _, s := range tv.parent.settings {
		if s.AccrualType != leave.AccrualTypeAccrual || !s.ActiveAt(asOf) {
			continue
		}
		if userFilter != "" && s.UserID != userFilter {
			continue
		}
		result = append(result, s)
	}
	sortSettings(result)
	return result, nil
}

func (tv *txView) CarryOverEligibleSettings(_ context.Context, yearEnd time.Time, userFilter leave.UserID) ([]leave.PolicySetting, error) {
	var result []leave.PolicySetting
	for _, s := range tv.parent.settings {
		if !s.AllowCarryOver || !s.CurrentBalance.IsPositive() || s.StartDate.After(yearEnd) {
			continue
		}
		if userFilter != "" && s.UserID != userFilter {
			continue
		}
		result = append(result, s)
	}
	sortSettings(result)
	return result, nil
}

func (tv *txView) UpdateSettingBalance(_ context.Context, id leave.SettingID, balance, carriedOver decimal.Decimal, expectVersion int) error {
	s, ok := tv.parent.settings[id]
	if !ok {
		return leave.ErrSettingNotFound
	}
	if s.Version != expectVersion {
		return leave.ErrConcurrentModification
	}
	s.CurrentBalance = balance
	s.CarriedOver = carriedOver
	s.Version++
	tv.parent.settings[id] = s
	return nil
}

func (tv *txView) AppendEntry(_ context.Context, e leave.LedgerEntry) error {
	if err := e.CheckConsistency(); err != nil {
		return err
	}
	return tv.parent.appendLocked(e)
}

func (tv *txView) LastAccrualEntry(_ context.Context, settingID leave.SettingID) (*leave.LedgerEntry, error) {
	entries := tv.parent.entries[settingID]
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Type == leave.EntryAccrual {
			e := entries[i]
			return &e, nil
		}
	}
	return nil, nil
}

func (tv *txView) EntriesForSetting(_ context.Context, settingID leave.SettingID) ([]leave.LedgerEntry, error) {
	result := make([]leave.LedgerEntry, len(tv.parent.entries[settingID]))
	copy(result, tv.parent.entries[settingID])
	return result, nil
}

func (tv *txView) EntriesForUserInRange(_ context.Context, userID leave.UserID, from, to time.Time) ([]leave.LedgerEntry, error) {
	var result []leave.LedgerEntry
	for _, entries := range tv.parent.entries {
		for _, e := range entries {
			if e.UserID != userID || e.EventDate.Before(from) || e.EventDate.After(to) {
				continue
			}
			result = append(result, e)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return entryAfter(result[j], result[i])
	})
	return result, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// entryAfter reports whether a sorts strictly after b by (event date,
// processed-at).
func entryAfter(a, b leave.LedgerEntry) bool {
	if !a.EventDate.Equal(b.EventDate) {
		return a.EventDate.After(b.EventDate)
	}
	return a.ProcessedAt.After(b.ProcessedAt)
}

func sortSettings(settings []leave.PolicySetting) {
	sort.Slice(settings, func(i, j int) bool {
		return settings[i].ID < settings[j].ID
	})
}
