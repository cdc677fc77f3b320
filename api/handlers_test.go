package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-ledger/api"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/leave/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) (*httptest.Server, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	h := api.NewHandler(st, st)
	h.Now = func() time.Time {
		return time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	}

	srv := httptest.NewServer(api.NewRouter(h))
	t.Cleanup(srv.Close)
	return srv, st
}

func seedSetting(t *testing.T, st *store.Memory, id, user, balance string) leave.PolicySetting {
	t.Helper()
	monthly := leave.FreqMonthly
	amount := decimal.RequireFromString("1.25")
	s := leave.PolicySetting{
		ID:             leave.SettingID(id),
		UserID:         leave.UserID(user),
		LeaveType:      "Annual Leave",
		StartDate:      time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC),
		AccrualType:    leave.AccrualTypeAccrual,
		Frequency:      &monthly,
		AccrualAmount:  &amount,
		MaxCap:         decimal.RequireFromString("30"),
		AllowCarryOver: true,
		MaxCarryOver:   decimal.RequireFromString("10"),
		CurrentBalance: decimal.RequireFromString(balance),
	}
	require.NoError(t, st.SaveSetting(context.Background(), s))
	return s
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// =============================================================================
// DEDUCTIONS
// =============================================================================

func TestCreateDeduction_Success(t *testing.T) {
	// GIVEN: A setting with balance 8.0
	// WHEN: Posting an approved deduction of 3.0
	// THEN: 201 with the new entry; the stored balance drops to 5.0

	srv, st := newTestServer(t)
	s := seedSetting(t, st, "set-1", "user-1", "8")

	resp := postJSON(t, srv.URL+"/api/deductions", map[string]any{
		"setting_id":  "set-1",
		"amount":      "3",
		"event_date":  "2025-07-04",
		"description": "Summer vacation",
		"request_ref": "req-42",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	entry := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "DEDUCTION", entry["type"])
	assert.Equal(t, "-3", entry["amount"])
	assert.Equal(t, "5", entry["balance_after"])

	got, err := st.GetSetting(context.Background(), s.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentBalance.Equal(decimal.RequireFromString("5")))
}

func TestCreateDeduction_InsufficientBalance_422(t *testing.T) {
	// GIVEN: A setting with balance 2.0
	// WHEN: Requesting a 5.0 deduction
	// THEN: 422 with the shortfall details; nothing is written

	srv, st := newTestServer(t)
	seedSetting(t, st, "set-1", "user-1", "2")

	resp := postJSON(t, srv.URL+"/api/deductions", map[string]any{
		"setting_id": "set-1",
		"amount":     "5",
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	body := decodeBody[map[string]string](t, resp)
	assert.Equal(t, "Insufficient balance", body["error"])
	assert.Contains(t, body["details"], "available 2")
	assert.Contains(t, body["details"], "requested 5")

	entries, err := st.EntriesForSetting(context.Background(), "set-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCreateDeduction_BadInput(t *testing.T) {
	srv, st := newTestServer(t)
	seedSetting(t, st, "set-1", "user-1", "5")

	t.Run("unknown setting", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/deductions", map[string]any{
			"setting_id": "missing", "amount": "1",
		})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("non-positive amount", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/deductions", map[string]any{
			"setting_id": "set-1", "amount": "-1",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("malformed amount", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/deductions", map[string]any{
			"setting_id": "set-1", "amount": "three",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	})
}

// =============================================================================
// SWEEPS
// =============================================================================

func TestRunAccrualSweep_Endpoint(t *testing.T) {
	// GIVEN: A setting due for its first accrual
	// WHEN: Triggering the sweep for a fixed as-of date
	// THEN: processed=1 and the balance moves

	srv, st := newTestServer(t)
	s := seedSetting(t, st, "set-1", "user-1", "0")

	resp := postJSON(t, srv.URL+"/api/sweeps/accrual", map[string]any{
		"as_of": "2025-03-01",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decodeBody[map[string]any](t, resp)
	assert.Equal(t, float64(1), result["processed"])
	assert.Equal(t, false, result["dry_run"])

	got, err := st.GetSetting(context.Background(), s.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentBalance.Equal(decimal.RequireFromString("1.25")))
}

func TestRunAccrualSweep_Endpoint_DryRun(t *testing.T) {
	srv, st := newTestServer(t)
	s := seedSetting(t, st, "set-1", "user-1", "0")

	resp := postJSON(t, srv.URL+"/api/sweeps/accrual", map[string]any{
		"as_of": "2025-03-01", "dry_run": true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decodeBody[map[string]any](t, resp)
	assert.Equal(t, float64(1), result["processed"])
	assert.Equal(t, true, result["dry_run"])

	got, err := st.GetSetting(context.Background(), s.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentBalance.IsZero(), "dry run must not move balances")
}

func TestRunCarryOverSweep_Endpoint(t *testing.T) {
	// GIVEN: A setting with balance 15 and carry-over cap 10
	// WHEN: Triggering the 2025 carry-over sweep
	// THEN: The balance settles at 10

	srv, st := newTestServer(t)
	s := seedSetting(t, st, "set-1", "user-1", "15")

	resp := postJSON(t, srv.URL+"/api/sweeps/carryover", map[string]any{
		"year": 2025,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decodeBody[map[string]any](t, resp)
	assert.Equal(t, float64(1), result["processed"])

	got, err := st.GetSetting(context.Background(), s.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentBalance.Equal(decimal.RequireFromString("10")))
}

func TestRunCarryOverSweep_Endpoint_InvalidYear(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/sweeps/carryover", map[string]any{"year": 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

// =============================================================================
// TEMPLATES
// =============================================================================

func TestAssignTemplate_CreatesSetting(t *testing.T) {
	// GIVEN: The built-in annual-standard template
	// WHEN: Assigning it to a user with a max-cap override
	// THEN: 201 with a persisted setting reflecting the override

	srv, st := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/templates/annual-standard/assign", map[string]any{
		"user_id":    "user-9",
		"start_date": "2025-02-01",
		"max_cap":    "25",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	dto := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "user-9", dto["user_id"])
	assert.Equal(t, "Annual Leave", dto["leave_type"])
	assert.Equal(t, "25", dto["max_cap"])
	assert.Equal(t, "1.25", dto["accrual_amount"])

	settings, err := st.ListSettingsForUser(context.Background(), "user-9")
	require.NoError(t, err)
	require.Len(t, settings, 1)
	assert.True(t, settings[0].MaxCap.Equal(decimal.RequireFromString("25")))
	assert.True(t, settings[0].StartDate.Equal(time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)))
}

func TestAssignTemplate_UnknownTemplate_404(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/templates/no-such-template/assign", map[string]any{
		"user_id": "user-9",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestListTemplates(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/templates")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	templates := decodeBody[[]map[string]any](t, resp)
	require.NotEmpty(t, templates)

	ids := make([]string, 0, len(templates))
	for _, tmpl := range templates {
		ids = append(ids, tmpl["id"].(string))
	}
	assert.Contains(t, ids, "annual-standard")
	assert.Contains(t, ids, "sick-standard")
}

// =============================================================================
// SUMMARY
// =============================================================================

func TestGetSummary_Endpoint(t *testing.T) {
	// GIVEN: A user with one accrual and one deduction in range
	// WHEN: Fetching the summary for the year
	// THEN: Totals come back signed, as decimal strings

	srv, st := newTestServer(t)
	s := seedSetting(t, st, "set-1", "user-1", "0")

	p := leave.NewProcessor(st)
	ctx := context.Background()
	_, err := p.ApplyAccrual(ctx, s.ID, time.Date(2025, time.February, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	_, err = p.ApplyDeduction(ctx, s.ID, decimal.RequireFromString("1"),
		time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC), "", "req-1")
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/api/users/user-1/summary?from=2025-01-01&to=2025-12-31")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	summary := decodeBody[map[string]any](t, resp)
	totals := summary["totals_by_type"].(map[string]any)
	assert.Equal(t, "1.25", totals["ACCRUAL"])
	assert.Equal(t, "-1", totals["DEDUCTION"])

	recent := summary["recent_transactions"].([]any)
	assert.Len(t, recent, 2)
}

// =============================================================================
// SETTINGS & USERS
// =============================================================================

func TestGetSetting_Endpoint(t *testing.T) {
	srv, st := newTestServer(t)
	seedSetting(t, st, "set-1", "user-1", "4.5")

	resp, err := http.Get(srv.URL + "/api/settings/set-1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	dto := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "set-1", dto["id"])
	assert.Equal(t, "4.5", dto["current_balance"])

	missing, err := http.Get(srv.URL + "/api/settings/missing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
	missing.Body.Close()
}

func TestGetLedger_UnknownSetting_404(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/settings/missing/ledger")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestCreateUser_Endpoint(t *testing.T) {
	srv, st := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/users", map[string]any{
		"id": "user-1", "name": "Ada Lovelace",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	assert.Equal(t, "Ada Lovelace", st.DisplayName(context.Background(), "user-1"))

	bad := postJSON(t, srv.URL+"/api/users", map[string]any{"id": "", "name": ""})
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
	bad.Body.Close()
}
