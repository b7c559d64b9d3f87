package schedule

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/klokku/budgetly/internal/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupHandler(t *testing.T) (*mux.Router, fixture) {
	t.Helper()
	f := setup(t)
	handler := NewHandler(f.service)
	router := mux.NewRouter()
	router.HandleFunc("/api/subbudget/{subBudgetId}/schedule", handler.CreateSchedule).Methods("POST")
	router.HandleFunc("/api/subbudget/{subBudgetId}/schedule", handler.RebuildSchedule).Methods("PUT")
	router.HandleFunc("/api/subbudget/{subBudgetId}/schedule", handler.CloseSchedule).Methods("DELETE")
	router.HandleFunc("/api/subbudget/{subBudgetId}/schedule", handler.GetTimeline).Methods("GET")
	router.HandleFunc("/api/subbudget/{subBudgetId}/schedule/build", handler.BuildLedger).Methods("POST")
	router.HandleFunc("/api/subbudget/{subBudgetId}/transactions", handler.IngestTransactions).Methods("POST")
	return router, f
}

func serve(router *mux.Router, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHandler_CreateSchedule(t *testing.T) {
	t.Run("should create a weekly schedule", func(t *testing.T) {
		// given
		router, _ := setupHandler(t)

		// when
		rr := serve(router, http.MethodPost, "/api/subbudget/sb-1/schedule", `{"cadence":"weekly"}`)

		// then
		require.Equal(t, http.StatusCreated, rr.Code)
		var body ScheduleDTO
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "WEEKLY", body.Cadence)
		assert.Equal(t, "ACTIVE", body.Status)
		require.Len(t, body.SubPeriods, 5)
		assert.Equal(t, PeriodDTO{StartDate: "2025-04-29", EndDate: "2025-04-30"}, body.SubPeriods[4])
	})

	t.Run("should reject an unknown cadence", func(t *testing.T) {
		router, _ := setupHandler(t)

		rr := serve(router, http.MethodPost, "/api/subbudget/sb-1/schedule", `{"cadence":"yearly"}`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("should return conflict for a second schedule", func(t *testing.T) {
		// given
		router, _ := setupHandler(t)
		require.Equal(t, http.StatusCreated, serve(router, http.MethodPost, "/api/subbudget/sb-1/schedule", `{"cadence":"WEEKLY"}`).Code)

		// when
		rr := serve(router, http.MethodPost, "/api/subbudget/sb-1/schedule", `{"cadence":"WEEKLY"}`)

		// then
		assert.Equal(t, http.StatusConflict, rr.Code)
		var body rest.ErrorResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "Schedule conflict", body.Error)
	})

	t.Run("should return 404 for an unknown sub-budget", func(t *testing.T) {
		router, _ := setupHandler(t)

		rr := serve(router, http.MethodPost, "/api/subbudget/missing/schedule", `{"cadence":"WEEKLY"}`)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestHandler_RebuildSchedule(t *testing.T) {
	t.Run("should return 422 when the span exceeds the cap", func(t *testing.T) {
		// given
		router, _ := setupHandler(t)
		require.Equal(t, http.StatusCreated, serve(router, http.MethodPost, "/api/subbudget/sb-1/schedule", `{"cadence":"BIWEEKLY"}`).Code)

		// when
		rr := serve(router, http.MethodPut, "/api/subbudget/sb-1/schedule", `{"startDate":"2025-04-01","endDate":"2025-06-30"}`)

		// then
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	})

	t.Run("should return 400 for an inverted span", func(t *testing.T) {
		router, _ := setupHandler(t)

		rr := serve(router, http.MethodPut, "/api/subbudget/sb-1/schedule", `{"startDate":"2025-04-30","endDate":"2025-04-01"}`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("should return the rebuilt schedule and deactivated ids", func(t *testing.T) {
		// given
		router, f := setupHandler(t)
		f.seedApril(t)
		require.Equal(t, http.StatusCreated, serve(router, http.MethodPost, "/api/subbudget/sb-1/schedule", `{"cadence":"WEEKLY"}`).Code)
		require.Equal(t, http.StatusOK, serve(router, http.MethodPost, "/api/subbudget/sb-1/schedule/build", "").Code)

		// when
		rr := serve(router, http.MethodPut, "/api/subbudget/sb-1/schedule", `{"startDate":"2025-04-01","endDate":"2025-04-14"}`)

		// then
		require.Equal(t, http.StatusOK, rr.Code)
		var body RebuildScheduleResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Len(t, body.Schedule.SubPeriods, 2)
		assert.Len(t, body.DeactivatedLedgerIds, 6)
	})
}

func TestHandler_BuildLedger(t *testing.T) {
	t.Run("should return built categories and skipped ones", func(t *testing.T) {
		// given
		router, f := setupHandler(t)
		f.seedApril(t)
		require.Equal(t, http.StatusCreated, serve(router, http.MethodPost, "/api/subbudget/sb-1/schedule", `{"cadence":"WEEKLY"}`).Code)

		// when
		rr := serve(router, http.MethodPost, "/api/subbudget/sb-1/schedule/build", "")

		// then
		require.Equal(t, http.StatusOK, rr.Code)
		var body BuildResultDTO
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Len(t, body.Categories, 10)
		assert.Empty(t, body.Skipped)
		assert.NotNil(t, body.Unmatched)
		assert.Empty(t, body.Unmatched)
		assert.Equal(t, "Groceries", body.Categories[0].CategoryName)
		assert.Equal(t, "193.04", body.Categories[0].BudgetedAmount)
	})

	t.Run("should return 404 without a schedule", func(t *testing.T) {
		router, _ := setupHandler(t)

		rr := serve(router, http.MethodPost, "/api/subbudget/sb-1/schedule/build", "")

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestHandler_CloseSchedule(t *testing.T) {
	t.Run("should return conflict when building a closed schedule", func(t *testing.T) {
		// given
		router, _ := setupHandler(t)
		require.Equal(t, http.StatusCreated, serve(router, http.MethodPost, "/api/subbudget/sb-1/schedule", `{"cadence":"MONTHLY"}`).Code)

		// when
		closed := serve(router, http.MethodDelete, "/api/subbudget/sb-1/schedule", "")
		rr := serve(router, http.MethodPost, "/api/subbudget/sb-1/schedule/build", "")

		// then
		require.Equal(t, http.StatusOK, closed.Code)
		assert.Contains(t, closed.Body.String(), `"status":"CLOSED"`)
		assert.Equal(t, http.StatusConflict, rr.Code)
	})
}

func TestHandler_GetTimeline(t *testing.T) {
	t.Run("should label every sub-period", func(t *testing.T) {
		// given
		router, _ := setupHandler(t)
		require.Equal(t, http.StatusCreated, serve(router, http.MethodPost, "/api/subbudget/sb-1/schedule", `{"cadence":"WEEKLY"}`).Code)

		// when
		rr := serve(router, http.MethodGet, "/api/subbudget/sb-1/schedule", "")

		// then
		require.Equal(t, http.StatusOK, rr.Code)
		var body TimelineDTO
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		require.Len(t, body.Entries, 5)
		assert.Equal(t, "PAST", body.Entries[0].Position)
		assert.Equal(t, "CURRENT", body.Entries[1].Position)
		assert.Equal(t, "FUTURE", body.Entries[4].Position)
	})
}

func TestHandler_IngestTransactions(t *testing.T) {
	t.Run("should record transactions on the ledger", func(t *testing.T) {
		// given
		router, f := setupHandler(t)
		f.seedApril(t)
		require.Equal(t, http.StatusCreated, serve(router, http.MethodPost, "/api/subbudget/sb-1/schedule", `{"cadence":"WEEKLY"}`).Code)
		require.Equal(t, http.StatusOK, serve(router, http.MethodPost, "/api/subbudget/sb-1/schedule/build", "").Code)

		// when
		rr := serve(router, http.MethodPost, "/api/subbudget/sb-1/transactions",
			`[{"id":"r2","amount":"50.00","postedDate":"2025-04-03","categoryLabels":["Rent"]}]`)

		// then
		require.Equal(t, http.StatusOK, rr.Code)
		var body IngestResultDTO
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, 1, body.Stored)
		require.Len(t, body.Updated, 1)
		assert.Equal(t, "757.00", body.Updated[0].ActualAmount)
		assert.Empty(t, body.Unmatched)
	})

	t.Run("should reject a malformed posted date", func(t *testing.T) {
		router, _ := setupHandler(t)

		rr := serve(router, http.MethodPost, "/api/subbudget/sb-1/transactions",
			`[{"id":"r2","amount":"50.00","postedDate":"03/04/2025","categoryLabels":["Rent"]}]`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("should reject a transaction without id", func(t *testing.T) {
		router, _ := setupHandler(t)

		rr := serve(router, http.MethodPost, "/api/subbudget/sb-1/transactions",
			`[{"amount":"50.00","postedDate":"2025-04-03","categoryLabels":["Rent"]}]`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
