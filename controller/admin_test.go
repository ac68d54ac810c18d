package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Nystya/txgroup/domain"
	"github.com/Nystya/txgroup/metrics"
	"github.com/Nystya/txgroup/repository/database"
	"github.com/Nystya/txgroup/repository/exception"
	"github.com/Nystya/txgroup/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubClient acknowledges every unit except those behind rejected remote keys.
type stubClient struct {
	rejected map[string]bool
}

func (s stubClient) Notify(_ context.Context, remoteKey string, _ domain.NotifyUnitParams) domain.NotificationOutcome {
	if s.rejected[remoteKey] {
		return domain.Rejected(&domain.FailureCause{Code: "UNIT_FAILED", Message: "declined"})
	}

	return domain.Ack()
}

func newAdmin(t *testing.T, recorder exception.Recorder) (http.Handler, *service.SimpleTransactionManager, *exception.MemoryStore) {
	t.Helper()

	registry := database.NewMemoryRegistry()
	ledger := exception.NewMemoryStore()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	manager := service.NewSimpleTransactionManager(service.ManagerDeps{
		Registry: registry,
		Ledger:   ledger,
		Client:   stubClient{rejected: map[string]bool{"r-bad": true}},
		Metrics:  m,
	})

	if recorder == nil {
		recorder = ledger
	}

	return NewAdminRouter(AdminDeps{
		Manager:  manager,
		Registry: registry,
		Recorder: recorder,
		Metrics:  metrics.Handler(reg),
	}), manager, ledger
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	return rec
}

func send(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))

	return rec
}

func TestGroupLifecycleOverHTTP(t *testing.T) {
	router, _, ledger := newAdmin(t, nil)

	rec := send(t, router, http.MethodPost, "/groups/g1", "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = send(t, router, http.MethodPost, "/groups/g1", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = send(t, router, http.MethodPost, "/groups/g1/units", `{"unitId":"u1","unitType":"db","remoteKey":"r1"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = send(t, router, http.MethodPost, "/groups/g1/units", `{"unitId":"u2","unitType":"db","remoteKey":"r-bad"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = get(t, router, "/groups/g1/units")
	assert.JSONEq(t, `[{"unitId":"u1","unitType":"db","remoteKey":"r1"},{"unitId":"u2","unitType":"db","remoteKey":"r-bad"}]`, rec.Body.String())

	rec = send(t, router, http.MethodPost, "/groups/g1/commit", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"groupId":"g1","state":1,"status":"committed"}`, rec.Body.String())

	rec = send(t, router, http.MethodPost, "/groups/g1/rollback", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	// the rejected unit reached the ledger through the failure handler
	records, err := ledger.Exceptions(context.Background(), "g1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "u2", records[0].UnitID)
	assert.Equal(t, domain.ExceptionBusiness, records[0].Kind)

	rec = send(t, router, http.MethodDelete, "/groups/g1", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = get(t, router, "/groups")
	assert.JSONEq(t, `[]`, rec.Body.String())

	// the ledger still answers after the group is gone
	rec = get(t, router, "/groups/g1/state")
	assert.JSONEq(t, `{"groupId":"g1","state":1,"status":"committed"}`, rec.Body.String())
}

func TestGroupLifecycleErrors(t *testing.T) {
	router, _, _ := newAdmin(t, nil)

	rec := send(t, router, http.MethodPost, "/groups/missing/commit", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = send(t, router, http.MethodPost, "/groups/missing/units", `{"unitId":"u1","unitType":"db","remoteKey":"r1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.Equal(t, http.StatusCreated, send(t, router, http.MethodPost, "/groups/g1", "").Code)

	rec = send(t, router, http.MethodPost, "/groups/g1/units", `{"unitId":"u1","bogus":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = send(t, router, http.MethodPost, "/groups/g1/units", `{"unitId":"","unitType":"db","remoteKey":"r1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminGroupState(t *testing.T) {
	router, manager, ledger := newAdmin(t, nil)
	ctx := context.Background()

	require.NoError(t, manager.Begin(ctx, "g1"))
	require.NoError(t, manager.Join(ctx, "g1", service.TransactionUnit{UnitID: "u1", UnitType: "db", MessageContextID: "r1"}))

	rec := get(t, router, "/groups/g1/state")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"groupId":"g1","state":-1,"status":"unknown"}`, rec.Body.String())

	require.NoError(t, manager.Rollback(ctx, "g1"))
	require.NoError(t, ledger.Record(ctx, &domain.ExceptionRecord{ID: "e1", GroupID: "g1", State: domain.StateCommitted}))

	rec = get(t, router, "/groups/g1/state")
	assert.JSONEq(t, `{"groupId":"g1","state":1,"status":"committed"}`, rec.Body.String())

	rec = get(t, router, "/groups/g1/units")
	assert.JSONEq(t, `[{"unitId":"u1","unitType":"db","remoteKey":"r1"}]`, rec.Body.String())

	rec = get(t, router, "/groups")
	assert.JSONEq(t, `["g1"]`, rec.Body.String())

	rec = get(t, router, "/groups/g1/exceptions")
	var records []domain.ExceptionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "e1", records[0].ID)

	rec = get(t, router, "/groups/none/exceptions")
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = get(t, router, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "txgroup_active_groups 1")
}

type brokenRecorder struct{}

func (brokenRecorder) Record(context.Context, *domain.ExceptionRecord) error { return nil }

func (brokenRecorder) Exceptions(context.Context, string) ([]*domain.ExceptionRecord, error) {
	return nil, errors.New("redis down")
}

func TestAdminExceptionsUnavailable(t *testing.T) {
	router, _, _ := newAdmin(t, brokenRecorder{})

	rec := get(t, router, "/groups/g1/exceptions")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAdminMethodNotAllowed(t *testing.T) {
	router, _, _ := newAdmin(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/groups/g1/state", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
