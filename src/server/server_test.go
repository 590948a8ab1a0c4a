package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warehouseops/src/actions"
	"warehouseops/src/auth"
	"warehouseops/src/model"
	"warehouseops/src/sla"
)

type stubEngine struct{ executed int }

func (s *stubEngine) Detect(context.Context) ([]model.Exception, error) {
	return []model.Exception{{ID: "RCV-1", Type: model.ExceptionReceivingDelay, Severity: model.SeverityHigh}}, nil
}

func (s *stubEngine) Recommendations(context.Context) ([]model.Recommendation, error) {
	return nil, nil
}

func (s *stubEngine) Execute(context.Context, actions.ExecuteRequest) (*actions.ExecuteResult, error) {
	s.executed++
	return &actions.ExecuteResult{OK: true, Logged: true}, nil
}

func (s *stubEngine) ListByException(_ context.Context, id string) ([]model.ActionLogEntry, error) {
	return []model.ActionLogEntry{{ID: 1, ExceptionID: id, ActionType: model.ActionAcknowledge}}, nil
}

func (s *stubEngine) History(context.Context, sla.HistoryFilter) ([]model.SlaEvent, error) {
	return nil, nil
}

func (s *stubEngine) Stats(context.Context, sla.StatsFilter) (*sla.Stats, error) {
	return &sla.Stats{}, nil
}

func (s *stubEngine) Trends(_ context.Context, days int) ([]sla.TrendBucket, error) {
	return make([]sla.TrendBucket, days), nil
}

func newTestRouter(t *testing.T) (http.Handler, *auth.Verifier, *stubEngine) {
	t.Helper()
	v := auth.NewVerifier(&auth.Config{JWTSecret: "router-secret", JWTIssuer: "warehouse-identity"})
	stub := &stubEngine{}
	return NewRouter(Routes{
		Detector:    stub,
		Recommender: stub,
		Executor:    stub,
		Reporter:    stub,
		Actions:     stub,
		Verifier:    v,
	}), v, stub
}

func bearer(t *testing.T, v *auth.Verifier, role string) string {
	t.Helper()
	token, err := v.Sign(auth.Principal{UserID: 9, Role: role}, time.Minute)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestHealthcheckIsPublic(t *testing.T) {
	h, _, _ := newTestRouter(t)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
}

func TestAPIRequiresToken(t *testing.T) {
	h, v, _ := newTestRouter(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/exceptions/active", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/sla/trends?period=3d", nil)
	req.Header.Set("Authorization", bearer(t, v, auth.RoleOperator))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 3, strings.Count(rr.Body.String(), `"date"`))
}

func TestRemediationsRequireSupervisor(t *testing.T) {
	h, v, stub := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPatch, "/api/exceptions/RCV-1/unhold", nil)
	req.Header.Set("Authorization", bearer(t, v, auth.RoleOperator))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Zero(t, stub.executed)

	req = httptest.NewRequest(http.MethodPatch, "/api/exceptions/RCV-1/unhold", nil)
	req.Header.Set("Authorization", bearer(t, v, auth.RoleSupervisor))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, stub.executed)
}

func TestActionHistoryIsReadableByOperators(t *testing.T) {
	h, v, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/exceptions/CC-8/actions", nil)
	req.Header.Set("Authorization", bearer(t, v, auth.RoleOperator))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"exception_id":"CC-8"`)
}
