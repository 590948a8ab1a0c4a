package connectors

// Test index:
//  1. TestIsRetryableResp verifies retry decisions for transport errors and status codes.
//  2. TestWorkforceOverview checks the role query and decoding of worker loads.
//  3. TestWorkforceAssignTask checks the assign body and actor header.
//  4. TestWorkforceErrorMapping maps rejected calls onto the error taxonomy.

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warehouseops/src/apperrors"
	"warehouseops/src/model"
)

type assertError struct{}

func (assertError) Error() string { return "assert error" }

func fakeResponse(status int) *resty.Response {
	return &resty.Response{RawResponse: &http.Response{StatusCode: status}}
}

func TestIsRetryableResp(t *testing.T) {
	cases := []struct {
		name string
		resp *resty.Response
		err  error
		want bool
	}{
		{name: "error present", err: assertError{}, want: true},
		{name: "server error", resp: fakeResponse(503), want: true},
		{name: "too many requests", resp: fakeResponse(429), want: true},
		{name: "timeout", resp: fakeResponse(408), want: true},
		{name: "not found", resp: fakeResponse(404), want: false},
		{name: "ok response", resp: fakeResponse(200), want: false},
		{name: "nil resp", want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isRetryableResp(tc.resp, tc.err); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestWorkforceOverview(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/workforce/overview", r.URL.Path)
		require.Equal(t, "picker", r.URL.Query().Get("role"))
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(overviewResponse{Workers: []model.WorkerLoad{
			{UserID: 4, Name: "Dee", OnlineStatus: "online", OpenTasksCount: 2, OpenShippingOrders: 1},
			{UserID: 5, Name: "Eli", OnlineStatus: "offline"},
		}})
	}))
	defer server.Close()

	client := NewWorkforceClient(Config{WorkforceBaseURL: server.URL, WorkforceToken: "secret"})
	workers, err := client.Overview(context.Background(), "picker")
	require.NoError(t, err)
	require.Len(t, workers, 2)
	assert.True(t, workers[0].Online())
	assert.False(t, workers[1].Online())
	assert.Equal(t, 2, workers[0].OpenTasksCount)
}

func TestWorkforceAssignTask(t *testing.T) {
	var got AssignTaskRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/workforce/assign", r.URL.Path)
		require.Equal(t, "12", r.Header.Get("X-Actor-Id"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewWorkforceClient(Config{WorkforceBaseURL: server.URL})
	err := client.AssignTask(context.Background(), 12, AssignTaskRequest{
		Type: model.TaskKindShipping, TaskID: 7, Assignees: []uint{4}, Policy: PolicyReplace,
	})
	require.NoError(t, err)
	assert.Equal(t, model.TaskKindShipping, got.Type)
	assert.Equal(t, uint(7), got.TaskID)
	assert.Equal(t, []uint{4}, got.Assignees)
	assert.Nil(t, got.TeamID)
}

func TestWorkforceErrorMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, apperrors.ErrNotFound},
		{http.StatusForbidden, apperrors.ErrForbidden},
		{http.StatusBadRequest, apperrors.ErrValidation},
	}

	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_ = json.NewEncoder(w).Encode(errorResponse{Error: "rejected"})
			}))
			defer server.Close()

			client := NewWorkforceClient(Config{WorkforceBaseURL: server.URL})
			err := client.AssignTask(context.Background(), 1, AssignTaskRequest{TaskID: 1})
			require.True(t, errors.Is(err, tc.want), "got %v", err)
			assert.Contains(t, err.Error(), "rejected")
		})
	}
}
