package connectors

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"

	"warehouseops/src/apperrors"
	"warehouseops/src/model"
)

const (
	defaultRetryAttempts   = 3
	defaultRetryBaseDelay  = 300 * time.Millisecond
	defaultRetryMaxBackoff = 3 * time.Second
)

// Assignment policies understood by the workforce service.
const (
	PolicyReplace = "REPLACE"
	PolicyAppend  = "APPEND"
)

// AssignTaskRequest hands a task to specific users or to a team.
type AssignTaskRequest struct {
	Type      model.TaskKind `json:"type"`
	TaskID    uint           `json:"task_id"`
	Assignees []uint         `json:"assignees,omitempty"`
	TeamID    *uint          `json:"team_id,omitempty"`
	Policy    string         `json:"policy,omitempty"`
}

type overviewResponse struct {
	Workers []model.WorkerLoad `json:"workers"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// WorkforceClient talks to the workforce roster service.
type WorkforceClient struct {
	baseURL string
	http    *resty.Client
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}

	if r == nil {
		return false
	}

	code := r.StatusCode()

	if code >= 500 && code <= 599 {
		return true
	}
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

func NewWorkforceClient(config Config) *WorkforceClient {
	baseURL := strings.TrimRight(config.WorkforceBaseURL, "/")
	timeout := config.WorkforceTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(defaultRetryAttempts - 1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp).
		SetHeader("Accept", "application/json")

	if config.WorkforceToken != "" {
		httpClient.SetAuthToken(config.WorkforceToken)
	}

	return &WorkforceClient{baseURL: baseURL, http: httpClient}
}

// Overview lists workers of a role with their online state and open work.
func (c *WorkforceClient) Overview(ctx context.Context, role string) ([]model.WorkerLoad, error) {
	var out overviewResponse
	var apiErr errorResponse

	req := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&apiErr)
	if role != "" {
		req.SetQueryParam("role", role)
	}

	resp, err := req.Get("/api/workforce/overview")
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"client": "WorkforceClient",
			"op":     "Overview",
			"role":   role,
		}).WithError(err).Error("Workforce overview request failed")

		return nil, fmt.Errorf("workforce overview: %w", err)
	}
	if resp.IsError() {
		return nil, statusError("workforce overview", resp.StatusCode(), apiErr.Error)
	}

	return out.Workers, nil
}

// AssignTask asks the workforce service to move a task on behalf of actorID.
func (c *WorkforceClient) AssignTask(ctx context.Context, actorID uint, req AssignTaskRequest) error {
	var apiErr errorResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Actor-Id", fmt.Sprintf("%d", actorID)).
		SetBody(req).
		SetError(&apiErr).
		Post("/api/workforce/assign")

	fields := map[string]interface{}{
		"client":  "WorkforceClient",
		"op":      "AssignTask",
		"actor":   actorID,
		"task":    req.TaskID,
		"type":    req.Type,
		"targets": req.Assignees,
	}

	if err != nil {
		logger.WithFields(fields).WithError(err).Error("Workforce assign request failed")
		return fmt.Errorf("workforce assign: %w", err)
	}
	if resp.IsError() {
		logger.WithFields(fields).
			WithField("status", resp.StatusCode()).
			Warn("Workforce assign rejected")
		return statusError("workforce assign", resp.StatusCode(), apiErr.Error)
	}

	logger.WithFields(fields).Info("Task assigned")
	return nil
}

func statusError(op string, status int, msg string) error {
	if msg == "" {
		msg = http.StatusText(status)
	}
	switch status {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w: %s", op, apperrors.ErrNotFound, msg)
	case http.StatusForbidden, http.StatusUnauthorized:
		return fmt.Errorf("%s: %w: %s", op, apperrors.ErrForbidden, msg)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%s: %w: %s", op, apperrors.ErrValidation, msg)
	default:
		return fmt.Errorf("%s: HTTP %d: %s", op, status, msg)
	}
}
