package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"warehouseops/src/actions"
	"warehouseops/src/apperrors"
	"warehouseops/src/auth"
	"warehouseops/src/model"
)

type exceptionDetector interface {
	Detect(ctx context.Context) ([]model.Exception, error)
}

type recommender interface {
	Recommendations(ctx context.Context) ([]model.Recommendation, error)
}

type actionExecutor interface {
	Execute(ctx context.Context, req actions.ExecuteRequest) (*actions.ExecuteResult, error)
}

type actionHistory interface {
	ListByException(ctx context.Context, exceptionID string) ([]model.ActionLogEntry, error)
}

// ActiveExceptionsHandler lists the exceptions detected right now.
// Optional filters: type, severity.
func ActiveExceptionsHandler(detector exceptionDetector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		found, err := detector.Detect(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}

		typ := model.ExceptionType(r.URL.Query().Get("type"))
		if typ != "" && !typ.Valid() {
			writeError(w, r, fmt.Errorf("%w: invalid type %q", apperrors.ErrValidation, typ))
			return
		}
		severity := model.ExceptionSeverity(r.URL.Query().Get("severity"))
		if severity != "" && !severity.Valid() {
			writeError(w, r, fmt.Errorf("%w: invalid severity %q", apperrors.ErrValidation, severity))
			return
		}

		out := make([]model.Exception, 0, len(found))
		for _, ex := range found {
			if typ != "" && ex.Type != typ {
				continue
			}
			if severity != "" && ex.Severity != severity {
				continue
			}
			out = append(out, ex)
		}

		writeJSON(w, http.StatusOK, out)
	}
}

func RecommendationsHandler(engine recommender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := engine.Recommendations(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		if recs == nil {
			recs = []model.Recommendation{}
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

// ExecuteActionHandler runs the remediation in the body as the authenticated user.
func ExecuteActionHandler(executor actionExecutor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.GetPrincipalFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		var req actions.ExecuteRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			logger.WithError(err).Warn("invalid execute payload")
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}
		req.ExecutedBy = p.UserID

		execute(w, r, executor, req)
	}
}

// PatchActionHandler is the shortcut form of execute: the exception id comes
// from the path and the action is fixed by the route.
func PatchActionHandler(executor actionExecutor, action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.GetPrincipalFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		var payload model.ActionPayload
		if r.ContentLength != 0 {
			decoder := json.NewDecoder(r.Body)
			decoder.DisallowUnknownFields()
			if err := decoder.Decode(&payload); err != nil {
				logger.WithError(err).Warn("invalid action payload")
				http.Error(w, "Invalid payload", http.StatusBadRequest)
				return
			}
		}

		execute(w, r, executor, actions.ExecuteRequest{
			ExceptionID: chi.URLParam(r, "id"),
			ActionType:  action,
			Payload:     payload,
			ExecutedBy:  p.UserID,
		})
	}
}

func execute(w http.ResponseWriter, r *http.Request, executor actionExecutor, req actions.ExecuteRequest) {
	res, err := executor.Execute(r.Context(), req)
	if err != nil {
		// the audit row exists; report it alongside the failure
		if errors.Is(err, apperrors.ErrPartialEffect) && res != nil {
			logger.WithError(err).WithField("correlation_id", res.CorrelationID).Warn("action partially applied")
			writeJSON(w, http.StatusBadGateway, struct {
				*actions.ExecuteResult
				Error string `json:"error"`
			}{res, err.Error()})
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ActionHistoryHandler returns the audit trail of one exception, oldest first.
func ActionHistoryHandler(history actionHistory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := model.ParseExceptionID(id); err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", apperrors.ErrValidation, err))
			return
		}

		entries, err := history.ListByException(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if entries == nil {
			entries = []model.ActionLogEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}
