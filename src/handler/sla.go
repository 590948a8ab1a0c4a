package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"warehouseops/src/apperrors"
	"warehouseops/src/model"
	"warehouseops/src/sla"
)

type slaReporter interface {
	History(ctx context.Context, f sla.HistoryFilter) ([]model.SlaEvent, error)
	Stats(ctx context.Context, f sla.StatsFilter) (*sla.Stats, error)
	Trends(ctx context.Context, days int) ([]sla.TrendBucket, error)
}

// SlaHistoryHandler lists ledger rows, newest first.
// Filters: type, severity, zone, from, to (RFC3339), status, limit, offset.
func SlaHistoryHandler(reporter slaReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		from, to, err := timeRange(q)
		if err != nil {
			writeError(w, r, err)
			return
		}
		typ, err := exceptionType(q)
		if err != nil {
			writeError(w, r, err)
			return
		}
		limit, err := intParam(q, "limit")
		if err != nil {
			writeError(w, r, err)
			return
		}
		offset, err := intParam(q, "offset")
		if err != nil {
			writeError(w, r, err)
			return
		}

		f := sla.HistoryFilter{
			Type:   typ,
			Zone:   optional(q, "zone"),
			From:   from,
			To:     to,
			Status: q.Get("status"),
			Limit:  limit,
			Offset: offset,
		}
		if s := q.Get("severity"); s != "" {
			severity := model.ExceptionSeverity(s)
			if !severity.Valid() {
				writeError(w, r, fmt.Errorf("%w: invalid severity %q", apperrors.ErrValidation, s))
				return
			}
			f.Severity = &severity
		}

		events, err := reporter.History(r.Context(), f)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if events == nil {
			events = []model.SlaEvent{}
		}
		writeJSON(w, http.StatusOK, events)
	}
}

func SlaStatsHandler(reporter slaReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		from, to, err := timeRange(q)
		if err != nil {
			writeError(w, r, err)
			return
		}
		typ, err := exceptionType(q)
		if err != nil {
			writeError(w, r, err)
			return
		}

		stats, err := reporter.Stats(r.Context(), sla.StatsFilter{
			Type: typ,
			Zone: optional(q, "zone"),
			From: from,
			To:   to,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// SlaTrendsHandler returns one bucket per UTC day for period (7d, 2w, 30).
func SlaTrendsHandler(reporter slaReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days, err := sla.ParsePeriod(r.URL.Query().Get("period"))
		if err != nil {
			writeError(w, r, err)
			return
		}

		buckets, err := reporter.Trends(r.Context(), days)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, buckets)
	}
}

func exceptionType(q url.Values) (*model.ExceptionType, error) {
	v := q.Get("type")
	if v == "" {
		return nil, nil
	}
	t := model.ExceptionType(v)
	if !t.Valid() {
		return nil, fmt.Errorf("%w: invalid type %q", apperrors.ErrValidation, v)
	}
	return &t, nil
}

func optional(q url.Values, key string) *string {
	if v := q.Get(key); v != "" {
		return &v
	}
	return nil
}

func intParam(q url.Values, key string) (int, error) {
	v := q.Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s", apperrors.ErrValidation, key)
	}
	return n, nil
}

func timeRange(q url.Values) (*time.Time, *time.Time, error) {
	var out [2]*time.Time
	for i, key := range []string{"from", "to"} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: invalid %s", apperrors.ErrValidation, key)
		}
		parsed = parsed.UTC()
		out[i] = &parsed
	}
	return out[0], out[1], nil
}
