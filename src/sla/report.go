package sla

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"warehouseops/src/apperrors"
	"warehouseops/src/model"
	"warehouseops/src/repository"
	"warehouseops/src/utils"
)

// HistoryFilter narrows History. Nil pointers mean no filter.
type HistoryFilter struct {
	Type     *model.ExceptionType
	Severity *model.ExceptionSeverity
	Zone     *string
	From     *time.Time
	To       *time.Time
	Status   string // open | resolved | breached
	Limit    int
	Offset   int
}

// StatsFilter narrows Stats.
type StatsFilter struct {
	Type *model.ExceptionType
	Zone *string
	From *time.Time
	To   *time.Time
}

// Counts are the aggregate figures shared by Stats and its per-type breakdown.
type Counts struct {
	Total                int     `json:"total"`
	Open                 int     `json:"open"`
	Resolved             int     `json:"resolved"`
	Breached             int     `json:"breached"`
	Acknowledged         int     `json:"acknowledged"`
	ComplianceScore      float64 `json:"compliance_score"`
	AvgResolutionMinutes float64 `json:"avg_resolution_minutes"`
}

type Stats struct {
	Counts
	ByType map[model.ExceptionType]Counts `json:"by_type"`
}

// TrendBucket is one UTC day of the compliance trend.
type TrendBucket struct {
	Date            string  `json:"date"`
	Total           int     `json:"total"`
	Breached        int     `json:"breached"`
	ComplianceScore float64 `json:"compliance_score"`
}

// History reconciles and then lists ledger rows newest first.
func (t *Tracker) History(ctx context.Context, f HistoryFilter) ([]model.SlaEvent, error) {
	if f.Status != "" && f.Status != repository.SlaStatusOpen &&
		f.Status != repository.SlaStatusResolved && f.Status != repository.SlaStatusBreached {
		return nil, fmt.Errorf("%w: unknown status %q", apperrors.ErrValidation, f.Status)
	}
	if f.Limit < 0 || f.Offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must be positive", apperrors.ErrValidation)
	}

	if _, err := t.Reconcile(ctx); err != nil {
		return nil, err
	}

	limit := f.Limit
	if limit == 0 {
		limit = t.config.HistoryLimit
	}
	if t.config.HistoryMaxLimit > 0 && limit > t.config.HistoryMaxLimit {
		limit = t.config.HistoryMaxLimit
	}

	opts := repository.SlaEventSearchOptions{
		Severity:      f.Severity,
		Zone:          f.Zone,
		StartedAfter:  f.From,
		StartedBefore: f.To,
		Status:        f.Status,
		Limit:         limit,
		Offset:        f.Offset,
	}
	if f.Type != nil {
		opts.Types = []model.ExceptionType{*f.Type}
	}

	return t.ledger.Search(ctx, opts)
}

// Stats reconciles and then aggregates the matching rows.
func (t *Tracker) Stats(ctx context.Context, f StatsFilter) (*Stats, error) {
	if _, err := t.Reconcile(ctx); err != nil {
		return nil, err
	}

	opts := repository.SlaEventSearchOptions{
		Zone:          f.Zone,
		StartedAfter:  f.From,
		StartedBefore: f.To,
	}
	if f.Type != nil {
		opts.Types = []model.ExceptionType{*f.Type}
	}

	events, err := t.ledger.Search(ctx, opts)
	if err != nil {
		return nil, err
	}

	return Aggregate(events), nil
}

// Trends reconciles and then returns one bucket per UTC day, oldest first,
// ending today. Days without rows are present with a score of 100.
func (t *Tracker) Trends(ctx context.Context, days int) ([]TrendBucket, error) {
	maxDays := t.config.TrendMaxDays
	if maxDays <= 0 {
		maxDays = 90
	}
	if days < 1 || days > maxDays {
		return nil, fmt.Errorf("%w: period must be between 1 and %d days", apperrors.ErrValidation, maxDays)
	}

	if _, err := t.Reconcile(ctx); err != nil {
		return nil, err
	}

	from := utils.StartOfDayUTC(t.now()).AddDate(0, 0, -(days - 1))

	events, err := t.ledger.Search(ctx, repository.SlaEventSearchOptions{StartedAfter: &from})
	if err != nil {
		return nil, err
	}

	return BucketByDay(events, from, days), nil
}

// Aggregate computes totals, compliance and average resolution time.
func Aggregate(events []model.SlaEvent) *Stats {
	type acc struct {
		counts      Counts
		durationSum int
	}

	overall := &acc{}
	byType := map[model.ExceptionType]*acc{}

	for i := range events {
		ev := &events[i]
		a, ok := byType[ev.Type]
		if !ok {
			a = &acc{}
			byType[ev.Type] = a
		}
		for _, target := range []*acc{overall, a} {
			target.counts.Total++
			if ev.IsResolved() {
				target.counts.Resolved++
				if ev.DurationMinutes != nil {
					target.durationSum += *ev.DurationMinutes
				}
			} else {
				target.counts.Open++
			}
			if ev.IsBreached() {
				target.counts.Breached++
			}
			if ev.AcknowledgedAt != nil {
				target.counts.Acknowledged++
			}
		}
	}

	finish := func(a *acc) Counts {
		c := a.counts
		c.ComplianceScore = ComplianceScore(c.Total, c.Breached)
		if c.Resolved > 0 {
			c.AvgResolutionMinutes = decimal.NewFromInt(int64(a.durationSum)).
				Div(decimal.NewFromInt(int64(c.Resolved))).
				Round(2).
				InexactFloat64()
		}
		return c
	}

	stats := &Stats{
		Counts: finish(overall),
		ByType: make(map[model.ExceptionType]Counts, len(byType)),
	}
	for typ, a := range byType {
		stats.ByType[typ] = finish(a)
	}
	return stats
}

// BucketByDay spreads events over days UTC buckets starting at from.
func BucketByDay(events []model.SlaEvent, from time.Time, days int) []TrendBucket {
	buckets := make([]TrendBucket, days)
	index := make(map[string]int, days)
	for i := 0; i < days; i++ {
		d := utils.DayKey(from.AddDate(0, 0, i))
		buckets[i] = TrendBucket{Date: d}
		index[d] = i
	}

	for i := range events {
		idx, ok := index[utils.DayKey(events[i].StartedAt)]
		if !ok {
			continue
		}
		buckets[idx].Total++
		if events[i].IsBreached() {
			buckets[idx].Breached++
		}
	}

	for i := range buckets {
		buckets[i].ComplianceScore = ComplianceScore(buckets[i].Total, buckets[i].Breached)
	}
	return buckets
}

// ComplianceScore is the share of non-breached rows in percent, rounded to
// two decimals. An empty set scores 100.
func ComplianceScore(total, breached int) float64 {
	if total == 0 {
		return 100
	}
	return decimal.NewFromInt(int64(total - breached)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		Round(2).
		InexactFloat64()
}

// ParsePeriod accepts "7d", "7" or "1w" style periods and returns days.
func ParsePeriod(period string) (int, error) {
	p := strings.ToLower(strings.TrimSpace(period))
	if p == "" {
		return 7, nil
	}

	mult := 1
	switch {
	case strings.HasSuffix(p, "d"):
		p = strings.TrimSuffix(p, "d")
	case strings.HasSuffix(p, "w"):
		p = strings.TrimSuffix(p, "w")
		mult = 7
	}

	n, err := strconv.Atoi(p)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: invalid period %q", apperrors.ErrValidation, period)
	}
	return n * mult, nil
}
