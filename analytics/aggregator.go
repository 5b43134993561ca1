// Package analytics derives revenue and order aggregates from the order
// store. Nothing here is persisted; every call recomputes from orders.
package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"orderdesk/apperr"
	"orderdesk/models"
	"orderdesk/store"
	"orderdesk/utils"
)

const (
	DefaultMaxRangeDays     = 365
	DefaultDefaultRangeDays = 90
)

type Granularity string

const (
	Daily   Granularity = "daily"
	Weekly  Granularity = "weekly"
	Monthly Granularity = "monthly"
)

// ParseGranularity accepts daily/weekly/monthly (and day/week/month).
// Empty means daily.
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "daily", "day":
		return Daily, nil
	case "weekly", "week":
		return Weekly, nil
	case "monthly", "month":
		return Monthly, nil
	}
	return "", apperr.Validation("period must be one of daily, weekly, monthly")
}

// BucketKey formats t for the granularity: YYYY-MM-DD, YYYY-Www (weeks start
// on Sunday, week 00 holds the days before the first Sunday) or YYYY-MM.
func (g Granularity) BucketKey(t time.Time) string {
	t = t.UTC()
	switch g {
	case Weekly:
		week := (t.YearDay() - 1 + 7 - int(t.Weekday())) / 7
		return fmt.Sprintf("%04d-W%02d", t.Year(), week)
	case Monthly:
		return t.Format("2006-01")
	default:
		return t.Format(utils.DateLayout)
	}
}

// Range is an inclusive span of whole UTC days.
type Range struct {
	Start time.Time
	End   time.Time
}

// Days returns the number of calendar days covered.
func (r Range) Days() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

func (r Range) bounds() (time.Time, time.Time) {
	return r.Start, utils.EndOfDay(r.End)
}

type Aggregator struct {
	store            store.OrderStore
	maxRangeDays     int
	defaultRangeDays int
	now              func() time.Time
}

type Option func(*Aggregator)

func WithMaxRangeDays(days int) Option {
	return func(a *Aggregator) {
		if days > 0 {
			a.maxRangeDays = days
		}
	}
}

func WithDefaultRangeDays(days int) Option {
	return func(a *Aggregator) {
		if days > 0 {
			a.defaultRangeDays = days
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

func NewAggregator(s store.OrderStore, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:            s,
		maxRangeDays:     DefaultMaxRangeDays,
		defaultRangeDays: DefaultDefaultRangeDays,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ResolveRange validates the ISO dates of a query. Missing end means today,
// missing start means defaultRangeDays before end. start > end is a
// ValidationError; spans longer than maxRangeDays are clamped to the most
// recent maxRangeDays ending at end.
func (a *Aggregator) ResolveRange(startDate, endDate string) (Range, error) {
	end := utils.StartOfDay(a.now())
	if endDate != "" {
		t, err := utils.ParseDate(endDate)
		if err != nil {
			return Range{}, apperr.Validation("endDate %q is not a valid ISO date", endDate)
		}
		end = t
	}
	start := end.AddDate(0, 0, -(a.defaultRangeDays - 1))
	if startDate != "" {
		t, err := utils.ParseDate(startDate)
		if err != nil {
			return Range{}, apperr.Validation("startDate %q is not a valid ISO date", startDate)
		}
		start = t
	}
	return a.clamp(Range{Start: start, End: end})
}

func (a *Aggregator) clamp(r Range) (Range, error) {
	if r.Start.After(r.End) {
		return Range{}, apperr.Validation("startDate %s is after endDate %s",
			r.Start.Format(utils.DateLayout), r.End.Format(utils.DateLayout))
	}
	if r.Days() > a.maxRangeDays {
		r.Start = r.End.AddDate(0, 0, -(a.maxRangeDays - 1))
	}
	return r, nil
}

// GeneralStats summarises every order created up to asOf (zero means now).
// Revenue counts Completed and Delivered orders only.
func (a *Aggregator) GeneralStats(ctx context.Context, asOf time.Time) (*models.GeneralStats, error) {
	if asOf.IsZero() {
		asOf = a.now()
	}
	orders, err := a.store.Range(ctx, time.Time{}, asOf)
	if err != nil {
		return nil, err
	}
	users, err := a.store.CountCustomers(ctx)
	if err != nil {
		return nil, err
	}

	stats := &models.GeneralStats{
		TotalOrders:     len(orders),
		TotalUsers:      users,
		StatusBreakdown: []models.StatusCount{},
		MonthlyRevenue:  []models.RevenuePoint{},
	}
	byStatus := make(map[models.Status]int)
	monthly := newBuckets(Monthly)
	for _, o := range orders {
		byStatus[o.Status]++
		if o.Status == models.StatusCompleted || o.Status == models.StatusDelivered {
			stats.TotalRevenue += o.Amount
		}
		if o.Status == models.StatusCompleted {
			monthly.add(o)
		}
	}
	stats.TotalRevenue = round2(stats.TotalRevenue)
	if stats.TotalOrders > 0 {
		stats.AvgOrderValue = round2(stats.TotalRevenue / float64(stats.TotalOrders))
	}
	for _, s := range models.AllStatuses {
		if n := byStatus[s]; n > 0 {
			stats.StatusBreakdown = append(stats.StatusBreakdown, models.StatusCount{Status: s, Count: n})
		}
	}
	stats.MonthlyRevenue = monthly.points()
	stats.PredictedNextMonthRevenue = movingAverage(stats.MonthlyRevenue, 3)
	return stats, nil
}

// movingAverage is the mean revenue of the last n points, or of all of them
// when there are fewer.
func movingAverage(points []models.RevenuePoint, n int) float64 {
	if len(points) == 0 {
		return 0
	}
	if len(points) > n {
		points = points[len(points)-n:]
	}
	var sum float64
	for _, p := range points {
		sum += p.TotalRevenue
	}
	return round2(sum / float64(len(points)))
}

// Trend buckets paid orders created within r, ascending by bucket key.
func (a *Aggregator) Trend(ctx context.Context, r Range, g Granularity) ([]models.RevenuePoint, error) {
	if g == "" {
		g = Daily
	}
	from, to := r.bounds()
	if from.After(to) {
		return nil, apperr.Validation("start date is after end date")
	}
	orders, err := a.store.Range(ctx, from, to)
	if err != nil {
		return nil, err
	}
	b := newBuckets(g)
	for _, o := range orders {
		if o.Payment {
			b.add(o)
		}
	}
	return b.points(), nil
}

// OrdersByDate counts every order per day within r, paid or not.
func (a *Aggregator) OrdersByDate(ctx context.Context, r Range) ([]models.DateCount, error) {
	from, to := r.bounds()
	if from.After(to) {
		return nil, apperr.Validation("start date is after end date")
	}
	orders, err := a.store.Range(ctx, from, to)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, o := range orders {
		counts[Daily.BucketKey(o.CreatedAt)]++
	}
	out := make([]models.DateCount, 0, len(counts))
	for date, n := range counts {
		out = append(out, models.DateCount{Date: date, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// CategoryBreakdown counts line items per category across all orders. An
// order with N items contributes N increments. Sorted by count descending,
// then category name.
func (a *Aggregator) CategoryBreakdown(ctx context.Context) ([]models.CategoryCount, error) {
	orders, err := a.store.Range(ctx, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, o := range orders {
		for _, item := range o.Items {
			category := strings.TrimSpace(item.Category)
			if category == "" {
				category = "Uncategorized"
			}
			counts[category]++
		}
	}
	out := make([]models.CategoryCount, 0, len(counts))
	for category, n := range counts {
		out = append(out, models.CategoryCount{Category: category, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

type buckets struct {
	g     Granularity
	byKey map[string]*models.RevenuePoint
}

func newBuckets(g Granularity) *buckets {
	return &buckets{g: g, byKey: make(map[string]*models.RevenuePoint)}
}

func (b *buckets) add(o *models.Order) {
	key := b.g.BucketKey(o.CreatedAt)
	p, ok := b.byKey[key]
	if !ok {
		p = &models.RevenuePoint{Date: key}
		b.byKey[key] = p
	}
	p.TotalRevenue += o.Amount
	p.OrderCount++
}

func (b *buckets) points() []models.RevenuePoint {
	out := make([]models.RevenuePoint, 0, len(b.byKey))
	for _, p := range b.byKey {
		p.TotalRevenue = round2(p.TotalRevenue)
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
