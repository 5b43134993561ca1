package forecast

import (
	"context"
	"math"
	"sort"
	"time"

	"orderdesk/apperr"
	"orderdesk/models"
	"orderdesk/utils"
)

const lowAccuracyWarning = "Low model accuracy (R² < 0.5). Predictions may be unreliable."

// Fit runs an ordinary least squares regression of revenue on the day index
// (days since the first point) and projects horizonDays days past the last
// point. Predictions are clamped at zero.
func Fit(series []SeriesPoint, horizonDays int) (*models.Forecast, error) {
	if horizonDays < 1 {
		return nil, apperr.New(apperr.KindForecastComputation, "horizon must be at least one day")
	}
	if len(series) == 0 {
		return nil, apperr.New(apperr.KindForecastComputation, "no historical data")
	}

	type sample struct {
		day time.Time
		y   float64
	}
	samples := make([]sample, 0, len(series))
	for _, p := range series {
		d, err := time.Parse(utils.DateLayout, p.Date)
		if err != nil {
			return nil, apperr.New(apperr.KindForecastComputation, "invalid date %q in history", p.Date)
		}
		if !finite(p.TotalRevenue) {
			return nil, apperr.New(apperr.KindForecastComputation, "non-finite revenue on %s", p.Date)
		}
		samples = append(samples, sample{day: d, y: p.TotalRevenue})
	}
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].day.Before(samples[j].day) })

	first, last := samples[0].day, samples[len(samples)-1].day
	if !last.After(first) {
		return nil, apperr.New(apperr.KindForecastComputation, "degenerate regression: need at least two distinct dates")
	}

	n := float64(len(samples))
	xs := make([]float64, len(samples))
	var sumX, sumY float64
	for i, s := range samples {
		xs[i] = s.day.Sub(first).Hours() / 24
		sumX += xs[i]
		sumY += s.y
	}
	meanX, meanY := sumX/n, sumY/n

	var sxx, sxy, sst float64
	for i, s := range samples {
		dx, dy := xs[i]-meanX, s.y-meanY
		sxx += dx * dx
		sxy += dx * dy
		sst += dy * dy
	}
	slope := sxy / sxx
	intercept := meanY - slope*meanX

	var sse float64
	for i, s := range samples {
		r := s.y - (intercept + slope*xs[i])
		sse += r * r
	}
	rSquared := 1.0
	if sst > 0 {
		rSquared = 1 - sse/sst
	} else if sse > 0 {
		rSquared = 0
	}
	if !finite(slope) || !finite(intercept) || !finite(rSquared) {
		return nil, apperr.New(apperr.KindForecastComputation, "regression did not converge")
	}

	label := confidenceLabel(rSquared)
	lastX := xs[len(xs)-1]
	points := make([]models.ForecastPoint, horizonDays)
	for k := 1; k <= horizonDays; k++ {
		predicted := math.Max(0, intercept+slope*(lastX+float64(k)))
		points[k-1] = models.ForecastPoint{
			Date:             last.AddDate(0, 0, k).Format(utils.DateLayout),
			PredictedRevenue: roundTo(predicted, 2),
			Confidence:       label,
		}
	}

	fc := &models.Forecast{
		Points: points,
		Metrics: models.ModelMetrics{
			Coefficient: roundTo(slope, 6),
			Intercept:   roundTo(intercept, 2),
			RSquared:    roundTo(rSquared, 3),
		},
	}
	if rSquared < 0.5 {
		fc.Warning = lowAccuracyWarning
	}
	return fc, nil
}

func confidenceLabel(rSquared float64) string {
	switch {
	case rSquared >= 0.7:
		return "high"
	case rSquared >= 0.5:
		return "medium"
	default:
		return "low"
	}
}

func roundTo(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

// RegressionService runs Fit in process.
type RegressionService struct{}

func (RegressionService) Forecast(ctx context.Context, series []SeriesPoint, horizonDays int) (*models.Forecast, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Fit(series, horizonDays)
}
