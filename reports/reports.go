// Package reports assembles the forecast report: the daily paid-revenue
// trend, its projection and the date-aligned comparison of both.
package reports

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"orderdesk/analytics"
	"orderdesk/apperr"
	"orderdesk/archive"
	"orderdesk/comparison"
	"orderdesk/forecast"
	"orderdesk/models"
	"orderdesk/utils"
)

const (
	DefaultConfidence  = 0.95
	DefaultHorizonDays = 7
	archiveTimeout     = 30 * time.Second
)

// Forecaster is satisfied by *forecast.Engine.
type Forecaster interface {
	Forecast(ctx context.Context, series []forecast.SeriesPoint, horizonDays int) (*models.Forecast, error)
}

type Request struct {
	StartDate   string
	EndDate     string
	HorizonDays int
	// Confidence is validated and echoed; the regression has no interval.
	Confidence *float64
}

type Service struct {
	aggregator     *analytics.Aggregator
	forecaster     Forecaster
	archiver       archive.Archiver
	defaultHorizon int
	wg             sync.WaitGroup
}

// NewService wires the report pipeline. archiver may be nil.
func NewService(agg *analytics.Aggregator, f Forecaster, archiver archive.Archiver, defaultHorizon int) *Service {
	if defaultHorizon <= 0 {
		defaultHorizon = DefaultHorizonDays
	}
	return &Service{aggregator: agg, forecaster: f, archiver: archiver, defaultHorizon: defaultHorizon}
}

func (s *Service) ForecastReport(ctx context.Context, req Request) (*models.ForecastReport, error) {
	confidence := DefaultConfidence
	if req.Confidence != nil {
		confidence = *req.Confidence
		if !(confidence > 0 && confidence < 1) {
			return nil, apperr.Validation("confidence must be between 0 and 1")
		}
	}
	horizon := req.HorizonDays
	if horizon == 0 {
		horizon = s.defaultHorizon
	}

	r, err := s.aggregator.ResolveRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}
	trend, err := s.aggregator.Trend(ctx, r, analytics.Daily)
	if err != nil {
		return nil, err
	}

	fc, err := s.forecaster.Forecast(ctx, forecast.SeriesFromTrend(trend), horizon)
	if err != nil {
		return nil, err
	}

	report := &models.ForecastReport{
		Forecast:     fc.Points,
		ModelMetrics: fc.Metrics,
		InputSummary: summarize(r, trend, horizon, confidence),
		Comparison:   comparison.Merge(trend, fc.Points),
		Warning:      fc.Warning,
	}
	s.archive(report)
	return report, nil
}

// summarize echoes the model input. TotalDays counts the days that had paid
// revenue, which is what the regression saw.
func summarize(r analytics.Range, trend []models.RevenuePoint, horizon int, confidence float64) models.InputSummary {
	var total float64
	for _, p := range trend {
		total += p.TotalRevenue
	}
	summary := models.InputSummary{
		StartDate:    r.Start.Format(utils.DateLayout),
		EndDate:      r.End.Format(utils.DateLayout),
		TotalDays:    len(trend),
		TotalRevenue: math.Round(total*100) / 100,
		HorizonDays:  horizon,
		Confidence:   confidence,
	}
	if len(trend) > 0 {
		summary.AverageDailyRevenue = math.Round(total/float64(len(trend))*100) / 100
	}
	return summary
}

func (s *Service) archive(report *models.ForecastReport) {
	if s.archiver == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := s.archiver.Archive(ctx, report); err != nil {
			log.Printf("[REPORTS] archive failed: %v", err)
		}
	}()
}

// Wait blocks until pending archive uploads have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}
