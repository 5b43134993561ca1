// Package forecast projects future daily revenue from a historical series.
//
// The projection itself is computed behind the Service interface, either by
// an external process speaking the JSON protocol in this file or in process
// by RegressionService. Engine adds the precondition checks, coalescing,
// caching and cancellation around whichever Service is configured.
package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"time"

	"orderdesk/apperr"
	"orderdesk/models"
	"orderdesk/utils"
)

// SeriesPoint is one day of history sent to the computation.
type SeriesPoint struct {
	Date         string  `json:"date"`
	TotalRevenue float64 `json:"totalRevenue"`
}

// Service computes a forecast for horizonDays days after the last point.
type Service interface {
	Forecast(ctx context.Context, series []SeriesPoint, horizonDays int) (*models.Forecast, error)
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx context.Context, series []SeriesPoint, horizonDays int) (*models.Forecast, error)

func (f ServiceFunc) Forecast(ctx context.Context, series []SeriesPoint, horizonDays int) (*models.Forecast, error) {
	return f(ctx, series, horizonDays)
}

// SeriesFromTrend converts daily revenue points into forecast input.
func SeriesFromTrend(points []models.RevenuePoint) []SeriesPoint {
	series := make([]SeriesPoint, len(points))
	for i, p := range points {
		series[i] = SeriesPoint{Date: p.Date, TotalRevenue: p.TotalRevenue}
	}
	return series
}

// Response is the envelope written by the external computation.
type Response struct {
	Success bool          `json:"success"`
	Data    *ResponseData `json:"data,omitempty"`
	Error   string        `json:"error,omitempty"`
}

type ResponseData struct {
	Forecast     []models.ForecastPoint `json:"forecast"`
	ModelMetrics *models.ModelMetrics   `json:"modelMetrics"`
	Warning      string                 `json:"warning,omitempty"`
}

// DecodeResponse parses the computation's stdout. Anything that is not a
// well formed envelope is a ParseError; a well formed failure envelope is a
// ForecastComputationError.
func DecodeResponse(out []byte) (*models.Forecast, error) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return nil, apperr.New(apperr.KindParse, "forecast process produced no output")
	}

	dec := json.NewDecoder(bytes.NewReader(out))
	var resp Response
	if err := dec.Decode(&resp); err != nil {
		return nil, apperr.Wrap(apperr.KindParse, err, "forecast output is not valid JSON")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, apperr.New(apperr.KindParse, "forecast output has trailing data")
	}

	if !resp.Success {
		if resp.Error == "" {
			return nil, apperr.New(apperr.KindParse, "forecast failure reported without an error message")
		}
		return nil, apperr.New(apperr.KindForecastComputation, "%s", resp.Error)
	}
	if resp.Data == nil || resp.Data.ModelMetrics == nil || resp.Data.Forecast == nil {
		return nil, apperr.New(apperr.KindParse, "forecast output is missing data.forecast or data.modelMetrics")
	}

	m := *resp.Data.ModelMetrics
	if !finite(m.Coefficient) || !finite(m.Intercept) || !finite(m.RSquared) {
		return nil, apperr.New(apperr.KindParse, "forecast model metrics are not finite numbers")
	}
	for i, p := range resp.Data.Forecast {
		if _, err := time.Parse(utils.DateLayout, p.Date); err != nil {
			return nil, apperr.New(apperr.KindParse, "forecast point %d has invalid date %q", i, p.Date)
		}
		if !finite(p.PredictedRevenue) {
			return nil, apperr.New(apperr.KindParse, "forecast point %d has a non-finite prediction", i)
		}
	}
	return &models.Forecast{
		Points:  resp.Data.Forecast,
		Metrics: m,
		Warning: resp.Data.Warning,
	}, nil
}

// EncodeResponse writes a protocol envelope for fc, or for err when fc is nil.
func EncodeResponse(w io.Writer, fc *models.Forecast, err error) error {
	resp := Response{Success: err == nil}
	if err != nil {
		resp.Error = apperr.MessageOf(err)
	} else {
		metrics := fc.Metrics
		resp.Data = &ResponseData{Forecast: fc.Points, ModelMetrics: &metrics, Warning: fc.Warning}
	}
	return json.NewEncoder(w).Encode(resp)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func cloneForecast(fc *models.Forecast) *models.Forecast {
	out := *fc
	out.Points = append([]models.ForecastPoint(nil), fc.Points...)
	return &out
}
