// Package comparison lines actual revenue up against a forecast.
package comparison

import (
	"sort"

	"orderdesk/models"
)

// Merge unions actual and predicted into one record per distinct date,
// ascending. A date present on both sides keeps both values as given; a
// side with no value for a date stays nil. If an input repeats a date the
// first value wins.
func Merge(actual []models.RevenuePoint, predicted []models.ForecastPoint) []models.ComparisonRecord {
	byDate := make(map[string]*models.ComparisonRecord, len(actual)+len(predicted))
	record := func(date string) *models.ComparisonRecord {
		r, ok := byDate[date]
		if !ok {
			r = &models.ComparisonRecord{Date: date}
			byDate[date] = r
		}
		return r
	}

	for _, p := range actual {
		r := record(p.Date)
		if r.Actual == nil {
			v := p.TotalRevenue
			r.Actual = &v
		}
	}
	for _, p := range predicted {
		r := record(p.Date)
		if r.Predicted == nil {
			v := p.PredictedRevenue
			r.Predicted = &v
		}
	}

	out := make([]models.ComparisonRecord, 0, len(byDate))
	for _, r := range byDate {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
