package comparison

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderdesk/models"
)

func TestMergeKeepsBothValues(t *testing.T) {
	actual := []models.RevenuePoint{
		{Date: "2026-03-02", TotalRevenue: 120},
		{Date: "2026-03-01", TotalRevenue: 100},
	}
	predicted := []models.ForecastPoint{
		{Date: "2026-03-02", PredictedRevenue: 130.5},
		{Date: "2026-03-03", PredictedRevenue: 0},
	}

	got := Merge(actual, predicted)
	require.Len(t, got, 3)

	assert.Equal(t, "2026-03-01", got[0].Date)
	require.NotNil(t, got[0].Actual)
	assert.Equal(t, 100.0, *got[0].Actual)
	assert.Nil(t, got[0].Predicted)

	assert.Equal(t, "2026-03-02", got[1].Date)
	assert.Equal(t, 120.0, *got[1].Actual)
	assert.Equal(t, 130.5, *got[1].Predicted)

	assert.Nil(t, got[2].Actual, "absent, not zero")
	require.NotNil(t, got[2].Predicted)
	assert.Equal(t, 0.0, *got[2].Predicted)
}

func TestMergeEmpty(t *testing.T) {
	got := Merge(nil, nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func genDates() gopter.Gen {
	return gen.SliceOf(gen.IntRange(1, 28)).Map(func(days []int) []string {
		out := make([]string, len(days))
		for i, d := range days {
			out[i] = fmt.Sprintf("2026-02-%02d", d)
		}
		return out
	})
}

func TestMergeProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("one record per distinct date, ascending, values untouched", prop.ForAll(
		func(actualDates, predictedDates []string) bool {
			var actual []models.RevenuePoint
			actualVal := map[string]float64{}
			for i, d := range actualDates {
				if _, seen := actualVal[d]; !seen {
					actualVal[d] = float64(i) + 0.25
				}
				actual = append(actual, models.RevenuePoint{Date: d, TotalRevenue: float64(i) + 0.25})
			}
			var predicted []models.ForecastPoint
			predictedVal := map[string]float64{}
			for i, d := range predictedDates {
				if _, seen := predictedVal[d]; !seen {
					predictedVal[d] = float64(i) * 2
				}
				predicted = append(predicted, models.ForecastPoint{Date: d, PredictedRevenue: float64(i) * 2})
			}

			distinct := map[string]bool{}
			for _, d := range append(append([]string{}, actualDates...), predictedDates...) {
				distinct[d] = true
			}

			got := Merge(actual, predicted)
			if len(got) != len(distinct) {
				return false
			}
			for i, r := range got {
				if i > 0 && got[i-1].Date >= r.Date {
					return false
				}
				want, inActual := actualVal[r.Date]
				if inActual != (r.Actual != nil) || (inActual && *r.Actual != want) {
					return false
				}
				want, inPredicted := predictedVal[r.Date]
				if inPredicted != (r.Predicted != nil) || (inPredicted && *r.Predicted != want) {
					return false
				}
			}
			return true
		},
		genDates(), genDates(),
	))

	properties.TestingRun(t)
}
