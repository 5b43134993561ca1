package models

// GeneralStats is the headline block of the analytics dashboard.
type GeneralStats struct {
	TotalOrders               int            `json:"totalOrders"`
	TotalUsers                int            `json:"totalUsers"`
	TotalRevenue              float64        `json:"totalRevenue"`
	AvgOrderValue             float64        `json:"avgOrderValue"`
	StatusBreakdown           []StatusCount  `json:"statusBreakdown"`
	MonthlyRevenue            []RevenuePoint `json:"monthlyRevenue"`
	PredictedNextMonthRevenue float64        `json:"predictedNextMonthRevenue"`
}

type StatusCount struct {
	Status Status `json:"status"`
	Count  int    `json:"count"`
}

// RevenuePoint is one bucket of the revenue trend. Date is the bucket key:
// YYYY-MM-DD, YYYY-Www or YYYY-MM depending on granularity.
type RevenuePoint struct {
	Date         string  `json:"date"`
	TotalRevenue float64 `json:"totalRevenue"`
	OrderCount   int     `json:"orderCount"`
}

type DateCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// ForecastPoint is a projected revenue value for one future day.
type ForecastPoint struct {
	Date             string  `json:"date"`
	PredictedRevenue float64 `json:"predictedRevenue"`
	Confidence       string  `json:"confidence,omitempty"`
}

type ModelMetrics struct {
	Coefficient float64 `json:"coefficient"`
	Intercept   float64 `json:"intercept"`
	RSquared    float64 `json:"rSquared"`
}

// Forecast is the output of a single forecast run. It is never persisted.
type Forecast struct {
	Points  []ForecastPoint `json:"forecast"`
	Metrics ModelMetrics    `json:"modelMetrics"`
	Warning string          `json:"warning,omitempty"`
}

// ComparisonRecord pairs actual and predicted revenue for one date. A missing
// side is nil, never zero.
type ComparisonRecord struct {
	Date      string   `json:"date"`
	Actual    *float64 `json:"actual"`
	Predicted *float64 `json:"predicted"`
}

// InputSummary echoes what the forecast model was fed.
type InputSummary struct {
	StartDate           string  `json:"startDate"`
	EndDate             string  `json:"endDate"`
	TotalDays           int     `json:"totalDays"`
	TotalRevenue        float64 `json:"totalRevenue"`
	AverageDailyRevenue float64 `json:"averageDailyRevenue"`
	HorizonDays         int     `json:"horizonDays"`
	Confidence          float64 `json:"confidence"`
}

// ForecastReport is what the forecast endpoint returns.
type ForecastReport struct {
	Forecast     []ForecastPoint    `json:"forecast"`
	ModelMetrics ModelMetrics       `json:"modelMetrics"`
	InputSummary InputSummary       `json:"inputSummary"`
	Comparison   []ComparisonRecord `json:"comparison"`
	Warning      string             `json:"warning,omitempty"`
}
