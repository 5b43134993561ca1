package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderdesk/analytics"
	"orderdesk/apperr"
	"orderdesk/config"
	"orderdesk/events"
	"orderdesk/forecast"
	"orderdesk/handlers"
	"orderdesk/lifecycle"
	"orderdesk/middleware"
	"orderdesk/models"
	"orderdesk/reports"
	"orderdesk/routes"
	"orderdesk/store"
)

const testSecret = "handlers-test-secret"

var today = time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	app   *fiber.App
	store *store.MemoryStore
	hub   *events.Hub
}

func newEnv(t *testing.T, limiter *middleware.RefreshLimiter) *testEnv {
	t.Helper()
	config.AppConfig.JWTSecret = testSecret

	st := store.NewMemoryStore()
	hub := events.NewHub(16)
	require.NoError(t, hub.Start(context.Background()))

	agg := analytics.NewAggregator(st, analytics.WithClock(func() time.Time { return today }))
	engine := forecast.NewEngine(forecast.RegressionService{}, forecast.EngineConfig{MinPoints: 7})
	h := &handlers.Handler{
		Orders:      lifecycle.NewController(st, hub),
		Analytics:   agg,
		Reports:     reports.NewService(agg, engine, nil, 7),
		Bus:         hub,
		Heartbeat:   time.Hour,
		Version:     "test",
		StoreDriver: "memory",
	}

	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler})
	routes.SetupRoutes(app, h, limiter)
	return &testEnv{app: app, store: st, hub: hub}
}

func token(t *testing.T, userID string, role models.Role) string {
	t.Helper()
	tok, err := middleware.SignToken(testSecret, userID, role, time.Hour)
	require.NoError(t, err)
	return tok
}

type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *testEnv) do(t *testing.T, method, path, tok string, body interface{}) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	env := newEnv(t, nil)
	customer := token(t, "cust-1", models.RoleCustomer)
	kitchen := token(t, "k-1", models.RoleKitchen)
	delivery := token(t, "d-1", models.RoleDelivery)

	status, body := env.do(t, "POST", "/api/v1/orders", customer, models.PlaceOrderRequest{
		Items: []models.OrderItem{
			{ProductID: "p1", Name: "Burger", UnitPrice: 10, Quantity: 2},
			{ProductID: "p2", Name: "Fries", UnitPrice: 5, Quantity: 1},
		},
		Address: models.JSONB{"street": "1 Main St"},
	})
	require.Equal(t, http.StatusCreated, status, body.Message)
	var order models.Order
	require.NoError(t, json.Unmarshal(body.Data, &order))
	assert.Equal(t, 27.0, order.Amount)
	assert.Equal(t, models.StatusFoodProcessing, order.Status)
	assert.False(t, order.Payment)

	status, body = env.do(t, "POST", "/api/v1/orders/status", kitchen, fiber.Map{
		"orderId": order.ID, "targetStatus": "Out for Delivery",
	})
	require.Equal(t, http.StatusOK, status, body.Message)

	status, body = env.do(t, "POST", "/api/v1/orders/status", delivery, fiber.Map{
		"orderId": order.ID, "targetStatus": "Delivered",
	})
	assert.Equal(t, http.StatusPaymentRequired, status)
	assert.Equal(t, string(apperr.KindPaymentRequired), body.Error)

	status, _ = env.do(t, "POST", "/api/v1/orders/payment", delivery, fiber.Map{"orderId": order.ID, "payment": true})
	require.Equal(t, http.StatusOK, status)

	steps := []struct {
		tok    string
		target string
	}{
		{delivery, "Delivered"},
		{customer, "Completed"},
	}
	for _, step := range steps {
		status, body = env.do(t, "POST", "/api/v1/orders/status", step.tok, fiber.Map{
			"orderId": order.ID, "targetStatus": step.target,
		})
		require.Equal(t, http.StatusOK, status, "%s: %s", step.target, body.Message)
	}

	status, body = env.do(t, "GET", "/api/v1/orders/"+order.ID, customer, nil)
	require.Equal(t, http.StatusOK, status)
	var view struct {
		Status             models.Status   `json:"status"`
		AllowedTransitions []models.Status `json:"allowedTransitions"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &view))
	assert.Equal(t, models.StatusCompleted, view.Status)
	assert.Empty(t, view.AllowedTransitions)
}

func TestOrderRequestErrors(t *testing.T) {
	env := newEnv(t, nil)
	cashier := token(t, "c-1", models.RoleCashier)
	kitchen := token(t, "k-1", models.RoleKitchen)

	_, body := env.do(t, "POST", "/api/v1/orders", cashier, models.PlaceOrderRequest{
		UserID: "cust-9",
		Items:  []models.OrderItem{{ProductID: "p1", Name: "Soup", UnitPrice: 4, Quantity: 1}},
	})
	var order models.Order
	require.NoError(t, json.Unmarshal(body.Data, &order))
	require.NotEmpty(t, order.ID)

	cases := []struct {
		name   string
		method string
		path   string
		tok    string
		body   interface{}
		status int
		kind   apperr.Kind
	}{
		{"no token", "GET", "/api/v1/orders", "", nil, http.StatusUnauthorized, apperr.KindUnauthorized},
		{"unknown target", "POST", "/api/v1/orders/status", kitchen, fiber.Map{"orderId": order.ID, "targetStatus": "Eaten"}, http.StatusBadRequest, apperr.KindValidation},
		{"role mismatch", "POST", "/api/v1/orders/status", kitchen, fiber.Map{"orderId": order.ID, "targetStatus": "Cancelled", "actorRole": "admin"}, http.StatusForbidden, apperr.KindUnauthorized},
		{"kitchen cannot cancel", "POST", "/api/v1/orders/status", kitchen, fiber.Map{"orderId": order.ID, "targetStatus": "Cancelled"}, http.StatusForbidden, apperr.KindUnauthorized},
		{"not an edge", "POST", "/api/v1/orders/status", cashier, fiber.Map{"orderId": order.ID, "targetStatus": "Completed"}, http.StatusConflict, apperr.KindInvalidTransition},
		{"unknown order", "GET", "/api/v1/orders/missing", cashier, nil, http.StatusNotFound, apperr.KindNotFound},
		{"payment false", "POST", "/api/v1/orders/payment", cashier, fiber.Map{"orderId": order.ID, "payment": false}, http.StatusBadRequest, apperr.KindValidation},
		{"kitchen cannot pay", "POST", "/api/v1/orders/payment", kitchen, fiber.Map{"orderId": order.ID, "payment": true}, http.StatusForbidden, apperr.KindUnauthorized},
		{"bad status filter", "GET", "/api/v1/orders?status=nope", cashier, nil, http.StatusBadRequest, apperr.KindValidation},
		{"cashier needs customer", "POST", "/api/v1/orders", cashier, models.PlaceOrderRequest{Items: []models.OrderItem{{ProductID: "p", Name: "x", UnitPrice: 1, Quantity: 1}}}, http.StatusBadRequest, apperr.KindValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := env.do(t, tc.method, tc.path, tc.tok, tc.body)
			assert.Equal(t, tc.status, status, body.Message)
			assert.False(t, body.Success)
			assert.Equal(t, string(tc.kind), body.Error)
		})
	}
}

func TestVerifyPaymentFailureCancels(t *testing.T) {
	env := newEnv(t, nil)
	customer := token(t, "cust-1", models.RoleCustomer)
	cashier := token(t, "c-1", models.RoleCashier)

	_, body := env.do(t, "POST", "/api/v1/orders", customer, models.PlaceOrderRequest{
		Items: []models.OrderItem{{ProductID: "p1", Name: "Soup", UnitPrice: 4, Quantity: 1}},
	})
	var order models.Order
	require.NoError(t, json.Unmarshal(body.Data, &order))

	status, _ := env.do(t, "POST", "/api/v1/orders/verify", customer, fiber.Map{"orderId": order.ID, "success": false})
	assert.Equal(t, http.StatusForbidden, status, "customers cannot report payment results")

	status, body = env.do(t, "POST", "/api/v1/orders/verify", cashier, fiber.Map{"orderId": order.ID, "success": false})
	require.Equal(t, http.StatusOK, status)
	var cancelled models.Order
	require.NoError(t, json.Unmarshal(body.Data, &cancelled))
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
}

func TestListOrdersPagination(t *testing.T) {
	env := newEnv(t, nil)
	cashier := token(t, "c-1", models.RoleCashier)
	for i := 0; i < 5; i++ {
		status, _ := env.do(t, "POST", "/api/v1/orders", cashier, models.PlaceOrderRequest{
			UserID: fmt.Sprintf("cust-%d", i%2),
			Items:  []models.OrderItem{{ProductID: "p1", Name: "Soup", UnitPrice: 4, Quantity: 1}},
		})
		require.Equal(t, http.StatusCreated, status)
	}

	req := httptest.NewRequest("GET", "/api/v1/orders?page=2&pageSize=2", nil)
	req.Header.Set("Authorization", "Bearer "+cashier)
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	var page struct {
		Data       []models.Order `json:"data"`
		Pagination struct {
			TotalItems  int `json:"totalItems"`
			CurrentPage int `json:"currentPage"`
			TotalPages  int `json:"totalPages"`
		} `json:"pagination"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	assert.Len(t, page.Data, 2)
	assert.Equal(t, 5, page.Pagination.TotalItems)
	assert.Equal(t, 2, page.Pagination.CurrentPage)
	assert.Equal(t, 3, page.Pagination.TotalPages)

	_, body := env.do(t, "GET", "/api/v1/orders", token(t, "cust-0", models.RoleCustomer), nil)
	var mine []models.Order
	require.NoError(t, json.Unmarshal(body.Data, &mine))
	assert.Len(t, mine, 3, "customers only see their own orders")
}

func seedPaidDays(t *testing.T, s *store.MemoryStore, days int) {
	t.Helper()
	for d := 1; d <= days; d++ {
		require.NoError(t, s.Create(context.Background(), &models.Order{
			ID:        fmt.Sprintf("o-%d", d),
			UserID:    "cust-1",
			Items:     []models.OrderItem{{ProductID: "p1", Name: "Soup", Category: "Soups", UnitPrice: float64(d), Quantity: 1}},
			Amount:    float64(10 + d),
			Status:    models.StatusCompleted,
			Payment:   true,
			CreatedAt: time.Date(2026, 3, d, 9, 0, 0, 0, time.UTC),
		}))
	}
}

func TestAnalyticsAccess(t *testing.T) {
	env := newEnv(t, nil)
	seedPaidDays(t, env.store, 3)
	admin := token(t, "a-1", models.RoleAdmin)

	status, body := env.do(t, "GET", "/api/v1/analytics/general", token(t, "k-1", models.RoleKitchen), nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, string(apperr.KindUnauthorized), body.Error)

	status, body = env.do(t, "GET", "/api/v1/analytics/general", admin, nil)
	require.Equal(t, http.StatusOK, status)
	var stats models.GeneralStats
	require.NoError(t, json.Unmarshal(body.Data, &stats))
	assert.Equal(t, 3, stats.TotalOrders)

	status, body = env.do(t, "GET", "/api/v1/analytics/trends?period=hourly", admin, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, string(apperr.KindValidation), body.Error)

	status, body = env.do(t, "GET", "/api/v1/analytics/trends?startDate=2026-03-10&endDate=2026-03-01", admin, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, string(apperr.KindValidation), body.Error)

	status, body = env.do(t, "GET", "/api/v1/analytics/trends?startDate=2026-03-01&endDate=2026-03-31&period=daily", admin, nil)
	require.Equal(t, http.StatusOK, status)
	var points []models.RevenuePoint
	require.NoError(t, json.Unmarshal(body.Data, &points))
	assert.Len(t, points, 3)

	status, body = env.do(t, "GET", "/api/v1/analytics/order-categories", admin, nil)
	require.Equal(t, http.StatusOK, status)
	var cats []models.CategoryCount
	require.NoError(t, json.Unmarshal(body.Data, &cats))
	require.Len(t, cats, 1)
	assert.Equal(t, "Soups", cats[0].Category)
}

func TestForecastEndpoint(t *testing.T) {
	env := newEnv(t, nil)
	cashier := token(t, "c-1", models.RoleCashier)

	seedPaidDays(t, env.store, 4)
	status, body := env.do(t, "GET", "/api/v1/analytics/forecast?horizonDays=3", cashier, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, string(apperr.KindInsufficientData), body.Error)

	for d := 5; d <= 10; d++ {
		require.NoError(t, env.store.Create(context.Background(), &models.Order{
			ID: fmt.Sprintf("late-%d", d), UserID: "cust-2", Amount: float64(10 + d),
			Status: models.StatusDelivered, Payment: true,
			CreatedAt: time.Date(2026, 3, d, 9, 0, 0, 0, time.UTC),
		}))
	}

	status, body = env.do(t, "GET", "/api/v1/analytics/forecast?horizonDays=3&confidence=1.5", cashier, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = env.do(t, "GET", "/api/v1/analytics/forecast?horizonDays=3&startDate=2026-03-01&endDate=2026-03-20", cashier, nil)
	require.Equal(t, http.StatusOK, status, body.Message)
	var report models.ForecastReport
	require.NoError(t, json.Unmarshal(body.Data, &report))
	assert.Len(t, report.Forecast, 3)
	assert.Equal(t, 10, report.InputSummary.TotalDays)
	assert.Equal(t, "2026-03-01", report.InputSummary.StartDate)
	assert.Len(t, report.Comparison, 13)
	assert.Equal(t, 0.95, report.InputSummary.Confidence)
}

func TestRefreshThrottling(t *testing.T) {
	limiter := middleware.NewRefreshLimiter(time.Hour)
	defer limiter.Stop()
	env := newEnv(t, limiter)
	admin := token(t, "a-1", models.RoleAdmin)

	status, _ := env.do(t, "GET", "/api/v1/analytics/general", admin, nil)
	assert.Equal(t, http.StatusOK, status)
	status, body := env.do(t, "GET", "/api/v1/analytics/general", admin, nil)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, string(apperr.KindRateLimited), body.Error)

	status, _ = env.do(t, "GET", "/api/v1/analytics/trends-by-date", admin, nil)
	assert.Equal(t, http.StatusOK, status, "each endpoint is limited separately")
}

func TestEventsStream(t *testing.T) {
	env := newEnv(t, nil)
	kitchen := token(t, "k-1", models.RoleKitchen)

	status, body := env.do(t, "GET", "/api/v1/events?topic=other", kitchen, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, string(apperr.KindValidation), body.Error)

	type result struct {
		resp *http.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		req := httptest.NewRequest("GET", "/api/v1/events", nil)
		req.Header.Set("Authorization", "Bearer "+kitchen)
		resp, err := env.app.Test(req, -1)
		done <- result{resp, err}
	}()

	require.Eventually(t, func() bool {
		return env.hub.Subscribers(models.OrderEventsTopic) == 1
	}, 2*time.Second, 5*time.Millisecond)

	payload := []byte(`{"type":"statusChanged","orderId":"o-1","newStatus":"Delivered"}`)
	require.NoError(t, env.hub.Publish(context.Background(), models.OrderEventsTopic, payload))
	require.NoError(t, env.hub.Stop())

	var res result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end after the bus stopped")
	}
	require.NoError(t, res.err)
	defer res.resp.Body.Close()
	assert.Equal(t, "text/event-stream", res.resp.Header.Get("Content-Type"))

	evt, err := events.NewSSEDecoder(res.resp.Body).Next()
	require.NoError(t, err)
	assert.Equal(t, models.OrderEventsTopic, evt.Topic)
	assert.JSONEq(t, string(payload), string(evt.Payload))
}

func TestHealthAndVersion(t *testing.T) {
	env := newEnv(t, nil)

	status, _ := env.do(t, "GET", "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, status)

	req := httptest.NewRequest("GET", "/version", nil)
	resp, err := env.app.Test(req)
	require.NoError(t, err)
	var v struct {
		Version string `json:"version"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	assert.Equal(t, "test", v.Version)
}
