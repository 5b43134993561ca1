package forecast

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"orderdesk/apperr"
	"orderdesk/models"
)

const (
	DefaultMinPoints     = 7
	DefaultMaxHorizon    = 90
	DefaultCacheTTL      = 30 * time.Second
	DefaultMaxConcurrent = 4
)

type EngineConfig struct {
	MinPoints     int
	MaxHorizon    int
	CacheTTL      time.Duration
	MaxConcurrent int
}

// Engine guards a Service. Identical requests share one in-flight run and a
// short lived cached result. A run is cancelled once every caller waiting on
// it has gone away. The engine never retries.
type Engine struct {
	service Service
	cfg     EngineConfig
	group   singleflight.Group
	slots   *semaphore.Weighted

	mu      sync.Mutex
	flights map[string]*flight
	cache   map[string]cached
	now     func() time.Time
}

type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

type cached struct {
	forecast *models.Forecast
	expires  time.Time
}

func NewEngine(service Service, cfg EngineConfig) *Engine {
	if cfg.MinPoints < 2 {
		cfg.MinPoints = DefaultMinPoints
	}
	if cfg.MaxHorizon <= 0 {
		cfg.MaxHorizon = DefaultMaxHorizon
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	return &Engine{
		service: service,
		cfg:     cfg,
		slots:   semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		flights: make(map[string]*flight),
		cache:   make(map[string]cached),
		now:     time.Now,
	}
}

func (e *Engine) MinPoints() int  { return e.cfg.MinPoints }
func (e *Engine) MaxHorizon() int { return e.cfg.MaxHorizon }

// Forecast validates the request and returns the projection. A series with
// fewer than MinPoints distinct days fails InsufficientData without calling
// the service.
func (e *Engine) Forecast(ctx context.Context, series []SeriesPoint, horizonDays int) (*models.Forecast, error) {
	if horizonDays < 1 || horizonDays > e.cfg.MaxHorizon {
		return nil, apperr.Validation("horizonDays must be between 1 and %d", e.cfg.MaxHorizon)
	}
	if n := distinctDays(series); n < e.cfg.MinPoints {
		return nil, apperr.New(apperr.KindInsufficientData,
			"Insufficient data for prediction. Need at least %d days of history, found %d.", e.cfg.MinPoints, n)
	}

	key := requestKey(series, horizonDays)
	if fc, ok := e.cached(key); ok {
		return fc, nil
	}

	f := e.join(key)
	ch := e.group.DoChan(key, func() (any, error) {
		return e.run(f, key, series, horizonDays)
	})

	select {
	case res := <-ch:
		e.leave(key, f)
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneForecast(res.Val.(*models.Forecast)), nil
	case <-ctx.Done():
		e.leave(key, f)
		return nil, apperr.Wrap(apperr.KindExternalProcess, ctx.Err(), "forecast did not finish before the request deadline")
	}
}

func (e *Engine) run(f *flight, key string, series []SeriesPoint, horizonDays int) (*models.Forecast, error) {
	if err := e.slots.Acquire(f.ctx, 1); err != nil {
		return nil, apperr.Wrap(apperr.KindExternalProcess, err, "forecast request was cancelled while queued")
	}
	defer e.slots.Release(1)

	fc, err := e.service.Forecast(f.ctx, series, horizonDays)
	if err != nil {
		log.Printf("[FORECAST] run failed (%s): %v", apperr.KindOf(err), err)
		return nil, err
	}
	if e.cfg.CacheTTL > 0 {
		e.mu.Lock()
		e.purgeLocked()
		e.cache[key] = cached{forecast: cloneForecast(fc), expires: e.now().Add(e.cfg.CacheTTL)}
		e.mu.Unlock()
	}
	return fc, nil
}

func (e *Engine) cached(key string) (*models.Forecast, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.cache[key]
	if !ok {
		return nil, false
	}
	if !e.now().Before(c.expires) {
		delete(e.cache, key)
		return nil, false
	}
	return cloneForecast(c.forecast), true
}

// join registers a waiter on the flight for key, creating it if needed. The
// flight's context is detached from any single caller.
func (e *Engine) join(key string) *flight {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.flights[key]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		f = &flight{ctx: ctx, cancel: cancel}
		e.flights[key] = f
	}
	f.waiters++
	return f
}

// leave drops a waiter. The last one out cancels the run and forgets the
// key so the next request starts fresh.
func (e *Engine) leave(key string, f *flight) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if e.flights[key] == f {
		delete(e.flights, key)
		e.group.Forget(key)
	}
}

func (e *Engine) purgeLocked() {
	now := e.now()
	for key, c := range e.cache {
		if !now.Before(c.expires) {
			delete(e.cache, key)
		}
	}
}

func distinctDays(series []SeriesPoint) int {
	seen := make(map[string]struct{}, len(series))
	for _, p := range series {
		seen[p.Date] = struct{}{}
	}
	return len(seen)
}

func requestKey(series []SeriesPoint, horizonDays int) string {
	h := sha256.New()
	_ = json.NewEncoder(h).Encode(series)
	h.Write([]byte(strconv.Itoa(horizonDays)))
	return hex.EncodeToString(h.Sum(nil))
}
