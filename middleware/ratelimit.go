package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"

	"orderdesk/apperr"
)

// RefreshLimiter enforces a minimum interval between requests from one
// client to one route. Clients are keyed by user id when authenticated,
// otherwise by IP.
type RefreshLimiter struct {
	interval time.Duration
	mu       sync.Mutex
	visitors map[string]*visitor
	stop     chan struct{}
	once     sync.Once
	now      func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRefreshLimiter(minInterval time.Duration) *RefreshLimiter {
	rl := &RefreshLimiter{
		interval: minInterval,
		visitors: make(map[string]*visitor),
		stop:     make(chan struct{}),
		now:      time.Now,
	}
	go rl.cleanupVisitors(time.Minute)
	return rl
}

func (rl *RefreshLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

func (rl *RefreshLimiter) reserve(key string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, exists := rl.visitors[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(rl.interval), 1)}
		rl.visitors[key] = v
	}
	v.lastSeen = now

	r := v.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return delay
	}
	return 0
}

// cleanupVisitors drops clients idle for longer than ten intervals, at
// least three minutes.
func (rl *RefreshLimiter) cleanupVisitors(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
		}
		idle := 10 * rl.interval
		if idle < 3*time.Minute {
			idle = 3 * time.Minute
		}
		rl.mu.Lock()
		for key, v := range rl.visitors {
			if rl.now().Sub(v.lastSeen) > idle {
				delete(rl.visitors, key)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *RefreshLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rl.interval <= 0 {
			return c.Next()
		}
		client := c.IP()
		if actor, ok := ActorFrom(c); ok {
			client = "user:" + actor.ID
		}
		key := client + " " + c.Path()

		if wait := rl.reserve(key); wait > 0 {
			seconds := int(wait.Round(time.Second) / time.Second)
			if seconds < 1 {
				seconds = 1
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(seconds))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"error":   apperr.KindRateLimited,
				"message": "Refreshing too often, retry in " + wait.Round(time.Millisecond).String(),
			})
		}
		return c.Next()
	}
}
