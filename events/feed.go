package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// DefaultPollInterval bounds how stale a dashboard may get, connected or not.
const DefaultPollInterval = 30 * time.Second

// DefaultIdleTimeout drops a stream that has been silent for two missed
// heartbeats.
const DefaultIdleTimeout = 2 * DefaultHeartbeat

var errStreamIdle = errors.New("stream idle")

// Stream is one live connection to the realtime channel.
type Stream interface {
	Next() (Event, error)
	Close() error
}

// activityReporter is implemented by streams that see traffic Next does not
// return, such as heartbeats.
type activityReporter interface {
	LastActivity() time.Time
}

// Dialer opens streams for a topic.
type Dialer interface {
	Dial(ctx context.Context, topic string) (Stream, error)
}

// FeedState is reported to FeedConfig.OnState on every change.
type FeedState string

const (
	StateConnecting FeedState = "connecting"
	StateLive       FeedState = "live"
	StatePolling    FeedState = "polling"
)

type FeedConfig struct {
	Topic string
	// Sync refetches the full state. It runs after every (re)connect, on
	// every poll tick while disconnected, and while connected whenever the
	// stream has been silent for PollInterval. The last case runs on a
	// separate goroutine from OnEvent.
	Sync         func(ctx context.Context) error
	OnEvent      func(Event)
	OnState      func(FeedState)
	PollInterval time.Duration
	// IdleTimeout closes a stream with no traffic, heartbeats included, so
	// a half-open connection is redialed.
	IdleTimeout time.Duration
	// BackOff paces reconnect attempts; nil uses an exponential
	// 500ms..30s schedule.
	BackOff backoff.BackOff
}

// Feed keeps a subscriber in sync with the realtime channel. It reconnects
// forever with bounded backoff and polls through Sync while disconnected.
type Feed struct {
	dialer Dialer
	cfg    FeedConfig

	mu       sync.Mutex
	state    FeedState
	lastSync time.Time
}

func NewFeed(dialer Dialer, cfg FeedConfig) *Feed {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.BackOff == nil {
		cfg.BackOff = NewReconnectBackOff()
	}
	if cfg.OnEvent == nil {
		cfg.OnEvent = func(Event) {}
	}
	return &Feed{dialer: dialer, cfg: cfg}
}

// NewReconnectBackOff returns the default reconnect schedule.
func NewReconnectBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	return b
}

func (f *Feed) State() FeedState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Run blocks until ctx is done.
func (f *Feed) Run(ctx context.Context) error {
	f.cfg.BackOff.Reset()
	for {
		f.setState(StateConnecting)
		stream, err := f.dialer.Dial(ctx, f.cfg.Topic)
		if err == nil {
			f.cfg.BackOff.Reset()
			f.setState(StateLive)
			f.sync(ctx)
			err = f.consume(ctx, stream)
			stream.Close()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("[FEED] %s disconnected: %v", f.cfg.Topic, err)

		wait := f.cfg.BackOff.NextBackOff()
		if wait == backoff.Stop {
			wait = f.cfg.PollInterval
		}
		f.setState(StatePolling)
		if err := f.pollFor(ctx, wait); err != nil {
			return err
		}
	}
}

func (f *Feed) consume(ctx context.Context, stream Stream) error {
	stop := context.AfterFunc(ctx, func() { stream.Close() })
	defer stop()

	var (
		last atomic.Int64
		idle atomic.Bool
	)
	last.Store(time.Now().UnixNano())
	done := make(chan struct{})
	defer close(done)
	go f.watch(ctx, stream, &last, &idle, done)

	for {
		evt, err := stream.Next()
		if err != nil {
			if idle.Load() {
				return errStreamIdle
			}
			if errors.Is(err, io.EOF) {
				return errors.New("stream closed")
			}
			return err
		}
		last.Store(time.Now().UnixNano())
		f.cfg.OnEvent(evt)
	}
}

// watch closes stream once it has been silent for IdleTimeout and resyncs
// while it is silent for longer than PollInterval.
func (f *Feed) watch(ctx context.Context, stream Stream, last *atomic.Int64, idle *atomic.Bool, done <-chan struct{}) {
	ticker := time.NewTicker(f.checkEvery())
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		seen := time.Unix(0, last.Load())
		if r, ok := stream.(activityReporter); ok {
			if at := r.LastActivity(); at.After(seen) {
				seen = at
			}
		}
		quiet := time.Since(seen)
		if quiet >= f.cfg.IdleTimeout {
			idle.Store(true)
			stream.Close()
			return
		}
		if quiet >= f.cfg.PollInterval && time.Since(f.lastSyncAt()) >= f.cfg.PollInterval {
			f.sync(ctx)
		}
	}
}

func (f *Feed) checkEvery() time.Duration {
	d := min(f.cfg.PollInterval, f.cfg.IdleTimeout) / 4
	return max(d, time.Millisecond)
}

// pollFor waits d, running Sync whenever the last sync is older than the
// poll interval.
func (f *Feed) pollFor(ctx context.Context, d time.Duration) error {
	deadline := time.Now().Add(d)
	for {
		next := f.lastSyncAt().Add(f.cfg.PollInterval)
		until := deadline
		due := !next.After(deadline)
		if due {
			until = next
		}
		timer := time.NewTimer(time.Until(until))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if !due {
			return nil
		}
		f.sync(ctx)
	}
}

func (f *Feed) sync(ctx context.Context) {
	f.mu.Lock()
	f.lastSync = time.Now()
	f.mu.Unlock()
	if f.cfg.Sync == nil {
		return
	}
	if err := f.cfg.Sync(ctx); err != nil {
		log.Printf("[FEED] resync failed: %v", err)
	}
}

func (f *Feed) lastSyncAt() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSync
}

func (f *Feed) setState(s FeedState) {
	f.mu.Lock()
	changed := f.state != s
	f.state = s
	f.mu.Unlock()
	if changed && f.cfg.OnState != nil {
		f.cfg.OnState(s)
	}
}

// SSEDialer connects to the server's /api/v1/events endpoint.
type SSEDialer struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func (d *SSEDialer) Dial(ctx context.Context, topic string) (Stream, error) {
	u := strings.TrimRight(d.BaseURL, "/") + "/api/v1/events?topic=" + url.QueryEscape(topic)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	if d.Token != "" {
		req.Header.Set("Authorization", "Bearer "+d.Token)
	}
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("events endpoint returned %s", resp.Status)
	}
	return &sseStream{body: resp.Body, dec: NewSSEDecoder(resp.Body)}, nil
}

type sseStream struct {
	body io.ReadCloser
	dec  *SSEDecoder
}

func (s *sseStream) Next() (Event, error)    { return s.dec.Next() }
func (s *sseStream) Close() error            { return s.body.Close() }
func (s *sseStream) LastActivity() time.Time { return s.dec.LastActivity() }
