package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"orderdesk/apperr"
	"orderdesk/models"
)

const (
	DefaultTimeout = 10 * time.Second
	maxStderrLog   = 2048
)

// ProcessService runs the forecast computation as a child process. The
// series goes to stdin as a JSON array, the horizon as --horizon N, and the
// envelope is read from stdout. Each run is its own process, so a crash or
// hang only affects the request that started it.
type ProcessService struct {
	Command string
	Args    []string
	Env     []string
	Timeout time.Duration
	Breaker *CircuitBreaker
}

func NewProcessService(command string, args []string, timeout time.Duration, breaker *CircuitBreaker) *ProcessService {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ProcessService{Command: command, Args: args, Timeout: timeout, Breaker: breaker}
}

func (p *ProcessService) Forecast(ctx context.Context, series []SeriesPoint, horizonDays int) (*models.Forecast, error) {
	if p.Breaker != nil && !p.Breaker.Allow() {
		return nil, apperr.New(apperr.KindExternalProcess, "forecast process is unavailable after repeated failures, retry later")
	}

	fc, err := p.run(ctx, series, horizonDays)
	if p.Breaker != nil {
		switch {
		case err == nil, apperr.IsKind(err, apperr.KindForecastComputation):
			// the process worked; the data was the problem
			p.Breaker.Success()
		case ctx.Err() != nil:
			p.Breaker.Release()
		default:
			p.Breaker.Failure()
		}
	}
	return fc, err
}

func (p *ProcessService) run(ctx context.Context, series []SeriesPoint, horizonDays int) (*models.Forecast, error) {
	input, err := json.Marshal(series)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "encode forecast input")
	}

	runCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	args := append(append([]string(nil), p.Args...), "--horizon", strconv.Itoa(horizonDays))
	cmd := exec.CommandContext(runCtx, p.Command, args...)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	if len(p.Env) > 0 {
		cmd.Env = append(os.Environ(), p.Env...)
	}

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)
	if stderr.Len() > 0 {
		log.Printf("[FORECAST] process stderr: %s", tail(stderr.String(), maxStderrLog))
	}

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		return nil, apperr.Wrap(apperr.KindExternalProcess, runCtx.Err(), "forecast process timed out after %s", p.Timeout)
	case ctx.Err() != nil:
		return nil, apperr.Wrap(apperr.KindExternalProcess, ctx.Err(), "forecast request was cancelled")
	case runErr != nil:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return nil, apperr.Wrap(apperr.KindExternalProcess, runErr, "forecast process exited with status %d", exitErr.ExitCode())
		}
		return nil, apperr.Wrap(apperr.KindExternalProcess, runErr, "forecast process could not be started")
	}

	log.Printf("[FORECAST] process finished in %s (%d points in, horizon %d)", elapsed.Round(time.Millisecond), len(series), horizonDays)
	return DecodeResponse(stdout.Bytes())
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
