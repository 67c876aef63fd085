package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"
)

// BackoffConfig controls WaitReady retries.
type BackoffConfig struct {
	MaxRetries    int           // attempts after the first (default: 5)
	RetryDelay    time.Duration // initial delay (default: 500ms)
	MaxRetryDelay time.Duration // delay cap (default: 4s)
	DialTimeout   time.Duration // per-attempt dial timeout (default: 1s)
}

// DefaultBackoffConfig returns the readiness defaults.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		MaxRetries:    5,
		RetryDelay:    500 * time.Millisecond,
		MaxRetryDelay: 4 * time.Second,
		DialTimeout:   time.Second,
	}
}

// WaitReady dials addr over TCP until it accepts a connection, backing off
// exponentially between attempts.
func WaitReady(ctx context.Context, addr string, cfg BackoffConfig) error {
	def := DefaultBackoffConfig()
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = def.MaxRetryDelay
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}

	dialer := net.Dialer{Timeout: cfg.DialTimeout}
	for attempt := 0; ; attempt++ {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			slog.Debug("supervisor: endpoint ready", "addr", addr, "attempts", attempt+1)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt >= cfg.MaxRetries {
			return fmt.Errorf("supervisor: %s not ready after %d attempts: %w", addr, attempt+1, err)
		}

		delay := backoff(attempt+1, cfg)
		slog.Debug("supervisor: endpoint not ready, retrying", "addr", addr, "attempt", attempt+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// backoff returns RetryDelay * 2^(attempt-1) capped at MaxRetryDelay.
func backoff(attempt int, cfg BackoffConfig) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		return cfg.MaxRetryDelay
	}
	delay := cfg.RetryDelay * time.Duration(1<<uint(attempt-1))
	if delay > cfg.MaxRetryDelay || delay <= 0 {
		delay = cfg.MaxRetryDelay
	}
	return delay
}
