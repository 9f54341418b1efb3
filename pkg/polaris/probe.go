package polaris

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ProbeOptions controls WaitUntilUp.
type ProbeOptions struct {
	// Attempts is the total number of probes, including the first one.
	Attempts int
	// Interval is the fixed pause between probes.
	Interval time.Duration
	// Timeout bounds each probe request.
	Timeout time.Duration
}

// DefaultProbeOptions polls once a second for a minute.
func DefaultProbeOptions() ProbeOptions {
	return ProbeOptions{
		Attempts: 60,
		Interval: time.Second,
		Timeout:  5 * time.Second,
	}
}

// WaitUntilUp polls the service root until it answers with a status below
// 500. Connection errors and 5xx answers are retried at a fixed interval.
// It returns an error wrapping ErrServiceUnavailable once opts.Attempts
// probes have failed, or the context error if ctx ends first.
func (c *Client) WaitUntilUp(ctx context.Context, opts ProbeOptions) error {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	probeClient := &http.Client{
		Timeout:   opts.Timeout,
		Transport: c.httpClient.Transport,
	}

	attempt := 0
	probe := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating probe request: %w", err))
		}
		resp, err := probeClient.Do(req)
		if err != nil {
			return err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		c.logger.V(1).Info("catalog service answered", "attempt", attempt, "status", resp.StatusCode)
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(opts.Interval), uint64(opts.Attempts-1)),
		ctx,
	)
	notify := func(err error, next time.Duration) {
		c.logger.V(1).Info("catalog service not ready", "attempt", attempt, "error", err.Error(), "retryIn", next)
	}

	if err := backoff.RetryNotify(probe, policy, notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s after %d attempts (last error: %v)", ErrServiceUnavailable, c.baseURL, attempt, err)
	}
	return nil
}
