package model

import (
	"context"
	"errors"
	"time"

	apperrors "go-vision-atlas/internal/errors"
	"go-vision-atlas/internal/logger"
	"go-vision-atlas/internal/strategy"

	"github.com/sirupsen/logrus"
)

// SleepFunc suspends for the given duration or returns early with the
// context's error. Tests substitute a recording fake.
type SleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retry runs fn up to attempts times with exponential backoff between
// attempts. Errors failing the retryable predicate propagate immediately;
// otherwise the last error is returned after exhaustion.
func Retry(ctx context.Context, attempts int, baseDelay time.Duration, sleep SleepFunc, retryable func(error) bool, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := baseDelay << (attempt - 2)
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// Executor wraps a VisionModel with bounded retries and backoff
type Executor struct {
	model      VisionModel
	maxRetries int
	baseDelay  time.Duration
	sleep      SleepFunc
}

// NewExecutor creates a query executor over the given model
func NewExecutor(visionModel VisionModel, maxRetries int, baseDelay time.Duration) *Executor {
	if maxRetries < 1 {
		maxRetries = 3
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return &Executor{
		model:      visionModel,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		sleep:      defaultSleep,
	}
}

// WithSleep overrides the backoff sleep, used by tests to avoid real waits
func (e *Executor) WithSleep(sleep SleepFunc) *Executor {
	e.sleep = sleep
	return e
}

// Invoke sends one prompt plus image to the model. Transient failures are
// retried with exponential backoff; a request the model rejects as
// malformed propagates immediately without retry.
func (e *Executor) Invoke(ctx context.Context, prompt string, payload ImagePayload, detail strategy.DetailLevel) (*RawResponse, error) {
	var resp *RawResponse
	attempts := 0

	err := Retry(ctx, e.maxRetries, e.baseDelay, e.sleep, isRetryable, func(ctx context.Context) error {
		attempts++
		var callErr error
		resp, callErr = e.model.Generate(ctx, prompt, payload, detail)
		if callErr != nil {
			logger.WithError(callErr).WithFields(logrus.Fields{
				"attempt":     attempts,
				"max_retries": e.maxRetries,
			}).Warn("Vision model call failed")
		}
		return callErr
	})
	if err != nil {
		var rejection *RejectionError
		if errors.As(err, &rejection) {
			return nil, apperrors.NewModelRejectionError("vision model rejected the request", err)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.NewTimeoutError("vision model call abandoned", err)
		}
		return nil, apperrors.NewModelError("vision model call failed after retries", attempts, err)
	}
	return resp, nil
}

func isRetryable(err error) bool {
	var rejection *RejectionError
	if errors.As(err, &rejection) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
