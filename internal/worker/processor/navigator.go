package processor

import (
	"context"
	"time"

	"scenecap/internal/pkg/errors"
	"scenecap/internal/pkg/logger"
	"scenecap/internal/ports"
)

// Navigator loads the scene page, retrying failed attempts immediately.
type Navigator struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	log            *logger.Logger
}

func NewNavigator(maxAttempts int, attemptTimeout time.Duration, log *logger.Logger) *Navigator {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Navigator{MaxAttempts: maxAttempts, AttemptTimeout: attemptTimeout, log: log}
}

// NavigateWithRetries returns nil on the first successful attempt. After
// MaxAttempts failures it returns NAVIGATION_ERROR wrapping the last cause.
func (n *Navigator) NavigateWithRetries(ctx context.Context, s ports.Session, url string) error {
	var last error
	for attempt := 1; attempt <= n.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if last == nil {
				last = err
			}
			break
		}

		start := time.Now()
		err := n.attempt(ctx, s, url)
		if err == nil {
			n.log.FromContext(ctx).Info("navigation completed",
				"attempt", attempt,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return nil
		}

		last = err
		n.log.FromContext(ctx).Warn("navigation attempt failed",
			"attempt", attempt,
			"max_attempts", n.MaxAttempts,
			"error", err.Error(),
		)
	}

	return errors.WrapWithCode(last, errors.CodeNavigation, "job.navigate", "navigation failed").
		WithField("url", url)
}

func (n *Navigator) attempt(ctx context.Context, s ports.Session, url string) error {
	if n.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.AttemptTimeout)
		defer cancel()
	}
	return s.Navigate(ctx, url)
}
