// Package classifier turns prompts into labels through a remote text model.
//
// Client retries only on rate-limit signals, with exponential backoff, and
// degrades every other failure to harvest.LabelUnknown so callers branch on
// the label alone.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/paper-harvester/internal/harvest"
	"github.com/JakeFAU/paper-harvester/internal/metrics"
)

const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = 2 * time.Second
)

var statusCode429 = regexp.MustCompile(`\b429\b`)

// Model is a single remote text-in/text-out call.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config controls retry behavior.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Client wraps a Model with rate-limit retries and label normalization.
type Client struct {
	model       Model
	labels      harvest.LabelSet
	maxAttempts int
	baseDelay   time.Duration
	sleep       SleepFunc
	logger      *zap.Logger
}

var _ harvest.Classifier = (*Client)(nil)

// Option customizes a Client.
type Option func(*Client)

// WithSleep replaces the wall-clock wait between attempts.
func WithSleep(sleep SleepFunc) Option {
	return func(c *Client) {
		c.sleep = sleep
	}
}

// New builds a Client answering within labels.
func New(model Model, labels harvest.LabelSet, cfg Config, logger *zap.Logger, opts ...Option) (*Client, error) {
	if model == nil {
		return nil, fmt.Errorf("model is required")
	}
	if len(labels.Names()) == 0 {
		return nil, fmt.Errorf("at least one label is required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		model:       model,
		labels:      labels,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		sleep:       sleepContext,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Classify asks the model for a label. Rate-limited attempts are retried up
// to the attempt limit; any other error, exhaustion, or an answer outside the
// label set yields harvest.LabelUnknown.
func (c *Client) Classify(ctx context.Context, prompt string) harvest.Label {
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		reply, err := c.model.Generate(ctx, prompt)
		if err == nil {
			metrics.ObserveClassifierAttempt(metrics.StatusOK)
			label := c.labels.Parse(reply)
			if label == harvest.LabelUnknown && strings.TrimSpace(reply) != "" {
				c.logger.Debug("classifier answered outside label set", zap.String("reply", truncate(reply, 80)))
			}
			return label
		}
		if !IsRateLimited(err) {
			metrics.ObserveClassifierAttempt(metrics.StatusError)
			c.logger.Warn("classifier call failed", zap.Int("attempt", attempt), zap.Error(err))
			return harvest.LabelUnknown
		}
		metrics.ObserveClassifierAttempt(metrics.StatusRateLimited)
		if attempt == c.maxAttempts-1 {
			break
		}
		delay := c.Backoff(attempt)
		c.logger.Info("classifier rate limited, backing off",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return harvest.LabelUnknown
		}
	}
	c.logger.Warn("classifier retries exhausted", zap.Int("attempts", c.maxAttempts))
	return harvest.LabelUnknown
}

// Backoff returns the wait after the given zero-based attempt: base * 2^attempt.
func (c *Client) Backoff(attempt int) time.Duration {
	return time.Duration(float64(c.baseDelay) * math.Pow(2, float64(attempt)))
}

// IsRateLimited recognizes "too many requests" errors, including ones from
// SDKs that only carry the status code in their message.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *harvest.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests
	}
	if errors.Is(err, harvest.ErrRateLimited) {
		return true
	}
	msg := err.Error()
	return statusCode429.MatchString(msg) || strings.Contains(strings.ToLower(msg), "too many requests")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
