package resilience

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultBaseDelay = 2 * time.Second
	maxDelay         = 15 * time.Second
	minDelay         = 1 * time.Second
	maxDelayFactor   = 5.0
	rotateThreshold  = 2
	jitterRange      = 500 * time.Millisecond
)

// RateController paces requests to an external surface and adapts its
// pacing to observed outcomes. Failures widen the delay window
// multiplicatively; successes shrink it slowly back toward the base.
// Two consecutive failures signal that the current identity is likely
// burned and a rotation should happen before the next request.
type RateController struct {
	mu sync.Mutex

	baseDelay         time.Duration
	delayFactor       float64
	consecutiveErrors int

	// floor limiter guarantees at least one second between requests no
	// matter what the adaptive window computes.
	floor *rate.Limiter

	rng   *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error
}

// RateControllerOption configures a RateController.
type RateControllerOption func(*RateController)

// WithBaseDelay overrides the default 2s base delay.
func WithBaseDelay(d time.Duration) RateControllerOption {
	return func(c *RateController) {
		if d > 0 {
			c.baseDelay = d
		}
	}
}

// WithSleepFunc replaces the real sleep, for tests.
func WithSleepFunc(fn func(ctx context.Context, d time.Duration) error) RateControllerOption {
	return func(c *RateController) {
		c.sleep = fn
	}
}

// WithFloorLimit overrides the pacing floor, for tests.
func WithFloorLimit(l rate.Limit) RateControllerOption {
	return func(c *RateController) {
		c.floor.SetLimit(l)
	}
}

// WithRandSource seeds the jitter source, for deterministic tests.
func WithRandSource(src rand.Source) RateControllerOption {
	return func(c *RateController) {
		c.rng = rand.New(src)
	}
}

// NewRateController builds a controller with the default pacing policy.
func NewRateController(opts ...RateControllerOption) *RateController {
	c := &RateController{
		baseDelay:   defaultBaseDelay,
		delayFactor: 1.0,
		floor:       rate.NewLimiter(rate.Every(minDelay), 1),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	c.sleep = func(ctx context.Context, d time.Duration) error {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Wait blocks for the current adaptive delay. It returns early with the
// context's error if the context is cancelled while waiting.
func (c *RateController) Wait(ctx context.Context) error {
	d := c.nextDelay()
	if err := c.sleep(ctx, d); err != nil {
		return err
	}
	return c.floor.Wait(ctx)
}

// nextDelay computes one delay sample from the current window.
func (c *RateController) nextDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	lo := time.Duration(float64(c.baseDelay) * c.delayFactor)
	hi := time.Duration(float64(lo) * 1.5)
	if hi > maxDelay {
		hi = maxDelay
	}
	if lo > hi {
		lo = hi
	}

	d := lo
	if hi > lo {
		d = lo + time.Duration(c.rng.Int63n(int64(hi-lo)))
	}

	// Jitter of up to half a second in either direction.
	d += time.Duration(c.rng.Int63n(int64(2*jitterRange))) - jitterRange

	// Backlog of errors stretches every sample further.
	if c.consecutiveErrors > 0 {
		d = time.Duration(float64(d) * (1.0 + 0.2*float64(c.consecutiveErrors)))
	}

	if d < minDelay {
		d = minDelay
	}
	if d > maxDelay {
		d = maxDelay
	}
	return d
}

// ReportOutcome feeds the result of a completed request back into the
// controller. A success decays the delay factor toward 1.0; a failure
// grows it in proportion to the current error streak.
func (c *RateController) ReportOutcome(success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if success {
		if c.consecutiveErrors > 0 {
			c.consecutiveErrors--
		} else if c.delayFactor > 1.0 {
			c.delayFactor *= 0.95
			if c.delayFactor < 1.0 {
				c.delayFactor = 1.0
			}
		}
		return
	}

	c.consecutiveErrors++
	c.delayFactor *= 1.0 + 0.3*float64(c.consecutiveErrors)
	if c.delayFactor > maxDelayFactor {
		c.delayFactor = maxDelayFactor
	}
	zap.S().Debugw("rate controller backing off",
		"delay_factor", c.delayFactor,
		"consecutive_errors", c.consecutiveErrors)
}

// ShouldRotate reports whether the error streak has reached the point
// where the caller should switch identity before the next request.
func (c *RateController) ShouldRotate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consecutiveErrors >= rotateThreshold
}

// ResetRotation clears the error streak after the caller has rotated.
func (c *RateController) ResetRotation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveErrors = 0
}

// DelayFactor returns the current multiplier over the base delay.
func (c *RateController) DelayFactor() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delayFactor
}

// ConsecutiveErrors returns the current failure streak length.
func (c *RateController) ConsecutiveErrors() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consecutiveErrors
}
