package queue

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy selects the growth function applied to a job's retry
// delay as a function of its attempt count.
type BackoffStrategy uint8

const (
	// BackoffFixed always returns BaseDelay, capped at MaxDelay.
	BackoffFixed BackoffStrategy = iota
	// BackoffLinear returns BaseDelay * attempt, capped at MaxDelay.
	BackoffLinear
	// BackoffExponential returns BaseDelay * 2^(attempt-1), capped at MaxDelay.
	BackoffExponential
)

// BackoffConfig controls the Retry delay computed after a failed step,
// per the retry policy: delay = BaseDelay * f(attempt), f selected by
// Strategy, capped at MaxDelay, plus uniform jitter in [0, 0.1*delay).
// MaxRetries, when nonzero, is the attempt ceiling: a failure on the
// attempt that reaches it dead-letters the job instead of retrying.
type BackoffConfig struct {
	MaxRetries uint32
	Strategy   BackoffStrategy
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

type backoffCounter struct {
	BackoffConfig
}

// next computes the retry delay for attempt. jobMaxAttempts, when
// nonzero, overrides the configured MaxRetries ceiling for this job.
func (bc *backoffCounter) next(attempt uint32, jobMaxAttempts uint32) (time.Duration, bool) {
	maxRetries := bc.MaxRetries
	if jobMaxAttempts > 0 {
		maxRetries = jobMaxAttempts
	}
	if maxRetries > 0 && attempt >= maxRetries {
		return 0, false
	}
	var delay float64
	base := float64(bc.BaseDelay)
	switch bc.Strategy {
	case BackoffLinear:
		delay = base * float64(attempt)
	case BackoffExponential:
		delay = base * math.Pow(2, float64(attempt-1))
	default:
		delay = base
	}
	if bc.MaxDelay > 0 && delay > float64(bc.MaxDelay) {
		delay = float64(bc.MaxDelay)
	}
	if delay < 0 {
		delay = 0
	}
	jitter := rand.Float64() * 0.1 * delay
	return time.Duration(delay + jitter), true
}
