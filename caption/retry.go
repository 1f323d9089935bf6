package caption

import "time"

// RetryConfig holds retry configuration for captioning requests.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BackoffBase is the delay after the first failed attempt. Later delays
	// grow linearly with the attempt number.
	BackoffBase time.Duration

	// MaxBackoff caps a single delay. Zero means no cap.
	MaxBackoff time.Duration
}

// DefaultRetryConfig returns the retry defaults for the hosted backend, whose
// models take tens of seconds to warm up.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BackoffBase: 20 * time.Second,
		MaxBackoff:  60 * time.Second,
	}
}

// Backoff returns the delay to wait after the given failed attempt (1-based).
func (r RetryConfig) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := r.BackoffBase * time.Duration(attempt)
	if r.MaxBackoff > 0 && d > r.MaxBackoff {
		d = r.MaxBackoff
	}
	return d
}
