package resilience

import (
	"time"

	"github.com/sells-group/analytics-studio/internal/config"
)

// FromConfig maps the resilience config section onto retry and breaker
// settings. Unset values keep the defaults.
func FromConfig(rc config.ResilienceConfig) (RetryConfig, CircuitBreakerConfig) {
	retry := DefaultRetryConfig()
	if rc.MaxAttempts > 0 {
		retry.MaxAttempts = rc.MaxAttempts
	}
	if rc.InitialBackoffMs > 0 {
		retry.InitialBackoff = time.Duration(rc.InitialBackoffMs) * time.Millisecond
	}
	if rc.MaxBackoffMs > 0 {
		retry.MaxBackoff = time.Duration(rc.MaxBackoffMs) * time.Millisecond
	}
	if rc.Multiplier > 0 {
		retry.Multiplier = rc.Multiplier
	}
	if rc.JitterFraction >= 0 {
		retry.JitterFraction = rc.JitterFraction
	}

	breaker := DefaultCircuitBreakerConfig()
	if rc.FailureThreshold > 0 {
		breaker.FailureThreshold = rc.FailureThreshold
	}
	if rc.ResetTimeoutSecs > 0 {
		breaker.ResetTimeout = time.Duration(rc.ResetTimeoutSecs) * time.Second
	}
	return retry, breaker
}
