package notify

import (
	"time"

	"github.com/mkarpenko/futurestrack/internal/domain"
)

// backoffDelay returns the wait before retry number attempt (1-based):
// base * 2^(attempt-1), capped at the policy maximum.
func backoffDelay(policy domain.RetryPolicy, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// 2^30 seconds already dwarfs any sane cap; avoid shift overflow.
	if attempt > 30 {
		return policy.MaxBackoff
	}

	delay := policy.BaseBackoff * time.Duration(1<<(attempt-1))
	if policy.MaxBackoff > 0 && delay > policy.MaxBackoff {
		return policy.MaxBackoff
	}
	return delay
}
