package health

import "context"

// Pinger reports whether a store can be reached.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AuditCheck is down when the audit store cannot be reached.
func AuditCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) Status {
		if err := p.Ping(ctx); err != nil {
			return StatusDown
		}
		return StatusOK
	}
}

// SweeperCheck is down once the retention sweeper has stopped. Without it
// idle sessions are never evicted.
func SweeperCheck(running func() bool) CheckFunc {
	return func(context.Context) Status {
		if !running() {
			return StatusDown
		}
		return StatusOK
	}
}

// SessionsCheck is degraded once the number of live sessions reaches
// limit. Each session holds a whole conversation history in memory.
func SessionsCheck(count func() int, limit int) CheckFunc {
	return func(context.Context) Status {
		if count() >= limit {
			return StatusDegraded
		}
		return StatusOK
	}
}

// ModelCheck is degraded once threshold model calls in a row have failed,
// meaning everyone is getting the fallback line.
func ModelCheck(streak func() int, threshold int) CheckFunc {
	return func(context.Context) Status {
		if streak() >= threshold {
			return StatusDegraded
		}
		return StatusOK
	}
}
