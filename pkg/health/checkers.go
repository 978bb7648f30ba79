package health

import (
	"context"
	"time"
)

// Pinger is implemented by collections that can verify their backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker runs Ping with a timeout.
type PingChecker struct {
	name    string
	target  Pinger
	timeout time.Duration
}

// NewPingChecker creates a checker for target. A zero timeout defaults to 5s.
func NewPingChecker(name string, target Pinger, timeout time.Duration) *PingChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PingChecker{name: name, target: target, timeout: timeout}
}

// Check pings the target
func (c *PingChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.target.Ping(checkCtx)
	result := CheckResult{
		Name:      c.name,
		Status:    StatusHealthy,
		Message:   "OK",
		Timestamp: time.Now(),
		Duration:  time.Since(start),
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = ""
		result.Error = err.Error()
	}
	return result
}

// Name returns the name of the health check
func (c *PingChecker) Name() string {
	return c.name
}
