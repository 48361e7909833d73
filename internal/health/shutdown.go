package health

import "sync/atomic"

// draining is flipped during graceful shutdown so load balancers stop
// routing new work before in-flight requests finish.
var draining atomic.Bool

// SetReady toggles the global readiness gate.
func SetReady(ready bool) {
	draining.Store(!ready)
}

// IsReady reports whether the process accepts new traffic.
func IsReady() bool {
	return !draining.Load()
}
