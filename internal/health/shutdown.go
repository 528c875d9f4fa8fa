package health

import "sync/atomic"

// draining is set once shutdown begins so load balancers stop routing to
// this instance while in-flight requests finish. Zero value means ready.
var draining atomic.Bool

// SetReady toggles the readiness gate. Pass false at the start of graceful
// shutdown and the readiness endpoint answers 503 regardless of dependency
// health.
func SetReady(ready bool) {
	draining.Store(!ready)
}
