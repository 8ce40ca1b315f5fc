package health

import "sync/atomic"

// ready gates the readiness probe during startup and graceful shutdown.
// It starts true so deployments without an explicit startup phase keep
// reporting ready.
var ready atomic.Bool

func init() {
	ready.Store(true)
}

// SetReady flips the readiness gate. Call with false before draining
// connections so load balancers stop routing new traffic.
func SetReady(v bool) {
	ready.Store(v)
}

// IsReady reports the current readiness gate state.
func IsReady() bool {
	return ready.Load()
}
