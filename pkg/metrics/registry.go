package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.RWMutex
	registry *prometheus.Registry
	enabled  bool
)

// InitRegistry creates the process-wide Prometheus registry and enables
// metrics collection. Must be called before any NewXMetrics constructor if
// metrics are wanted; otherwise those constructors return nil and every
// recorder call becomes a no-op.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()

	registry = prometheus.NewRegistry()
	enabled = true
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// GetRegistry returns the process-wide registry. Panics if InitRegistry has
// not been called; callers must check IsEnabled first.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	if registry == nil {
		panic("metrics: GetRegistry called before InitRegistry")
	}
	return registry
}
