package di

import (
	"errors"
	"sync"

	"github.com/cramwell/backend-go/internal/config"
	"github.com/cramwell/backend-go/internal/database"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

// Container is the process-wide dependency container.
var Container *dig.Container

// InitContainer builds a container with every provider registered.
func InitContainer(cfg *config.Config, log *zap.Logger) (*dig.Container, error) {
	c := dig.New()
	if err := RegisterProviders(c, cfg, log); err != nil {
		return nil, err
	}
	Container = c
	return c, nil
}

// GetContainer returns the container built by InitContainer.
func GetContainer() *dig.Container {
	return Container
}

// Invoke runs fn against the global container.
func Invoke(function interface{}, opts ...dig.InvokeOption) error {
	if Container == nil {
		return errors.New("dependency container not initialised")
	}
	return Container.Invoke(function, opts...)
}

// Resources tracks what constructed backends need on shutdown and which of
// them can be health-checked.
type Resources struct {
	mu       sync.Mutex
	closers  []func() error
	checkers []*database.HealthChecker
}

// OnClose registers fn to run on Close, in reverse order.
func (r *Resources) OnClose(fn func() error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closers = append(r.closers, fn)
}

// AddHealthCheck registers a backend health checker.
func (r *Resources) AddHealthCheck(hc *database.HealthChecker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers = append(r.checkers, hc)
}

// HealthChecks returns the registered checkers.
func (r *Resources) HealthChecks() []*database.HealthChecker {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*database.HealthChecker, len(r.checkers))
	copy(out, r.checkers)
	return out
}

// Close runs every closer and joins their errors.
func (r *Resources) Close() error {
	r.mu.Lock()
	closers := r.closers
	r.closers = nil
	r.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
