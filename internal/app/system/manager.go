package system

import (
	"context"
	"fmt"
	"sync"

	core "github.com/r3e-network/vinylwatch/internal/app/core/service"
)

// Manager registers and supervises the lifecycle-managed services that make
// up the running application (scheduler, delivery worker, import engine, ...).
// Registration order is preserved for Start; Stop runs in reverse order so
// services that depend on earlier ones (e.g. the delivery worker depending on
// the stream broker) shut down before their dependencies.
type Manager struct {
	mu       sync.Mutex
	services []Service
	started  bool
}

// NewManager creates an empty, unstarted Manager.
func NewManager() *Manager {
	return &Manager{}
}

// Register adds a service to the manager. Safe to call before Start; calling
// it after Start returns an error, since services are started as a batch.
func (m *Manager) Register(svc Service) error {
	if svc == nil {
		return fmt.Errorf("system: cannot register nil service")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("system: cannot register %s after manager started", svc.Name())
	}
	m.services = append(m.services, svc)
	return nil
}

// Start starts every registered service in registration order. If a service
// fails to start, previously started services are stopped before the error
// is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("system: manager already started")
	}
	services := make([]Service, len(m.services))
	copy(services, m.services)
	m.started = true
	m.mu.Unlock()

	for i, svc := range services {
		if err := svc.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = services[j].Stop(ctx)
			}
			return fmt.Errorf("system: start %s: %w", svc.Name(), err)
		}
	}
	return nil
}

// Stop stops every registered service in reverse registration order,
// collecting (rather than short-circuiting on) individual failures.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	services := make([]Service, len(m.services))
	copy(services, m.services)
	m.mu.Unlock()

	var firstErr error
	for i := len(services) - 1; i >= 0; i-- {
		if err := services[i].Stop(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("system: stop %s: %w", services[i].Name(), err)
		}
	}
	return firstErr
}

// Descriptors collects descriptors from registered services that implement
// DescriptorProvider.
func (m *Manager) Descriptors() []core.Descriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	providers := make([]DescriptorProvider, 0, len(m.services))
	for _, svc := range m.services {
		if dp, ok := svc.(DescriptorProvider); ok {
			providers = append(providers, dp)
		}
	}
	return CollectDescriptors(providers)
}
