package system

import "context"

// NoopService is a placeholder lifecycle participant for components that are
// wired for descriptor/introspection purposes but have no background
// loop of their own (e.g. the request-scoped rule/user services, which are
// invoked directly rather than ticking on a schedule).
type NoopService struct {
	ServiceName string
}

// Name returns the configured service name.
func (n NoopService) Name() string {
	if n.ServiceName == "" {
		return "noop"
	}
	return n.ServiceName
}

// Start is a no-op.
func (n NoopService) Start(context.Context) error { return nil }

// Stop is a no-op.
func (n NoopService) Stop(context.Context) error { return nil }
