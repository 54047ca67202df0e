package system

import (
	"context"

	core "github.com/r3e-network/vinylwatch/internal/app/core/service"
)

// Service represents a lifecycle-managed component. All background modules
// (scheduler, delivery worker, import engine) implement this interface so the
// manager can start and stop them deterministically.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// DescriptorProvider optionally advertises service metadata (layer, capabilities).
type DescriptorProvider interface {
	Descriptor() core.Descriptor
}
