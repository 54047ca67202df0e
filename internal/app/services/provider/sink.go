package provider

import (
	"context"

	"github.com/r3e-network/vinylwatch/internal/app/domain/providerrequest"
	"github.com/r3e-network/vinylwatch/internal/app/storage"
)

// StoreSink persists each RequestLog as a ProviderRequest row, scoped to a
// single user and provider invocation.
type StoreSink struct {
	store  storage.ProviderRequestStore
	userID string
}

// NewStoreSink builds a sink bound to userID, for use for the lifetime of a
// single rule-runner or import-job invocation.
func NewStoreSink(store storage.ProviderRequestStore, userID string) *StoreSink {
	return &StoreSink{store: store, userID: userID}
}

func (s *StoreSink) LogRequest(ctx context.Context, entry RequestLog) {
	durationMS := entry.DurationMS
	_, _ = s.store.CreateProviderRequest(ctx, providerrequest.ProviderRequest{
		UserID:     s.userID,
		Provider:   entry.Provider,
		Endpoint:   entry.Endpoint,
		Method:     entry.Method,
		StatusCode: entry.StatusCode,
		DurationMS: &durationMS,
		Error:      entry.Error,
		Meta:       entry.Meta,
	})
}
