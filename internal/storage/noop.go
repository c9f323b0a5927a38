package storage

import (
	"context"
	"time"

	"github.com/dialcraft/router/internal/types"
)

// NoopStore is a no-op Store for development without a database
type NoopStore struct{}

func NewNoopStore() *NoopStore { return &NoopStore{} }

func (s *NoopStore) GetRoutingConfiguration(_ context.Context, _ string) (*types.RoutingConfiguration, error) {
	return nil, ErrNotFound
}
func (s *NoopStore) LookupRouting(_ context.Context, _ string) (*types.CallRouting, error) {
	return nil, ErrNotFound
}
func (s *NoopStore) GetFlow(_ context.Context, _ string) (*types.IVRFlow, error) {
	return nil, ErrNotFound
}
func (s *NoopStore) ListAgents(_ context.Context, _ string) ([]types.Agent, error) { return nil, nil }
func (s *NoopStore) UpdateAgentAssignment(_ context.Context, _ string, _ time.Time, _ int) error {
	return nil
}
func (s *NoopStore) SaveQueueEntry(_ context.Context, _ types.QueueEntry) error { return nil }
func (s *NoopStore) UpdateQueueEntryStatus(_ context.Context, _ string, _ types.EntryStatus) error {
	return nil
}
func (s *NoopStore) ListQueueEntriesSince(_ context.Context, _ string, _ time.Time) ([]types.QueueEntry, error) {
	return nil, nil
}
func (s *NoopStore) GetCallState(_ context.Context, _ string) (*types.CallState, error) {
	return nil, ErrNotFound
}
func (s *NoopStore) SaveCallState(_ context.Context, _ types.CallState) error { return nil }
func (s *NoopStore) Close() error                                             { return nil }

// NoopAuditStore is a no-op AuditStore when the audit log is disabled
type NoopAuditStore struct{}

func NewNoopAuditStore() *NoopAuditStore { return &NoopAuditStore{} }

func (s *NoopAuditStore) AppendRoutingRecord(_ types.RoutingRecord) error { return nil }
func (s *NoopAuditStore) ListRoutingRecords(_ string) ([]types.RoutingRecord, error) {
	return nil, nil
}
