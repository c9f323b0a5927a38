// Package storage provides the relational store for routing data and
// the append-only audit log.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dialcraft/router/internal/types"
)

// ErrNotFound is returned when a looked-up row does not exist
var ErrNotFound = errors.New("not found")

// Store is the relational datastore interface the engine consumes.
// Configuration, agents, flows and routing rules are created and
// edited externally; the engine reads them and mutates only agent
// assignment fields, queue entries and call state.
type Store interface {
	GetRoutingConfiguration(ctx context.Context, workspaceID string) (*types.RoutingConfiguration, error)
	LookupRouting(ctx context.Context, phoneNumber string) (*types.CallRouting, error)
	GetFlow(ctx context.Context, flowID string) (*types.IVRFlow, error)

	ListAgents(ctx context.Context, workspaceID string) ([]types.Agent, error)
	UpdateAgentAssignment(ctx context.Context, agentID string, lastCall time.Time, callsToday int) error

	SaveQueueEntry(ctx context.Context, entry types.QueueEntry) error
	UpdateQueueEntryStatus(ctx context.Context, entryID string, status types.EntryStatus) error
	ListQueueEntriesSince(ctx context.Context, workspaceID string, since time.Time) ([]types.QueueEntry, error)

	GetCallState(ctx context.Context, callID string) (*types.CallState, error)
	SaveCallState(ctx context.Context, state types.CallState) error

	Close() error
}

// AuditStore is the append-only routing log. Records are written once
// and never updated.
type AuditStore interface {
	AppendRoutingRecord(record types.RoutingRecord) error
	ListRoutingRecords(dateKey string) ([]types.RoutingRecord, error)
}
