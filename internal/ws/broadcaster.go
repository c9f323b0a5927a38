package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dialcraft/router/internal/directory"
	"github.com/dialcraft/router/internal/queue"
	"github.com/rs/zerolog"
)

// queueUpdate is the message envelope pushed to supervisor clients
type queueUpdate struct {
	Type      string      `json:"type"` // "queue_snapshot"
	Snapshot  interface{} `json:"snapshot"`
	Timestamp string      `json:"timestamp"`
}

// Broadcaster periodically pushes queue snapshots for every workspace
// with waiting callers to the hub
type Broadcaster struct {
	hub      *Hub
	queue    *queue.Manager
	dir      *directory.Directory
	interval time.Duration
	logger   zerolog.Logger
}

// NewBroadcaster creates a broadcaster
func NewBroadcaster(hub *Hub, qm *queue.Manager, dir *directory.Directory, interval time.Duration, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		hub:      hub,
		queue:    qm,
		dir:      dir,
		interval: interval,
		logger:   logger,
	}
}

// Start begins broadcasting queue snapshots until the context is canceled
func (b *Broadcaster) Start(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.logger.Info().Dur("interval", b.interval).Msg("queue broadcaster started")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("queue broadcaster stopped")
			return

		case now := <-ticker.C:
			if b.hub.ClientCount() == 0 {
				continue
			}

			for _, workspaceID := range b.queue.Workspaces() {
				snapshot := b.queue.Snapshot(workspaceID, len(b.dir.Available(workspaceID)))

				data, err := json.Marshal(queueUpdate{
					Type:      "queue_snapshot",
					Snapshot:  snapshot,
					Timestamp: now.Format(time.RFC3339),
				})
				if err != nil {
					b.logger.Error().Err(err).Msg("failed to marshal queue snapshot")
					continue
				}

				b.hub.Broadcast(data)
			}
		}
	}
}
