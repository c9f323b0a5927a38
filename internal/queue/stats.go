package queue

import (
	"context"
	"time"

	"github.com/dialcraft/router/internal/types"
)

// serviceLevelThreshold is the answer-time threshold for the service
// level percentage: answered within 5 minutes.
const serviceLevelThreshold = 5 * time.Minute

// Stats derives read-only aggregates from historical queue entries.
// It never mutates stored rows.
func (m *Manager) Stats(ctx context.Context, workspaceID string, now time.Time) (*types.QueueStats, error) {
	if m.store == nil {
		return &types.QueueStats{WorkspaceID: workspaceID}, nil
	}

	weekStart := now.AddDate(0, 0, -7)
	rows, err := m.store.ListQueueEntriesSince(ctx, workspaceID, weekStart)
	if err != nil {
		return nil, err
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	stats := &types.QueueStats{WorkspaceID: workspaceID, TotalThisWeek: len(rows)}
	arrivalsByHour := make(map[int]int)

	var answeredInSL int
	var totalWait time.Duration
	var waitSamples int

	for _, row := range rows {
		arrivalsByHour[row.EnqueuedAt.Hour()]++

		today := !row.EnqueuedAt.Before(dayStart)
		if today {
			stats.TotalToday++
		}

		switch row.Status {
		case types.EntryAssigned, types.EntryConnected:
			wait := row.UpdatedAt.Sub(row.EnqueuedAt)
			totalWait += wait
			waitSamples++
			if wait <= serviceLevelThreshold {
				answeredInSL++
			}
			if today {
				stats.AnsweredToday++
			}
		case types.EntryAbandoned:
			if today {
				stats.AbandonedToday++
			}
		}
	}

	answered := 0
	for _, row := range rows {
		if row.Status == types.EntryAssigned || row.Status == types.EntryConnected {
			answered++
		}
	}
	if answered > 0 {
		stats.ServiceLevelPct = float64(answeredInSL) / float64(answered) * 100.0
	} else {
		stats.ServiceLevelPct = 100.0
	}
	if len(rows) > 0 {
		abandoned := 0
		for _, row := range rows {
			if row.Status == types.EntryAbandoned {
				abandoned++
			}
		}
		stats.AbandonRatePct = float64(abandoned) / float64(len(rows)) * 100.0
	}
	if waitSamples > 0 {
		stats.AvgWaitSeconds = totalWait.Seconds() / float64(waitSamples)
	}

	peak, peakCount := 0, -1
	for hour, count := range arrivalsByHour {
		if count > peakCount || (count == peakCount && hour < peak) {
			peak, peakCount = hour, count
		}
	}
	if peakCount > 0 {
		stats.PeakHour = peak
	}

	return stats, nil
}
