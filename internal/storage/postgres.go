package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dialcraft/router/internal/types"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

// Connection pool defaults
const (
	maxOpenConns    = 25
	maxIdleConns    = 25
	connMaxLifetime = 5 * time.Minute
)

// PostgresStore implements Store on PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewPostgresStore opens the connection pool and verifies connectivity
func NewPostgresStore(dsn string, logger zerolog.Logger) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	logger.Info().Msg("postgres store initialized")
	return &PostgresStore{db: db, logger: logger}, nil
}

// Close releases the connection pool
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) GetRoutingConfiguration(ctx context.Context, workspaceID string) (*types.RoutingConfiguration, error) {
	var cfg types.RoutingConfiguration
	var scheduleJSON, holidaysJSON []byte

	err := s.db.QueryRowContext(ctx, `
		SELECT workspace_id, timezone, schedule, holidays,
		       after_hours_strategy, no_agents_strategy,
		       geo_routing_enabled, max_queue_size, max_wait_seconds, updated_at
		FROM routing_configurations
		WHERE workspace_id = $1`,
		workspaceID,
	).Scan(&cfg.WorkspaceID, &cfg.Timezone, &scheduleJSON, &holidaysJSON,
		&cfg.AfterHoursStrategy, &cfg.NoAgentsStrategy,
		&cfg.GeoRoutingEnabled, &cfg.MaxQueueSize, &cfg.MaxWaitSeconds, &cfg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query routing configuration: %w", err)
	}

	if err := json.Unmarshal(scheduleJSON, &cfg.Schedule); err != nil {
		return nil, fmt.Errorf("failed to decode schedule: %w", err)
	}
	if len(holidaysJSON) > 0 {
		if err := json.Unmarshal(holidaysJSON, &cfg.Holidays); err != nil {
			return nil, fmt.Errorf("failed to decode holidays: %w", err)
		}
	}
	return &cfg, nil
}

// LookupRouting returns the matching rule with the lowest priority
// number for the phone number
func (s *PostgresStore) LookupRouting(ctx context.Context, phoneNumber string) (*types.CallRouting, error) {
	var r types.CallRouting
	var callerIDPattern sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, phone_number, flow_id, priority, caller_id_pattern, active, created_at
		FROM call_routings
		WHERE phone_number = $1 AND active = true
		ORDER BY priority ASC
		LIMIT 1`,
		phoneNumber,
	).Scan(&r.ID, &r.WorkspaceID, &r.PhoneNumber, &r.FlowID, &r.Priority,
		&callerIDPattern, &r.Active, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query call routing: %w", err)
	}

	r.CallerIDPattern = callerIDPattern.String
	return &r, nil
}

func (s *PostgresStore) GetFlow(ctx context.Context, flowID string) (*types.IVRFlow, error) {
	var f types.IVRFlow
	var stepsJSON, departmentsJSON, voicemailJSON []byte

	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, name, steps, departments, voicemail, active, version, updated_at
		FROM ivr_flows
		WHERE id = $1`,
		flowID,
	).Scan(&f.ID, &f.WorkspaceID, &f.Name, &stepsJSON, &departmentsJSON,
		&voicemailJSON, &f.Active, &f.Version, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query flow: %w", err)
	}

	if err := json.Unmarshal(stepsJSON, &f.Steps); err != nil {
		return nil, fmt.Errorf("failed to decode flow steps: %w", err)
	}
	if err := json.Unmarshal(departmentsJSON, &f.Departments); err != nil {
		return nil, fmt.Errorf("failed to decode flow departments: %w", err)
	}
	if len(voicemailJSON) > 0 {
		if err := json.Unmarshal(voicemailJSON, &f.Voicemail); err != nil {
			return nil, fmt.Errorf("failed to decode voicemail config: %w", err)
		}
	}
	return &f, nil
}

func (s *PostgresStore) ListAgents(ctx context.Context, workspaceID string) ([]types.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, name, status, role, tier, skills,
		       city, state, country, timezone, extension, last_call_time, calls_today
		FROM agents
		WHERE workspace_id = $1 AND status != 'deleted'`,
		workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query agents: %w", err)
	}
	defer rows.Close()

	var agents []types.Agent
	for rows.Next() {
		var a types.Agent
		var skillsJSON []byte
		var lastCall sql.NullTime
		var tier sql.NullString

		if err := rows.Scan(&a.ID, &a.WorkspaceID, &a.Name, &a.Status, &a.Role, &tier,
			&skillsJSON, &a.Location.City, &a.Location.State, &a.Location.Country,
			&a.Location.Timezone, &a.Extension, &lastCall, &a.CallsToday); err != nil {
			return nil, fmt.Errorf("failed to scan agent row: %w", err)
		}

		a.Tier = types.AgentTier(tier.String)
		if lastCall.Valid {
			a.LastCallTime = lastCall.Time
		}
		if len(skillsJSON) > 0 {
			if err := json.Unmarshal(skillsJSON, &a.Skills); err != nil {
				return nil, fmt.Errorf("failed to decode agent skills: %w", err)
			}
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate agent rows: %w", err)
	}
	return agents, nil
}

func (s *PostgresStore) UpdateAgentAssignment(ctx context.Context, agentID string, lastCall time.Time, callsToday int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE agents SET last_call_time = $2, calls_today = $3 WHERE id = $1`,
		agentID, lastCall, callsToday)
	if err != nil {
		return fmt.Errorf("failed to update agent assignment: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveQueueEntry(ctx context.Context, entry types.QueueEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO queue_entries
			(id, workspace_id, call_id, priority, position, estimated_wait, status, enqueued_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			priority = EXCLUDED.priority,
			position = EXCLUDED.position,
			estimated_wait = EXCLUDED.estimated_wait,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`,
		entry.ID, entry.WorkspaceID, entry.CallID, entry.Priority, entry.Position,
		entry.EstimatedWait, entry.Status, entry.EnqueuedAt, entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save queue entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateQueueEntryStatus(ctx context.Context, entryID string, status types.EntryStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE queue_entries SET status = $2, updated_at = now() WHERE id = $1`,
		entryID, status)
	if err != nil {
		return fmt.Errorf("failed to update queue entry status: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListQueueEntriesSince(ctx context.Context, workspaceID string, since time.Time) ([]types.QueueEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, call_id, priority, position, estimated_wait, status, enqueued_at, updated_at
		FROM queue_entries
		WHERE workspace_id = $1 AND enqueued_at >= $2
		ORDER BY enqueued_at ASC`,
		workspaceID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue entries: %w", err)
	}
	defer rows.Close()

	var entries []types.QueueEntry
	for rows.Next() {
		var e types.QueueEntry
		if err := rows.Scan(&e.ID, &e.WorkspaceID, &e.CallID, &e.Priority, &e.Position,
			&e.EstimatedWait, &e.Status, &e.EnqueuedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan queue entry row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate queue entry rows: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) GetCallState(ctx context.Context, callID string) (*types.CallState, error) {
	var st types.CallState
	err := s.db.QueryRowContext(ctx, `
		SELECT call_id, workspace_id, flow_id, flow_version, current_step, last_dtmf, updated_at
		FROM call_states
		WHERE call_id = $1`,
		callID,
	).Scan(&st.CallID, &st.WorkspaceID, &st.FlowID, &st.FlowVersion,
		&st.CurrentStep, &st.LastDTMF, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query call state: %w", err)
	}
	return &st, nil
}

func (s *PostgresStore) SaveCallState(ctx context.Context, state types.CallState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO call_states (call_id, workspace_id, flow_id, flow_version, current_step, last_dtmf, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (call_id) DO UPDATE SET
			flow_id = EXCLUDED.flow_id,
			flow_version = EXCLUDED.flow_version,
			current_step = EXCLUDED.current_step,
			last_dtmf = EXCLUDED.last_dtmf,
			updated_at = EXCLUDED.updated_at`,
		state.CallID, state.WorkspaceID, state.FlowID, state.FlowVersion,
		state.CurrentStep, state.LastDTMF, state.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save call state: %w", err)
	}
	return nil
}
