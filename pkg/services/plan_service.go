package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/llmos-bridge/bridge/pkg/database"
	"github.com/llmos-bridge/bridge/pkg/models"
)

// planData is the plans.data JSON document. rejection_details round-trips
// verbatim so the SDK sees exactly what the admission gate produced.
type planData struct {
	Plan             *models.Plan             `json:"plan"`
	SessionID        string                   `json:"session_id,omitempty"`
	CorrelationID    string                   `json:"correlation_id,omitempty"`
	Error            string                   `json:"error,omitempty"`
	RejectionDetails *models.RejectionDetails `json:"rejection_details,omitempty"`
	StartedAt        *time.Time               `json:"started_at,omitempty"`
	EndedAt          *time.Time               `json:"ended_at,omitempty"`
}

// PlanService persists plans and their per-action execution records.
// The actions table is authoritative for action state; plans.data keeps
// the submitted plan and plan-level outcome.
type PlanService struct {
	client *database.Client
}

// NewPlanService creates a plan service over the store.
func NewPlanService(client *database.Client) *PlanService {
	return &PlanService{client: client}
}

// Create inserts the plan record in QUEUED (or REJECTED) status together
// with its initial action rows.
func (s *PlanService) Create(ctx context.Context, plan *models.Plan, state *models.ExecutionState) error {
	data := planData{
		Plan:             plan,
		SessionID:        state.SessionID,
		CorrelationID:    state.CorrelationID,
		Error:            state.Error,
		RejectionDetails: state.RejectionDetails,
		StartedAt:        state.StartedAt,
		EndedAt:          state.EndedAt,
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal plan data: %w", err)
	}

	now := formatTime(time.Now().UTC())
	db := s.client.DB()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO plans (plan_id, status, created_at, updated_at, data) VALUES (?, ?, ?, ?, ?)`,
		plan.PlanID, string(state.Status), now, now, string(raw))
	if err != nil {
		return fmt.Errorf("failed to insert plan: %w", err)
	}

	for _, rec := range state.Actions {
		if err := upsertAction(ctx, tx, plan.PlanID, rec); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// UpdateStatus persists a plan-level status transition and, for terminal
// transitions, the plan outcome fields.
func (s *PlanService) UpdateStatus(ctx context.Context, state *models.ExecutionState) error {
	db := s.client.DB()

	var raw string
	err := db.QueryRowContext(ctx, `SELECT data FROM plans WHERE plan_id = ?`, state.PlanID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("plan %s: %w", state.PlanID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to load plan data: %w", err)
	}

	var data planData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return fmt.Errorf("failed to decode plan data: %w", err)
	}
	data.Error = state.Error
	data.RejectionDetails = state.RejectionDetails
	data.StartedAt = state.StartedAt
	data.EndedAt = state.EndedAt

	updated, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to re-encode plan data: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`UPDATE plans SET status = ?, updated_at = ?, data = ? WHERE plan_id = ?`,
		string(state.Status), formatTime(time.Now().UTC()), string(updated), state.PlanID)
	if err != nil {
		return fmt.Errorf("failed to update plan status: %w", err)
	}
	return nil
}

// SaveAction persists one action's runtime record.
func (s *PlanService) SaveAction(ctx context.Context, planID string, rec *models.ActionRecord) error {
	return upsertAction(ctx, s.client.DB(), planID, rec)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertAction(ctx context.Context, db execer, planID string, rec *models.ActionRecord) error {
	result, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal action record: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO actions (plan_id, action_id, state, started_at, ended_at, result)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (plan_id, action_id) DO UPDATE SET
		   state = excluded.state,
		   started_at = excluded.started_at,
		   ended_at = excluded.ended_at,
		   result = excluded.result`,
		planID, rec.ActionID, string(rec.State),
		formatTimePtr(rec.StartedAt), formatTimePtr(rec.EndedAt), string(result))
	if err != nil {
		return fmt.Errorf("failed to upsert action %s/%s: %w", planID, rec.ActionID, err)
	}
	return nil
}

// Get rebuilds the ExecutionState from the plans and actions tables.
func (s *PlanService) Get(ctx context.Context, planID string) (*models.ExecutionState, error) {
	db := s.client.DB()

	var status, raw, createdAt string
	err := db.QueryRowContext(ctx,
		`SELECT status, data, created_at FROM plans WHERE plan_id = ?`, planID).
		Scan(&status, &raw, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("plan %s: %w", planID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query plan: %w", err)
	}

	var data planData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("failed to decode plan data: %w", err)
	}

	state := &models.ExecutionState{
		PlanID:           planID,
		Status:           models.PlanStatus(status),
		SessionID:        data.SessionID,
		CorrelationID:    data.CorrelationID,
		Error:            data.Error,
		RejectionDetails: data.RejectionDetails,
		StartedAt:        data.StartedAt,
		EndedAt:          data.EndedAt,
		CreatedAt:        parseTime(createdAt),
		Actions:          map[string]*models.ActionRecord{},
	}

	rows, err := db.QueryContext(ctx, `SELECT result FROM actions WHERE plan_id = ?`, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var recJSON string
		if err := rows.Scan(&recJSON); err != nil {
			return nil, fmt.Errorf("failed to scan action row: %w", err)
		}
		rec := &models.ActionRecord{}
		if err := json.Unmarshal([]byte(recJSON), rec); err != nil {
			return nil, fmt.Errorf("failed to decode action record: %w", err)
		}
		state.Actions[rec.ActionID] = rec
	}
	return state, rows.Err()
}

// GetPlan returns the originally submitted plan document.
func (s *PlanService) GetPlan(ctx context.Context, planID string) (*models.Plan, error) {
	var raw string
	err := s.client.DB().QueryRowContext(ctx,
		`SELECT data FROM plans WHERE plan_id = ?`, planID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("plan %s: %w", planID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query plan: %w", err)
	}
	var data planData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("failed to decode plan data: %w", err)
	}
	return data.Plan, nil
}

// PurgeTerminalBefore deletes terminal plan records older than cutoff and
// their action rows. Returns the number of plans removed.
func (s *PlanService) PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	db := s.client.DB()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM actions WHERE plan_id IN (
		   SELECT plan_id FROM plans WHERE updated_at < ? AND status IN (?, ?, ?, ?))`,
		formatTime(cutoff),
		string(models.PlanSucceeded), string(models.PlanFailed),
		string(models.PlanCancelled), string(models.PlanRejected))
	if err != nil {
		return 0, fmt.Errorf("failed to purge action rows: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM plans WHERE updated_at < ? AND status IN (?, ?, ?, ?)`,
		formatTime(cutoff),
		string(models.PlanSucceeded), string(models.PlanFailed),
		string(models.PlanCancelled), string(models.PlanRejected))
	if err != nil {
		return 0, fmt.Errorf("failed to purge plan rows: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), tx.Commit()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
