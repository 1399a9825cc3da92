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

// TriggerService persists trigger definitions. The state column is
// authoritative: on load it overrides whatever state the serialised
// definition carries.
type TriggerService struct {
	client *database.Client
}

// NewTriggerService creates a trigger service over the store.
func NewTriggerService(client *database.Client) *TriggerService {
	return &TriggerService{client: client}
}

// Save inserts or updates a trigger definition.
func (s *TriggerService) Save(ctx context.Context, t *models.TriggerDefinition) error {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger definition: %w", err)
	}

	_, err = s.client.DB().ExecContext(ctx,
		`INSERT INTO triggers (trigger_id, name, state, enabled, definition, created_at, updated_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (trigger_id) DO UPDATE SET
		   name = excluded.name,
		   state = excluded.state,
		   enabled = excluded.enabled,
		   definition = excluded.definition,
		   updated_at = excluded.updated_at,
		   expires_at = excluded.expires_at`,
		t.TriggerID, t.Name, string(t.State), boolToInt(t.Enabled), string(raw),
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt), formatTimePtr(t.ExpiresAt))
	if err != nil {
		return fmt.Errorf("failed to save trigger %s: %w", t.TriggerID, err)
	}
	return nil
}

// Get loads one trigger; the state and enabled columns override the
// serialised definition.
func (s *TriggerService) Get(ctx context.Context, triggerID string) (*models.TriggerDefinition, error) {
	row := s.client.DB().QueryRowContext(ctx,
		`SELECT state, enabled, definition FROM triggers WHERE trigger_id = ?`, triggerID)
	t, err := scanTrigger(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("trigger %s: %w", triggerID, ErrNotFound)
	}
	return t, err
}

// List returns all triggers, or only enabled ones.
func (s *TriggerService) List(ctx context.Context, enabledOnly bool) ([]*models.TriggerDefinition, error) {
	query := `SELECT state, enabled, definition FROM triggers ORDER BY created_at`
	if enabledOnly {
		query = `SELECT state, enabled, definition FROM triggers WHERE enabled = 1 ORDER BY created_at`
	}
	rows, err := s.client.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list triggers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.TriggerDefinition
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateState persists a lifecycle transition without rewriting the
// whole definition.
func (s *TriggerService) UpdateState(ctx context.Context, triggerID string, state models.TriggerState) error {
	res, err := s.client.DB().ExecContext(ctx,
		`UPDATE triggers SET state = ?, updated_at = ? WHERE trigger_id = ?`,
		string(state), formatTime(time.Now().UTC()), triggerID)
	if err != nil {
		return fmt.Errorf("failed to update trigger state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("trigger %s: %w", triggerID, ErrNotFound)
	}
	return nil
}

// SetEnabled flips the enabled column.
func (s *TriggerService) SetEnabled(ctx context.Context, triggerID string, enabled bool) error {
	res, err := s.client.DB().ExecContext(ctx,
		`UPDATE triggers SET enabled = ?, updated_at = ? WHERE trigger_id = ?`,
		boolToInt(enabled), formatTime(time.Now().UTC()), triggerID)
	if err != nil {
		return fmt.Errorf("failed to update trigger enabled flag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("trigger %s: %w", triggerID, ErrNotFound)
	}
	return nil
}

// Delete removes a trigger.
func (s *TriggerService) Delete(ctx context.Context, triggerID string) error {
	res, err := s.client.DB().ExecContext(ctx,
		`DELETE FROM triggers WHERE trigger_id = ?`, triggerID)
	if err != nil {
		return fmt.Errorf("failed to delete trigger: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("trigger %s: %w", triggerID, ErrNotFound)
	}
	return nil
}

// PurgeExpired deletes triggers whose expires_at has passed and returns
// their ids.
func (s *TriggerService) PurgeExpired(ctx context.Context, now time.Time) ([]string, error) {
	db := s.client.DB()
	rows, err := db.QueryContext(ctx,
		`SELECT trigger_id FROM triggers WHERE expires_at IS NOT NULL AND expires_at < ?`,
		formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to query expired triggers: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		if _, err := db.ExecContext(ctx, `DELETE FROM triggers WHERE trigger_id = ?`, id); err != nil {
			return ids, fmt.Errorf("failed to delete expired trigger %s: %w", id, err)
		}
	}
	return ids, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrigger(row rowScanner) (*models.TriggerDefinition, error) {
	var state string
	var enabled int
	var definition string
	if err := row.Scan(&state, &enabled, &definition); err != nil {
		return nil, err
	}
	t := &models.TriggerDefinition{}
	if err := json.Unmarshal([]byte(definition), t); err != nil {
		return nil, fmt.Errorf("failed to decode trigger definition: %w", err)
	}
	// Column values win over the serialised copy.
	t.State = models.TriggerState(state)
	t.Enabled = enabled != 0
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
