package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/llmos-bridge/bridge/pkg/database"
	"github.com/llmos-bridge/bridge/pkg/events"
)

// EventService persists the event audit trail. It is wired to the bus as
// a "#" subscriber so every emitted event lands in the events table.
type EventService struct {
	client *database.Client
}

// NewEventService creates an event service over the store.
func NewEventService(client *database.Client) *EventService {
	return &EventService{client: client}
}

// Append stores one event.
func (s *EventService) Append(ctx context.Context, e *events.UniversalEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", e.ID, err)
	}
	_, err = s.client.DB().ExecContext(ctx,
		`INSERT INTO events (event_id, topic, session_id, caused_by, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, events.NormalizeTopic(e.Topic), e.SessionID, e.CausedBy,
		string(payload), formatTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("failed to persist event %s: %w", e.ID, err)
	}
	return nil
}

// ListBySession returns a session's events in emission order.
func (s *EventService) ListBySession(ctx context.Context, sessionID string, limit int) ([]*events.UniversalEvent, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.client.DB().QueryContext(ctx,
		`SELECT payload FROM events WHERE session_id = ? ORDER BY id LIMIT ?`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*events.UniversalEvent
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		e := &events.UniversalEvent{}
		if err := json.Unmarshal([]byte(payload), e); err != nil {
			return nil, fmt.Errorf("failed to decode event payload: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PurgeBefore deletes audit events recorded before cutoff. Returns the
// number of rows removed.
func (s *EventService) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.client.DB().ExecContext(ctx,
		`DELETE FROM events WHERE created_at < ?`, formatTime(cutoff.UTC()))
	if err != nil {
		return 0, fmt.Errorf("failed to purge events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// AttachAuditTrail subscribes the service to the bus so every event is
// persisted. Returns the subscription for teardown.
func (s *EventService) AttachAuditTrail(bus events.Bus) (*events.Subscription, error) {
	return bus.Subscribe("#", func(e *events.UniversalEvent) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Append(ctx, e); err != nil {
			// Audit persistence is best-effort; the bus stays healthy.
			slog.Warn("Failed to persist audit event", "event_id", e.ID, "topic", e.Topic, "error", err)
		}
	})
}
