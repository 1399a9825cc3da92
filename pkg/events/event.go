// Package events provides the typed, causally-linked event envelope and
// the topic-pattern bus backing the audit trail and trigger observability.
//
// Topics are dot-separated segments routed with MQTT-style wildcards:
// "*" matches exactly one segment, a trailing "#" matches zero or more.
// Delivery order within a subscriber is FIFO; across subscribers it is
// unordered.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Standard topics emitted by the daemon core.
const (
	TopicPlanSubmitted     = "plan.submitted"
	TopicPlanRejected      = "plan.rejected"
	TopicPlanStarted       = "plan.started"
	TopicPlanCompleted     = "plan.completed"
	TopicPlanFailed        = "plan.failed"
	TopicPlanCancelled     = "plan.cancelled"
	TopicActionStarted     = "action.started"
	TopicActionCompleted   = "action.completed"
	TopicActionFailed      = "action.failed"
	TopicActionSkipped     = "action.skipped"
	TopicActionRolledBack  = "action.rolled_back"
	TopicApprovalRequested = "approval.requested"
	TopicApprovalResolved  = "approval.resolved"
	TopicPerceptionCapture = "perception.capture"
	TopicTriggerRegistered = "trigger.registered"
	TopicTriggerFired      = "trigger.fired"
	TopicTriggerThrottled  = "trigger.throttled"
	TopicTriggerFailed     = "trigger.failed"
	TopicTriggerExpired    = "trigger.expired"
)

// UniversalEvent is the immutable event envelope. The only mutation after
// creation is the one-time append to Causes performed by SpawnChild on
// the parent.
type UniversalEvent struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	Topic         string         `json:"topic"`
	Timestamp     time.Time      `json:"timestamp"`
	Source        string         `json:"source"`
	Payload       map[string]any `json:"payload,omitempty"`
	CausedBy      string         `json:"caused_by,omitempty"`
	Causes        []string       `json:"causes,omitempty"`
	SessionID     string         `json:"session_id,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Priority      int            `json:"priority,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`

	mu sync.Mutex
}

// New creates a root event (no causal parent).
func New(eventType, topic, source string, payload map[string]any) *UniversalEvent {
	return &UniversalEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Topic:     topic,
		Timestamp: time.Now().UTC(),
		Source:    source,
		Payload:   payload,
	}
}

// SpawnChild creates an event caused by e, linking both directions:
// the child's caused_by points at e, and the child's id is appended to
// e.Causes. Session and correlation fields are inherited.
func (e *UniversalEvent) SpawnChild(eventType, topic string, payload map[string]any) *UniversalEvent {
	child := New(eventType, topic, e.Source, payload)
	child.CausedBy = e.ID
	child.SessionID = e.SessionID
	child.CorrelationID = e.CorrelationID
	child.Priority = e.Priority

	e.mu.Lock()
	e.Causes = append(e.Causes, child.ID)
	e.mu.Unlock()
	return child
}
