package models

import (
	"encoding/json"
	"time"
)

// TriggerState is the trigger lifecycle state machine. The triggers
// table's state column is authoritative over any state embedded in the
// serialised definition.
type TriggerState string

const (
	TriggerRegistered TriggerState = "REGISTERED"
	TriggerInactive   TriggerState = "INACTIVE"
	TriggerActive     TriggerState = "ACTIVE"
	TriggerWatching   TriggerState = "WATCHING"
	TriggerThrottled  TriggerState = "THROTTLED"
	TriggerFired      TriggerState = "FIRED"
	TriggerFailed     TriggerState = "FAILED"
)

// TriggerPriority orders fires in the priority scheduler. Lower is more
// urgent; CRITICAL fires may preempt BACKGROUND plans.
type TriggerPriority int

const (
	PriorityCritical   TriggerPriority = 0
	PriorityHigh       TriggerPriority = 1
	PriorityNormal     TriggerPriority = 2
	PriorityLow        TriggerPriority = 3
	PriorityBackground TriggerPriority = 4
)

// ConflictPolicy decides what happens when a trigger fires while its
// resource lock is held by another trigger's plan.
type ConflictPolicy string

const (
	ConflictQueue   ConflictPolicy = "queue"
	ConflictPreempt ConflictPolicy = "preempt"
	ConflictReject  ConflictPolicy = "reject"
)

// ConditionType discriminates the trigger condition union.
type ConditionType string

const (
	ConditionTemporal   ConditionType = "TEMPORAL"
	ConditionFilesystem ConditionType = "FILESYSTEM"
	ConditionProcess    ConditionType = "PROCESS"
	ConditionResource   ConditionType = "RESOURCE"
	ConditionComposite  ConditionType = "COMPOSITE"
)

// TemporalMode selects the temporal watcher flavour.
type TemporalMode string

const (
	TemporalInterval TemporalMode = "interval"
	TemporalCron     TemporalMode = "cron"
	TemporalOnce     TemporalMode = "once"
)

// CompositeOperator combines sub-conditions.
type CompositeOperator string

const (
	CompositeAnd    CompositeOperator = "AND"
	CompositeOr     CompositeOperator = "OR"
	CompositeNot    CompositeOperator = "NOT"
	CompositeSeq    CompositeOperator = "SEQ"
	CompositeWindow CompositeOperator = "WINDOW"
)

// TriggerCondition is the discriminated condition union. Only the fields
// of the selected Type are meaningful.
type TriggerCondition struct {
	Type ConditionType `json:"type"`

	// TEMPORAL
	Mode            TemporalMode `json:"mode,omitempty"`
	IntervalSeconds float64      `json:"interval_seconds,omitempty"`
	CronExpression  string       `json:"cron_expression,omitempty"`
	At              *time.Time   `json:"at,omitempty"`

	// FILESYSTEM
	Path      string   `json:"path,omitempty"`
	Recursive bool     `json:"recursive,omitempty"`
	Events    []string `json:"events,omitempty"` // subset of created/modified/deleted

	// PROCESS
	ProcessName         string  `json:"process_name,omitempty"`
	ProcessEvent        string  `json:"process_event,omitempty"` // started|stopped
	PollIntervalSeconds float64 `json:"poll_interval_seconds,omitempty"`

	// RESOURCE
	Metric          string  `json:"metric,omitempty"` // cpu_percent|memory_percent|disk_percent
	Threshold       float64 `json:"threshold,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`

	// COMPOSITE
	Operator       CompositeOperator   `json:"operator,omitempty"`
	Conditions     []*TriggerCondition `json:"conditions,omitempty"`
	TimeoutSeconds float64             `json:"timeout_seconds,omitempty"`
	SilenceSeconds float64             `json:"silence_seconds,omitempty"`
	FireCount      int                 `json:"fire_count,omitempty"` // WINDOW threshold
	WindowSeconds  float64             `json:"window_seconds,omitempty"`
}

// ThrottleSpec bounds trigger fire frequency.
type ThrottleSpec struct {
	MinIntervalSeconds float64 `json:"min_interval_seconds,omitempty"`
	MaxFiresPerHour    int     `json:"max_fires_per_hour,omitempty"`
}

// TriggerHealth accumulates per-trigger operational counters.
type TriggerHealth struct {
	FireCount     int        `json:"fire_count"`
	FailCount     int        `json:"fail_count"`
	ThrottleCount int        `json:"throttle_count"`
	LastError     string     `json:"last_error,omitempty"`
	LastFiredAt   *time.Time `json:"last_fired_at,omitempty"`
	// LatencyEMA is the exponential moving average of fire-to-submission
	// latency in milliseconds (alpha = 0.3).
	LatencyEMA float64 `json:"latency_ema_ms"`
}

// DefaultMaxChainDepth bounds trigger-to-trigger registration chains.
const DefaultMaxChainDepth = 5

// TriggerDefinition is a persistent rule that submits a plan when its
// condition fires. Owned by the trigger daemon once registered.
type TriggerDefinition struct {
	TriggerID     string            `json:"trigger_id"`
	Name          string            `json:"name"`
	State         TriggerState      `json:"state"`
	Enabled       bool              `json:"enabled"`
	Condition     *TriggerCondition `json:"condition"`
	PlanTemplate  json.RawMessage   `json:"plan_template"`
	Priority      TriggerPriority   `json:"priority"`
	Throttle      *ThrottleSpec     `json:"throttle,omitempty"`
	ResourceLock  string            `json:"resource_lock,omitempty"`
	Conflict      ConflictPolicy    `json:"conflict_policy,omitempty"`
	MaxChainDepth int               `json:"max_chain_depth,omitempty"`
	ChainDepth    int               `json:"chain_depth,omitempty"`
	ExpiresAt     *time.Time        `json:"expires_at,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	Health        *TriggerHealth    `json:"health,omitempty"`
	CreatedAt     time.Time         `json:"created_at,omitempty"`
	UpdatedAt     time.Time         `json:"updated_at,omitempty"`
}

// EffectiveMaxChainDepth returns the configured bound or the default.
func (t *TriggerDefinition) EffectiveMaxChainDepth() int {
	if t.MaxChainDepth > 0 {
		return t.MaxChainDepth
	}
	return DefaultMaxChainDepth
}
