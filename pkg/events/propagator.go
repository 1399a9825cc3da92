package events

import "sync"

// SessionContext carries the trigger provenance bound to a running plan.
// Any event emitted during the plan's execution is stamped with these
// fields.
type SessionContext struct {
	SessionID     string
	CorrelationID string
	TriggerID     string
	// TriggerChainDepth is the number of trigger-to-trigger registrations
	// along this plan's causal chain.
	TriggerChainDepth int
}

// SessionContextPropagator binds plan_id → session context at submission
// and unbinds at termination. Emitters look the binding up on demand —
// no component holds a long-lived handle to another's record.
type SessionContextPropagator struct {
	mu       sync.RWMutex
	bindings map[string]SessionContext
}

// NewSessionContextPropagator creates an empty propagator.
func NewSessionContextPropagator() *SessionContextPropagator {
	return &SessionContextPropagator{bindings: make(map[string]SessionContext)}
}

// Bind associates a plan with its session context.
func (p *SessionContextPropagator) Bind(planID string, sc SessionContext) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bindings[planID] = sc
}

// Unbind removes the association when the plan terminates.
func (p *SessionContextPropagator) Unbind(planID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.bindings, planID)
}

// Lookup returns the bound context, if any.
func (p *SessionContextPropagator) Lookup(planID string) (SessionContext, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sc, ok := p.bindings[planID]
	return sc, ok
}

// Stamp applies the bound session context to an event, if a binding
// exists for the plan.
func (p *SessionContextPropagator) Stamp(planID string, event *UniversalEvent) {
	sc, ok := p.Lookup(planID)
	if !ok {
		return
	}
	if event.SessionID == "" {
		event.SessionID = sc.SessionID
	}
	if event.CorrelationID == "" {
		event.CorrelationID = sc.CorrelationID
	}
	if sc.TriggerID != "" {
		if event.Metadata == nil {
			event.Metadata = map[string]any{}
		}
		event.Metadata["trigger_id"] = sc.TriggerID
		event.Metadata["trigger_chain_depth"] = sc.TriggerChainDepth
	}
}
