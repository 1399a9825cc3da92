package modules

import (
	"context"
	"encoding/json"
	"time"
)

// ClockModule reports the current time. It exists so plans can anchor
// timestamps without shelling out, and so tests have a trivially safe
// action to dispatch.
type ClockModule struct {
	// Now is replaceable for tests.
	Now func() time.Time
}

// NewClockModule creates the clock module.
func NewClockModule() *ClockModule {
	return &ClockModule{Now: time.Now}
}

// ID implements Module.
func (m *ClockModule) ID() string { return "clock" }

// Actions implements Module.
func (m *ClockModule) Actions() []ActionSpec {
	return []ActionSpec{
		{
			Name:        "now",
			Description: "Return the current time in UTC and the given IANA timezone.",
			ParamsSchema: json.RawMessage(`{
				"type": "object",
				"properties": {"timezone": {"type": "string"}},
				"additionalProperties": false
			}`),
			Handler: m.now,
		},
	}
}

func (m *ClockModule) now(_ context.Context, params json.RawMessage) (json.RawMessage, error) {
	var p struct {
		Timezone string `json:"timezone"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
	}

	now := m.Now().UTC()
	out := map[string]any{
		"utc":     now.Format(time.RFC3339Nano),
		"unix":    now.Unix(),
		"weekday": now.Weekday().String(),
	}
	if p.Timezone != "" {
		loc, err := time.LoadLocation(p.Timezone)
		if err != nil {
			return nil, err
		}
		out["local"] = now.In(loc).Format(time.RFC3339Nano)
		out["timezone"] = p.Timezone
	}
	return json.Marshal(out)
}
