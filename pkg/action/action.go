// Package action defines the structured action records a model response can
// embed and a serialized queue that dispatches them to host callbacks.
//
// Actions arrive out-of-band inside model text (see pkg/chat extraction) or
// directly from a streaming chunk. The queue guarantees strict arrival order
// and at-most-one action executing at any instant.
package action

import (
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
)

// Priorities an action may carry. Priority is informational only: the queue
// executes in arrival order regardless (see Queue).
const (
	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityMedium   = "medium"
	PriorityLow      = "low"
)

// Built-in action types.
const (
	TypeSupplyForecast = "supply_forecast"
	TypeFarmerList     = "farmer_list"
	TypeWeatherAlerts  = "weather_alerts"
	TypeDiseaseMap     = "disease_map"
	TypeInventory      = "inventory"
	TypeFarmerProfile  = "farmer_profile"
	TypeNotification   = "notification"
)

// Action is an immutable record produced by model output. Data is an
// arbitrary structured payload interpreted by the handler for Type.
type Action struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Priority  string         `json:"priority"`
	Timestamp string         `json:"timestamp"`
}

// New builds an action with defaults applied: nil data becomes an empty
// object, empty priority becomes medium, empty timestamp is stamped now.
func New(typ string, data map[string]any, priority string) Action {
	if data == nil {
		data = map[string]any{}
	}
	if priority == "" {
		priority = PriorityMedium
	}
	return Action{
		Type:      typ,
		Data:      data,
		Priority:  priority,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

var (
	schemaOnce     sync.Once
	actionResolved *jsonschema.Resolved
	schemaErr      error
)

// actionSchema describes a well-formed action record: string type, object
// data, priority drawn from the fixed set, string timestamp.
func actionSchema() (*jsonschema.Resolved, error) {
	schemaOnce.Do(func() {
		s := &jsonschema.Schema{
			Type:     "object",
			Required: []string{"type", "data", "priority", "timestamp"},
			Properties: map[string]*jsonschema.Schema{
				"type": {Type: "string"},
				"data": {Type: "object"},
				"priority": {
					Type: "string",
					Enum: []any{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow},
				},
				"timestamp": {Type: "string"},
			},
		}
		actionResolved, schemaErr = s.Resolve(nil)
	})
	return actionResolved, schemaErr
}

// Valid reports whether a is a well-formed action record.
func (a Action) Valid() bool {
	res, err := actionSchema()
	if err != nil {
		return false
	}
	// Empty strings are treated as absent so Required catches them.
	inst := map[string]any{"data": anyMap(a.Data)}
	if a.Type != "" {
		inst["type"] = a.Type
	}
	if a.Priority != "" {
		inst["priority"] = a.Priority
	}
	if a.Timestamp != "" {
		inst["timestamp"] = a.Timestamp
	}
	return res.Validate(inst) == nil
}

// anyMap keeps nil data invalid: schema requires an object, and a nil map
// marshals to null.
func anyMap(m map[string]any) any {
	if m == nil {
		return nil
	}
	return m
}
