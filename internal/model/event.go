package model

import (
	"encoding/json"
	"sort"
)

// DefaultCompanyID is the fixed company identifier stamped on every event.
const DefaultCompanyID = 1202

// ExperimentContext is one name/value experiment pair attached to an event.
type ExperimentContext struct {
	Name  string `json:"experiment_name"`
	Value string `json:"experiment_value"`
}

// Event is one logged user action.
//
// Events are compared by their full field tuple; use Key for set membership.
type Event struct {
	Timestamp     int64 // milliseconds since epoch
	CompanyID     int
	UserID        string
	Category      string
	ActionName    string
	ScreenName    string
	Configuration []ExperimentContext
}

type wireCategory struct {
	String string `json:"string"`
}

type wireEvent struct {
	Timestamp     int64               `json:"timestamp"`
	CompanyID     int                 `json:"compan_id"`
	UserID        string              `json:"user_id"`
	Category      wireCategory        `json:"event_category"`
	ActionName    string              `json:"event_action"`
	ScreenName    string              `json:"screen_name"`
	Configuration []ExperimentContext `json:"flowrl_config"`
}

// MarshalJSON encodes the event in wire format.
func (e Event) MarshalJSON() ([]byte, error) {
	cfg := e.Configuration
	if cfg == nil {
		cfg = []ExperimentContext{}
	}
	return json.Marshal(wireEvent{
		Timestamp:     e.Timestamp,
		CompanyID:     e.CompanyID,
		UserID:        e.UserID,
		Category:      wireCategory{String: e.Category},
		ActionName:    e.ActionName,
		ScreenName:    e.ScreenName,
		Configuration: cfg,
	})
}

// UnmarshalJSON decodes a wire-format event.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = Event{
		Timestamp:     w.Timestamp,
		CompanyID:     w.CompanyID,
		UserID:        w.UserID,
		Category:      w.Category.String,
		ActionName:    w.ActionName,
		ScreenName:    w.ScreenName,
		Configuration: w.Configuration,
	}
	return nil
}

// Equal reports whether two events have the same identity.
func (e Event) Equal(other Event) bool {
	return e.Key() == other.Key()
}

// SortEvents orders events by timestamp, then by key.
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Timestamp != events[j].Timestamp {
			return events[i].Timestamp < events[j].Timestamp
		}
		return events[i].Key() < events[j].Key()
	})
}
