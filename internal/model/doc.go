// Package model defines the FlowRL data model shared by every component.
//
// Configuration and ConfigurationChoice are immutable snapshots: fields are
// unexported and accessors hand out copies. A refresh replaces the whole
// *Configuration value, it never mutates one in place.
//
// Event is a plain value. Its identity is the full field tuple, exposed as a
// content-addressed key (see Event.Key) so that a set of events can be held in
// a map and duplicate-field events collapse to one entry.
//
// # Wire Format
//
// Both types encode to the JSON shapes the FlowRL service speaks:
//
//	configuration: {"generated_at": <epoch-ms>, "user_id": ..., "type": ...,
//	                "config": [{"name", "selected_variant", "variants"}]}
//	event:         {"timestamp", "compan_id", "user_id", "event_category": {"string"},
//	                "event_action", "screen_name",
//	                "flowrl_config": [{"experiment_name", "experiment_value"}]}
//
// The same encoding is used for the local persisted copies.
package model
