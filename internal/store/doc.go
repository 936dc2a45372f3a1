// Package store provides the local key/value persistence used by the FlowRL client.
//
// Three independent records are kept, each an opaque byte blob:
//   - KeyDeviceID: the device-stable user identifier, written once
//   - KeyConfiguration: the last successfully fetched configuration (JSON)
//   - KeyEvents: the unsent event backlog (JSON), deleted once drained
//
// There are no transactional guarantees across keys. Every failure is returned
// as a model.Error with model.CodeStorage; callers log it and carry on with an
// empty value, so storage problems only ever cost durability.
//
// # Implementations
//
// SQLite is the durable backend (one kv table, WAL mode, single writer).
// Memory keeps everything in-process and is used by tests and ephemeral clients.
package store
