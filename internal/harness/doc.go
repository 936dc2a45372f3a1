// Package harness runs FlowRL client scenarios described in YAML.
//
// A scenario wires a real engine to an in-memory store, a controllable clock
// and a fake FlowRL service, drives it through a flow of steps and checks
// assertions against the trace of service calls and the final client state.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	flush_policy: per-event          # optional
//	served:                          # configuration the service returns
//	  experiments:
//	    - name: btn_color
//	      selected: blue
//	      variants: [blue, red]
//	cached:                          # optional, persisted before start
//	  age: 2h
//	  experiments: [...]
//	flow:
//	  - log: {action: click, category: ui, screen: home}
//	  - configure: {api_key: k1, user_id: alice}
//	  - advance: 25h
//	  - service: {submit_status: 503}
//	  - flush: true
//	  - suspend: true
//	assertions:
//	  - type: delivered
//	    action: click
//	    context: {btn_color: blue}
//	  - type: pending
//	    count: 0
//
// # Assertion Types
//
//   - fetch_count: number of configuration requests
//   - delivered_count: number of acknowledged event submissions
//   - delivered: an acknowledged submission matching action, user and context
//   - pending: number of undelivered events at the end of the flow
//   - variant: the variant the client resolves for a test
//
// # Deterministic Testing
//
// The clock starts at a fixed instant and only moves on advance steps, the
// device id is fixed and the recurring flush never fires, so the same
// scenario always produces the same trace. RunWithGolden compares that trace
// with testdata/golden/{name}.golden.
package harness
