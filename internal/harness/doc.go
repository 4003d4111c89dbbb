// Package harness runs navigation-guard scenarios.
//
// A scenario simulates the forms of an editing session: they mount, settle
// while related data loads, get edited and saved, and the user navigates
// away through global links or the form's own close button. Each run uses
// a fresh interceptor, a mounted global confirmation flow and real
// trackers; detector waits are simulated by an instant sleeper, and ids
// and seqs are deterministic. The trace is the journal the run wrote.
//
// # Scenario Format
//
//	name: discount_edit_blocks_menu_navigation
//	description: "Editing a loaded invoice blocks the menu link"
//	profiles:
//	  - ../profiles/invoicing.cue
//	timing:
//	  max_attempts: 3
//	forms:
//	  - id: invoice-form-7
//	    profile: invoice
//	    existing: true
//	    data: { number: "F-7", discount: 0 }
//	    cascade:
//	      - { client_id: "c-1" }
//	steps:
//	  - mount: invoice-form-7
//	  - load: invoice-form-7
//	    expect: { state: clean }
//	  - edit: invoice-form-7
//	    set: { discount: 15 }
//	  - navigate: /clients
//	    source: menu
//	    expect: { proceeded: false, dialog: true }
//	  - confirm: discard
//	assertions:
//	  - type: route
//	    route: /clients
//	  - type: trace_count
//	    kind: confirmed
//	    count: 1
//
// Cascade entries are merged into the form one per detector wait, so a
// cascade longer than the settle attempts keeps the form incomplete or
// unstable. Navigating away unmounts every mounted form.
//
// # Step Types
//
//   - mount, load, edit, save, unmount: form lifecycle; the value is the form id
//   - navigate: global navigation to the route; source sets the source tag
//   - confirm: discard or stay in the global dialog
//   - leave: the form's own close, leading to route "to"
//   - local: discard or stay in the form's own dialog
//
// # Assertion Types
//
//   - route: final route
//   - guards: registered guard ids in evaluation order
//   - dirty: IsDirty of a mounted form
//   - action_count: navigation actions that ran
//   - baseline: subset of a mounted form's baseline
//   - trace_contains: an event of the kind, optionally filtered by guard,
//     source and detail subset
//   - trace_order: first occurrences of kinds in order
//   - trace_count: exact number of matching events
//
// # Golden Files
//
// RunWithGolden compares the trace, without event details, against
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
