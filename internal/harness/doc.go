// Package harness runs call scenarios against compiled contracts.
//
// A scenario compiles one program, deploys its initcode on the reference
// interpreter in testutil, and makes a sequence of calls. Each call is
// checked against its expect clause and recorded in a trace that can be
// compared with a golden file.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: counter_calls
//	description: "inc adds one and rejects overflow"
//	program: counter.cue          # relative to the scenario file
//	settings:                     # optional, same keys as kiln.yaml
//	  optimize: size
//	calls:
//	  - call: inc
//	    args: [5]
//	    expect: {returns: 6}
//	  - call: inc
//	    args: ["0xffffffffffffffff"]
//	    expect: {revert: true}
//	  - calldata: "0x00000000"
//	    expect: {revert: true}
//	assertions:
//	  - type: layout
//	    kind: sparse
//	  - type: trace_count
//	    call: inc
//	    outcome: revert
//	    count: 1
//
// Arguments are encoded with the standard ABI for the function's argument
// types. Integers may be YAML numbers or strings (decimal or 0x hex, with an
// optional sign); values outside the argument type are sent unchanged so
// that range checks can be exercised. Decimals are strings such as "1.25".
//
// # Assertion Types
//
//   - layout: the selector layout kind (linear, sparse or dense)
//   - runtime_size: runtime code is at most max_bytes long
//   - trace_count: a call (by function name, or "raw") ended with outcome
//     exactly count times
package harness
