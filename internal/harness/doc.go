// Package harness runs repository scenarios described in YAML.
//
// A scenario builds a fresh repository, fills it with packets, then runs a
// list of steps against it (queries, reconciliation, object commits) and
// checks each step's outcome.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	hash_algorithm: sha256          # optional
//	require_complete_tree: false    # optional
//	locations:                      # optional, in addition to "local"
//	  - name: origin
//	    type: path
//	packets:
//	  - id: P1
//	    name: a
//	    time: 100                   # optional, a deterministic clock otherwise
//	    parameters: { n: 1 }
//	    files:
//	      - { path: data.csv, content: "x,y" }
//	    objects: true               # store file contents in the object store
//	    depends:
//	      - packet: P0
//	        files: [{ here: in.csv, there: data.csv }]
//	    raw: false                  # true writes the record bypassing commit checks
//	steps:
//	  - query: "latest(name == 'a')"
//	    this: { n: 1 }
//	    expect: [P1]
//	  - query: "single(name == 'a')"
//	    error: AMBIGUOUS_QUERY
//	  - missing_packets: { known: [P1], unpacked: false }
//	    expect: [P2]
//	  - missing_files: [alpha, beta]   # contents; hashed by the harness
//	    expect: [beta]
//	  - commit_object: { content: abc, claimed: def }
//	    error: HASH_MISMATCH
//	  - problems: true
//	    expect: ["P3 DANGLING_DEPENDENCY"]
//
// # Step Outcomes
//
// Every step produces either a list of strings or an error code. expect
// compares the list exactly (order matters); error compares the code. A step
// with neither only records its outcome, which is still captured for golden
// comparison.
//
// # Deterministic Testing
//
// Packet times default to a fixed-step clock (testutil.PacketClock) and
// every scenario runs in its own temporary root, so outcomes are identical
// across runs and can be compared against golden files.
package harness
