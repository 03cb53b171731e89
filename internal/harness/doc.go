// Package harness runs population scenarios against a catalog.
//
// A scenario loads a catalog, inserts setup rows, runs one or more populate
// steps and then checks assertions against the resulting database. Every
// MakeTuples call made during the steps is recorded in a trace, which can be
// compared against a golden file.
//
// # Scenario Format
//
//	name: copy_summary
//	description: "Summary copies gain from Session"
//	catalog: ../catalog
//	setup:
//	  Subject:
//	    - {subject_id: 1, species: mouse}
//	  Session:
//	    - {subject_id: 1, session_id: 1, rig: A, gain: "1.50"}
//	steps:
//	  - populate: Summary
//	    suppress_errors: true
//	    fail:
//	      - key: {session_id: 2}
//	        error: rig offline
//	    conflict:
//	      - key: {session_id: 1}
//	        times: 2
//	    expect: {made: 1, failed: 1}
//	assertions:
//	  - type: row_count
//	    table: Summary
//	    count: 1
//	  - type: rows
//	    table: Summary
//	    where: {subject_id: 1}
//	    expect: {gain: "1.50"}
//
// Keys in fail, conflict, where and make_count assertions match by subset:
// only the named attributes are compared.
//
// # Assertion Types
//
//   - row_count: number of rows in a table, optionally restricted by where
//   - pending: number of keys a populate of the table would still process
//   - rows: every row matching where has the expected attribute values
//   - make_count: number of MakeTuples calls recorded for a key
//
// # Scripted Outcomes
//
// A fail entry makes the table's maker return an error for matching keys
// without running it. A conflict entry runs the maker and then returns a
// resolvable transaction error, so the inserted rows are rolled back and the
// key is retried; times limits how many attempts conflict (zero means every
// attempt).
package harness
