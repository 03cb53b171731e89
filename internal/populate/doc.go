// Package populate drives auto-populated tables.
//
// A Populator computes the unpopulated key set of a table,
//
//	KeyOnly((PopulateRelation - Target) restricted by the caller's predicate)
//
// and calls the table's MakeTuples once per key, each key inside its own
// transaction. Keys are processed one at a time in the order the source lists
// them. Before calling MakeTuples the populator re-checks that the key is
// still missing from the target, since another session may have populated it
// after the key set was computed.
//
// # Error policy
//
// Errors are classified with Classify:
//
//   - A TransactionError returned by MakeTuples is retried: the transaction is
//     cancelled, the error's Resolve is called and a new transaction is
//     started. After the attempt bound the populator fails with
//     RETRIES_EXHAUSTED.
//   - Any other MakeTuples error cancels the transaction and either stops the
//     run or, with WithSuppressErrors, is recorded and the run continues.
//
// Configuration errors, retry exhaustion, context cancellation and failures
// of the transaction controller itself always stop the run.
package populate
