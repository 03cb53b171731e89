// Package store provides the SQLite session that population and fetching run
// against.
//
// A Store owns one connection and at most one open transaction. While a
// transaction is open every query and statement issued through the Store
// runs inside it, so a make-tuples callback that inserts through the Store
// commits or rolls back together with the membership check that admitted
// its key.
//
// # Conflicts
//
// SQLITE_BUSY and SQLITE_LOCKED (including the BUSY_SNAPSHOT raised when a
// WAL read transaction tries to upgrade after another writer committed) are
// returned as *ConflictError. A conflict names the statement that hit it and
// can wait out a backoff before the caller retries.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout: 5 seconds unless overridden with WithBusyTimeout
//   - foreign_keys=ON
//
// Declared tables are recorded in relpop_tables with a signature of their
// heading so a second declaration with a different heading is rejected.
package store
