// Package store is the SQLite-backed guard event journal.
//
// The journal is append-only: one row per guard.Event, keyed by its logical
// seq. It implements guard.Journal so an Interceptor can write to it
// directly, and offers ordered reads for the trace command and the scenario
// harness.
//
// # Ordering
//
// Every query orders by seq ASC. seq is assigned by the interceptor's
// logical clock, so a replayed scenario yields an identical journal. When
// reopening an existing file, resume the clock from LastSeq.
//
// # Database Configuration
//
//   - WAL mode for file journals: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//
// Schema changes are numbered migrations tracked in PRAGMA user_version.
// A journal written by a newer version is refused.
//
// Event detail is stored as canonical JSON (internal/ir).
package store
