// Package store provides a SQLite-backed registry of compiled builds.
//
// Each row records one compilation: the contract name, the integrity hash
// from the metadata trailer, the settings that produced it, and the hex
// artifacts. The registry answers two questions when checking deployed
// code: which build has this integrity hash, and which build produced
// this runtime code.
//
// # Critical Patterns
//
// Build-Level Idempotency
//   - UNIQUE(integrity, settings) constraint
//   - Build ids are name-based UUIDs over the same pair, so recording a
//     build twice yields the same id and one row
//
// Logical Ordering
//   - Rows are ordered by seq INTEGER, never timestamps
//   - All list queries use ORDER BY seq ASC, id COLLATE BINARY ASC
//
// Runtime Fingerprints
//   - runtime_fingerprint is the xxhash64 of the runtime code
//   - Lookups by runtime compare the full code after the indexed match
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
