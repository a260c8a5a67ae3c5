// Package ir provides the low-level intermediate representation produced by
// lowering and consumed by the assembler.
//
// This package depends only on types and diag. Every other compiler stage
// imports ir; ir imports no stage. This keeps IR the foundational layer with
// no circular dependencies.
//
// Key design constraints:
//   - Nodes are immutable once constructed; WithType and WithAnnotation copy
//   - Bindings nest strictly: last opened, first closed
//   - Annotations never reach the canonical encoding or the integrity hash
//   - Constants are arbitrary precision; the assembler reduces them mod 2^256
package ir
