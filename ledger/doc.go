// Package ledger holds the value and addressing primitives shared by every
// actor in the catalog: addresses derived from a template and its initial
// state, native coin amounts, per-actor balances and the fee schedule.
//
// Nothing in this package performs I/O; Derive in particular is a pure
// function so that an address can be computed before its actor exists.
package ledger
