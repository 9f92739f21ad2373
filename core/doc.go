// Package core simulates the ledger that catalog actors run on.
//
// Every actor has an address derived from its template and initial
// parameters, a balance, and a mailbox drained by one goroutine. Messages
// carry value; each delivery is processed as a transaction that is charged a
// compute fee, may reserve part of the inbound value, and may send further
// messages. A failed transaction drops its outbound messages and bounces the
// unspent value back to the sender.
//
// Actors are created lazily: a message that carries a StateInit whose
// derived address matches its destination spawns the actor on first
// delivery. The System records every transaction, groups them by the
// operation that started them, and notifies observers.
package core
