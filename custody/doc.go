// Package custody implements a single-record custody state machine: a
// fungible balance held under one active owner with a designated heir, where
// prolonged owner inactivity makes the heir eligible to claim ownership.
//
// The package is transport-agnostic. All collaborators that touch the
// outside world are injected interfaces: a Clock supplies time, a Transferor
// executes outbound value transfers, and a Sink receives best-effort
// notifications. Subpackages provide production adapters (custody/store,
// custody/relay, custody/transfer, custody/http).
//
// Every operation is all-or-nothing: a rejected call leaves the record
// exactly as it was, including the activity timestamp.
package custody
