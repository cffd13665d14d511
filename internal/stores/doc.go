// Package stores provides short-lived, single-use token bindings in the
// key-value store: email verification tokens and password reset tokens.
//
// # Design
//
// Each binding maps an opaque token to the identity it unlocks (an email and,
// when known, a user id). Bindings are versioned JSON records written with a
// TTL and validated on read. Consume uses the store's atomic get-and-delete so
// a token can be redeemed at most once; Peek reads without consuming for flows
// that verify first and consume after a form submit.
//
// An absent key and an expired binding are indistinguishable to callers: both
// are reported as [ErrBindingNotFound].
//
// # Architecture boundaries
//
// This package owns persistence of bindings. It does NOT generate tokens, send
// mail, enforce rate limits or change user state. Those responsibilities belong
// to internal/flows and the directory.
package stores
