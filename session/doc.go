// Package session provides store-backed login sessions bound to an HTTP cookie.
//
// # Lifecycle
//
// A session is absent, then active, then expired or destroyed. Destroyed is
// terminal: [Manager.Refresh] never extends a session in place. It deletes the
// old record and issues a new one with a new id and the same grant length.
//
// Records are versioned JSON stored under "session:{id}" with a store TTL equal
// to the remaining lifetime. Expiry is also checked on every read, and an
// expired record found on read is deleted.
//
// # Architecture boundaries
//
// This package owns the [Store] and the [Manager]. It does NOT verify
// credentials, look up users or decide which routes need a session. Those
// responsibilities belong to the directory, the Engine and the middleware.
//
// # What this package must NOT do
//
//   - Import dashauth or the directory (no upward imports).
//   - Fail open: any store error while reading is reported as "no session".
//   - Store passwords or password hashes in [Session] fields.
package session
