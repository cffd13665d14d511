// Package dashauth provides the session and credential lifecycle for the
// analytics dashboard: registration, login, store-backed sessions, email
// verification and password reset over an expiring key-value store.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// dashauth is the public surface. It exposes [Engine], [Builder], [Config] and
// value types ([Principal], [AuthResult], [MetricsSnapshot]). Flow orchestration,
// token bindings, rate limiting and audit dispatch live under internal/ and are
// never exported. User records live in the directory package and sessions in
// the session package.
//
// # What this package must NOT do
//
//   - Expose Redis clients or record encodings in its public API.
//   - Perform I/O outside of Engine methods (Builder is allocation-only until Build).
//   - Render pages or decide which routes are protected. The middleware package
//     owns request gating.
package dashauth
