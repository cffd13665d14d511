// Package middleware gates dashboard routes on the session cookie.
//
// # Gates
//
//   - [Gate] classifies each request and redirects anonymous or unverified
//     visitors away from protected routes.
//   - [RequireRole] answers 403 when the authenticated principal lacks a role.
//
// [Gate] reads the session cookie, calls Authenticate, and injects the
// resolved principal into the request context ([PrincipalFromContext]).
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT implement
// authentication logic itself. Session and user resolution are delegated to
// the [Authenticator].
//
// # What this package must NOT do
//
//   - Create, refresh or extend sessions. The gate is read only.
//   - Access the key-value store (Engine handles I/O).
//   - Render pages. Denials are redirects or status codes.
package middleware
