// Package internal contains helpers that are intentionally private to dashauth,
// most importantly the token issuer used for sessions and single-use tokens.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: flow orchestrators for login, registration, verification and reset
//   - httpapi: chi router and JSON handlers served by cmd/dashauth
//   - logging: zerolog construction
//   - rate: counter-based rate limits on the key-value store
//   - security: configured security posture and weak-setting warnings
//   - stores: token-to-identity binding stores
//
// # What this package must NOT do
//
//   - Export types that appear in the public dashauth API.
//   - Be imported by any package outside the dashauth module.
package internal
