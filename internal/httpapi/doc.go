// Package httpapi is the JSON HTTP surface of the dashboard auth service.
//
// [NewRouter] mounts the account routes under /auth, the signed-in user's
// routes under /api (behind the session gate) and the operational /metrics and
// /healthz endpoints. Handlers decode JSON, call the engine and map its
// sentinel errors to status codes with generic messages.
package httpapi
