// Package rate implements fixed-window rate limits as counters in the key-value
// store. The first increment in a window sets the window's TTL; the counter
// disappears with it.
//
// Two budgets exist: failed logins per email (optionally also per client IP)
// and outbound mail requests per (kind, email).
package rate
