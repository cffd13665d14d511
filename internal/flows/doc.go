// Package flows contains function-style orchestrators for the Engine's account,
// session and token operations.
//
// Each flow function (RunLogin, RunRegister, RunValidate, RunRequestPasswordReset,
// etc.) accepts a typed dependency struct of function fields and returns results
// without side-effects beyond those dependencies. The Engine builds the deps
// once, closing over its stores, and delegates.
//
// # Architecture boundaries
//
// Flow functions coordinate the directory, session manager, token bindings,
// rate limiter, mail sender, audit and metrics. They do NOT own any of these
// resources. Ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import dashauth (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency functions.
package flows
