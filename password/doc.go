// Package password implements password hashing and verification with Argon2id.
//
// # Output format
//
// Hashes are stored as two hex strings joined by a colon:
//
//	<hex salt>:<hex derived key>
//
// The cost parameters are not part of the stored value; they come from [Config]
// and must stay stable for existing hashes to verify. The derived key length is
// read back from the stored hash.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (minimum
// length) is enforced by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other dashauth package.
//   - Log plaintext passwords or hashes.
package password
