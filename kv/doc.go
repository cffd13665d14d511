// Package kv defines the expiring key-value capability every dashauth component is
// built on, together with its Redis implementation.
//
// # Contract
//
// Operations are atomic per key. There are no multi-key transactions: compound
// invariants that span keys (an index entry and the record it points at) are kept
// by write ordering in the callers, not by the store.
//
// Two operations go beyond plain get/set:
//
//   - [Store.Take] reads and deletes a key in one step so single-use tokens cannot
//     be redeemed twice.
//   - [Store.Update] performs an optimistic read-modify-write that is retried when
//     another writer touches the key in between. The key's TTL is preserved.
//
// # What this package must NOT do
//
//   - Interpret values. Records are opaque bytes; schemas live with their owners.
//   - Use the blocking KEYS command. [Store.Keys] iterates with SCAN.
package kv
