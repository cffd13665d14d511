// Package directory stores user accounts in the key-value store.
//
// A user is persisted under "user:{id}" with two secondary index entries,
// "user:email:{email}" and "user:username:{username}", each holding the id.
// Lookups resolve the index and then fetch the primary record.
//
// Read operations degrade store failures to [ErrUserNotFound] after logging
// them; callers treat "absent" and "store unavailable" the same way. Writes
// report [ErrUnavailable].
//
// # What this package must NOT do
//
//   - It does not enforce email or username uniqueness. Callers check with
//     FindUserByEmail/FindUserByUsername before CreateUser.
//   - It never returns password hashes through the public [User] type.
//   - It does not issue sessions or send mail.
package directory
