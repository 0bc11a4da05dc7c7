// Package password implements password hashing and verification.
//
// Two algorithms are available: [Bcrypt], with a work factor bounded to
// [MinBcryptCost, MaxBcryptCost], and [Argon2], which encodes digests in PHC
// string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Both satisfy [Algorithm]. [Pool] wraps an algorithm with context-aware,
// bounded concurrency and is what the Engine calls.
//
// This package owns hashing only. Password policy (minimum and maximum length)
// is enforced by the Engine, and plaintext passwords are never logged.
package password
