// Package authcore implements account and session security: registration,
// password login with progressive lockout, rotating refresh credentials,
// password reset, email verification, and profile management.
//
// An [Engine] is assembled with a [Builder] over a [store.Store] and, if
// mail delivery is wanted, a [Mailer]. Engine methods are safe to call from
// multiple goroutines.
//
// # Credentials
//
// Access and refresh credentials are HS256 JWTs signed with two different
// secrets and tagged with their type, so neither can be used in place of the
// other. Each refresh credential is paired with a stored record holding its
// SHA-256 digest. Rotation deletes that record and creates its successor in
// one transaction; a credential whose record is gone is rejected.
//
// # Enumeration defense
//
// Register, Login and RequestPasswordReset return the same error kind and
// message whether or not the account exists. Where the account is missing,
// they still spend one password hash or verification on a placeholder so
// response time does not reveal it either.
//
// # Errors
//
// Operations return [*Error] values classified by [ErrorKind]. Transports
// map kinds to responses with [KindOf]; any other error is internal and must
// not be shown to clients.
package authcore
