// Package session implements Parley's session and credential lifecycle.
//
// It issues sessions (access + refresh), validates access tokens, and
// performs refresh rotation with revoke-on-use semantics.
//
// Access tokens are short-lived HS256 JWTs signed with a process-wide
// symmetric key and are trusted unconditionally until expiry; revoking a
// session does not recall access tokens already issued for it. That bounds
// the blast radius of a compromised refresh token to one access-token TTL
// and is an accepted trade-off of the stateless design.
//
// Refresh secrets are opaque random strings stored server-side only as
// bcrypt hashes. A login revokes every prior refresh credential of the user
// before creating a new one, so the common case is a single active session
// per account. Presenting an already-spent secret is a plain rejection; it
// does not trigger any further revocation, since the one-session policy
// already leaves nothing else to revoke.
//
// Transport (HTTP cookies, headers) is intentionally out of scope here.
package session
