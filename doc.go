// Package signin implements the credential sign in action of a web
// application: a Gate that decides whether an attempt is rejected, handed
// to a second factor, or forwarded to credential verification.
//
// Gate order:
//   - The user record is resolved through a UserLookup. Unknown identifiers
//     are rejected before any credential check runs, directory failures
//     report StatusUnavailable.
//   - Suspended accounts are rejected without calling any other service.
//   - Accounts with two factor enabled are handed to the TwoFactorService
//     and its result is returned unchanged.
//   - Everything else goes to the Authenticator, whose AuthResult outcome is
//     mapped to a StatusResult.
//
// Every StatusResult carries a stable message code (M001, M003, ...) looked
// up in an injected MessageCatalog, so callers can localize or test without
// matching on text.
//
// Collaborators:
//   - PasswordAuthenticator verifies bcrypt hashes and issues JWT session
//     tokens through TokenService.
//   - CodeTwoFactor sends one time codes and keeps challenges in a
//     ChallengeStore (MemoryChallengeStore, or redisstore for Redis).
//   - The repository (bun) and pgstore (pgx) packages provide user
//     directories that decode records into validated UserRecord values.
package signin
