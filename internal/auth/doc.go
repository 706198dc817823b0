// Package auth verifies bearer tokens on the admin API.
//
// Tokens are JWTs signed with HS256 (shared secret) or RS256 (PEM public key) and must carry
// a "sub" claim and a "scopes" array drawn from read, admin and telemetry.
package auth
