// Package security provides the security primitives used by the sign-in flow:
// anti-replay state tokens, AES-256-GCM encryption for OAuth tokens at rest,
// HKDF key derivation, per-IP rate limiting, audit logging with hashed
// identifiers, and request ID propagation.
package security
