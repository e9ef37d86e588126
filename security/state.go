package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// StateTokenBytes is the entropy of an anti-replay state token. 40 random
// bytes hex-encode to an 80 character token.
const StateTokenBytes = 40

// MinStateLength is the minimum accepted length for a state parameter on the
// callback. Anything shorter cannot have been issued by GenerateStateToken.
const MinStateLength = 2 * StateTokenBytes

// GenerateStateToken returns a hex-encoded random token that binds an
// authorization request to its callback. Each token is single-use: the
// confirmation flow clears it from the session as soon as the comparison
// step runs.
//
// The function panics if the system RNG fails, which indicates a critical
// system-level failure no caller can recover from.
func GenerateStateToken() string {
	b := make([]byte, StateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand.Read failed: %v", err))
	}
	return hex.EncodeToString(b)
}
