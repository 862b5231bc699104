package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"regexp"
)

// PKCE S256: challenge == BASE64URL(SHA256(verifier)), no padding.

const (
	verifierMinLen = 43
	verifierMaxLen = 128
	challengeLen   = 43 // base64url of 32 bytes, unpadded
)

var (
	verifierPattern  = regexp.MustCompile(`^[A-Za-z0-9\-._~]+$`)
	challengePattern = regexp.MustCompile(`^[A-Za-z0-9\-_]+$`)
)

// GenerateVerifier returns a fresh 43-character code verifier from a
// cryptographically secure source.
func GenerateVerifier() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ChallengeS256 derives the S256 code challenge for a verifier.
func ChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// ValidVerifier reports whether the verifier meets the OAuth 2.1 length and
// character-class requirements.
func ValidVerifier(verifier string) bool {
	if len(verifier) < verifierMinLen || len(verifier) > verifierMaxLen {
		return false
	}
	return verifierPattern.MatchString(verifier)
}

// ValidChallenge reports whether the challenge is a well-formed S256 value:
// exactly 43 base64url characters.
func ValidChallenge(challenge string) bool {
	return len(challenge) == challengeLen && challengePattern.MatchString(challenge)
}

// VerifyPKCEChallenge checks a verifier against a stored challenge in
// constant time.
func VerifyPKCEChallenge(verifier, challenge string) bool {
	if !ValidVerifier(verifier) || !ValidChallenge(challenge) {
		return false
	}
	derived := ChallengeS256(verifier)
	return subtle.ConstantTimeCompare([]byte(derived), []byte(challenge)) == 1
}
