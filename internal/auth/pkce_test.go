package auth

import (
	"strings"
	"testing"
)

// Vector from RFC 7636 appendix B.
const (
	rfcVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	rfcChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

func TestChallengeS256KnownVector(t *testing.T) {
	if got := ChallengeS256(rfcVerifier); got != rfcChallenge {
		t.Fatalf("ChallengeS256(%q) = %q, want %q", rfcVerifier, got, rfcChallenge)
	}
}

func TestVerifyPKCEChallenge(t *testing.T) {
	if !VerifyPKCEChallenge(rfcVerifier, rfcChallenge) {
		t.Fatal("known vector did not verify")
	}
	// Either side replaced with anything else must fail.
	if VerifyPKCEChallenge(rfcChallenge, rfcVerifier) {
		t.Fatal("swapped inputs verified")
	}
	if VerifyPKCEChallenge(strings.Repeat("a", 43), rfcChallenge) {
		t.Fatal("wrong verifier verified")
	}
	if VerifyPKCEChallenge(rfcVerifier, strings.Repeat("a", 43)) {
		t.Fatal("wrong challenge verified")
	}
}

func TestGeneratedPairRoundTrip(t *testing.T) {
	verifier, err := GenerateVerifier()
	if err != nil {
		t.Fatalf("GenerateVerifier: %v", err)
	}
	if !ValidVerifier(verifier) {
		t.Fatalf("generated verifier %q is not valid", verifier)
	}
	challenge := ChallengeS256(verifier)
	if !ValidChallenge(challenge) {
		t.Fatalf("derived challenge %q is not valid", challenge)
	}
	if !VerifyPKCEChallenge(verifier, challenge) {
		t.Fatal("generated pair did not verify")
	}
}

func TestValidVerifier(t *testing.T) {
	cases := []struct {
		verifier string
		want     bool
	}{
		{rfcVerifier, true},
		{strings.Repeat("a", 43), true},
		{strings.Repeat("a", 128), true},
		{strings.Repeat("a", 42), false},  // too short
		{strings.Repeat("a", 129), false}, // too long
		{strings.Repeat("a", 42) + "!", false},
		{strings.Repeat("a", 42) + "~", true},
		{"", false},
	}
	for _, tc := range cases {
		if got := ValidVerifier(tc.verifier); got != tc.want {
			t.Errorf("ValidVerifier(%q) = %v, want %v", tc.verifier, got, tc.want)
		}
	}
}

func TestValidChallenge(t *testing.T) {
	cases := []struct {
		challenge string
		want      bool
	}{
		{rfcChallenge, true},
		{strings.Repeat("a", 43), true},
		{strings.Repeat("a", 42), false},
		{strings.Repeat("a", 44), false},
		{strings.Repeat("a", 42) + ".", false}, // '.' is verifier-only
		{strings.Repeat("a", 42) + "_", true},
	}
	for _, tc := range cases {
		if got := ValidChallenge(tc.challenge); got != tc.want {
			t.Errorf("ValidChallenge(%q) = %v, want %v", tc.challenge, got, tc.want)
		}
	}
}
