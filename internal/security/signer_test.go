package security

import (
	"testing"
	"time"
)

func TestSignerRoundTrip(t *testing.T) {
	signer := NewSigner("test-secret-key")
	path := "/tracks/a/b/transcoded/master.m3u8"

	expiresAt, sig := signer.Sign(path, 300*time.Second)

	if !signer.Verify(path, expiresAt, sig) {
		t.Fatal("expected verification to succeed immediately after signing")
	}
}

func TestSignerExpiryIsStrict(t *testing.T) {
	signer := NewSigner("test-secret-key")
	path := "/tracks/a/b/transcoded/master.m3u8"

	// Mint a capability that has already expired.
	expiresAt, sig := signer.Sign(path, -1*time.Second)

	if signer.Verify(path, expiresAt, sig) {
		t.Error("expected verification to fail once expiresAt has passed")
	}
}

func TestSignerCrossPathIsolation(t *testing.T) {
	signer := NewSigner("test-secret-key")

	expiresAt, sig := signer.Sign("/tracks/a/1/transcoded/master.m3u8", 300*time.Second)

	if signer.Verify("/tracks/a/2/transcoded/master.m3u8", expiresAt, sig) {
		t.Error("expected signature minted for one path not to verify for another")
	}
}

func TestSignerSecretChangeInvalidates(t *testing.T) {
	path := "/tracks/a/b/transcoded/master.m3u8"
	original := NewSigner("secret-one")
	rotated := NewSigner("secret-two")

	expiresAt, sig := original.Sign(path, 300*time.Second)

	if rotated.Verify(path, expiresAt, sig) {
		t.Error("expected verification under a different secret to fail")
	}
}

func TestSignerMismatchedSignatureFails(t *testing.T) {
	signer := NewSigner("test-secret-key")
	path := "/tracks/a/b/transcoded/master.m3u8"

	expiresAt, _ := signer.Sign(path, 300*time.Second)

	if signer.Verify(path, expiresAt, "0000000000000000000000000000000000000000000000000000000000000000") {
		t.Error("expected verification to fail with a bogus signature")
	}
}

func TestBuildURL(t *testing.T) {
	got := BuildURL("https://cdn.example.com/", "/origin/tracks/a/b/master.m3u8", 1_000_300, "abc123")
	want := "https://cdn.example.com/origin/tracks/a/b/master.m3u8?exp=1000300&sig=abc123"
	if got != want {
		t.Errorf("BuildURL() = %q, want %q", got, want)
	}
}

func TestParseCapability(t *testing.T) {
	if _, _, ok := ParseCapability("", "sig"); ok {
		t.Error("expected missing exp to fail parsing")
	}
	if _, _, ok := ParseCapability("123", ""); ok {
		t.Error("expected missing sig to fail parsing")
	}
	if _, _, ok := ParseCapability("not-a-number", "sig"); ok {
		t.Error("expected non-integer exp to fail parsing")
	}
	exp, sig, ok := ParseCapability("1000300", "abc123")
	if !ok || exp != 1_000_300 || sig != "abc123" {
		t.Errorf("ParseCapability() = (%d, %q, %v), want (1000300, \"abc123\", true)", exp, sig, ok)
	}
}
