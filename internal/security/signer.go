// Package security implements the HMAC capability scheme used to mint and
// verify short-lived authorizations for individual object-store resources.
package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Signer mints and verifies signed capabilities over (resourcePath, expiresAt)
// tuples. A capability is stateless: it exists only on the wire as the `exp`
// and `sig` query parameters, never persisted server-side.
type Signer struct {
	secret []byte
}

// NewSigner constructs a Signer bound to secret. Changing secret invalidates
// every capability already in flight.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign mints a capability for resourcePath valid for ttl from now. It returns
// the chosen expiry and the lowercase-hex HMAC-SHA-256 signature.
func (s *Signer) Sign(resourcePath string, ttl time.Duration) (expiresAt int64, signature string) {
	expiresAt = time.Now().Add(ttl).Unix()
	return expiresAt, s.computeSignature(resourcePath, expiresAt)
}

// Verify reports whether signature is a valid, unexpired capability for
// resourcePath at expiresAt. Expiry is strict: a capability with
// expiresAt == now is already invalid.
func (s *Signer) Verify(resourcePath string, expiresAt int64, signature string) bool {
	if expiresAt <= time.Now().Unix() {
		return false
	}
	expected := s.computeSignature(resourcePath, expiresAt)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

func (s *Signer) computeSignature(resourcePath string, expiresAt int64) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(resourcePath))
	h.Write([]byte(strconv.FormatInt(expiresAt, 10)))
	return hex.EncodeToString(h.Sum(nil))
}

// BuildURL concatenates base (with any trailing slash stripped), resourcePath,
// and the exp/sig query parameters.
func BuildURL(base, resourcePath string, expiresAt int64, signature string) string {
	base = strings.TrimSuffix(base, "/")
	return fmt.Sprintf("%s%s?exp=%d&sig=%s", base, resourcePath, expiresAt, signature)
}

// ParseCapability validates the raw exp/sig query parameter values expRaw
// and sigRaw. It does not consult the clock; callers verify separately.
func ParseCapability(expRaw, sigRaw string) (expiresAt int64, signature string, ok bool) {
	if expRaw == "" || sigRaw == "" {
		return 0, "", false
	}
	expiresAt, err := strconv.ParseInt(expRaw, 10, 64)
	if err != nil {
		return 0, "", false
	}
	return expiresAt, sigRaw, true
}
