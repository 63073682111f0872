package edgecache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
)

// maxCanonicalLength is the threshold past which the canonical form is
// hashed rather than used verbatim as the cache key.
const maxCanonicalLength = 500

// Key computes the signature-stripped cache key for rawURL: parse it, drop
// the exp/sig query parameters (case-sensitive), and re-serialize
// scheme+host+path+remaining-query. Long canonical forms are hashed so two
// signature renewals of the same underlying resource always land in the same
// slot, regardless of query length.
func Key(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	q := u.Query()
	q.Del("exp")
	q.Del("sig")
	u.RawQuery = q.Encode()

	canonical := u.String()
	if len(canonical) > maxCanonicalLength {
		sum := sha256.Sum256([]byte(canonical))
		return hex.EncodeToString(sum[:])
	}
	return canonical
}
