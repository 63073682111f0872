// Package playlist rewrites HLS manifests retrieved from the object store so
// every URI they reference carries a freshly minted signature.
package playlist

import (
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind classifies a manifest by its resource path suffix.
type Kind int

const (
	// KindMaster manifests list one variant playlist per bitrate.
	KindMaster Kind = iota
	// KindVariant manifests list the ordered segments of one bitrate.
	KindVariant
)

// ClassifyManifest determines whether resourcePath is a master or variant
// playlist. Any .m3u8 path ending in "master.m3u8" is a master; every other
// .m3u8 path is a variant.
func ClassifyManifest(resourcePath string) Kind {
	if strings.HasSuffix(resourcePath, "master.m3u8") {
		return KindMaster
	}
	return KindVariant
}

var extXMapURI = regexp.MustCompile(`(#EXT-X-MAP:.*URI=")([^"]*)(".*)`)

// Signer is the subset of security.Signer used by the rewriter, so tests can
// substitute a fake.
type Signer interface {
	Sign(resourcePath string, ttl time.Duration) (expiresAt int64, signature string)
}

// Rewrite transforms raw manifest text whose own resource path is
// resourcePath, signing every child URI it references. playlistTTL and
// segmentTTL are applied according to the parent's Kind: a master's children
// are variant playlists (playlistTTL); a variant's children — plain segment
// lines and the #EXT-X-MAP init segment — get segmentTTL.
//
// The line count, ordering, comments, blank lines, and trailing newline of
// the input are preserved exactly; only plain URI lines and the URI="..."
// attribute of #EXT-X-MAP tags are mutated.
func Rewrite(raw, resourcePath string, signer Signer, playlistTTL, segmentTTL time.Duration) string {
	kind := ClassifyManifest(resourcePath)
	childTTL := playlistTTL
	if kind == KindVariant {
		childTTL = segmentTTL
	}
	dir := path.Dir(resourcePath)

	trailingNewline := strings.HasSuffix(raw, "\n")
	lines := strings.Split(raw, "\n")
	if trailingNewline {
		lines = lines[:len(lines)-1]
	}

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			// blank line, passes through untouched
		case strings.HasPrefix(trimmed, "#EXT-X-MAP"):
			lines[i] = rewriteMapLine(line, dir, signer, segmentTTL)
		case strings.HasPrefix(trimmed, "#"):
			// other comment/tag line, passes through untouched
		default:
			lines[i] = rewriteURILine(line, dir, signer, childTTL)
		}
	}

	out := strings.Join(lines, "\n")
	if trailingNewline {
		out += "\n"
	}
	return out
}

// rewriteURILine signs a plain relative-URI line and appends the capability
// query, preserving the original URI text and its leading whitespace;
// trailing whitespace is dropped.
func rewriteURILine(line, dir string, signer Signer, ttl time.Duration) string {
	leading := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
	trimmedRight := strings.TrimRight(line, " \t")
	uri := strings.TrimLeft(trimmedRight, " \t")

	childPath := path.Join(dir, uri)
	if !strings.HasPrefix(childPath, "/") {
		childPath = "/" + childPath
	}
	expiresAt, sig := signer.Sign(childPath, ttl)

	return leading + uri + capabilityQuery(expiresAt, sig)
}

// rewriteMapLine rewrites the URI="..." attribute of an #EXT-X-MAP tag,
// leaving the rest of the line intact.
func rewriteMapLine(line, dir string, signer Signer, ttl time.Duration) string {
	match := extXMapURI.FindStringSubmatch(line)
	if match == nil {
		return line
	}
	uri := match[2]
	childPath := path.Join(dir, uri)
	if !strings.HasPrefix(childPath, "/") {
		childPath = "/" + childPath
	}
	expiresAt, sig := signer.Sign(childPath, ttl)
	leading := line[:strings.Index(line, match[0])]

	return leading + match[1] + uri + capabilityQuery(expiresAt, sig) + match[3]
}

func capabilityQuery(expiresAt int64, signature string) string {
	return "?exp=" + strconv.FormatInt(expiresAt, 10) + "&sig=" + signature
}
