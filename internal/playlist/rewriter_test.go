package playlist

import (
	"strings"
	"testing"
	"time"

	"github.com/laurikarhu/streamcdn/internal/security"
)

func TestRewriteMasterPlaylist(t *testing.T) {
	signer := security.NewSigner("secret")
	input := "#EXTM3U\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=256000\n" +
		"aac_256/index.m3u8\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=96000\n" +
		"aac_96/index.m3u8\n"

	out := Rewrite(input, "/tracks/1/1/transcoded/master.m3u8", signer, 300*time.Second, 60*time.Second)

	inLines := strings.Split(input, "\n")
	outLines := strings.Split(out, "\n")
	if len(inLines) != len(outLines) {
		t.Fatalf("line count changed: got %d, want %d", len(outLines), len(inLines))
	}

	if !strings.HasPrefix(outLines[2], "aac_256/index.m3u8?exp=") {
		t.Errorf("variant line not rewritten as expected: %q", outLines[2])
	}
	if !strings.HasPrefix(outLines[4], "aac_96/index.m3u8?exp=") {
		t.Errorf("variant line not rewritten as expected: %q", outLines[4])
	}
	if outLines[0] != "#EXTM3U" || outLines[1] != "#EXT-X-STREAM-INF:BANDWIDTH=256000" {
		t.Errorf("comment lines must pass through untouched, got %q / %q", outLines[0], outLines[1])
	}

	// The signature for the 256k variant must verify against the resolved
	// absolute path, using the playlist TTL (master's children inherit it).
	exp, sig := extractCapability(t, outLines[2])
	if !signer.Verify("/tracks/1/1/transcoded/aac_256/index.m3u8", exp, sig) {
		t.Error("expected the rewritten variant signature to verify against the resolved child path")
	}
}

func TestRewriteVariantPreservesMap(t *testing.T) {
	signer := security.NewSigner("secret")
	input := "#EXT-X-MAP:URI=\"init.mp4\"\n#EXTINF:4.0,\nchunk_0001.m4s\n"

	out := Rewrite(input, "/tracks/1/1/transcoded/aac_256/index.m3u8", signer, 300*time.Second, 60*time.Second)
	outLines := strings.Split(out, "\n")

	if !strings.HasPrefix(outLines[0], `#EXT-X-MAP:URI="init.mp4?exp=`) || !strings.HasSuffix(outLines[0], `"`) {
		t.Errorf("EXT-X-MAP line not rewritten as expected: %q", outLines[0])
	}
	if outLines[1] != "#EXTINF:4.0," {
		t.Errorf("EXTINF line must pass through untouched, got %q", outLines[1])
	}
	if !strings.HasPrefix(outLines[2], "chunk_0001.m4s?exp=") {
		t.Errorf("segment line not rewritten as expected: %q", outLines[2])
	}

	mapExp, mapSig := extractMapCapability(t, outLines[0])
	if !signer.Verify("/tracks/1/1/transcoded/aac_256/init.mp4", mapExp, mapSig) {
		t.Error("expected init segment signature to verify against the resolved path")
	}
}

func TestRewritePreservesBlankLinesAndTrailingNewline(t *testing.T) {
	signer := security.NewSigner("secret")
	input := "#EXTM3U\n\nsegment.m4s\n"

	out := Rewrite(input, "/tracks/1/1/transcoded/aac_256/index.m3u8", signer, 300*time.Second, 60*time.Second)
	if !strings.HasSuffix(out, "\n") {
		t.Error("expected trailing newline to be preserved")
	}
	lines := strings.Split(out, "\n")
	if lines[1] != "" {
		t.Errorf("expected blank line to pass through untouched, got %q", lines[1])
	}
}

func TestRewriteNoTrailingNewline(t *testing.T) {
	signer := security.NewSigner("secret")
	input := "#EXTM3U\nsegment.m4s"

	out := Rewrite(input, "/tracks/1/1/transcoded/aac_256/index.m3u8", signer, 300*time.Second, 60*time.Second)
	if strings.HasSuffix(out, "\n") {
		t.Error("expected no trailing newline when input has none")
	}
}

func TestClassifyManifest(t *testing.T) {
	if ClassifyManifest("/tracks/1/1/transcoded/master.m3u8") != KindMaster {
		t.Error("expected master.m3u8 to classify as KindMaster")
	}
	if ClassifyManifest("/tracks/1/1/transcoded/aac_256/index.m3u8") != KindVariant {
		t.Error("expected index.m3u8 to classify as KindVariant")
	}
}

func extractCapability(t *testing.T, line string) (int64, string) {
	t.Helper()
	idx := strings.Index(line, "?exp=")
	if idx == -1 {
		t.Fatalf("no capability query found in %q", line)
	}
	return parseExpSig(t, line[idx+1:])
}

func extractMapCapability(t *testing.T, line string) (int64, string) {
	t.Helper()
	idx := strings.Index(line, "?exp=")
	end := strings.LastIndex(line, `"`)
	if idx == -1 || end == -1 {
		t.Fatalf("no capability query found in %q", line)
	}
	return parseExpSig(t, line[idx+1:end])
}

func parseExpSig(t *testing.T, query string) (int64, string) {
	t.Helper()
	var exp int64
	var sig string
	for _, part := range strings.Split(query, "&") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "exp":
			for _, c := range kv[1] {
				exp = exp*10 + int64(c-'0')
			}
		case "sig":
			sig = kv[1]
		}
	}
	return exp, sig
}
