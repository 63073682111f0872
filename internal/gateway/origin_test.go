package gateway

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/laurikarhu/streamcdn/internal/objectstore"
	"github.com/laurikarhu/streamcdn/internal/security"
)

func newTestOriginHandler() (*OriginHandler, *security.Signer) {
	signer := security.NewSigner("test-secret")
	store := objectstore.NewMemoryReader(map[string][]byte{
		"tracks/artist1/track1/transcoded/master.m3u8": []byte("#EXTM3U\naac_256/index.m3u8\n"),
		"tracks/artist1/track1/transcoded/aac_256/chunk_001.m4s": []byte("segment-bytes"),
	})
	h := NewOriginHandler(signer, store, 300*time.Second, 60*time.Second)
	return h, signer
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

func TestOriginHandlerRejectsMissingCapability(t *testing.T) {
	h, _ := newTestOriginHandler()
	req := httptest.NewRequest(http.MethodGet, "/origin/tracks/artist1/track1/transcoded/master.m3u8", nil)
	req.SetPathValue("resource_path", "tracks/artist1/track1/transcoded/master.m3u8")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestOriginHandlerRejectsExpiredCapability(t *testing.T) {
	h, signer := newTestOriginHandler()
	resourcePath := "/tracks/artist1/track1/transcoded/master.m3u8"
	expiresAt, sig := signer.Sign(resourcePath, -time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/origin"+resourcePath, nil)
	req.URL.RawQuery = "exp=" + formatInt(expiresAt) + "&sig=" + sig
	req.SetPathValue("resource_path", strings.TrimPrefix(resourcePath, "/"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for expired capability, got %d", w.Code)
	}
}

func TestOriginHandlerServesRewrittenManifest(t *testing.T) {
	h, signer := newTestOriginHandler()
	resourcePath := "/tracks/artist1/track1/transcoded/master.m3u8"
	expiresAt, sig := signer.Sign(resourcePath, time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/origin"+resourcePath, nil)
	req.URL.RawQuery = "exp=" + formatInt(expiresAt) + "&sig=" + sig
	req.SetPathValue("resource_path", strings.TrimPrefix(resourcePath, "/"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/vnd.apple.mpegurl" {
		t.Errorf("expected manifest content type, got %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "aac_256/index.m3u8?exp=") {
		t.Errorf("expected rewritten variant URI with capability query, got %q", body)
	}
}

func TestOriginHandlerServesMediaSegment(t *testing.T) {
	h, signer := newTestOriginHandler()
	resourcePath := "/tracks/artist1/track1/transcoded/aac_256/chunk_001.m4s"
	expiresAt, sig := signer.Sign(resourcePath, time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/origin"+resourcePath, nil)
	req.URL.RawQuery = "exp=" + formatInt(expiresAt) + "&sig=" + sig
	req.SetPathValue("resource_path", strings.TrimPrefix(resourcePath, "/"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "video/iso.segment" {
		t.Errorf("expected segment content type, got %q", ct)
	}
	if w.Body.String() != "segment-bytes" {
		t.Errorf("unexpected body %q", w.Body.String())
	}
}

func TestOriginHandlerMissingObjectIs404(t *testing.T) {
	h, signer := newTestOriginHandler()
	resourcePath := "/tracks/artist1/track1/transcoded/missing.m3u8"
	expiresAt, sig := signer.Sign(resourcePath, time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/origin"+resourcePath, nil)
	req.URL.RawQuery = "exp=" + formatInt(expiresAt) + "&sig=" + sig
	req.SetPathValue("resource_path", strings.TrimPrefix(resourcePath, "/"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
