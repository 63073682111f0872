package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/laurikarhu/streamcdn/internal/security"
)

func newTestMetadataHandler() (*MetadataHandler, *security.Signer) {
	signer := security.NewSigner("test-secret")
	h := NewMetadataHandler(signer, "http://cdn.example.com", 300*time.Second, []int{256000, 160000, 96000}, nil, nil)
	return h, signer
}

func TestMetadataHandlerGetDefaultsBitrates(t *testing.T) {
	h, _ := newTestMetadataHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/stream/track1?artist_id=artist1", nil)
	req.SetPathValue("track_id", "track1")
	w := httptest.NewRecorder()
	h.Get(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp streamResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if !strings.HasPrefix(resp.MasterURL, "http://cdn.example.com/origin/tracks/artist1/track1/transcoded/master.m3u8?exp=") {
		t.Errorf("unexpected master_url %q", resp.MasterURL)
	}
	if len(resp.Variants) != 3 {
		t.Fatalf("expected 3 default variants, got %d", len(resp.Variants))
	}
	if resp.ExpiresIn != 300 {
		t.Errorf("expected expires_in 300, got %d", resp.ExpiresIn)
	}
}

func TestMetadataHandlerGetHonorsRequestedBitrates(t *testing.T) {
	h, _ := newTestMetadataHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/stream/track1?artist_id=artist1&available_bitrates=128000", nil)
	req.SetPathValue("track_id", "track1")
	w := httptest.NewRecorder()
	h.Get(w, req)

	var resp streamResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Variants) != 1 || resp.Variants[0].Bitrate != 128000 {
		t.Fatalf("expected single 128000 variant, got %+v", resp.Variants)
	}
	if !strings.Contains(resp.Variants[0].URL, "/origin/tracks/artist1/track1/transcoded/aac_128/index.m3u8?exp=") {
		t.Errorf("unexpected variant url %q", resp.Variants[0].URL)
	}
}

func TestMetadataHandlerSignsBareResourcePath(t *testing.T) {
	h, signer := newTestMetadataHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/stream/track1?artist_id=artist1", nil)
	req.SetPathValue("track_id", "track1")
	w := httptest.NewRecorder()
	h.Get(w, req)

	var resp streamResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)

	masterURL := resp.MasterURL
	withoutBase := strings.TrimPrefix(masterURL, "http://cdn.example.com")
	parts := strings.SplitN(withoutBase, "?", 2)
	servedPath := parts[0]
	query := parts[1]

	if !strings.HasPrefix(servedPath, "/origin/tracks/") {
		t.Fatalf("expected served path to carry the /origin prefix, got %q", servedPath)
	}
	bareResourcePath := strings.TrimPrefix(servedPath, "/origin")

	var expiresAt int64
	var sig string
	for _, kv := range strings.Split(query, "&") {
		k, v, _ := strings.Cut(kv, "=")
		switch k {
		case "exp":
			for _, c := range v {
				expiresAt = expiresAt*10 + int64(c-'0')
			}
		case "sig":
			sig = v
		}
	}

	if !signer.Verify(bareResourcePath, expiresAt, sig) {
		t.Error("expected signature to verify against the bare /tracks/... resource path, not the /origin-prefixed served path")
	}
	if signer.Verify(servedPath, expiresAt, sig) {
		t.Error("signature should not verify against the /origin-prefixed served path")
	}
}

func TestMetadataHandlerRefreshUsesRequestBody(t *testing.T) {
	h, _ := newTestMetadataHandler()

	body := strings.NewReader(`{"track_id":"track1","artist_id":"artist1","available_bitrates":[256000]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/stream/refresh", body)
	w := httptest.NewRecorder()
	h.Refresh(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp streamResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Variants) != 1 || resp.Variants[0].Bitrate != 256000 {
		t.Fatalf("expected single 256000 variant, got %+v", resp.Variants)
	}
}
