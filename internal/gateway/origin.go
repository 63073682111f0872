// Package gateway implements the streaming gateway's two HTTP endpoints: the
// origin endpoint (verify + serve) and the stream metadata endpoint
// (mint signed URLs).
package gateway

import (
	"errors"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/laurikarhu/streamcdn/internal/apperr"
	"github.com/laurikarhu/streamcdn/internal/objectstore"
	"github.com/laurikarhu/streamcdn/internal/playlist"
	"github.com/laurikarhu/streamcdn/internal/security"
	"github.com/rs/zerolog/log"
)

// OriginHandler serves GET /origin/{resource_path...}: verify the
// capability, then either rewrite a manifest or stream media bytes. It never
// caches — every request re-verifies and re-reads the store.
type OriginHandler struct {
	signer      *security.Signer
	store       objectstore.Reader
	playlistTTL time.Duration
	segmentTTL  time.Duration
}

// NewOriginHandler builds an OriginHandler.
func NewOriginHandler(signer *security.Signer, store objectstore.Reader, playlistTTL, segmentTTL time.Duration) *OriginHandler {
	return &OriginHandler{signer: signer, store: store, playlistTTL: playlistTTL, segmentTTL: segmentTTL}
}

// ServeHTTP implements the 4.D algorithm: verify, then dispatch to the
// manifest or media path.
func (h *OriginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resourcePath, ok := h.verify(r)
	if !ok {
		apperr.WritePlain(w, apperr.ErrCapabilityInvalid)
		return
	}

	if strings.HasSuffix(resourcePath, ".m3u8") {
		h.serveManifest(w, r, resourcePath)
		return
	}
	h.serveMedia(w, r, resourcePath)
}

// verify extracts resource_path, exp, and sig, and checks the signature. It
// returns the resource path (with leading "/") and whether verification
// succeeded.
func (h *OriginHandler) verify(r *http.Request) (string, bool) {
	resourcePath := "/" + strings.TrimPrefix(r.PathValue("resource_path"), "/")

	expRaw := r.URL.Query().Get("exp")
	sigRaw := r.URL.Query().Get("sig")
	expiresAt, sig, ok := security.ParseCapability(expRaw, sigRaw)
	if !ok {
		return resourcePath, false
	}
	if !h.signer.Verify(resourcePath, expiresAt, sig) {
		return resourcePath, false
	}
	return resourcePath, true
}

func (h *OriginHandler) serveManifest(w http.ResponseWriter, r *http.Request, resourcePath string) {
	objectKey := strings.TrimPrefix(resourcePath, "/")
	raw, err := h.store.ReadText(r.Context(), objectKey)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	rewritten := playlist.Rewrite(raw, resourcePath, h.signer, h.playlistTTL, h.segmentTTL)

	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, rewritten)
}

func (h *OriginHandler) serveMedia(w http.ResponseWriter, r *http.Request, resourcePath string) {
	objectKey := strings.TrimPrefix(resourcePath, "/")
	body, err := h.store.Stream(r.Context(), objectKey)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", mediaContentType(resourcePath))
	w.WriteHeader(http.StatusOK)

	// io.Copy stops, and the deferred Close releases the underlying
	// connection, the moment the client disconnects and the response
	// writer starts returning errors.
	if _, err := io.Copy(w, body); err != nil {
		log.Debug().Err(err).Str("resource_path", resourcePath).Msg("media stream ended early")
	}
}

func mediaContentType(resourcePath string) string {
	switch path.Ext(resourcePath) {
	case ".m4s":
		return "video/iso.segment"
	case ".mp4":
		return "video/mp4"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, apperr.ErrResourceAbsent) {
		apperr.WritePlain(w, apperr.ErrResourceAbsent)
		return
	}
	apperr.WritePlain(w, apperr.Wrap(apperr.ErrStorage, err))
}
