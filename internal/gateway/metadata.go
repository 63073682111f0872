package gateway

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/laurikarhu/streamcdn/internal/apperr"
	"github.com/laurikarhu/streamcdn/internal/audit"
	"github.com/laurikarhu/streamcdn/internal/ratelimit"
	"github.com/laurikarhu/streamcdn/internal/security"
	"github.com/rs/zerolog/log"
)

// variantURL is one bitrate's signed variant playlist URL.
type variantURL struct {
	Bitrate int    `json:"bitrate"`
	URL     string `json:"url"`
}

// streamResponse is the shape returned by both metadata operations.
type streamResponse struct {
	MasterURL string       `json:"master_url"`
	Variants  []variantURL `json:"variants"`
	ExpiresIn int          `json:"expires_in"`
}

// refreshRequest is the POST /api/stream/refresh body.
type refreshRequest struct {
	TrackID           string `json:"track_id"`
	ArtistID          string `json:"artist_id"`
	AvailableBitrates []int  `json:"available_bitrates,omitempty"`
}

// MetadataHandler mints signed master + variant playlist URLs for a
// (artist, track, bitrates) tuple. The URLs it mints carry the /origin
// prefix that the Gateway Origin Endpoint strips, while the signatures cover
// the bare /tracks/... resource path.
type MetadataHandler struct {
	signer            *security.Signer
	urlBase           string
	playlistTTL       time.Duration
	defaultBitrates   []int
	audit             *audit.Store
	limiter           *ratelimit.Limiter
}

// NewMetadataHandler builds a MetadataHandler. audit and limiter may be nil
// in tests; a nil audit.Store no-ops on Record, and a nil limiter allows
// every request.
func NewMetadataHandler(signer *security.Signer, urlBase string, playlistTTL time.Duration, defaultBitrates []int, auditStore *audit.Store, limiter *ratelimit.Limiter) *MetadataHandler {
	return &MetadataHandler{
		signer:          signer,
		urlBase:         strings.TrimSuffix(urlBase, "/"),
		playlistTTL:     playlistTTL,
		defaultBitrates: defaultBitrates,
		audit:           auditStore,
		limiter:         limiter,
	}
}

// Get serves GET /api/stream/{track_id}?artist_id=...&available_bitrates=....
func (h *MetadataHandler) Get(w http.ResponseWriter, r *http.Request) {
	trackID := r.PathValue("track_id")
	artistID := r.URL.Query().Get("artist_id")
	bitrates, err := parseBitrateList(r.URL.Query().Get("available_bitrates"), h.defaultBitrates)
	if err != nil {
		apperr.WriteJSON(w, apperr.Wrap(apperr.ErrBadRequest, err))
		return
	}

	h.respond(w, r, trackID, artistID, bitrates)
}

// Refresh serves POST /api/stream/refresh.
func (h *MetadataHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if !h.checkRateLimit(w, r) {
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteJSON(w, apperr.Wrap(apperr.ErrBadRequest, err))
		return
	}

	bitrates := req.AvailableBitrates
	if len(bitrates) == 0 {
		bitrates = h.defaultBitrates
	}

	h.mint(w, req.TrackID, req.ArtistID, bitrates)
}

func (h *MetadataHandler) respond(w http.ResponseWriter, r *http.Request, trackID, artistID string, bitrates []int) {
	if !h.checkRateLimit(w, r) {
		return
	}
	h.mint(w, trackID, artistID, bitrates)
}

func (h *MetadataHandler) checkRateLimit(w http.ResponseWriter, r *http.Request) bool {
	if h.limiter == nil {
		return true
	}
	clientIP := clientIP(r)
	allowed, err := h.limiter.Allow(r.Context(), clientIP)
	if err != nil {
		log.Warn().Err(err).Str("client_ip", clientIP).Msg("rate limiter check failed, allowing request")
		return true
	}
	if !allowed {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return false
	}
	return true
}

func (h *MetadataHandler) mint(w http.ResponseWriter, trackID, artistID string, bitrates []int) {
	base := fmt.Sprintf("/tracks/%s/%s/transcoded", artistID, trackID)

	masterExp, masterSig := h.signer.Sign(base+"/master.m3u8", h.playlistTTL)
	resp := streamResponse{
		MasterURL: h.servedURL("/origin"+base+"/master.m3u8", masterExp, masterSig),
		Variants:  make([]variantURL, 0, len(bitrates)),
		ExpiresIn: int(h.playlistTTL.Seconds()),
	}

	for _, b := range bitrates {
		variantPath := fmt.Sprintf("%s/aac_%d/index.m3u8", base, b/1000)
		exp, sig := h.signer.Sign(variantPath, h.playlistTTL)
		resp.Variants = append(resp.Variants, variantURL{
			Bitrate: b,
			URL:     h.servedURL("/origin"+variantPath, exp, sig),
		})
	}

	h.audit.Record(audit.Mint{
		TrackID:     trackID,
		ArtistID:    artistID,
		Bitrates:    toInt32(bitrates),
		PlaylistTTL: h.playlistTTL,
	})

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// servedURL builds the client-facing URL: the /origin-prefixed served path,
// carrying a signature that was computed over the bare resource path.
func (h *MetadataHandler) servedURL(servedPath string, expiresAt int64, signature string) string {
	return fmt.Sprintf("%s%s?exp=%d&sig=%s", h.urlBase, servedPath, expiresAt, signature)
}

func parseBitrateList(csv string, defaults []int) ([]int, error) {
	if csv == "" {
		return defaults, nil
	}
	parts := strings.Split(csv, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid available_bitrates entry %q", p)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return defaults, nil
	}
	return out, nil
}

func toInt32(in []int) []int32 {
	out := make([]int32, len(in))
	for i, v := range in {
		out[i] = int32(v)
	}
	return out
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
