package edge

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/laurikarhu/streamcdn/internal/edgecache"
)

// Introspection serves the operator-facing cache dashboard endpoints:
// aggregate stats, a full entry listing, a single entry by key, and a
// per-class summary.
type Introspection struct {
	cache *edgecache.Cache
}

// NewIntrospection builds an Introspection handler set over cache.
func NewIntrospection(cache *edgecache.Cache) *Introspection {
	return &Introspection{cache: cache}
}

// Stats serves GET /stats: the raw Cache.Stats() snapshot.
func (h *Introspection) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.cache.Stats())
}

type entryView struct {
	CacheKey       string `json:"cache_key"`
	NormalizedURL  string `json:"normalized_url"`
	ContentType    string `json:"content_type"`
	SizeBytes      int    `json:"size_bytes"`
	StoredAt       string `json:"stored_at"`
	ExpiresAt      string `json:"expires_at"`
	HitCount       int64  `json:"hit_count"`
	LastAccessedAt string `json:"last_accessed_at"`
	Content        []byte `json:"content,omitempty"`
}

func toEntryView(e edgecache.Entry) entryView {
	return entryView{
		CacheKey:       e.CacheKey,
		NormalizedURL:  e.NormalizedURL,
		ContentType:    e.ContentType,
		SizeBytes:      e.Size(),
		StoredAt:       e.StoredAt.UTC().Format("2006-01-02T15:04:05Z"),
		ExpiresAt:      e.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z"),
		HitCount:       e.HitCount,
		LastAccessedAt: e.LastAccessedAt.UTC().Format("2006-01-02T15:04:05Z"),
		Content:        e.Content,
	}
}

// Entries serves GET /cache/entries?include_content=bool: every live entry,
// most-recently-used first.
func (h *Introspection) Entries(w http.ResponseWriter, r *http.Request) {
	includeContent := parseBool(r.URL.Query().Get("include_content"))
	entries := h.cache.Entries(includeContent)

	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, toEntryView(e))
	}
	writeJSON(w, views)
}

// EntryByKey serves GET /cache/entries/{id}?include_content=bool: a single
// entry, or 404 if absent.
func (h *Introspection) EntryByKey(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("id")
	includeContent := parseBool(r.URL.Query().Get("include_content"))

	entry, ok := h.cache.EntryByKey(key, includeContent)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, toEntryView(entry))
}

type classSummary struct {
	Class ResourceClass `json:"class"`
	Count int           `json:"count"`
	Bytes int           `json:"bytes"`
}

// ResourceClass re-exports edgecache.ResourceClass so introspection.go reads
// standalone.
type ResourceClass = edgecache.ResourceClass

// Summary serves GET /cache/summary: entry count and byte total grouped by
// resource class.
func (h *Introspection) Summary(w http.ResponseWriter, r *http.Request) {
	entries := h.cache.Entries(false)

	byClass := make(map[edgecache.ResourceClass]*classSummary)
	for _, e := range entries {
		class := edgecache.Classify(e.NormalizedURL)
		s, ok := byClass[class]
		if !ok {
			s = &classSummary{Class: class}
			byClass[class] = s
		}
		s.Count++
		s.Bytes += e.Size()
	}

	out := make([]classSummary, 0, len(byClass))
	for _, s := range byClass {
		out = append(out, *s)
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func parseBool(raw string) bool {
	b, _ := strconv.ParseBool(raw)
	return b
}
