// Package edge implements the CDN Edge process's HTTP surface: the caching
// proxy endpoint, uncached passthroughs to the gateway's metadata API, and
// the cache introspection endpoints used by operators.
package edge

import (
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/laurikarhu/streamcdn/internal/apperr"
	"github.com/laurikarhu/streamcdn/internal/edgecache"
	"github.com/laurikarhu/streamcdn/internal/metrics"
	"github.com/rs/zerolog/log"
)

// TTLPolicy resolves the edge cache TTL for a resource class.
type TTLPolicy struct {
	PlaylistTTL time.Duration
	SegmentTTL  time.Duration
	StaticTTL   time.Duration
}

func (p TTLPolicy) forResource(resourcePath string) time.Duration {
	switch edgecache.Classify(resourcePath) {
	case edgecache.ClassMasterPlaylist, edgecache.ClassVariantPlaylist:
		return p.PlaylistTTL
	case edgecache.ClassInitSegment, edgecache.ClassMediaSegment:
		return p.SegmentTTL
	default:
		if path.Ext(resourcePath) == ".mp4" {
			return p.SegmentTTL
		}
		return p.StaticTTL
	}
}

// Proxy serves GET /origin/{resource_path...} at the edge: cache lookup,
// forward-on-miss to the gateway, populate the cache from a 200 response.
type Proxy struct {
	cache         *edgecache.Cache
	originBaseURL string
	ttl           TTLPolicy
	client        *http.Client
	metrics       *metrics.Registry
}

// NewProxy builds a Proxy. client should carry the outbound timeouts
// described for CDN→Gateway calls. registry may be nil, in which case cache
// and request metrics are not recorded.
func NewProxy(cache *edgecache.Cache, originBaseURL string, ttl TTLPolicy, client *http.Client, registry *metrics.Registry) *Proxy {
	return &Proxy{cache: cache, originBaseURL: originBaseURL, ttl: ttl, client: client, metrics: registry}
}

// ServeHTTP implements the 4.G algorithm.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if p.metrics != nil {
		defer p.observeCacheGauges()
	}

	fullURL := requestURL(r)

	if entry, ok := p.cache.Get(fullURL); ok {
		if p.metrics != nil {
			p.metrics.CacheHits.Inc()
		}
		writeCacheHeaders(w, entry, "HIT")
		w.Header().Set("Content-Type", entry.ContentType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(entry.Content)
		return
	}

	if p.metrics != nil {
		p.metrics.CacheMisses.Inc()
	}

	resourcePath := "/" + r.PathValue("resource_path")
	originURL := p.originBaseURL + "/origin" + resourcePath
	if r.URL.RawQuery != "" {
		originURL += "?" + r.URL.RawQuery
	}

	upstreamReq, err := http.NewRequestWithContext(r.Context(), http.MethodGet, originURL, nil)
	if err != nil {
		apperr.WriteJSON(w, apperr.Wrap(apperr.ErrOriginUnreachable, err))
		return
	}

	resp, err := p.client.Do(upstreamReq)
	if err != nil {
		apperr.WriteJSON(w, apperr.Wrap(apperr.ErrOriginUnreachable, err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		passthrough(w, resp)
		return
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		apperr.WriteJSON(w, apperr.Wrap(apperr.ErrOriginUnreachable, err))
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = inferContentType(resourcePath)
	}
	ttl := p.ttl.forResource(resourcePath)
	entry := p.cache.Set(fullURL, body, contentType, ttl)

	w.Header().Set("X-CDN-Cache", "MISS")
	w.Header().Set("X-CDN-TTL", strconv.Itoa(int(ttl.Seconds())))
	w.Header().Set("X-CDN-Resource", resourcePath)
	w.Header().Set("X-CDN-Resource-Type", string(edgecache.Classify(resourcePath)))
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(ttl.Seconds())))
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(entry.Content)
}

// observeCacheGauges refreshes the CacheBytes/CacheItems gauges from a fresh
// Cache.Stats() call. It must never run inside a Cache-locked callback (see
// edgecache.Cache.OnEvict) — it is only ever deferred from ServeHTTP, after
// the triggering Get/Set has already returned and released the cache lock.
func (p *Proxy) observeCacheGauges() {
	stats := p.cache.Stats()
	p.metrics.CacheBytes.Set(float64(stats.Bytes))
	p.metrics.CacheItems.Set(float64(stats.Items))
}

func writeCacheHeaders(w http.ResponseWriter, entry *edgecache.Entry, cacheStatus string) {
	remaining := int(time.Until(entry.ExpiresAt).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	w.Header().Set("X-CDN-Cache", cacheStatus)
	w.Header().Set("X-CDN-TTL-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-CDN-Resource", entry.NormalizedURL)
	w.Header().Set("X-CDN-Resource-Type", string(edgecache.Classify(entry.NormalizedURL)))
	w.Header().Set("X-CDN-Hit-Count", strconv.FormatInt(entry.HitCount, 10))
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", remaining))
}

// passthrough copies a non-200 origin response straight through, uncached.
func passthrough(w http.ResponseWriter, resp *http.Response) {
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Debug().Err(err).Msg("origin passthrough response ended early")
	}
}

func inferContentType(resourcePath string) string {
	switch path.Ext(resourcePath) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
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

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s%s?%s", scheme, r.Host, r.URL.Path, r.URL.RawQuery)
}

// MetadataProxy forwards the uncached stream-metadata routes to the gateway
// verbatim — their responses carry fresh signatures and must never be
// cached.
type MetadataProxy struct {
	originAPIBaseURL string
	client           *http.Client
}

// NewMetadataProxy builds a MetadataProxy.
func NewMetadataProxy(originAPIBaseURL string, client *http.Client) *MetadataProxy {
	return &MetadataProxy{originAPIBaseURL: originAPIBaseURL, client: client}
}

// Forward proxies r to the gateway unmodified and streams the response back.
func (m *MetadataProxy) Forward(w http.ResponseWriter, r *http.Request) {
	upstreamURL := m.originAPIBaseURL + r.URL.Path
	if r.URL.RawQuery != "" {
		upstreamURL += "?" + r.URL.RawQuery
	}

	upstreamReq, err := http.NewRequestWithContext(r.Context(), r.Method, upstreamURL, r.Body)
	if err != nil {
		apperr.WriteJSON(w, apperr.Wrap(apperr.ErrOriginUnreachable, err))
		return
	}
	upstreamReq.Header = r.Header.Clone()

	resp, err := m.client.Do(upstreamReq)
	if err != nil {
		apperr.WriteJSON(w, apperr.Wrap(apperr.ErrOriginUnreachable, err))
		return
	}
	defer resp.Body.Close()

	passthrough(w, resp)
}
