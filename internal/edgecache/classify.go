package edgecache

import "strings"

// ResourceClass buckets a resource path for TTL assignment and analytics,
// matching by path suffix, never by full URL.
type ResourceClass string

const (
	ClassMasterPlaylist  ResourceClass = "master_playlist"
	ClassVariantPlaylist ResourceClass = "variant_playlist"
	ClassInitSegment     ResourceClass = "init_segment"
	ClassMediaSegment    ResourceClass = "media_segment"
	ClassStaticAsset     ResourceClass = "static_asset"
	ClassOther           ResourceClass = "other"
)

// Classify determines the ResourceClass of a resource path (or full URL —
// only the suffix is examined).
func Classify(path string) ResourceClass {
	switch {
	case strings.HasSuffix(path, "master.m3u8"):
		return ClassMasterPlaylist
	case strings.HasSuffix(path, ".m3u8"):
		return ClassVariantPlaylist
	case strings.HasSuffix(path, "init.mp4"):
		return ClassInitSegment
	case strings.HasSuffix(path, ".m4s"):
		return ClassMediaSegment
	case strings.HasSuffix(path, ".json"):
		return ClassStaticAsset
	default:
		return ClassOther
	}
}
