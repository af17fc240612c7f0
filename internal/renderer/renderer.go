package renderer

import (
	"fmt"

	"cashew/internal/content"
)

// FetchFunc retrieves hash's bytes from a peer (or local store) on a
// cache miss, per spec §4.6's render() fetch callback.
type FetchFunc func(hash ContentHash) ([]byte, content.Metadata, error)

// Rendered is render()'s result shape, per spec §4.6.
type Rendered struct {
	Metadata   content.Metadata
	Data       []byte
	IsPartial  bool
	RangeStart int64
	RangeEnd   int64
}

// Range requests the inclusive byte range [Start, End].
type Range struct {
	Start int64
	End   int64
}

// Renderer is the LRU cache plus fetch/sanitize/stream pipeline of C13.
type Renderer struct {
	cache      *Cache
	fetch      FetchFunc
	sanitizeHTML bool
}

func New(cache *Cache, fetch FetchFunc, sanitizeHTML bool) *Renderer {
	return &Renderer{cache: cache, fetch: fetch, sanitizeHTML: sanitizeHTML}
}

// Render implements spec §4.6's render(): cache lookup -> on miss, fetch
// -> integrity-verify -> insert -> optional range slice -> optional HTML
// sanitize.
func (r *Renderer) Render(hash ContentHash, rng *Range) (*Rendered, error) {
	entry, ok := r.cache.get(hash)
	if !ok {
		data, meta, err := r.fetch(hash)
		if err != nil {
			return nil, fmt.Errorf("renderer: fetch %s: %w", hash, err)
		}
		if !content.VerifyIntegrity(data, hash) {
			return nil, fmt.Errorf("renderer: integrity check failed for %s", hash)
		}
		r.cache.put(hash, data, meta)
		entry = &cacheEntry{data: data, meta: meta}
	}

	out := &Rendered{Metadata: entry.meta, Data: entry.data}
	size := int64(len(entry.data))

	if rng != nil && rng.Start >= 0 && rng.Start <= rng.End && rng.End < size {
		out.Data = entry.data[rng.Start : rng.End+1]
		out.IsPartial = true
		out.RangeStart = rng.Start
		out.RangeEnd = rng.End
	} else {
		out.RangeStart = 0
		out.RangeEnd = size - 1
	}

	if r.sanitizeHTML && entry.meta.MimeType == "text/html" {
		out.Data = SanitizeHTML(out.Data)
	}
	return out, nil
}

// ChunkFunc receives one stream chunk; isFinal marks the last.
type ChunkFunc func(chunk []byte, isFinal bool) error

const streamChunkSize = 64 * 1024

// Stream fetches-or-caches hash then emits it in fixed-size chunks, per
// spec §4.6's stream().
func (r *Renderer) Stream(hash ContentHash, onChunk ChunkFunc) error {
	entry, ok := r.cache.get(hash)
	if !ok {
		data, meta, err := r.fetch(hash)
		if err != nil {
			return fmt.Errorf("renderer: fetch %s: %w", hash, err)
		}
		if !content.VerifyIntegrity(data, hash) {
			return fmt.Errorf("renderer: integrity check failed for %s", hash)
		}
		r.cache.put(hash, data, meta)
		entry = &cacheEntry{data: data, meta: meta}
	}

	data := entry.data
	if len(data) == 0 {
		return onChunk(nil, true)
	}
	for off := 0; off < len(data); off += streamChunkSize {
		end := off + streamChunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := onChunk(data[off:end], end == len(data)); err != nil {
			return err
		}
	}
	return nil
}

// Prefetch warms the cache for hash without returning its data.
func (r *Renderer) Prefetch(hash ContentHash) error {
	_, err := r.Render(hash, nil)
	return err
}

// Invalidate evicts hash, or the entire cache if hash is nil.
func (r *Renderer) Invalidate(hash *ContentHash) {
	if hash == nil {
		r.cache.invalidateAll()
		return
	}
	r.cache.invalidate(*hash)
}

// CacheStats returns the renderer's cache statistics.
func (r *Renderer) CacheStats() Stats {
	return r.cache.stats()
}

// DetectContentType exposes content.DetectContentType for callers that
// only have the renderer in scope.
func DetectContentType(data []byte, filename string) string {
	return content.DetectContentType(data, filename)
}
