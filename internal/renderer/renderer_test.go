package renderer

import (
	"errors"
	"strings"
	"testing"
	"time"

	"cashew/internal/content"
	"cashew/internal/crypto"
)

func newTestRenderer(t *testing.T, sanitize bool) (*Renderer, map[crypto.Hash][]byte) {
	t.Helper()
	cache, err := NewCache(1<<20, 10, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	store := make(map[crypto.Hash][]byte)
	fetch := func(hash ContentHash) ([]byte, content.Metadata, error) {
		data, ok := store[hash]
		if !ok {
			return nil, content.Metadata{}, errors.New("not found")
		}
		return data, content.Metadata{ContentHash: hash, Size: uint64(len(data)), MimeType: content.DetectContentType(data, "")}, nil
	}
	return New(cache, fetch, sanitize), store
}

func TestRenderFetchesOnCacheMiss(t *testing.T) {
	r, store := newTestRenderer(t, false)
	data := []byte("hello world")
	hash := crypto.Sum(data)
	store[hash] = data

	out, err := r.Render(hash, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(out.Data) != string(data) {
		t.Fatalf("unexpected rendered data: %q", out.Data)
	}
	if out.IsPartial {
		t.Fatalf("expected a full render to not be partial")
	}
}

func TestRenderServesFromCacheOnSecondCall(t *testing.T) {
	r, store := newTestRenderer(t, false)
	data := []byte("cached content")
	hash := crypto.Sum(data)
	store[hash] = data

	if _, err := r.Render(hash, nil); err != nil {
		t.Fatal(err)
	}
	delete(store, hash) // force a cache-only path
	out, err := r.Render(hash, nil)
	if err != nil {
		t.Fatalf("expected cache hit to avoid re-fetch, got: %v", err)
	}
	if string(out.Data) != string(data) {
		t.Fatalf("unexpected cached data: %q", out.Data)
	}
}

func TestRenderRejectsIntegrityMismatch(t *testing.T) {
	r, store := newTestRenderer(t, false)
	hash := crypto.Sum([]byte("expected"))
	store[hash] = []byte("tampered")

	if _, err := r.Render(hash, nil); err == nil {
		t.Fatalf("expected integrity check failure")
	}
}

func TestRenderAppliesRangeSlice(t *testing.T) {
	r, store := newTestRenderer(t, false)
	data := []byte("0123456789")
	hash := crypto.Sum(data)
	store[hash] = data

	out, err := r.Render(hash, &Range{Start: 2, End: 5})
	if err != nil {
		t.Fatal(err)
	}
	if string(out.Data) != "2345" {
		t.Fatalf("expected slice '2345', got %q", out.Data)
	}
	if !out.IsPartial || out.RangeStart != 2 || out.RangeEnd != 5 {
		t.Fatalf("unexpected range metadata: %+v", out)
	}
}

func TestRenderIgnoresOutOfBoundsRange(t *testing.T) {
	r, store := newTestRenderer(t, false)
	data := []byte("short")
	hash := crypto.Sum(data)
	store[hash] = data

	out, err := r.Render(hash, &Range{Start: 0, End: 100})
	if err != nil {
		t.Fatal(err)
	}
	if out.IsPartial {
		t.Fatalf("expected an out-of-bounds range to fall back to a full render")
	}
}

func TestStreamEmitsChunksWithFinalFlag(t *testing.T) {
	r, store := newTestRenderer(t, false)
	data := make([]byte, streamChunkSize+10)
	hash := crypto.Sum(data)
	store[hash] = data

	var chunks [][]byte
	var finals []bool
	err := r.Stream(hash, func(chunk []byte, isFinal bool) error {
		chunks = append(chunks, append([]byte(nil), chunk...))
		finals = append(finals, isFinal)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if finals[0] || !finals[1] {
		t.Fatalf("expected only the last chunk to be marked final, got %+v", finals)
	}
}

func TestInvalidateSingleHash(t *testing.T) {
	r, store := newTestRenderer(t, false)
	data := []byte("to invalidate")
	hash := crypto.Sum(data)
	store[hash] = data
	if _, err := r.Render(hash, nil); err != nil {
		t.Fatal(err)
	}
	r.Invalidate(&hash)
	delete(store, hash)
	if _, err := r.Render(hash, nil); err == nil {
		t.Fatalf("expected invalidated entry to require a re-fetch that now fails")
	}
}

func TestCacheStatsTrackHitsAndMisses(t *testing.T) {
	r, store := newTestRenderer(t, false)
	data := []byte("stats")
	hash := crypto.Sum(data)
	store[hash] = data

	r.Render(hash, nil)
	r.Render(hash, nil)
	stats := r.CacheStats()
	if stats.Misses != 1 || stats.Hits != 1 {
		t.Fatalf("expected 1 miss and 1 hit, got %+v", stats)
	}
}

func TestSanitizeHTMLStripsScriptAndEventHandlers(t *testing.T) {
	in := []byte(`<div onclick="evil()">hi</div><script>alert(1)</script>`)
	out := string(SanitizeHTML(in))
	if strings.Contains(out, "<script") {
		t.Fatalf("expected <script> to be stripped, got %q", out)
	}
	if strings.Contains(out, "onclick") {
		t.Fatalf("expected onclick attribute to be stripped, got %q", out)
	}
	if !strings.Contains(out, "hi") {
		t.Fatalf("expected surrounding text to survive, got %q", out)
	}
}

func TestSanitizeHTMLAddsSandboxToIframe(t *testing.T) {
	in := []byte(`<iframe src="https://example.com"></iframe>`)
	out := string(SanitizeHTML(in))
	if !strings.Contains(out, "sandbox") {
		t.Fatalf("expected a surviving iframe to receive a sandbox attribute, got %q", out)
	}
}

func TestSanitizeHTMLStripsJavascriptURL(t *testing.T) {
	in := []byte(`<a href="javascript:alert(1)">click</a>`)
	out := string(SanitizeHTML(in))
	if strings.Contains(out, "javascript:") {
		t.Fatalf("expected javascript: URL to be stripped, got %q", out)
	}
}

func TestSanitizeHTMLAllowsDataURLInImgSrc(t *testing.T) {
	in := []byte(`<img src="data:image/png;base64,abc">`)
	out := string(SanitizeHTML(in))
	if !strings.Contains(out, "data:image/png") {
		t.Fatalf("expected data: URL in <img src> to survive, got %q", out)
	}
}

func TestSanitizeHTMLStripsDataURLOutsideImg(t *testing.T) {
	in := []byte(`<a href="data:text/html,evil">click</a>`)
	out := string(SanitizeHTML(in))
	if strings.Contains(out, "data:text/html") {
		t.Fatalf("expected data: URL outside <img src> to be stripped, got %q", out)
	}
}
