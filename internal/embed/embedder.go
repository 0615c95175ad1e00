// Package embed generates fixed-length unit-norm vectors for code blocks and
// queries. The deterministic hash backend needs no model and keeps tests
// offline; a model-backed implementation is a drop-in replacement behind the
// same interface.
package embed

import (
	"crypto/sha256"
	"encoding/hex"
	"hash/fnv"
	"math"
	"strings"
	"sync"

	"lodestone/internal/store"
)

// DefaultDimension is the vector length used when none is configured.
const DefaultDimension = 384

// Embedder produces unit-norm vectors, deterministic for identical input.
type Embedder interface {
	EmbedBlock(b store.Block) ([]float32, error)
	EmbedQuery(text string) ([]float32, error)
	Dimension() int
}

// HashEmbedder is the deterministic backend: it mixes a content hash, a name
// hash, a type hash, and a bag of content keywords into per-dimension values
// through a sine transform, then L2-normalizes. No model required.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a deterministic embedder of the given
// dimensionality.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Dimension() int { return h.dim }

func (h *HashEmbedder) EmbedBlock(b store.Block) ([]float32, error) {
	return h.vector(b.Content, b.Name, b.Type), nil
}

func (h *HashEmbedder) EmbedQuery(text string) ([]float32, error) {
	return h.vector(text, "", ""), nil
}

func (h *HashEmbedder) vector(content, name, blockType string) []float32 {
	contentSeed := float64(fnvHash(content) % 100003)
	nameSeed := float64(fnvHash(strings.ToLower(name)) % 100003)
	typeSeed := float64(fnvHash(blockType) % 1009)

	// The sine terms are a low-amplitude baseline so every input gets a
	// distinct vector; the keyword bag below carries most of the signal and
	// must dominate the norm.
	vec := make([]float32, h.dim)
	for i := range vec {
		v := 0.1 * math.Sin(contentSeed*0.001+float64(i)*0.17)
		v += 0.05 * math.Sin(nameSeed*0.002+float64(i)*0.31)
		v += 0.025 * math.Sin(typeSeed*0.01+float64(i)*0.53)
		vec[i] = float32(v)
	}

	// Keyword bag: shared identifiers land in shared dimensions, so
	// lexically related inputs stay close even with different hashes.
	for _, kw := range keywords(content) {
		vec[fnvHash(kw)%uint64(h.dim)] += 2.0
	}
	if name != "" {
		vec[fnvHash(strings.ToLower(name))%uint64(h.dim)] += 2.0
	}

	Normalize(vec)
	return vec
}

// keywords extracts up to 32 distinct lowercase identifier-like tokens.
func keywords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_')
	})
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		if len(f) < 3 || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
		if len(out) == 32 {
			break
		}
	}
	return out
}

func fnvHash(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

// Normalize scales a vector to unit L2 norm in place.
func Normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}

// Cached wraps an embedder with a bounded memoization cache keyed by content
// fingerprint. Eviction is clear-all at the cap rather than LRU: misses only
// cost re-computation, never correctness.
type Cached struct {
	inner Embedder
	cap   int

	mu    sync.Mutex
	cache map[string][]float32
}

// NewCached wraps inner with a cache holding up to cap entries.
func NewCached(inner Embedder, cap int) *Cached {
	if cap <= 0 {
		cap = 4096
	}
	return &Cached{
		inner: inner,
		cap:   cap,
		cache: make(map[string][]float32),
	}
}

func (c *Cached) Dimension() int { return c.inner.Dimension() }

func (c *Cached) EmbedBlock(b store.Block) ([]float32, error) {
	key := fingerprint("block", b.Type, b.Name, b.Content)
	if vec, ok := c.get(key); ok {
		return vec, nil
	}
	vec, err := c.inner.EmbedBlock(b)
	if err != nil {
		return nil, err
	}
	c.put(key, vec)
	return vec, nil
}

func (c *Cached) EmbedQuery(text string) ([]float32, error) {
	key := fingerprint("query", "", "", text)
	if vec, ok := c.get(key); ok {
		return vec, nil
	}
	vec, err := c.inner.EmbedQuery(text)
	if err != nil {
		return nil, err
	}
	c.put(key, vec)
	return vec, nil
}

// Len reports the current number of cached vectors.
func (c *Cached) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

func (c *Cached) get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	vec, ok := c.cache[key]
	return vec, ok
}

func (c *Cached) put(key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.cache) >= c.cap {
		c.cache = make(map[string][]float32)
	}
	c.cache[key] = vec
}

func fingerprint(kind, blockType, name, content string) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(blockType))
	h.Write([]byte{0})
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}

// Fallback routes to primary and degrades to the deterministic backend when
// the primary errors; embedding generation never fails the indexing pipeline.
type Fallback struct {
	primary  Embedder
	fallback Embedder
}

// NewFallback wraps primary with the deterministic hash backend at the same
// dimensionality.
func NewFallback(primary Embedder) *Fallback {
	return &Fallback{
		primary:  primary,
		fallback: NewHashEmbedder(primary.Dimension()),
	}
}

func (f *Fallback) Dimension() int { return f.primary.Dimension() }

func (f *Fallback) EmbedBlock(b store.Block) ([]float32, error) {
	vec, err := f.primary.EmbedBlock(b)
	if err != nil {
		return f.fallback.EmbedBlock(b)
	}
	return vec, nil
}

func (f *Fallback) EmbedQuery(text string) ([]float32, error) {
	vec, err := f.primary.EmbedQuery(text)
	if err != nil {
		return f.fallback.EmbedQuery(text)
	}
	return vec, nil
}
