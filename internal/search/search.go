// Package search answers queries by combining keyword candidates with vector
// similarity, deduplicating, and ranking.
package search

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"lodestone/internal/embed"
	"lodestone/internal/store"
)

const (
	// overFetch multiplies the caller's limit when fetching keyword
	// candidates so the ranker has material to re-sort.
	overFetch = 4
	// semanticThreshold is the minimum cosine similarity for a block to be
	// supplemented into results without a keyword match.
	semanticThreshold = 0.5
	// semanticWeight and keywordWeight combine the two signals when a block
	// has a stored embedding.
	semanticWeight = 0.7
	keywordWeight  = 0.3

	defaultLimit  = 10
	queryCacheLen = 512
)

// Result is a ranked code location with its combined relevance score.
type Result struct {
	FilePath  string
	BlockType string
	Name      string
	StartLine int
	EndLine   int
	Score     float64
	BlockID   int64 // used only for within-query deduplication
}

type cacheEntry struct {
	results   []Result
	expiresAt time.Time
}

// Engine performs hybrid keyword + vector search over the index. Results are
// a point-in-time snapshot of the store; concurrent index writes are not
// reflected into in-flight queries.
type Engine struct {
	store    store.Store
	embedder embed.Embedder
	cacheTTL time.Duration
	cache    *lru.Cache[string, cacheEntry]
}

// Option configures an Engine.
type Option func(*Engine)

// WithCacheTTL enables an LRU query-result cache with the given lifetime.
// Zero disables caching (the default): every query reads the live store.
func WithCacheTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.cacheTTL = ttl }
}

// New creates a search engine over the given store and embedder. A nil
// embedder degrades to keyword-only scoring.
func New(s store.Store, emb embed.Embedder, opts ...Option) *Engine {
	e := &Engine{store: s, embedder: emb}
	for _, opt := range opts {
		opt(e)
	}
	if e.cacheTTL > 0 {
		// Only errors on a non-positive size.
		e.cache, _ = lru.New[string, cacheEntry](queryCacheLen)
	}
	return e
}

// Search returns up to limit ranked results for a natural-language or
// keyword query. Storage errors propagate; there is no degraded-search mode.
func (e *Engine) Search(projectID, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	cacheKey := fmt.Sprintf("%s\x00%s\x00%d", projectID, query, limit)
	if cached, ok := e.fromCache(cacheKey); ok {
		return cached, nil
	}

	var queryVec []float32
	if e.embedder != nil {
		var err error
		if queryVec, err = e.embedder.EmbedQuery(query); err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
	}

	candidates, err := e.store.SearchCandidates(projectID, query, limit*overFetch)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var results []Result
	for _, c := range candidates {
		score, err := e.scoreCandidate(c, query, queryVec)
		if err != nil {
			return nil, err
		}
		key := dedupKey(c)
		if seen[key] {
			continue
		}
		seen[key] = true
		results = append(results, Result{
			FilePath:  c.FilePath,
			BlockType: c.BlockType,
			Name:      c.Name,
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
			Score:     score,
			BlockID:   c.BlockID,
		})
	}

	// Supplement with pure-semantic hits the keyword pass missed.
	if queryVec != nil {
		supplements, err := e.semanticHits(projectID, queryVec, semanticThreshold)
		if err != nil {
			return nil, err
		}
		for _, s := range supplements {
			key := dedupKey(store.Candidate{
				BlockID: s.BlockID, FilePath: s.FilePath,
				Name: s.Name, StartLine: s.StartLine,
			})
			if seen[key] {
				continue
			}
			seen[key] = true
			s.Score *= semanticWeight
			results = append(results, s)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}

	e.toCache(cacheKey, results)
	return results, nil
}

// SearchSemanticOnly bypasses keyword candidate generation entirely: it
// ranks every embedded block by cosine similarity to the query, keeping
// those above threshold. Useful for finding conceptually related code with
// no lexical overlap.
func (e *Engine) SearchSemanticOnly(projectID, query string, threshold float64, limit int) ([]Result, error) {
	if e.embedder == nil {
		return nil, fmt.Errorf("semantic search requires an embedder")
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if threshold <= 0 {
		threshold = semanticThreshold
	}

	queryVec, err := e.embedder.EmbedQuery(query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := e.semanticHits(projectID, queryVec, threshold)
	if err != nil {
		return nil, err
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// scoreCandidate computes the combined relevance of one keyword candidate.
// Keyword score starts at 0.5, becomes 1.0 on an exact case-insensitive name
// match, else gains 0.3 when the name contains the query. When the block has
// a stored embedding the combined score is semantic*0.7 + keyword*0.3.
func (e *Engine) scoreCandidate(c store.Candidate, query string, queryVec []float32) (float64, error) {
	keyword := 0.5
	if c.Name != "" {
		switch {
		case strings.EqualFold(c.Name, query):
			keyword = 1.0
		case strings.Contains(strings.ToLower(c.Name), strings.ToLower(query)):
			keyword += 0.3
		}
	}

	// Candidates without a resolvable block keep keyword-only scoring.
	if queryVec == nil || c.BlockID == 0 {
		return keyword, nil
	}
	vec, err := e.store.GetEmbeddingByBlock(c.BlockID)
	if err != nil {
		return 0, err
	}
	if vec == nil {
		return keyword, nil
	}
	return Cosine(queryVec, vec)*semanticWeight + keyword*keywordWeight, nil
}

// semanticHits scans all stored embeddings for the project and returns
// blocks above the similarity threshold, sorted descending. Scores are raw
// similarities; the caller weights them as needed.
func (e *Engine) semanticHits(projectID string, queryVec []float32, threshold float64) ([]Result, error) {
	embeddings, err := e.store.GetEmbeddings(projectID)
	if err != nil {
		return nil, err
	}

	type hit struct {
		blockID int64
		sim     float64
	}
	var hits []hit
	for _, be := range embeddings {
		if sim := Cosine(queryVec, be.Vector); sim > threshold {
			hits = append(hits, hit{blockID: be.BlockID, sim: sim})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].sim > hits[j].sim })

	var results []Result
	for _, h := range hits {
		blk, err := e.store.GetBlockByID(h.blockID)
		if err != nil {
			return nil, err
		}
		if blk == nil {
			continue // removed since the embedding scan
		}
		results = append(results, Result{
			FilePath:  blk.FilePath,
			BlockType: blk.BlockType,
			Name:      blk.Name,
			StartLine: blk.StartLine,
			EndLine:   blk.EndLine,
			Score:     h.sim,
			BlockID:   h.blockID,
		})
	}
	return results, nil
}

// InvalidateCache drops all cached query results. Called after re-indexing.
func (e *Engine) InvalidateCache() {
	if e.cache != nil {
		e.cache.Purge()
	}
}

func (e *Engine) fromCache(key string) ([]Result, bool) {
	if e.cache == nil {
		return nil, false
	}
	entry, ok := e.cache.Get(key)
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	out := make([]Result, len(entry.results))
	copy(out, entry.results)
	return out, true
}

func (e *Engine) toCache(key string, results []Result) {
	if e.cache == nil {
		return
	}
	stored := make([]Result, len(results))
	copy(stored, results)
	e.cache.Add(key, cacheEntry{results: stored, expiresAt: time.Now().Add(e.cacheTTL)})
}

// dedupKey prefers block identity and falls back to a composite of path,
// name, and start line when no id is available.
func dedupKey(c store.Candidate) string {
	if c.BlockID != 0 {
		return fmt.Sprintf("id:%d", c.BlockID)
	}
	return fmt.Sprintf("%s\x00%s\x00%d", c.FilePath, c.Name, c.StartLine)
}

// Cosine is the normalized dot product of two vectors. Mismatched lengths
// return 0 rather than erroring; stale data must not crash a query.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
