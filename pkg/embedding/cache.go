package embedding

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// CacheEntry is a memoized vector for a (provider, model, content hash)
// triple.
type CacheEntry struct {
	ContentHash    string
	Provider       string
	Model          string
	Vector         []float32
	Dimensions     int
	TokenCount     int
	AccessCount    int
	LastAccessedAt time.Time
}

// PersistentCache is the durable tier of the embedding cache. LoadMany
// amortizes round-trips across a whole indexing batch; the returned map is
// keyed by composite cache key (see CacheKey).
type PersistentCache interface {
	LoadMany(ctx context.Context, provider, model string, contentHashes []string) (map[string]CacheEntry, error)
	Save(ctx context.Context, entry CacheEntry) error
}

// CacheKey builds the composite key shared by both cache tiers.
func CacheKey(provider, model, contentHash string) string {
	return provider + ":" + model + ":" + contentHash
}

// Cache is the two-tier embedding cache: an in-process map backed by an
// optional persistent store. It is content-addressed: two documents sharing
// an identical chunk share one entry.
//
// Persistent-tier failures are logged and degrade to misses/no-ops; they
// never abort indexing or search. The local tier is safe for concurrent use;
// last-writer-wins on a key collision is fine because colliding values are
// computed from identical content.
type Cache struct {
	mu         sync.RWMutex
	local      map[string]*CacheEntry
	persistent PersistentCache
	logger     zerolog.Logger
}

// NewCache creates a cache. persistent may be nil, leaving only the local
// tier.
func NewCache(persistent PersistentCache, logger zerolog.Logger) *Cache {
	return &Cache{
		local:      make(map[string]*CacheEntry),
		persistent: persistent,
		logger:     logger,
	}
}

// Get looks up a vector, local tier first, then the persistent tier. A
// persistent hit is promoted into the local tier. The second return value is
// false on a full miss.
func (c *Cache) Get(ctx context.Context, contentHash, provider, model string) ([]float32, bool) {
	key := CacheKey(provider, model, contentHash)

	c.mu.Lock()
	if entry, ok := c.local[key]; ok {
		entry.AccessCount++
		entry.LastAccessedAt = time.Now()
		vector := entry.Vector
		c.mu.Unlock()
		return vector, true
	}
	c.mu.Unlock()

	if c.persistent == nil {
		return nil, false
	}

	loaded, err := c.persistent.LoadMany(ctx, provider, model, []string{contentHash})
	if err != nil {
		c.logger.Warn().Err(err).Msg("Embedding cache read failed, treating as miss")
		return nil, false
	}

	entry, ok := loaded[key]
	if !ok {
		return nil, false
	}

	c.promote(entry)
	return entry.Vector, true
}

// LoadMany warms the local tier for a batch of content hashes and returns
// the vectors found, keyed by content hash.
func (c *Cache) LoadMany(ctx context.Context, contentHashes []string, provider, model string) map[string][]float32 {
	found := make(map[string][]float32)

	var missing []string
	c.mu.Lock()
	for _, hash := range contentHashes {
		key := CacheKey(provider, model, hash)
		if entry, ok := c.local[key]; ok {
			entry.AccessCount++
			entry.LastAccessedAt = time.Now()
			found[hash] = entry.Vector
		} else {
			missing = append(missing, hash)
		}
	}
	c.mu.Unlock()

	if c.persistent == nil || len(missing) == 0 {
		return found
	}

	loaded, err := c.persistent.LoadMany(ctx, provider, model, missing)
	if err != nil {
		c.logger.Warn().Err(err).Int("hashes", len(missing)).Msg("Embedding cache batch read failed, treating as misses")
		return found
	}

	for _, entry := range loaded {
		found[entry.ContentHash] = entry.Vector
		c.promote(entry)
	}

	return found
}

// Put writes through both tiers.
func (c *Cache) Put(ctx context.Context, contentHash, provider, model string, vector []float32, tokenCount int) {
	entry := CacheEntry{
		ContentHash:    contentHash,
		Provider:       provider,
		Model:          model,
		Vector:         vector,
		Dimensions:     len(vector),
		TokenCount:     tokenCount,
		AccessCount:    1,
		LastAccessedAt: time.Now(),
	}

	c.mu.Lock()
	stored := entry
	c.local[CacheKey(provider, model, contentHash)] = &stored
	c.mu.Unlock()

	if c.persistent == nil {
		return
	}
	if err := c.persistent.Save(ctx, entry); err != nil {
		c.logger.Warn().Err(err).Msg("Embedding cache write failed, continuing without persistence")
	}
}

// Len returns the local tier entry count.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.local)
}

func (c *Cache) promote(entry CacheEntry) {
	entry.AccessCount++
	entry.LastAccessedAt = time.Now()
	c.mu.Lock()
	c.local[CacheKey(entry.Provider, entry.Model, entry.ContentHash)] = &entry
	c.mu.Unlock()
}
