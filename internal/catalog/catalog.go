// Package catalog maintains the merged registry of cloned voices: entries
// created this session, entries cached locally from earlier runs, and entries
// reconstructed from remotely persisted clone records. The catalog itself
// performs no network I/O.
package catalog

import (
	"encoding/json"
	"log"
	"sort"
	"sync"

	"github.com/voiceback/voiceback/internal/voice"
)

const cacheKey = "cloned_voices"

type entry struct {
	voice voice.ClonedVoice
	// fresh marks an entry created by a clone in this session. Fresh entries
	// are authoritative: a remote record never overwrites one. Cached entries
	// from earlier runs yield to the durable remote state.
	fresh bool
}

// Catalog is safe for concurrent use.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]*entry // keyed by provider voice id
	cache   KeyValueCache
}

func New(cache KeyValueCache) *Catalog {
	if cache == nil {
		cache = NewMemoryCache()
	}
	c := &Catalog{entries: make(map[string]*entry), cache: cache}
	c.loadCache()
	return c
}

func (c *Catalog) loadCache() {
	data, ok := c.cache.Get(cacheKey)
	if !ok {
		return
	}
	var voices []voice.ClonedVoice
	if err := json.Unmarshal(data, &voices); err != nil {
		log.Printf("catalog: discarding unreadable cache: %v", err)
		return
	}
	for _, v := range voices {
		if v.ProviderVoiceID == "" {
			continue
		}
		c.entries[v.ProviderVoiceID] = &entry{voice: v}
	}
}

// Add registers a voice created by a successful clone. Adding a voice whose
// provider id already exists replaces the display name but keeps the original
// local id.
func (c *Catalog) Add(v voice.ClonedVoice) {
	if v.ProviderVoiceID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[v.ProviderVoiceID]; ok {
		existing.voice.DisplayName = v.DisplayName
		existing.fresh = true
	} else {
		c.entries[v.ProviderVoiceID] = &entry{voice: v, fresh: true}
	}
	c.persist()
}

// MergeRemote folds remotely persisted clone entries into the catalog.
// Unknown provider ids are inserted; known ids created this session are kept
// as-is; known ids that came from the local cache are refreshed from the
// remote record, which reflects durable state.
func (c *Catalog) MergeRemote(remote []voice.ClonedVoice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range remote {
		if v.ProviderVoiceID == "" {
			continue
		}
		existing, ok := c.entries[v.ProviderVoiceID]
		if !ok {
			c.entries[v.ProviderVoiceID] = &entry{voice: v}
			continue
		}
		if !existing.fresh {
			existing.voice.DisplayName = v.DisplayName
			existing.voice.OwnerID = v.OwnerID
		}
	}
	c.persist()
}

// All returns the merged view, sorted by display name for stable listings.
// No two entries share a provider voice id.
func (c *Catalog) All() []voice.ClonedVoice {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]voice.ClonedVoice, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.voice)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].ProviderVoiceID < out[j].ProviderVoiceID
	})
	return out
}

// Lookup finds a catalog entry by provider voice id.
func (c *Catalog) Lookup(providerVoiceID string) (voice.ClonedVoice, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[providerVoiceID]
	if !ok {
		return voice.ClonedVoice{}, false
	}
	return e.voice, true
}

// persist is called with c.mu held.
func (c *Catalog) persist() {
	voices := make([]voice.ClonedVoice, 0, len(c.entries))
	for _, e := range c.entries {
		voices = append(voices, e.voice)
	}
	sort.Slice(voices, func(i, j int) bool { return voices[i].ProviderVoiceID < voices[j].ProviderVoiceID })
	data, err := json.Marshal(voices)
	if err != nil {
		return
	}
	if err := c.cache.Set(cacheKey, data); err != nil {
		log.Printf("catalog: cache write failed: %v", err)
	}
}
