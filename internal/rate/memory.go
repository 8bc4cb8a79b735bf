package rate

import (
	"context"
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMemoryKeys = 10_000

// window is the admitted-request log for one key, oldest first.
type window struct {
	mu   sync.Mutex
	hits []time.Time
}

// MemoryBackend is the in-process fallback. Windows live in a bounded LRU so
// idle keys are dropped under pressure; each window has its own mutex, so
// concurrent requests only contend on the same key.
type MemoryBackend struct {
	windows *lru.Cache[string, *window]
}

// NewMemoryBackend holds at most maxKeys windows. Non-positive selects 10k.
func NewMemoryBackend(maxKeys int) (*MemoryBackend, error) {
	if maxKeys <= 0 {
		maxKeys = defaultMemoryKeys
	}
	cache, err := lru.New[string, *window](maxKeys)
	if err != nil {
		return nil, err
	}
	return &MemoryBackend{windows: cache}, nil
}

func (b *MemoryBackend) Hit(ctx context.Context, key string, now time.Time, span time.Duration, limit int) (Hit, error) {
	if err := ctx.Err(); err != nil {
		return Hit{}, err
	}
	if limit <= 0 || span <= 0 {
		return Hit{}, errors.New("invalid rate rule")
	}

	w := b.window(key)
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-span)
	drop := 0
	for drop < len(w.hits) && w.hits[drop].Before(cutoff) {
		drop++
	}
	if drop > 0 {
		w.hits = append(w.hits[:0], w.hits[drop:]...)
	}

	hit := Hit{Count: len(w.hits)}
	if len(w.hits) < limit {
		w.hits = append(w.hits, now)
		hit.Allowed = true
		hit.Count++
	}
	if len(w.hits) > 0 {
		hit.Oldest = w.hits[0]
	}
	return hit, nil
}

// Len reports how many keys are tracked.
func (b *MemoryBackend) Len() int {
	return b.windows.Len()
}

func (b *MemoryBackend) window(key string) *window {
	if w, ok := b.windows.Get(key); ok {
		return w
	}
	fresh := &window{}
	if found, _ := b.windows.ContainsOrAdd(key, fresh); found {
		if w, ok := b.windows.Get(key); ok {
			return w
		}
	}
	return fresh
}
