package engine

import (
	"strings"
	"sync"
	"time"
)

// rememberedStrategy is the strategy that last produced a trusted result
// for a domain.
type rememberedStrategy struct {
	engineName string
	expiresAt  time.Time
}

// DomainMemory remembers, per domain, which strategy should be tried first.
// Entries expire after the configured TTL and are pruned hourly.
type DomainMemory struct {
	store sync.Map // normalized host (string) -> *rememberedStrategy
	ttl   time.Duration
	now   func() time.Time
	done  chan struct{}
	stop  sync.Once
}

// NewDomainMemory creates a DomainMemory with the given TTL and starts the
// pruning goroutine. Call Stop on shutdown.
func NewDomainMemory(ttl time.Duration) *DomainMemory {
	dm := &DomainMemory{
		ttl:  ttl,
		now:  time.Now,
		done: make(chan struct{}),
	}
	go dm.cleanupLoop()
	return dm
}

// memoryKey folds case and a leading "www." so both spellings of a host
// share one entry.
func memoryKey(domain string) string {
	return strings.TrimPrefix(strings.ToLower(domain), "www.")
}

// Get returns the remembered strategy for a domain, or "" if none is live.
func (dm *DomainMemory) Get(domain string) string {
	key := memoryKey(domain)
	val, ok := dm.store.Load(key)
	if !ok {
		return ""
	}
	entry := val.(*rememberedStrategy)
	if dm.now().After(entry.expiresAt) {
		dm.store.Delete(key)
		return ""
	}
	return entry.engineName
}

// Set records the strategy that should lead for a domain.
func (dm *DomainMemory) Set(domain, engineName string) {
	dm.store.Store(memoryKey(domain), &rememberedStrategy{
		engineName: engineName,
		expiresAt:  dm.now().Add(dm.ttl),
	})
}

// Delete forgets a domain, e.g. after the remembered strategy stopped working.
func (dm *DomainMemory) Delete(domain string) {
	dm.store.Delete(memoryKey(domain))
}

// Stop terminates the pruning goroutine. It is safe to call more than once.
func (dm *DomainMemory) Stop() {
	dm.stop.Do(func() { close(dm.done) })
}

func (dm *DomainMemory) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-dm.done:
			return
		case <-ticker.C:
			now := dm.now()
			dm.store.Range(func(key, value any) bool {
				if now.After(value.(*rememberedStrategy).expiresAt) {
					dm.store.Delete(key)
				}
				return true
			})
		}
	}
}
