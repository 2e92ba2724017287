package trust

import "sync"

// Registry records, per normalized price, the distinct URLs that produced
// it as a suspect value. Entries only grow.
type Registry struct {
	mu     sync.Mutex
	prices map[string]map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{prices: make(map[string]map[string]struct{})}
}

// Record adds url to the set for price.
func (r *Registry) Record(price, url string) {
	if price == "" || url == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	urls, ok := r.prices[price]
	if !ok {
		urls = make(map[string]struct{})
		r.prices[price] = urls
	}
	urls[url] = struct{}{}
}

// OthersCount returns how many URLs other than url have recorded price.
func (r *Registry) OthersCount(price, url string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	urls := r.prices[price]
	n := len(urls)
	if _, ok := urls[url]; ok {
		n--
	}
	return n
}

// Len returns the number of distinct prices recorded.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.prices)
}
