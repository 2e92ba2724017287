package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/egor6820/price-tracker-server/models"
	"github.com/egor6820/price-tracker-server/poll"
)

// Strategy is one engine together with its retry budget and adequacy bound.
type Strategy struct {
	Engine Engine

	// Attempts is how many times the engine is tried before giving up.
	Attempts int

	// Timeout bounds a single attempt.
	Timeout time.Duration

	// MinBytes is the smallest document the strategy may return.
	MinBytes int
}

// Fetcher owns strategy ordering, retries with linear backoff, and the
// checks that turn a thin or blocked page into a failed attempt.
type Fetcher struct {
	strategies []Strategy
	backoff    time.Duration
	memory     *DomainMemory
	now        func() time.Time
}

// NewFetcher creates a Fetcher. strategies are in default order; backoff is
// multiplied by the attempt number between retries. memory may be nil to
// disable strategy memory.
func NewFetcher(strategies []Strategy, backoff time.Duration, memory *DomainMemory) *Fetcher {
	return &Fetcher{
		strategies: strategies,
		backoff:    backoff,
		memory:     memory,
		now:        time.Now,
	}
}

// Plan returns the strategies to try for rawURL. When the domain memory
// remembers a strategy, it moves to the front; the rest keep their order.
func (f *Fetcher) Plan(rawURL string) []Strategy {
	plan := make([]Strategy, len(f.strategies))
	copy(plan, f.strategies)
	if f.memory == nil {
		return plan
	}
	remembered := f.memory.Get(extractDomain(rawURL))
	if remembered == "" {
		return plan
	}
	for i, s := range plan {
		if s.Engine.Name() == remembered && i > 0 {
			slog.Debug("domain memory hit", "url", rawURL, "engine", remembered)
			copy(plan[1:i+1], plan[:i])
			plan[0] = s
			break
		}
	}
	return plan
}

// Lead returns the name of the strategy tried first when nothing is
// remembered, or "" when no strategies are configured.
func (f *Fetcher) Lead() string {
	if len(f.strategies) == 0 {
		return ""
	}
	return f.strategies[0].Engine.Name()
}

// Remember records that engineName should lead for rawURL's domain.
func (f *Fetcher) Remember(rawURL, engineName string) {
	if f.memory != nil {
		f.memory.Set(extractDomain(rawURL), engineName)
	}
}

// Forget drops any remembered strategy for rawURL's domain.
func (f *Fetcher) Forget(rawURL string) {
	if f.memory != nil {
		f.memory.Delete(extractDomain(rawURL))
	}
}

// Fetch runs one strategy with its retry budget. A transport error, a
// document under MinBytes, or a blocked-page signature counts as a failed
// attempt. The last error is returned when every attempt fails.
func (f *Fetcher) Fetch(ctx context.Context, s Strategy, req *FetchRequest) (*FetchResult, models.RawDocument, error) {
	attempts := s.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := poll.Sleep(ctx, f.backoff*time.Duration(attempt-1)); err != nil {
				return nil, models.RawDocument{}, categorizeError(err, "fetch canceled")
			}
		}

		result, err := f.attempt(ctx, s, req)
		if err == nil {
			doc := result.Document(s.Engine.Method(), f.now())
			return result, doc, nil
		}
		lastErr = err
		slog.Debug("fetch attempt failed",
			"url", req.URL, "engine", s.Engine.Name(), "attempt", attempt, "error", err)

		// A disabled renderer will not come back within this request.
		if models.ErrorCode(err) == models.ErrCodeRenderingOff {
			break
		}
	}
	return nil, models.RawDocument{}, lastErr
}

func (f *Fetcher) attempt(ctx context.Context, s Strategy, req *FetchRequest) (*FetchResult, error) {
	r := *req
	if s.Timeout > 0 {
		r.Timeout = s.Timeout
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	result, err := s.Engine.Fetch(ctx, &r)
	if err != nil {
		return nil, categorizeError(err, s.Engine.Name()+" fetch failed")
	}
	if result == nil {
		return nil, models.NewScrapeError(models.ErrCodeFetch, s.Engine.Name()+" returned no document", nil)
	}
	if result.EngineName == "" {
		result.EngineName = s.Engine.Name()
	}
	if len(result.HTML) < s.MinBytes {
		return nil, models.NewScrapeError(models.ErrCodeTooShort,
			fmt.Sprintf("%s returned %d bytes, want at least %d", s.Engine.Name(), len(result.HTML), s.MinBytes), nil)
	}
	if s.Engine.Method() == models.FetchRendered && IsBlockedPage(req.URL, result.Title, result.Harvest) {
		return nil, models.NewScrapeError(models.ErrCodeBlocked,
			fmt.Sprintf("page title %q matches the domain and nothing was harvested", result.Title), nil)
	}
	return result, nil
}

// IsBlockedPage reports the blocked/placeholder signature: the page title
// is just the requested domain and the live rules harvested no name and no
// price.
func IsBlockedPage(rawURL, title string, harvest models.Harvest) bool {
	if !harvest.Empty() {
		return false
	}
	t := strings.ToLower(strings.TrimSpace(title))
	if t == "" {
		return false
	}
	host := strings.ToLower(extractDomain(rawURL))
	bare := strings.TrimPrefix(host, "www.")
	return t == host || t == bare || t == "www."+bare
}

// categorizeError maps engine failures to ScrapeError codes, keeping codes
// the engine already assigned.
func categorizeError(err error, msg string) error {
	var se *models.ScrapeError
	switch {
	case errors.As(err, &se):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeFetch, msg, err)
	}
}

// extractDomain parses the hostname from a URL string.
func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}
