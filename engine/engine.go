package engine

import (
	"context"
	"time"

	"github.com/egor6820/price-tracker-server/config"
	"github.com/egor6820/price-tracker-server/models"
)

// Engine is the interface that all fetch strategies must implement.
type Engine interface {
	// Name returns the engine identifier (e.g. "http", "rendered").
	Name() string

	// Method reports which fetch method the engine's documents carry.
	Method() models.FetchMethod

	// Fetch retrieves the page content for the given request.
	Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error)
}

// FetchRequest contains everything an engine needs to fetch a page.
type FetchRequest struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration

	// Selectors, when set, are evaluated live by rendering engines.
	Selectors *config.DomainSelectors
}

// FetchResult is the output of a successful engine fetch.
type FetchResult struct {
	HTML       string
	Title      string
	StatusCode int
	FinalURL   string
	EngineName string

	// Harvest holds values read by domain rules during rendering.
	Harvest models.Harvest
}

// Document converts r into an immutable RawDocument.
func (r *FetchResult) Document(method models.FetchMethod, at time.Time) models.RawDocument {
	return models.RawDocument{
		HTML:        r.HTML,
		Title:       r.Title,
		FinalURL:    r.FinalURL,
		StatusCode:  r.StatusCode,
		FetchMethod: method,
		FetchedAt:   at,
	}
}

// DefaultHeaders mimic a desktop browser with a Ukrainian locale.
var DefaultHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Accept-Language": "uk-UA,uk;q=0.9,en-US;q=0.8,en;q=0.7",
}
