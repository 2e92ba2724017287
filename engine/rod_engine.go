package engine

import (
	"context"
	"fmt"

	"github.com/egor6820/price-tracker-server/models"
)

// RodFetchFunc is the callback type that wraps scraper.Renderer.Render.
// It is injected from main.go to avoid a circular import (engine/ -> scraper/).
type RodFetchFunc func(ctx context.Context, req *FetchRequest) (*FetchResult, error)

// RodEngine is the rendering strategy. It delegates to the rod-based
// renderer through a callback; a nil callback means rendering is disabled.
type RodEngine struct {
	fetchFunc RodFetchFunc
}

// NewRodEngine creates a RodEngine.
func NewRodEngine(fetchFunc RodFetchFunc) *RodEngine {
	return &RodEngine{fetchFunc: fetchFunc}
}

func (e *RodEngine) Name() string { return "rendered" }

func (e *RodEngine) Method() models.FetchMethod { return models.FetchRendered }

func (e *RodEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	if e.fetchFunc == nil {
		return nil, models.NewScrapeError(models.ErrCodeRenderingOff, "rendering is disabled", nil)
	}

	// Clone the request so we don't mutate the caller's copy.
	r := *req
	result, err := e.fetchFunc(ctx, &r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.Name(), err)
	}

	result.EngineName = e.Name()
	return result, nil
}
