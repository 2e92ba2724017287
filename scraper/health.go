package scraper

import (
	"math"
	"time"
)

// Retirement thresholds for pooled pages.
const (
	maxErrScore = 3.0
	maxPageUses = 50
	maxPageAge  = 50 * time.Minute
)

// pageHealth tracks how a pooled page has been doing. A page that keeps
// failing, has served many sessions, or is old is closed instead of being
// returned to the pool.
type pageHealth struct {
	errScore float64
	useCount int
	created  time.Time
}

func newPageHealth(now time.Time) *pageHealth {
	return &pageHealth{created: now}
}

// record applies one session outcome: success decays the error score,
// failure raises it.
func (h *pageHealth) record(success bool) {
	h.useCount++
	if success {
		h.errScore = math.Max(0, h.errScore-0.5)
		return
	}
	h.errScore += 1.0
}

func (h *pageHealth) shouldRetire(now time.Time) bool {
	return h.errScore >= maxErrScore ||
		h.useCount >= maxPageUses ||
		now.Sub(h.created) >= maxPageAge
}
