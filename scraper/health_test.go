package scraper

import (
	"testing"
	"time"
)

func TestPageHealth(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("failures retire", func(t *testing.T) {
		h := newPageHealth(start)
		h.record(false)
		h.record(false)
		if h.shouldRetire(start) {
			t.Fatal("two failures should not retire")
		}
		h.record(false)
		if !h.shouldRetire(start) {
			t.Fatal("three failures should retire")
		}
	})

	t.Run("success decays score", func(t *testing.T) {
		h := newPageHealth(start)
		h.record(false)
		h.record(false)
		h.record(true)
		h.record(false)
		if h.shouldRetire(start) {
			t.Fatalf("errScore = %v, should not retire", h.errScore)
		}
	})

	t.Run("use count", func(t *testing.T) {
		h := newPageHealth(start)
		for i := 0; i < maxPageUses; i++ {
			h.record(true)
		}
		if !h.shouldRetire(start) {
			t.Fatal("page past use limit should retire")
		}
	})

	t.Run("age", func(t *testing.T) {
		h := newPageHealth(start)
		if !h.shouldRetire(start.Add(maxPageAge)) {
			t.Fatal("old page should retire")
		}
	})
}
