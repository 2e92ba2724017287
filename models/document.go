package models

import "time"

// FetchMethod records how a document was obtained.
type FetchMethod string

const (
	FetchHTTP     FetchMethod = "http"
	FetchRendered FetchMethod = "rendered"
)

// RawDocument is the immutable output of one successful fetch.
type RawDocument struct {
	HTML        string
	Title       string
	FinalURL    string
	StatusCode  int
	FetchMethod FetchMethod
	FetchedAt   time.Time
}

// Harvest holds field texts collected by domain selector rules while a page
// was live in the renderer. Empty strings mean the rule set found nothing.
type Harvest struct {
	Name         string
	PriceText    string
	OldPriceText string
}

// Empty reports whether the harvest carries neither a name nor a price.
func (h Harvest) Empty() bool {
	return h.Name == "" && h.PriceText == ""
}
