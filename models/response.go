package models

// Sentinel values returned when nothing trustworthy could be extracted.
const (
	UnknownName  = "Невідома назва"
	UnknownPrice = "Невідома ціна"
)

// ExtractedResult is the externally visible product record.
type ExtractedResult struct {
	// Name is the product name, or UnknownName.
	Name string `json:"name"`

	// CurrentPrice is a canonical decimal string, or UnknownPrice.
	CurrentPrice string `json:"currentPrice"`

	// OldPrice is the previous (struck-through) price, when one was found.
	OldPrice *string `json:"oldPrice"`

	// InStock is always set; absence of evidence defaults to true for
	// extracted results and false for the sentinel.
	InStock bool `json:"inStock"`
}

// Sentinel returns the degraded "unknown name / unknown price" result.
func Sentinel() ExtractedResult {
	return ExtractedResult{
		Name:         UnknownName,
		CurrentPrice: UnknownPrice,
		InStock:      false,
	}
}

// IsSentinel reports whether r carries no extracted price.
func (r ExtractedResult) IsSentinel() bool {
	return r.CurrentPrice == UnknownPrice
}

// OldPriceValue returns the old price or "".
func (r ExtractedResult) OldPriceValue() string {
	if r.OldPrice == nil {
		return ""
	}
	return *r.OldPrice
}

// ErrorResponse is returned by the API when a request is rejected before
// extraction runs.
type ErrorResponse struct {
	Error *ErrorDetail `json:"error"`
}

// HealthResponse is the response for GET /ping.
type HealthResponse struct {
	Status string `json:"status"`
}
