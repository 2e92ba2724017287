package models

// ParseRequest is the payload for POST /parse.
type ParseRequest struct {
	// URL is the product page to extract. Required.
	URL string `json:"url" binding:"required,url"`
}
