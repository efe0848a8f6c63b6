package domain

import "time"

// Document is the body fetched for one URL.
type Document struct {
	URL         string    `json:"url"`
	StatusCode  int       `json:"status_code"`
	ContentType string    `json:"content_type"`
	Body        []byte    `json:"-"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Analysis is the summary computed from a Document.
type Analysis struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
	Bytes       int    `json:"bytes"`
	Lines       int    `json:"lines"`
	Words       int    `json:"words"`
	SHA256      string `json:"sha256"`
}
