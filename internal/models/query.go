package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidQuery is wrapped by the validation errors of SearchQuery.
var ErrInvalidQuery = errors.New("invalid query")

// SearchQuery is a text or example-image search request.
// Exactly one of Text and ImagePath is used; which one depends on the endpoint.
type SearchQuery struct {
	Text      string `json:"text,omitempty"`
	ImagePath string `json:"image_path,omitempty"`
	Page      int    `json:"page,omitempty"`
	PageSize  int    `json:"page_size,omitempty"`
}

// ValidateText checks a text query and applies paging defaults.
func (q *SearchQuery) ValidateText(defaultSize, maxSize int) error {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return fmt.Errorf("%w: query text cannot be empty", ErrInvalidQuery)
	}
	q.normalizePaging(defaultSize, maxSize)
	return nil
}

// ValidateImage checks an image query and applies paging defaults.
func (q *SearchQuery) ValidateImage(defaultSize, maxSize int) error {
	q.ImagePath = strings.TrimSpace(q.ImagePath)
	if q.ImagePath == "" {
		return fmt.Errorf("%w: query image path cannot be empty", ErrInvalidQuery)
	}
	q.normalizePaging(defaultSize, maxSize)
	return nil
}

func (q *SearchQuery) normalizePaging(defaultSize, maxSize int) {
	if defaultSize <= 0 {
		defaultSize = 20
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = defaultSize
	}
	if maxSize > 0 && q.PageSize > maxSize {
		q.PageSize = maxSize
	}
}
