// Package keyword indexes media file names for keyword lookup.
package keyword

import (
	"context"
	"path/filepath"
	"strings"
)

// Index defines file name indexing and search operations.
type Index interface {
	Index(ctx context.Context, id, name, path string) error
	Search(ctx context.Context, query string, limit int) ([]*Result, error)
	Delete(ctx context.Context, id string) error
	DocCount() (uint64, error)
	Close() error
}

// Result is a single name search hit.
type Result struct {
	ID    string
	Score float64
}

// NormalizeName turns a file name into searchable words: the base name with its extension
// split off and underscores, dashes and dots replaced by spaces.
func NormalizeName(name string) string {
	return normalizeWords(filepath.Base(name))
}

var separators = strings.NewReplacer("_", " ", "-", " ", ".", " ")

func normalizeWords(s string) string {
	return strings.Join(strings.Fields(separators.Replace(s)), " ")
}
