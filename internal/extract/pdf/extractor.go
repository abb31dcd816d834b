// Package pdf extracts plain-text excerpts from PDF artifacts.
package pdf

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/JakeFAU/paper-harvester/internal/harvest"
)

const defaultMaxPages = 3

// Extractor reads the leading pages of a PDF.
type Extractor struct {
	maxPages int
}

var _ harvest.TextExtractor = (*Extractor)(nil)

// New returns an Extractor reading at most maxPages pages.
func New(maxPages int) *Extractor {
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	return &Extractor{maxPages: maxPages}
}

// Extract returns the text of the first pages joined by newlines. A missing
// or empty file is harvest.ErrIntegrity; a document with no text layer
// yields an empty string.
func (e *Extractor) Extract(ctx context.Context, path string) (text string, err error) {
	if err := CheckArtifact(path); err != nil {
		return "", err
	}

	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: malformed pdf %s: %v", harvest.ErrParse, path, r)
		}
	}()

	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open pdf %s: %v", harvest.ErrParse, path, err)
	}
	defer file.Close()

	pages := min(reader.NumPage(), e.maxPages)
	parts := make([]string, 0, pages)
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("extract text: %w", err)
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: page %d of %s: %v", harvest.ErrParse, i, path, err)
		}
		parts = append(parts, content)
	}
	return strings.TrimSpace(strings.Join(parts, "\n")), nil
}

// CheckArtifact verifies path names a regular, non-empty file.
func CheckArtifact(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: no artifact path", harvest.ErrIntegrity)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", harvest.ErrIntegrity, err)
	}
	if !info.Mode().IsRegular() || info.Size() == 0 {
		return fmt.Errorf("%w: %s is empty or not a file", harvest.ErrIntegrity, path)
	}
	return nil
}
