// Package extract turns source files and office documents into plain text.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultMaxBytes is the largest file Extract reads unless configured otherwise.
const DefaultMaxBytes = 8 << 20

type extractFunc func(content []byte) (string, error)

// documentFormats are binary formats with a dedicated extractor. Anything else
// is read as UTF-8 text.
var documentFormats = map[string]extractFunc{
	".pdf":  extractPDF,
	".docx": extractDOCX,
	".xlsx": extractExcel,
	".odt":  extractWithCat,
	".rtf":  extractWithCat,
}

// DocumentExtensions lists the binary formats Extract understands, sorted.
func DocumentExtensions() []string {
	exts := make([]string, 0, len(documentFormats))
	for ext := range documentFormats {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// IsDocument reports whether ext (with leading dot) is a binary document format.
func IsDocument(ext string) bool {
	_, ok := documentFormats[strings.ToLower(ext)]
	return ok
}

// Extractor extracts plain text from files.
type Extractor struct {
	maxBytes int64
}

// NewExtractor returns an Extractor that refuses files larger than maxBytes.
// Zero or less means DefaultMaxBytes.
func NewExtractor(maxBytes int64) *Extractor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Extractor{maxBytes: maxBytes}
}

// Extract reads the file at path and returns its text content.
func (e *Extractor) Extract(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat file: %w", err)
	}
	if info.Size() > e.maxBytes {
		return "", fmt.Errorf("file %s is %d bytes, limit is %d", path, info.Size(), e.maxBytes)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, filepath.Ext(path))
}

// ExtractBytes extracts text from content based on ext (with leading dot).
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	if fn, ok := documentFormats[strings.ToLower(ext)]; ok {
		return fn(content)
	}
	return extractPlain(content)
}
