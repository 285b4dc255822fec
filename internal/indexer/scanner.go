package indexer

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hyperjump/codeindex/internal/models"
)

// DefaultExtensions is the allow-list used when none is configured.
var DefaultExtensions = []string{
	".java", ".js", ".ts", ".jsx", ".tsx", ".py", ".go", ".rb", ".php",
	".html", ".htm", ".css", ".scss", ".json", ".xml", ".md", ".properties",
}

// Scanner lists the files under a root directory that should be indexed.
type Scanner struct {
	root       string
	appID      string
	extensions map[string]struct{}
}

// NewScanner creates a scanner for root. Extensions are matched
// case-insensitively and may be given with or without the leading dot; an
// empty list means DefaultExtensions. An application id that is empty or
// models.DefaultApplicationID is replaced by the base name of root.
func NewScanner(root, applicationID string, extensions []string) *Scanner {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	exts := make(map[string]struct{}, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = struct{}{}
	}
	appID := strings.TrimSpace(applicationID)
	if (appID == "" || appID == models.DefaultApplicationID) && root != "" {
		if base := filepath.Base(filepath.Clean(root)); base != "." && base != string(filepath.Separator) {
			appID = base
		}
	}
	if appID == "" {
		appID = models.DefaultApplicationID
	}
	if root != "" {
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
	}
	return &Scanner{root: root, appID: appID, extensions: exts}
}

// Root returns the scanned directory.
func (s *Scanner) Root() string { return s.root }

// ApplicationID returns the owner id used for every record of this root.
func (s *Scanner) ApplicationID() string { return s.appID }

// Allowed reports whether a file name has an allowed extension.
func (s *Scanner) Allowed(name string) bool {
	_, ok := s.extensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// ListFiles returns the sorted slash-separated paths, relative to the root, of
// every regular file with an allowed extension. Hidden directories are skipped.
// An unset root yields an empty list.
func (s *Scanner) ListFiles() ([]string, error) {
	if s.root == "" {
		return []string{}, nil
	}
	out := []string{}
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == s.root {
				return walkErr
			}
			return nil
		}
		if d.IsDir() {
			if path != s.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !s.Allowed(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list files under %s: %w", s.root, err)
	}
	sort.Strings(out)
	return out, nil
}

// Resolve returns the absolute path of rel, refusing paths that escape the root.
func (s *Scanner) Resolve(rel string) (string, error) {
	if s.root == "" {
		return "", fmt.Errorf("scanner root is not set")
	}
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the scanner root", rel)
	}
	return filepath.Join(s.root, clean), nil
}

// Rel converts an absolute path under the root into a slash-separated relative path.
func (s *Scanner) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the scanner root", abs)
	}
	return filepath.ToSlash(rel), nil
}

// FetchSnippets reads whole files as snippets. With no paths, the first max
// listed files are returned. Unreadable files yield empty content.
func (s *Scanner) FetchSnippets(paths []string, max int) ([]*models.CodeSnippet, error) {
	if len(paths) == 0 {
		all, err := s.ListFiles()
		if err != nil {
			return nil, err
		}
		paths = all
	}
	if max > 0 && len(paths) > max {
		paths = paths[:max]
	}
	out := make([]*models.CodeSnippet, 0, len(paths))
	for _, p := range paths {
		snippet := &models.CodeSnippet{Path: filepath.ToSlash(p), Source: "file"}
		if abs, err := s.Resolve(p); err == nil {
			if content, err := os.ReadFile(abs); err == nil {
				snippet.Content = string(content)
			}
		}
		out = append(out, snippet)
	}
	return out, nil
}
