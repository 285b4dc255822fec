// Package cli formats command output for the codeindex CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/codeindex/internal/jobs"
	"github.com/hyperjump/codeindex/internal/models"
	"github.com/hyperjump/codeindex/internal/vector"
	"github.com/hyperjump/codeindex/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// snippetPreview is how many characters of a snippet the text format shows.
const snippetPreview = 400

// ParseOutputFormat maps a flag value to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q; use text or json", s)
}

// Status is the summary printed by the status command.
type Status struct {
	Records        int64        `json:"records"`
	Index          vector.Stats `json:"index"`
	DiskUsageBytes int64        `json:"disk_usage_bytes"`
	ApplicationID  string       `json:"application_id"`
	Root           string       `json:"root"`
	SnapshotPath   string       `json:"snapshot_path"`
}

// WriteSnippets writes retrieval results to w in the given format.
func WriteSnippets(w io.Writer, resp *models.RetrieveResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "\nFound %d snippets in %dms\n\n", len(resp.Snippets), resp.QueryTime)
	for i, s := range resp.Snippets {
		writeSnippet(w, i+1, s)
	}
	return nil
}

func writeSnippet(w io.Writer, rank int, s *models.CodeSnippet) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "[%s] Rank: %d | Score: %.4f\n", s.Source, rank, s.Score)
	fmt.Fprintf(w, "Path: %s\n", s.Path)
	if s.ID != "" {
		fmt.Fprintf(w, "ID: %s\n", s.ID)
	}
	fmt.Fprintf(w, "\n%s\n", utils.Truncate(s.Content, snippetPreview))
	fmt.Fprintln(w)
}

// WriteAnswer writes a model answer and the snippets it was given.
func WriteAnswer(w io.Writer, resp *models.QueryResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintln(w, strings.TrimSpace(resp.Answer))
	if len(resp.Snippets) > 0 {
		paths := make([]string, len(resp.Snippets))
		for i, s := range resp.Snippets {
			paths[i] = s.Path
		}
		fmt.Fprintf(w, "\nSources: %s\n", strings.Join(paths, ", "))
	}
	return nil
}

// WriteStatus writes the index and store summary.
func WriteStatus(w io.Writer, st *Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "Application:   %s\n", st.ApplicationID)
	fmt.Fprintf(w, "Root:          %s\n", st.Root)
	fmt.Fprintf(w, "Records:       %d\n", st.Records)
	fmt.Fprintf(w, "Index size:    %d (%s", st.Index.Size, st.Index.Strategy)
	if st.Index.Bound {
		fmt.Fprintf(w, ", %d dimensions", st.Index.Dimensions)
	} else {
		fmt.Fprint(w, ", unbound")
	}
	fmt.Fprintln(w, ")")
	fmt.Fprintf(w, "Graph params:  m=%d efConstruction=%d efSearch=%d maxItems=%d\n",
		st.Index.Params.M, st.Index.Params.EfConstruction, st.Index.Params.EfSearch, st.Index.Params.MaxItems)
	fmt.Fprintf(w, "Snapshot:      %s\n", st.SnapshotPath)
	fmt.Fprintf(w, "Disk usage:    %s\n", FormatBytes(st.DiskUsageBytes))
	return nil
}

// WriteJobStatus writes scan job progress.
func WriteJobStatus(w io.Writer, st jobs.Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	if st.JobID == "" {
		fmt.Fprintln(w, "No scan job has run")
		return nil
	}
	state := "finished"
	switch {
	case st.Running && st.Paused:
		state = "paused"
	case st.Running:
		state = "running"
	case st.Cancelled:
		state = "cancelled"
	}
	fmt.Fprintf(w, "Job %s: %s, %d/%d files\n", st.JobID, state, st.ProcessedFiles, st.TotalFiles)
	return nil
}

// FormatBytes renders n with a binary unit.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
