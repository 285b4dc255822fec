package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/codeindex/internal/jobs"
	"github.com/hyperjump/codeindex/internal/models"
	"github.com/hyperjump/codeindex/internal/vector"
)

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"JSON", OutputJSON, false},
		{"compact", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseOutputFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriteSnippets_JSON(t *testing.T) {
	resp := &models.RetrieveResponse{
		Question:  "where is checkout?",
		QueryTime: 42,
		Snippets: []*models.CodeSnippet{
			{ID: "shop:cart.go:0", Path: "cart.go", Content: "func Checkout() {}", Score: 0.9, Source: "semantic"},
		},
	}
	var buf bytes.Buffer
	if err := WriteSnippets(&buf, resp, OutputJSON); err != nil {
		t.Fatalf("WriteSnippets(json): %v", err)
	}
	var decoded models.RetrieveResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Question != resp.Question || decoded.QueryTime != 42 {
		t.Errorf("decoded %+v", decoded)
	}
	if len(decoded.Snippets) != 1 || decoded.Snippets[0].Path != "cart.go" {
		t.Errorf("decoded snippets %+v", decoded.Snippets)
	}
}

func TestWriteSnippets_Text(t *testing.T) {
	resp := &models.RetrieveResponse{
		QueryTime: 10,
		Snippets: []*models.CodeSnippet{
			{ID: "shop:cart.go:0", Path: "cart.go", Content: strings.Repeat("x", 500), Score: 0.5, Source: "keyword"},
		},
	}
	var buf bytes.Buffer
	if err := WriteSnippets(&buf, resp, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, sub := range []string{"Found 1 snippets", "10ms", "[keyword] Rank: 1", "Path: cart.go", "ID: shop:cart.go:0", "..."} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}
	if strings.Contains(out, strings.Repeat("x", snippetPreview+1)) {
		t.Error("snippet content was not truncated")
	}
}

func TestWriteAnswer(t *testing.T) {
	resp := &models.QueryResponse{
		Answer:   "  Checkout lives in cart.go.\n",
		Snippets: []*models.CodeSnippet{{Path: "cart.go"}, {Path: "order.go"}},
	}
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, resp, OutputText); err != nil {
		t.Fatal(err)
	}
	want := "Checkout lives in cart.go.\n\nSources: cart.go, order.go\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestWriteStatus_Text(t *testing.T) {
	st := &Status{
		Records:        12,
		Index:          vector.Stats{Strategy: "hnsw", Size: 10, Dimensions: 64, Bound: true, Params: vector.DefaultParams()},
		DiskUsageBytes: 2048,
		ApplicationID:  "shop",
		Root:           "/src/shop",
		SnapshotPath:   "/data/ann-index.idx",
	}
	var buf bytes.Buffer
	if err := WriteStatus(&buf, st, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, sub := range []string{"shop", "Records:       12", "10 (hnsw, 64 dimensions)", "m=16", "2.0 KiB"} {
		if !strings.Contains(out, sub) {
			t.Errorf("status output missing %q:\n%s", sub, out)
		}
	}
}

func TestWriteJobStatus(t *testing.T) {
	tests := []struct {
		name string
		st   jobs.Status
		want string
	}{
		{"none", jobs.Status{}, "No scan job has run\n"},
		{"running", jobs.Status{JobID: "j1", Running: true, TotalFiles: 4, ProcessedFiles: 1}, "Job j1: running, 1/4 files\n"},
		{"paused", jobs.Status{JobID: "j1", Running: true, Paused: true, TotalFiles: 4, ProcessedFiles: 2}, "Job j1: paused, 2/4 files\n"},
		{"cancelled", jobs.Status{JobID: "j1", Cancelled: true, TotalFiles: 4, ProcessedFiles: 2}, "Job j1: cancelled, 2/4 files\n"},
		{"finished", jobs.Status{JobID: "j1", TotalFiles: 4, ProcessedFiles: 4}, "Job j1: finished, 4/4 files\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteJobStatus(&buf, tt.st, OutputText); err != nil {
				t.Fatal(err)
			}
			if buf.String() != tt.want {
				t.Errorf("got %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		0:           "0 B",
		1023:        "1023 B",
		1024:        "1.0 KiB",
		1536:        "1.5 KiB",
		5 * 1 << 20: "5.0 MiB",
	}
	for n, want := range tests {
		if got := FormatBytes(n); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", n, got, want)
		}
	}
}
