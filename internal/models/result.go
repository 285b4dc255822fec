package models

// CodeSnippet is a piece of source returned to the caller or fed into a prompt.
type CodeSnippet struct {
	ID      string  `json:"id,omitempty"`
	Path    string  `json:"path"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
	// Source is "semantic", "keyword", "hybrid", "scan" or "file".
	Source string `json:"source,omitempty"`
}

// RetrieveResponse is the response for a snippet-only retrieval.
type RetrieveResponse struct {
	Question  string         `json:"question"`
	Snippets  []*CodeSnippet `json:"snippets"`
	QueryTime int64          `json:"query_time_ms"`
}

// QueryResponse is the response for a question answered by the language model.
type QueryResponse struct {
	Answer   string         `json:"answer"`
	Snippets []*CodeSnippet `json:"snippets,omitempty"`
}
