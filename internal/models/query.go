package models

import "fmt"

// Default and maximum number of snippets returned for a question.
const (
	DefaultTopK = 3
	MaxTopK     = 50
)

// QueryRequest is a question with an optional list of file paths to consult.
type QueryRequest struct {
	Question string   `json:"question"`
	Paths    []string `json:"paths,omitempty"`
	K        int      `json:"k,omitempty"`
}

// Validate ensures the question is present and normalizes K.
func (q *QueryRequest) Validate() error {
	if q.Question == "" {
		return fmt.Errorf("question cannot be empty")
	}
	if q.K <= 0 {
		q.K = DefaultTopK
	}
	if q.K > MaxTopK {
		q.K = MaxTopK
	}
	return nil
}
