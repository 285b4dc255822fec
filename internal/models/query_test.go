package models

import (
	"testing"
)

func TestQueryRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		query   *QueryRequest
		wantErr bool
		wantK   int
	}{
		{"empty question", &QueryRequest{Question: ""}, true, 0},
		{"valid question", &QueryRequest{Question: "where is main?"}, false, DefaultTopK},
		{"keeps explicit k", &QueryRequest{Question: "x", K: 7}, false, 7},
		{"caps k", &QueryRequest{Question: "x", K: 500}, false, MaxTopK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.query.K != tt.wantK {
				t.Errorf("K = %d, want %d", tt.query.K, tt.wantK)
			}
		})
	}
}

func TestChunkRecord_CreatedTime(t *testing.T) {
	r := &ChunkRecord{CreatedAt: 1700000000123}
	if got := r.CreatedTime().UnixMilli(); got != 1700000000123 {
		t.Errorf("CreatedTime().UnixMilli() = %d", got)
	}
}
