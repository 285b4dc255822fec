package keyword

import "testing"

func TestEditDistances(t *testing.T) {
	tests := []struct {
		name        string
		a, b        string
		levenshtein int
		damerau     int
	}{
		{"identical empty", "", "", 0, 0},
		{"empty a", "", "handler", 7, 7},
		{"empty b", "handler", "", 7, 7},
		{"one substitution", "cat", "bat", 1, 1},
		{"kitten to sitting", "kitten", "sitting", 3, 3},
		{"dropped letter", "controller", "controler", 1, 1},
		{"swapped letters", "fucntion", "function", 2, 1},
		{"ie swap", "recieve", "receive", 2, 1},
		{"transposition ab-ba", "ab", "ba", 2, 1},
		{"swap at end", "interface", "interfcae", 2, 1},
		{"case difference", "Repository", "repository", 1, 1},
		{"unicode substitution", "café", "cafe", 1, 1},
		{"unicode wide", "こんにちは", "こんにちわ", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LevenshteinDistance(tt.a, tt.b); got != tt.levenshtein {
				t.Errorf("LevenshteinDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.levenshtein)
			}
			if got := LevenshteinDistance(tt.b, tt.a); got != tt.levenshtein {
				t.Errorf("LevenshteinDistance is not symmetric for (%q, %q)", tt.a, tt.b)
			}
			if got := DamerauLevenshteinDistance(tt.a, tt.b); got != tt.damerau {
				t.Errorf("DamerauLevenshteinDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.damerau)
			}
		})
	}
}
