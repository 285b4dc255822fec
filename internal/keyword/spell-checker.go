package keyword

import (
	"sort"
	"strings"
	"sync"
)

// Suggestion is a spelling suggestion for one term.
type Suggestion struct {
	Term      string
	Distance  int
	Frequency int
	Score     float64
}

// SpellCheckResult is the outcome of checking a query.
type SpellCheckResult struct {
	OriginalQuery   string
	CorrectedQuery  string
	Suggestions     []Suggestion
	HasCorrections  bool
	MisspelledTerms []string
}

// SpellChecker suggests index terms for query words the index does not contain.
// It caches the vocabulary; call Invalidate after the index changes.
type SpellChecker struct {
	dictionary     TermDictionary
	maxDistance    int
	minFreq        int
	maxSuggestions int
	distance       func(a, b string) int

	mu      sync.RWMutex
	terms   []string
	termSet map[string]struct{}
	loaded  bool
}

// SpellCheckerOption configures a SpellChecker.
type SpellCheckerOption func(*SpellChecker)

// WithMaxDistance sets the maximum edit distance for suggestions.
func WithMaxDistance(d int) SpellCheckerOption {
	return func(s *SpellChecker) {
		if d > 0 {
			s.maxDistance = d
		}
	}
}

// WithMinFrequency ignores terms found in fewer than f chunks.
func WithMinFrequency(f int) SpellCheckerOption {
	return func(s *SpellChecker) {
		if f >= 0 {
			s.minFreq = f
		}
	}
}

// WithMaxSuggestions caps the suggestions returned per term.
func WithMaxSuggestions(n int) SpellCheckerOption {
	return func(s *SpellChecker) {
		if n > 0 {
			s.maxSuggestions = n
		}
	}
}

// WithTranspositions counts a swap of adjacent characters as one edit.
func WithTranspositions() SpellCheckerOption {
	return func(s *SpellChecker) { s.distance = DamerauLevenshteinDistance }
}

// NewSpellChecker creates a spell checker over dict.
func NewSpellChecker(dict TermDictionary, opts ...SpellCheckerOption) *SpellChecker {
	s := &SpellChecker{
		dictionary:     dict,
		maxDistance:    2,
		minFreq:        1,
		maxSuggestions: 5,
		distance:       LevenshteinDistance,
		termSet:        make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Refresh reloads the vocabulary from the dictionary.
func (s *SpellChecker) Refresh() error {
	terms, err := s.dictionary.GetAllTerms()
	if err != nil {
		return err
	}
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[strings.ToLower(t)] = struct{}{}
	}
	s.mu.Lock()
	s.terms = terms
	s.termSet = set
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// Invalidate makes the next call reload the vocabulary.
func (s *SpellChecker) Invalidate() {
	s.mu.Lock()
	s.loaded = false
	s.mu.Unlock()
}

func (s *SpellChecker) ensureLoaded() error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}
	return s.Refresh()
}

func (s *SpellChecker) known(term string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.termSet[term]
	return ok
}

// Check replaces every unknown term of query with its best suggestion.
func (s *SpellChecker) Check(query string) (*SpellCheckResult, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	result := &SpellCheckResult{OriginalQuery: query}
	terms := tokenizeQuery(query)
	corrected := make([]string, 0, len(terms))
	for _, term := range terms {
		if s.known(term) {
			corrected = append(corrected, term)
			continue
		}
		suggestions := s.suggest(term)
		if len(suggestions) == 0 {
			corrected = append(corrected, term)
			continue
		}
		result.HasCorrections = true
		result.MisspelledTerms = append(result.MisspelledTerms, term)
		result.Suggestions = append(result.Suggestions, suggestions...)
		corrected = append(corrected, suggestions[0].Term)
	}
	result.CorrectedQuery = strings.Join(corrected, " ")
	return result, nil
}

// Suggest returns the closest index terms for term, best first.
func (s *SpellChecker) Suggest(term string) []Suggestion {
	if err := s.ensureLoaded(); err != nil {
		return nil
	}
	return s.suggest(strings.ToLower(term))
}

func (s *SpellChecker) suggest(term string) []Suggestion {
	s.mu.RLock()
	terms := s.terms
	s.mu.RUnlock()

	n := len([]rune(term))
	var out []Suggestion
	for _, candidate := range terms {
		lower := strings.ToLower(candidate)
		if lower == term {
			continue
		}
		if diff := len([]rune(lower)) - n; diff > s.maxDistance || -diff > s.maxDistance {
			continue
		}
		d := s.distance(term, lower)
		if d > s.maxDistance {
			continue
		}
		freq, err := s.dictionary.GetTermFrequency(candidate)
		if err != nil || freq < s.minFreq {
			continue
		}
		out = append(out, Suggestion{
			Term:      candidate,
			Distance:  d,
			Frequency: freq,
			Score:     float64(freq) / float64(d+1),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Term < out[j].Term
	})
	if len(out) > s.maxSuggestions {
		out = out[:s.maxSuggestions]
	}
	return out
}

// SuggestedQuery returns the corrected query, or query itself when nothing changed.
func (s *SpellChecker) SuggestedQuery(query string) string {
	result, err := s.Check(query)
	if err != nil || !result.HasCorrections {
		return query
	}
	return result.CorrectedQuery
}
