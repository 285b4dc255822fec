package keyword

import (
	"errors"
	"reflect"
	"sort"
	"testing"
)

type mockTermDictionary struct {
	terms   map[string]int
	allErr  error
	freqErr error
	loads   int
}

func (m *mockTermDictionary) GetAllTerms() ([]string, error) {
	m.loads++
	if m.allErr != nil {
		return nil, m.allErr
	}
	out := make([]string, 0, len(m.terms))
	for term := range m.terms {
		out = append(out, term)
	}
	sort.Strings(out)
	return out, nil
}

func (m *mockTermDictionary) GetTermFrequency(term string) (int, error) {
	if m.freqErr != nil {
		return 0, m.freqErr
	}
	return m.terms[term], nil
}

func TestSpellChecker_Defaults(t *testing.T) {
	sc := NewSpellChecker(&mockTermDictionary{})
	if sc.maxDistance != 2 || sc.minFreq != 1 || sc.maxSuggestions != 5 {
		t.Errorf("defaults = (%d, %d, %d), want (2, 1, 5)", sc.maxDistance, sc.minFreq, sc.maxSuggestions)
	}
	sc = NewSpellChecker(&mockTermDictionary{}, WithMaxDistance(3), WithMinFrequency(5), WithMaxSuggestions(10))
	if sc.maxDistance != 3 || sc.minFreq != 5 || sc.maxSuggestions != 10 {
		t.Errorf("options = (%d, %d, %d), want (3, 5, 10)", sc.maxDistance, sc.minFreq, sc.maxSuggestions)
	}
}

func TestSpellChecker_Suggest(t *testing.T) {
	dict := &mockTermDictionary{terms: map[string]int{
		"controller": 12,
		"container":  3,
		"repository": 8,
		"rare":       0,
	}}
	sc := NewSpellChecker(dict)

	got := sc.Suggest("controler")
	if len(got) == 0 || got[0].Term != "controller" {
		t.Fatalf("Suggest(controler) = %+v, want controller first", got)
	}
	if got[0].Distance != 1 || got[0].Frequency != 12 {
		t.Errorf("suggestion = %+v", got[0])
	}
	if got := sc.Suggest("rara"); len(got) != 0 {
		t.Errorf("terms below min frequency must be ignored, got %+v", got)
	}
	if got := sc.Suggest("zzzzzz"); len(got) != 0 {
		t.Errorf("Suggest(zzzzzz) = %+v, want none", got)
	}
}

func TestSpellChecker_RanksByFrequency(t *testing.T) {
	dict := &mockTermDictionary{terms: map[string]int{"cart": 2, "card": 9, "care": 5}}
	sc := NewSpellChecker(dict, WithMaxSuggestions(2))
	got := sc.Suggest("carx")
	var terms []string
	for _, s := range got {
		terms = append(terms, s.Term)
	}
	if !reflect.DeepEqual(terms, []string{"card", "care"}) {
		t.Errorf("Suggest(carx) terms = %v, want [card care]", terms)
	}
}

func TestSpellChecker_Transpositions(t *testing.T) {
	dict := &mockTermDictionary{terms: map[string]int{"function": 4}}
	plain := NewSpellChecker(dict, WithMaxDistance(1))
	if got := plain.Suggest("fucntion"); len(got) != 0 {
		t.Errorf("plain Levenshtein should not reach a swap at distance 1, got %+v", got)
	}
	swaps := NewSpellChecker(dict, WithMaxDistance(1), WithTranspositions())
	if got := swaps.Suggest("fucntion"); len(got) != 1 || got[0].Term != "function" {
		t.Errorf("Suggest with transpositions = %+v", got)
	}
}

func TestSpellChecker_Check(t *testing.T) {
	dict := &mockTermDictionary{terms: map[string]int{"order": 5, "service": 7}}
	sc := NewSpellChecker(dict)

	res, err := sc.Check("Ordr servce")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.HasCorrections || res.CorrectedQuery != "order service" {
		t.Errorf("Check = %+v", res)
	}
	if !reflect.DeepEqual(res.MisspelledTerms, []string{"ordr", "servce"}) {
		t.Errorf("misspelled = %v", res.MisspelledTerms)
	}

	res, err = sc.Check("order service")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.HasCorrections {
		t.Errorf("known terms must not be corrected: %+v", res)
	}
	if got := sc.SuggestedQuery("order qqqqqqqq"); got != "order qqqqqqqq" {
		t.Errorf("SuggestedQuery = %q", got)
	}
}

func TestSpellChecker_CachesVocabulary(t *testing.T) {
	dict := &mockTermDictionary{terms: map[string]int{"order": 5}}
	sc := NewSpellChecker(dict)
	sc.Suggest("ordr")
	sc.Suggest("ordre")
	if dict.loads != 1 {
		t.Errorf("loads = %d, want 1", dict.loads)
	}
	sc.Invalidate()
	sc.Suggest("ordr")
	if dict.loads != 2 {
		t.Errorf("loads after Invalidate = %d, want 2", dict.loads)
	}
}

func TestSpellChecker_DictionaryErrors(t *testing.T) {
	sc := NewSpellChecker(&mockTermDictionary{allErr: errors.New("closed")})
	if _, err := sc.Check("anything"); err == nil {
		t.Error("Check should fail when the vocabulary cannot be loaded")
	}
	if got := sc.Suggest("anything"); got != nil {
		t.Errorf("Suggest = %+v, want nil", got)
	}
	if got := sc.SuggestedQuery("anything"); got != "anything" {
		t.Errorf("SuggestedQuery = %q", got)
	}

	sc = NewSpellChecker(&mockTermDictionary{terms: map[string]int{"order": 5}, freqErr: errors.New("closed")})
	if got := sc.Suggest("ordr"); len(got) != 0 {
		t.Errorf("frequency errors must drop the candidate, got %+v", got)
	}
}
