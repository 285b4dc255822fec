package keyword

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/codeindex/internal/models"
)

const (
	fieldOwner   = "application_id"
	fieldPath    = "path"
	fieldContent = "content"
)

// BleveIndex implements Index using Bleve.
type BleveIndex struct {
	index bleve.Index
}

var _ Index = (*BleveIndex)(nil)

// NewBleveIndex creates or opens a Bleve index at path.
// An existing index is reopened as is; remove the directory after changing the mapping.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create keyword index directory: %w", err)
	}
	index, err := bleve.New(path, chunkMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// NewMemoryBleveIndex creates an index that lives only in memory.
func NewMemoryBleveIndex() (*BleveIndex, error) {
	index, err := bleve.NewMemOnly(chunkMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

func chunkMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	// Standard analyzer: lowercase and tokenize without stemming, so identifiers
	// match as written.
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt(fieldContent, text)
	docMapping.AddFieldMappingsAt(fieldPath, text)
	docMapping.AddFieldMappingsAt(fieldOwner, bleve.NewKeywordFieldMapping())

	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping
	return im
}

// normalizePath splits a path into words for the standard analyzer, so
// "src/order_service/OrderController.java" matches "order service".
func normalizePath(path string) string {
	return pathSeparators.Replace(path)
}

var pathSeparators = strings.NewReplacer("/", " ", "\\", " ", "_", " ", "-", " ", ".", " ")

// IndexChunk adds or replaces the chunk under its record id.
func (b *BleveIndex) IndexChunk(ctx context.Context, rec *models.ChunkRecord) error {
	doc := map[string]interface{}{
		fieldOwner:   rec.ApplicationID,
		fieldPath:    normalizePath(rec.Path),
		fieldContent: rec.Content,
	}
	if err := b.index.Index(rec.ID, doc); err != nil {
		return fmt.Errorf("failed to index chunk %s: %w", rec.ID, err)
	}
	return nil
}

// Search runs a match query and returns up to limit results.
// With no boosts a single match over path and content is used. With
// PathBoost or PhraseBoost > 1, path and content are queried separately and
// merged additively, with a term coverage penalty and a phrase bonus.
func (b *BleveIndex) Search(ctx context.Context, owner, query string, limit int, opts *SearchOptions) ([]*Result, error) {
	if limit <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	pathBoost := 1.0
	phraseBoost := 1.0
	fuzzy := false
	fuzziness := 2
	if opts != nil {
		if opts.PathBoost > 0 {
			pathBoost = opts.PathBoost
		}
		if opts.PhraseBoost > 0 {
			phraseBoost = opts.PhraseBoost
		}
		fuzzy = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}
	s := &searcher{index: b.index, owner: owner, fuzzy: fuzzy, fuzziness: fuzziness}
	if pathBoost <= 1.0 && phraseBoost <= 1.0 {
		return s.single(query, limit)
	}
	return s.boosted(query, limit, pathBoost, phraseBoost)
}

// searcher carries the per-call settings shared by the sub-queries of one Search.
type searcher struct {
	index     bleve.Index
	owner     string
	fuzzy     bool
	fuzziness int
}

// scoped restricts q to the owner when one is set.
func (s *searcher) scoped(q blevequery.Query) blevequery.Query {
	if s.owner == "" {
		return q
	}
	ownerQuery := bleve.NewTermQuery(s.owner)
	ownerQuery.SetField(fieldOwner)
	return bleve.NewConjunctionQuery(q, ownerQuery)
}

func (s *searcher) run(q blevequery.Query, size int) (*bleve.SearchResult, error) {
	req := bleve.NewSearchRequest(s.scoped(q))
	req.Size = size
	return s.index.Search(req)
}

func (s *searcher) match(query, field string) blevequery.Query {
	if s.fuzzy {
		return fuzzyQuery(query, s.fuzziness, field)
	}
	mq := bleve.NewMatchQuery(query)
	if field != "" {
		mq.SetField(field)
	}
	return mq
}

func (s *searcher) single(query string, limit int) ([]*Result, error) {
	results, err := s.run(s.match(query, ""), limit)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*Result, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &Result{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

func (s *searcher) boosted(query string, limit int, pathBoost, phraseBoost float64) ([]*Result, error) {
	reqSize := max(limit*2, 50)
	terms := tokenizeQuery(query)

	pathResults, err := s.run(s.match(query, fieldPath), reqSize)
	if err != nil {
		return nil, fmt.Errorf("Bleve path search failed: %w", err)
	}
	contentResults, err := s.run(s.match(query, fieldContent), reqSize)
	if err != nil {
		return nil, fmt.Errorf("Bleve content search failed: %w", err)
	}

	base := make(map[string]float64)
	for _, hit := range pathResults.Hits {
		base[hit.ID] += hit.Score * pathBoost
	}
	for _, hit := range contentResults.Hits {
		base[hit.ID] += hit.Score
	}

	coverage := map[string]int{}
	if len(terms) > 1 {
		coverage = s.termCoverage(terms, reqSize)
	}
	phrases := map[string]bool{}
	if phraseBoost > 1.0 && len(terms) > 1 {
		phrases = s.phraseMatches(query, reqSize)
	}

	merged := make([]*Result, 0, len(base))
	for id, score := range base {
		// (matched/total)^2 ranks chunks with every term above partial matches.
		if len(terms) > 1 {
			matched := max(coverage[id], 1)
			c := float64(matched) / float64(len(terms))
			score *= c * c
		}
		if phrases[id] {
			score *= phraseBoost
		}
		merged = append(merged, &Result{ID: id, Score: score})
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].ID < merged[j].ID
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// termCoverage counts how many distinct query terms each chunk matches.
func (s *searcher) termCoverage(terms []string, reqSize int) map[string]int {
	coverage := make(map[string]int)
	for _, term := range terms {
		results, err := s.run(s.match(term, ""), reqSize)
		if err != nil {
			continue
		}
		for _, hit := range results.Hits {
			coverage[hit.ID]++
		}
	}
	return coverage
}

// phraseMatches returns chunks where the query appears as a phrase in the content or path.
func (s *searcher) phraseMatches(query string, reqSize int) map[string]bool {
	matches := make(map[string]bool)
	for _, field := range []string{fieldContent, fieldPath} {
		pq := bleve.NewMatchPhraseQuery(query)
		pq.SetField(field)
		results, err := s.run(pq, reqSize)
		if err != nil {
			continue
		}
		for _, hit := range results.Hits {
			matches[hit.ID] = true
		}
	}
	return matches
}

// tokenizeQuery splits query into lowercase terms.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// fuzzyQuery ORs one fuzzy query per term. An empty field searches every field.
func fuzzyQuery(query string, fuzziness int, field string) blevequery.Query {
	terms := tokenizeQuery(query)
	if len(terms) == 0 {
		mq := bleve.NewMatchQuery(query)
		if field != "" {
			mq.SetField(field)
		}
		return mq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		if field != "" {
			fq.SetField(field)
		}
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// Delete removes a chunk from the index.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// DocCount returns the number of indexed chunks.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

// GetTermFrequency returns the number of chunks containing term.
func (b *BleveIndex) GetTermFrequency(term string) (int, error) {
	req := bleve.NewSearchRequest(bleve.NewMatchQuery(term))
	req.Size = 0
	results, err := b.index.Search(req)
	if err != nil {
		return 0, fmt.Errorf("failed to search for term frequency: %w", err)
	}
	return int(results.Total), nil
}

// GetAllTerms returns the unique terms of the content and path fields.
func (b *BleveIndex) GetAllTerms() ([]string, error) {
	var terms []string
	seen := make(map[string]struct{})
	for _, field := range []string{fieldContent, fieldPath} {
		dict, err := b.index.FieldDict(field)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s terms: %w", field, err)
		}
		for {
			entry, err := dict.Next()
			if err != nil || entry == nil {
				break
			}
			if _, ok := seen[entry.Term]; !ok {
				seen[entry.Term] = struct{}{}
				terms = append(terms, entry.Term)
			}
		}
		_ = dict.Close()
	}
	return terms, nil
}
