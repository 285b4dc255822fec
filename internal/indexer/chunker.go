// Package indexer discovers source files, splits them into chunks and upserts
// the chunks into the record store and the search indexes.
package indexer

// Default chunk window, in characters.
const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 200
)

// Chunk is one window of a file's content. Offsets are rune offsets,
// End exclusive.
type Chunk struct {
	Index int
	Start int
	End   int
	Text  string
}

// Chunker splits text into overlapping fixed-size character windows.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a chunker. Settings that cannot make progress (size <= 0,
// overlap < 0 or overlap >= size) fall back to the defaults.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 || overlap < 0 || overlap >= size {
		size, overlap = DefaultChunkSize, DefaultChunkOverlap
	}
	return &Chunker{size: size, overlap: overlap}
}

// Size returns the window size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the number of characters shared by consecutive windows.
func (c *Chunker) Overlap() int { return c.overlap }

// Split returns the windows of content. Window i starts at i*(size-overlap);
// the last window ends exactly at the end of content. Empty content yields no
// chunks and content shorter than one window yields exactly one.
func (c *Chunker) Split(content string) []Chunk {
	runes := []rune(content)
	n := len(runes)
	if n == 0 {
		return nil
	}
	chunks := make([]Chunk, 0, n/(c.size-c.overlap)+1)
	for start := 0; ; {
		end := min(start+c.size, n)
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Start: start,
			End:   end,
			Text:  string(runes[start:end]),
		})
		if end == n {
			break
		}
		start = end - c.overlap
	}
	return chunks
}
