package vector

// exactEngine is a brute-force cosine scan over every resident entry.
type exactEngine struct {
	entries *orderedVectors
}

func newExactEngine() *exactEngine {
	return &exactEngine{entries: newOrderedVectors()}
}

func (e *exactEngine) put(id string, vec []float32) error {
	e.entries.put(id, vec)
	return nil
}

func (e *exactEngine) remove(id string) {
	e.entries.delete(id)
}

func (e *exactEngine) search(q []float32, k int) []*VectorResult {
	return e.entries.scan(q, k)
}

func (e *exactEngine) len() int { return e.entries.len() }

func (e *exactEngine) each(fn func(id string, vec []float32)) { e.entries.each(fn) }
