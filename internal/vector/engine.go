package vector

import "sort"

// engine is the search structure behind a bound index. It is not safe for
// concurrent use; Index serializes access.
type engine interface {
	put(id string, vec []float32) error
	remove(id string)
	search(q []float32, k int) []*VectorResult
	len() int
	// each visits entries in insertion order.
	each(fn func(id string, vec []float32))
}

// orderedVectors is an id -> vector map that remembers insertion order.
// Replacing an id keeps its original position.
type orderedVectors struct {
	ids  []string
	vecs [][]float32
	pos  map[string]int
}

func newOrderedVectors() *orderedVectors {
	return &orderedVectors{pos: make(map[string]int)}
}

func (o *orderedVectors) put(id string, vec []float32) {
	if i, ok := o.pos[id]; ok {
		o.vecs[i] = vec
		return
	}
	o.pos[id] = len(o.ids)
	o.ids = append(o.ids, id)
	o.vecs = append(o.vecs, vec)
}

func (o *orderedVectors) delete(id string) bool {
	i, ok := o.pos[id]
	if !ok {
		return false
	}
	delete(o.pos, id)
	o.ids = append(o.ids[:i], o.ids[i+1:]...)
	o.vecs = append(o.vecs[:i], o.vecs[i+1:]...)
	for j := i; j < len(o.ids); j++ {
		o.pos[o.ids[j]] = j
	}
	return true
}

func (o *orderedVectors) len() int { return len(o.ids) }

func (o *orderedVectors) each(fn func(id string, vec []float32)) {
	for i, id := range o.ids {
		fn(id, o.vecs[i])
	}
}

func (o *orderedVectors) clone() *orderedVectors {
	c := &orderedVectors{
		ids:  append([]string(nil), o.ids...),
		vecs: append([][]float32(nil), o.vecs...),
		pos:  make(map[string]int, len(o.pos)),
	}
	for id, i := range o.pos {
		c.pos[id] = i
	}
	return c
}

// scan ranks every entry against q.
func (o *orderedVectors) scan(q []float32, k int) []*VectorResult {
	if k <= 0 || len(q) == 0 || len(o.ids) == 0 {
		return nil
	}
	results := make([]*VectorResult, len(o.ids))
	for i, vec := range o.vecs {
		results[i] = &VectorResult{ID: o.ids[i], Score: Cosine(q, vec)}
	}
	sortResults(results)
	if k < len(results) {
		results = results[:k]
	}
	return results
}

func sortResults(results []*VectorResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
