package vector

import (
	"container/heap"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

const (
	hnswMaxLevel = 16
	hnswSeed     = 42
)

type hnswNode struct {
	id      string
	vec     []float32
	level   int
	friends [][]int32 // [level][neighbours]
}

// hnswEngine is a hierarchical navigable small world graph using cosine distance.
// The graph has no in-place delete; remove rebuilds it without the id.
type hnswEngine struct {
	params    Params
	nodes     []*hnswNode
	lookup    map[string]int32
	entry     int32
	maxLevel  int
	levelMult float64
	rng       *rand.Rand
}

func newHNSWEngine(p Params) *hnswEngine {
	return &hnswEngine{
		params:    p,
		lookup:    make(map[string]int32),
		entry:     -1,
		maxLevel:  -1,
		levelMult: 1 / math.Log(float64(max(p.M, 2))),
		rng:       rand.New(rand.NewSource(hnswSeed)),
	}
}

func (h *hnswEngine) len() int { return len(h.nodes) }

func (h *hnswEngine) each(fn func(id string, vec []float32)) {
	for _, n := range h.nodes {
		fn(n.id, n.vec)
	}
}

func (h *hnswEngine) put(id string, vec []float32) error {
	if i, ok := h.lookup[id]; ok {
		h.nodes[i].vec = vec
		h.link(i)
		return nil
	}
	if h.params.MaxItems > 0 && len(h.nodes) >= h.params.MaxItems {
		return fmt.Errorf("%w: max items %d", ErrCapacityExceeded, h.params.MaxItems)
	}
	level := h.randomLevel()
	idx := int32(len(h.nodes))
	h.nodes = append(h.nodes, &hnswNode{
		id:      id,
		vec:     vec,
		level:   level,
		friends: make([][]int32, level+1),
	})
	h.lookup[id] = idx
	if h.entry < 0 {
		h.entry = idx
		h.maxLevel = level
		return nil
	}
	h.link(idx)
	if level > h.maxLevel {
		h.entry = idx
		h.maxLevel = level
	}
	return nil
}

// link connects node idx into every layer it lives on.
func (h *hnswEngine) link(idx int32) {
	n := h.nodes[idx]
	ep := h.entry
	if ep == idx && len(h.nodes) == 1 {
		return
	}
	for l := h.maxLevel; l > n.level; l-- {
		ep = h.greedy(n.vec, ep, l)
	}
	for l := min(n.level, h.maxLevel); l >= 0; l-- {
		cands := h.searchLayer(n.vec, ep, h.params.EfConstruction, l, idx)
		limit := h.maxConn(l)
		if len(cands) > limit {
			cands = cands[:limit]
		}
		n.friends[l] = n.friends[l][:0]
		for _, c := range cands {
			n.friends[l] = append(n.friends[l], c.node)
			h.connect(c.node, idx, l)
		}
		if len(cands) > 0 {
			ep = cands[0].node
		}
	}
}

// connect adds a directed edge from -> to on level l, pruning to the closest maxConn.
func (h *hnswEngine) connect(from, to int32, l int) {
	n := h.nodes[from]
	if l >= len(n.friends) {
		return
	}
	for _, f := range n.friends[l] {
		if f == to {
			return
		}
	}
	n.friends[l] = append(n.friends[l], to)
	limit := h.maxConn(l)
	if len(n.friends[l]) <= limit {
		return
	}
	ranked := make([]hnswCandidate, len(n.friends[l]))
	for i, f := range n.friends[l] {
		ranked[i] = hnswCandidate{node: f, dist: h.distance(n.vec, f)}
	}
	h.sortCandidates(ranked)
	n.friends[l] = n.friends[l][:0]
	for _, c := range ranked[:limit] {
		n.friends[l] = append(n.friends[l], c.node)
	}
}

func (h *hnswEngine) remove(id string) {
	if _, ok := h.lookup[id]; !ok {
		return
	}
	fresh := newHNSWEngine(h.params)
	for _, n := range h.nodes {
		if n.id == id {
			continue
		}
		// capacity cannot be exceeded: the graph is shrinking
		_ = fresh.put(n.id, n.vec)
	}
	*h = *fresh
}

func (h *hnswEngine) search(q []float32, k int) []*VectorResult {
	if k <= 0 || len(q) == 0 || h.entry < 0 {
		return nil
	}
	ep := h.entry
	for l := h.maxLevel; l > 0; l-- {
		ep = h.greedy(q, ep, l)
	}
	cands := h.searchLayer(q, ep, max(h.params.EfSearch, k), 0, -1)
	results := make([]*VectorResult, len(cands))
	for i, c := range cands {
		n := h.nodes[c.node]
		results[i] = &VectorResult{ID: n.id, Score: Cosine(q, n.vec)}
	}
	sortResults(results)
	if k < len(results) {
		results = results[:k]
	}
	return results
}

// greedy walks level l from ep towards q and returns the closest node found.
func (h *hnswEngine) greedy(q []float32, ep int32, l int) int32 {
	cur := ep
	curDist := h.distance(q, cur)
	for changed := true; changed; {
		changed = false
		n := h.nodes[cur]
		if l >= len(n.friends) {
			break
		}
		for _, f := range n.friends[l] {
			if d := h.distance(q, f); d < curDist {
				cur, curDist = f, d
				changed = true
			}
		}
	}
	return cur
}

// searchLayer is a beam search of width ef on level l. skip is excluded from
// the results but still expanded; pass -1 to keep everything.
func (h *hnswEngine) searchLayer(q []float32, ep int32, ef, l int, skip int32) []hnswCandidate {
	visited := map[int32]struct{}{ep: {}}
	first := hnswCandidate{node: ep, dist: h.distance(q, ep)}
	cands := &nearHeap{first}
	found := &farHeap{}
	if ep != skip {
		heap.Push(found, first)
	}
	for cands.Len() > 0 {
		c := heap.Pop(cands).(hnswCandidate)
		if found.Len() >= ef && c.dist > (*found)[0].dist {
			break
		}
		n := h.nodes[c.node]
		if l >= len(n.friends) {
			continue
		}
		for _, f := range n.friends[l] {
			if _, seen := visited[f]; seen {
				continue
			}
			visited[f] = struct{}{}
			d := h.distance(q, f)
			if found.Len() < ef || d < (*found)[0].dist {
				next := hnswCandidate{node: f, dist: d}
				heap.Push(cands, next)
				if f != skip {
					heap.Push(found, next)
					if found.Len() > ef {
						heap.Pop(found)
					}
				}
			}
		}
	}
	out := append([]hnswCandidate(nil), (*found)...)
	h.sortCandidates(out)
	return out
}

func (h *hnswEngine) sortCandidates(cs []hnswCandidate) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].dist != cs[j].dist {
			return cs[i].dist < cs[j].dist
		}
		return h.nodes[cs[i].node].id < h.nodes[cs[j].node].id
	})
}

func (h *hnswEngine) distance(q []float32, node int32) float64 {
	return 1 - Cosine(q, h.nodes[node].vec)
}

func (h *hnswEngine) maxConn(l int) int {
	if l == 0 {
		return 2 * h.params.M
	}
	return h.params.M
}

func (h *hnswEngine) randomLevel() int {
	lvl := int(math.Floor(-math.Log(1-h.rng.Float64()) * h.levelMult))
	return min(lvl, hnswMaxLevel)
}

type hnswCandidate struct {
	node int32
	dist float64
}

// nearHeap pops the closest candidate first.
type nearHeap []hnswCandidate

func (x nearHeap) Len() int           { return len(x) }
func (x nearHeap) Less(i, j int) bool { return x[i].dist < x[j].dist }
func (x nearHeap) Swap(i, j int)      { x[i], x[j] = x[j], x[i] }
func (x *nearHeap) Push(v any)        { *x = append(*x, v.(hnswCandidate)) }
func (x *nearHeap) Pop() any {
	old := *x
	v := old[len(old)-1]
	*x = old[:len(old)-1]
	return v
}

// farHeap keeps the furthest of the current results on top.
type farHeap []hnswCandidate

func (x farHeap) Len() int           { return len(x) }
func (x farHeap) Less(i, j int) bool { return x[i].dist > x[j].dist }
func (x farHeap) Swap(i, j int)      { x[i], x[j] = x[j], x[i] }
func (x *farHeap) Push(v any)        { *x = append(*x, v.(hnswCandidate)) }
func (x *farHeap) Pop() any {
	old := *x
	v := old[len(old)-1]
	*x = old[:len(old)-1]
	return v
}
