package index

import (
	"container/heap"
	"context"
	"math"
	"math/rand"
)

// hnswSeed fixes level assignment so a reloaded graph is reproducible for
// the same insertion order.
const hnswSeed = 1

type hnswNode struct {
	vec       []float32
	neighbors [][]int64 // level -> neighbor slots
}

// hnswBackend is a hierarchical navigable small-world graph. No training
// step; vectors are searchable immediately after insertion.
type hnswBackend struct {
	score     scorer
	m         int // max neighbors per node on upper levels
	mmax0     int // max neighbors on level 0
	efC       int
	efS       int
	levelMult float64
	nodes     map[int64]*hnswNode
	entry     int64
	maxLevel  int
	hasEntry  bool
	rng       *rand.Rand
}

func newHNSW(cfg Config) *hnswBackend {
	return &hnswBackend{
		score:     scorerFor(cfg.Metric),
		m:         cfg.HNSWM,
		mmax0:     cfg.HNSWM * 2,
		efC:       cfg.HNSWEfConstruction,
		efS:       cfg.HNSWEfSearch,
		levelMult: 1 / math.Log(float64(cfg.HNSWM)),
		nodes:     make(map[int64]*hnswNode),
		rng:       rand.New(rand.NewSource(hnswSeed)),
	}
}

func (h *hnswBackend) randomLevel() int {
	return int(-math.Log(h.rng.Float64()) * h.levelMult)
}

func (h *hnswBackend) add(id int64, vec []float32) {
	level := h.randomLevel()
	node := &hnswNode{vec: vec, neighbors: make([][]int64, level+1)}
	h.nodes[id] = node

	if !h.hasEntry {
		h.entry = id
		h.maxLevel = level
		h.hasEntry = true
		return
	}

	cur := candidate{id: h.entry, score: h.score(vec, h.nodes[h.entry].vec)}
	for lc := h.maxLevel; lc > level; lc-- {
		cur = h.greedyStep(vec, cur, lc)
	}

	top := level
	if top > h.maxLevel {
		top = h.maxLevel
	}
	for lc := top; lc >= 0; lc-- {
		found := h.searchLayer(vec, cur, h.efC, lc)
		limit := h.m
		if lc == 0 {
			limit = h.mmax0
		}

		neighbors := found
		if len(neighbors) > h.m {
			neighbors = neighbors[:h.m]
		}
		node.neighbors[lc] = make([]int64, 0, len(neighbors))
		for _, nb := range neighbors {
			if nb.id == id {
				continue
			}
			node.neighbors[lc] = append(node.neighbors[lc], nb.id)
			h.connect(nb.id, id, lc, limit)
		}
		if len(found) > 0 {
			cur = found[0]
		}
	}

	if level > h.maxLevel {
		h.maxLevel = level
		h.entry = id
	}
}

// connect adds 'to' into from's neighbor list at the given level, shrinking
// the list back to limit by similarity when it overflows.
func (h *hnswBackend) connect(from, to int64, level, limit int) {
	node := h.nodes[from]
	if level >= len(node.neighbors) {
		return
	}
	node.neighbors[level] = append(node.neighbors[level], to)
	if len(node.neighbors[level]) <= limit {
		return
	}

	cands := make([]candidate, 0, len(node.neighbors[level]))
	for _, nb := range node.neighbors[level] {
		cands = append(cands, candidate{id: nb, score: h.score(node.vec, h.nodes[nb].vec)})
	}
	cands = topK(cands, limit)
	kept := make([]int64, len(cands))
	for i, c := range cands {
		kept[i] = c.id
	}
	node.neighbors[level] = kept
}

// greedyStep moves to the best neighbor at the given level until no
// neighbor improves on cur.
func (h *hnswBackend) greedyStep(query []float32, cur candidate, level int) candidate {
	for {
		improved := false
		node := h.nodes[cur.id]
		if level < len(node.neighbors) {
			for _, nb := range node.neighbors[level] {
				if s := h.score(query, h.nodes[nb].vec); s > cur.score {
					cur = candidate{id: nb, score: s}
					improved = true
				}
			}
		}
		if !improved {
			return cur
		}
	}
}

// searchLayer is the beam search over one level. Returns up to ef
// candidates sorted by score descending.
func (h *hnswBackend) searchLayer(query []float32, entry candidate, ef, level int) []candidate {
	visited := map[int64]bool{entry.id: true}
	frontier := &candHeap{best: true}
	results := &candHeap{best: false}
	heap.Push(frontier, entry)
	heap.Push(results, entry)

	for frontier.Len() > 0 {
		c := heap.Pop(frontier).(candidate)
		if results.Len() >= ef && c.score < results.peek().score {
			break
		}
		node := h.nodes[c.id]
		if level >= len(node.neighbors) {
			continue
		}
		for _, nb := range node.neighbors[level] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			s := h.score(query, h.nodes[nb].vec)
			if results.Len() < ef || s > results.peek().score {
				cand := candidate{id: nb, score: s}
				heap.Push(frontier, cand)
				heap.Push(results, cand)
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]candidate, 0, results.Len())
	for results.Len() > 0 {
		out = append(out, heap.Pop(results).(candidate))
	}
	// Popped worst-first; reverse to score descending.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (h *hnswBackend) search(query []float32, k int) []candidate {
	if !h.hasEntry || k <= 0 {
		return nil
	}
	cur := candidate{id: h.entry, score: h.score(query, h.nodes[h.entry].vec)}
	for lc := h.maxLevel; lc > 0; lc-- {
		cur = h.greedyStep(query, cur, lc)
	}
	ef := h.efS
	if ef < k {
		ef = k
	}
	found := h.searchLayer(query, cur, ef, 0)
	return topK(found, k)
}

func (h *hnswBackend) needsTraining() bool           { return false }
func (h *hnswBackend) trained() bool                 { return true }
func (h *hnswBackend) train(_ context.Context) error { return nil }
func (h *hnswBackend) pending() int                  { return 0 }
func (h *hnswBackend) size() int                     { return len(h.nodes) }

func (h *hnswBackend) reset() {
	h.nodes = make(map[int64]*hnswNode)
	h.hasEntry = false
	h.maxLevel = 0
	h.rng = rand.New(rand.NewSource(hnswSeed))
}

// candHeap orders candidates best-first (max score) or worst-first
// (min score) depending on best.
type candHeap struct {
	items []candidate
	best  bool
}

func (h *candHeap) Len() int { return len(h.items) }

func (h *candHeap) Less(i, j int) bool {
	if h.best {
		return h.items[i].score > h.items[j].score
	}
	return h.items[i].score < h.items[j].score
}

func (h *candHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *candHeap) Push(x any) { h.items = append(h.items, x.(candidate)) }

func (h *candHeap) Pop() any {
	n := len(h.items)
	item := h.items[n-1]
	h.items = h.items[:n-1]
	return item
}

// peek returns the root without removing it.
func (h *candHeap) peek() candidate { return h.items[0] }
