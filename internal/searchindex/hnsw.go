package searchindex

import (
	"container/heap"
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/hudson-blanoire/chroma-server/internal/model"
)

const (
	M              = 16 // max connections per upper layer
	M0             = 32 // max connections on layer 0
	EfConstruction = 100
	EfSearch       = 50
	maxLevel       = 16

	// compaction kicks in once tombstones outnumber live nodes
	minTombstonesForCompaction = 64
)

// HNSW is an in-process index keeping one graph per collection.
// It is not persisted; callers rebuild it from the store on startup.
type HNSW struct {
	mu     sync.RWMutex
	graphs map[string]*graph
	seed   int64
}

func NewHNSW() *HNSW {
	return &HNSW{graphs: make(map[string]*graph), seed: time.Now().UnixNano()}
}

// Volatile marks the index as memory-only.
func (h *HNSW) Volatile() bool { return true }

// HealthPing implements health.HealthPinger; the in-process index is always available.
func (h *HNSW) HealthPing(ctx context.Context) error { return ctx.Err() }

func (h *HNSW) EnsureCollection(_ context.Context, collectionID string, space model.Space) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.graphs[collectionID]; !ok {
		h.seed++
		h.graphs[collectionID] = newGraph(space, h.seed)
	}
	return nil
}

func (h *HNSW) graph(collectionID string) (*graph, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	g, ok := h.graphs[collectionID]
	if !ok {
		return nil, ErrUnknownCollection
	}
	return g, nil
}

func (h *HNSW) Upsert(_ context.Context, collectionID string, items []Item) error {
	g, err := h.graph(collectionID)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, it := range items {
		g.insert(it.ID, it.Embedding)
	}
	g.maybeCompact()
	return nil
}

func (h *HNSW) Delete(_ context.Context, collectionID string, ids []string) error {
	g, err := h.graph(collectionID)
	if err != nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range ids {
		g.remove(id)
	}
	g.maybeCompact()
	return nil
}

func (h *HNSW) DropCollection(_ context.Context, collectionID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.graphs, collectionID)
	return nil
}

func (h *HNSW) Search(_ context.Context, collectionID string, vec []float32, k int) ([]Hit, error) {
	g, err := h.graph(collectionID)
	if err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.search(vec, k), nil
}

func (h *HNSW) Reset(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.graphs = make(map[string]*graph)
	return nil
}

// Len returns the number of live vectors in a collection.
func (h *HNSW) Len(collectionID string) int {
	g, err := h.graph(collectionID)
	if err != nil {
		return 0
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.byID)
}

type node struct {
	id      string
	vec     []float32
	friends [][]int32
	deleted bool
}

type graph struct {
	mu       sync.RWMutex
	dist     DistanceFunc
	space    model.Space
	nodes    []*node
	byID     map[string]int32
	entry    int32
	topLevel int
	deleted  int
	rng      *rand.Rand
	levelMul float64
}

func newGraph(space model.Space, seed int64) *graph {
	return &graph{
		dist:     Distance(space),
		space:    space,
		byID:     make(map[string]int32),
		entry:    -1,
		topLevel: -1,
		rng:      rand.New(rand.NewSource(seed)),
		levelMul: 1 / math.Log(float64(M)),
	}
}

func (g *graph) randomLevel() int {
	lvl := int(math.Floor(-math.Log(1-g.rng.Float64()) * g.levelMul))
	if lvl > maxLevel {
		lvl = maxLevel
	}
	return lvl
}

func (g *graph) remove(id string) {
	i, ok := g.byID[id]
	if !ok {
		return
	}
	g.nodes[i].deleted = true
	delete(g.byID, id)
	g.deleted++
}

func (g *graph) insert(id string, vec []float32) {
	g.remove(id)

	level := g.randomLevel()
	n := &node{id: id, vec: append([]float32(nil), vec...), friends: make([][]int32, level+1)}
	idx := int32(len(g.nodes))
	g.nodes = append(g.nodes, n)
	g.byID[id] = idx

	if g.entry < 0 {
		g.entry = idx
		g.topLevel = level
		return
	}

	ep := g.entry
	for l := g.topLevel; l > level; l-- {
		ep = g.greedy(n.vec, ep, l)
	}
	for l := min(level, g.topLevel); l >= 0; l-- {
		cands := g.searchLayer(n.vec, ep, EfConstruction, l)
		neighbours := cands
		if len(neighbours) > M {
			neighbours = neighbours[:M]
		}
		n.friends[l] = make([]int32, 0, len(neighbours))
		for _, c := range neighbours {
			n.friends[l] = append(n.friends[l], c.idx)
			g.link(c.idx, idx, l)
		}
		if len(cands) > 0 {
			ep = cands[0].idx
		}
	}
	if level > g.topLevel {
		g.entry = idx
		g.topLevel = level
	}
}

// link adds to as a neighbour of from, pruning to the closest when over capacity.
func (g *graph) link(from, to int32, level int) {
	f := g.nodes[from]
	f.friends[level] = append(f.friends[level], to)
	limit := M
	if level == 0 {
		limit = M0
	}
	if len(f.friends[level]) <= limit {
		return
	}
	scored := make([]candidate, len(f.friends[level]))
	for i, nb := range f.friends[level] {
		scored[i] = candidate{idx: nb, dist: g.dist(f.vec, g.nodes[nb].vec)}
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].dist < scored[j].dist })
	kept := f.friends[level][:0]
	for _, c := range scored[:limit] {
		kept = append(kept, c.idx)
	}
	f.friends[level] = kept
}

func (g *graph) greedy(q []float32, ep int32, level int) int32 {
	cur := ep
	curDist := g.dist(q, g.nodes[cur].vec)
	for changed := true; changed; {
		changed = false
		for _, nb := range g.nodes[cur].friends[level] {
			if d := g.dist(q, g.nodes[nb].vec); d < curDist {
				cur, curDist = nb, d
				changed = true
			}
		}
	}
	return cur
}

// searchLayer returns up to ef closest nodes (tombstones included) in ascending order.
func (g *graph) searchLayer(q []float32, ep int32, ef int, level int) []candidate {
	visited := map[int32]struct{}{ep: {}}
	start := candidate{idx: ep, dist: g.dist(q, g.nodes[ep].vec)}
	cands := &minHeap{start}
	results := &maxHeap{start}

	for cands.Len() > 0 {
		c := heap.Pop(cands).(candidate)
		if results.Len() >= ef && c.dist > (*results)[0].dist {
			break
		}
		for _, nb := range g.nodes[c.idx].friends[level] {
			if _, seen := visited[nb]; seen {
				continue
			}
			visited[nb] = struct{}{}
			d := g.dist(q, g.nodes[nb].vec)
			if results.Len() < ef || d < (*results)[0].dist {
				heap.Push(cands, candidate{idx: nb, dist: d})
				heap.Push(results, candidate{idx: nb, dist: d})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]candidate, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(candidate)
	}
	return out
}

func (g *graph) search(q []float32, k int) []Hit {
	if k <= 0 || len(g.byID) == 0 {
		return nil
	}
	ep := g.entry
	for l := g.topLevel; l > 0; l-- {
		ep = g.greedy(q, ep, l)
	}
	ef := max(EfSearch, k) + g.deleted
	found := g.searchLayer(q, ep, ef, 0)

	hits := make([]Hit, 0, k)
	for _, c := range found {
		n := g.nodes[c.idx]
		if n.deleted {
			continue
		}
		hits = append(hits, Hit{ID: n.id, Distance: c.dist})
		if len(hits) == k {
			break
		}
	}
	return hits
}

// maybeCompact rebuilds the graph from live nodes once tombstones dominate.
func (g *graph) maybeCompact() {
	if g.deleted < minTombstonesForCompaction || g.deleted <= len(g.byID) {
		return
	}
	live := make([]*node, 0, len(g.byID))
	for _, n := range g.nodes {
		if !n.deleted {
			live = append(live, n)
		}
	}
	g.nodes = nil
	g.byID = make(map[string]int32, len(live))
	g.entry = -1
	g.topLevel = -1
	g.deleted = 0
	for _, n := range live {
		g.insert(n.id, n.vec)
	}
}

type candidate struct {
	idx  int32
	dist float32
}

type minHeap []candidate

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

type maxHeap []candidate

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}
