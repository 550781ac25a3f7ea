package core

import (
	"container/heap"
	"math"
)

// FindPath returns the lowest-cost path from fromID to toID as a list of node
// ids, both endpoints included. Inactive links are never traversed. Equal-cost
// candidates resolve in discovery order, so the result is stable for a fixed
// graph state.
func (g *ConstellationGraph) FindPath(fromID, toID string) ([]string, error) {
	return g.FindPathExcluding(fromID, toID, nil)
}

// FindPathExcluding is FindPath with the links between the given node pairs
// treated as absent. Pairs are unordered.
func (g *ConstellationGraph) FindPathExcluding(fromID, toID string, excluded [][2]string) ([]string, error) {
	from, err := g.lookup(fromID)
	if err != nil {
		return nil, err
	}
	to, err := g.lookup(toID)
	if err != nil {
		return nil, err
	}

	var skip map[[2]NodeIndex]struct{}
	if len(excluded) > 0 {
		skip = make(map[[2]NodeIndex]struct{}, len(excluded))
		for _, pair := range excluded {
			a, okA := g.index[pair[0]]
			b, okB := g.index[pair[1]]
			if okA && okB {
				skip[orderedPair(a, b)] = struct{}{}
			}
		}
	}

	prev, found := g.dijkstra(from, to, skip)
	if !found {
		return nil, &NoPathError{Source: fromID, Dest: toID}
	}

	var rev []string
	for n := to; n != from; n = prev[n] {
		rev = append(rev, g.nodes[n].ID)
	}
	rev = append(rev, g.nodes[from].ID)
	path := make([]string, len(rev))
	for i, id := range rev {
		path[len(rev)-1-i] = id
	}
	return path, nil
}

func (g *ConstellationGraph) dijkstra(from, to NodeIndex, skip map[[2]NodeIndex]struct{}) ([]NodeIndex, bool) {
	n := len(g.nodes)
	dist := make([]float64, n)
	prev := make([]NodeIndex, n)
	done := make([]bool, n)
	for i := range dist {
		dist[i] = math.Inf(1)
		prev[i] = -1
	}
	dist[from] = 0

	var seq uint64
	pq := &searchQueue{}
	heap.Push(pq, searchItem{node: from, dist: 0, seq: seq})

	for pq.Len() > 0 {
		item := heap.Pop(pq).(searchItem)
		if done[item.node] {
			continue
		}
		done[item.node] = true
		if item.node == to {
			return prev, true
		}
		for _, ei := range g.out[item.node] {
			e := g.edges[ei]
			if done[e.to] {
				continue
			}
			if skip != nil {
				if _, blocked := skip[orderedPair(e.from, e.to)]; blocked {
					continue
				}
			}
			cost := LinkCost(e.link)
			if math.IsInf(cost, 1) {
				continue
			}
			cand := item.dist + cost
			if cand < dist[e.to] {
				dist[e.to] = cand
				prev[e.to] = item.node
				seq++
				heap.Push(pq, searchItem{node: e.to, dist: cand, seq: seq})
			}
		}
	}
	return prev, false
}

func orderedPair(a, b NodeIndex) [2]NodeIndex {
	if a > b {
		a, b = b, a
	}
	return [2]NodeIndex{a, b}
}

type searchItem struct {
	node NodeIndex
	dist float64
	seq  uint64
}

// searchQueue is a min-heap on distance, then on discovery sequence.
type searchQueue []searchItem

func (q searchQueue) Len() int { return len(q) }

func (q searchQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].seq < q[j].seq
}

func (q searchQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *searchQueue) Push(x any) { *q = append(*q, x.(searchItem)) }

func (q *searchQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
