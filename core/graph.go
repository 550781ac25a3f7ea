package core

import (
	"fmt"
	"iter"
	"math"

	"github.com/signalsfoundry/mesh-router/model"
)

// NodeIndex is a dense index into the graph's node arena. Indices are stable
// for the lifetime of the graph because nodes are never removed.
type NodeIndex int

type edge struct {
	from NodeIndex
	to   NodeIndex
	link model.Link
}

// ConstellationGraph is the node/link store for the mesh. Every physical link
// is kept as two directed edges with identical attributes.
//
// ConstellationGraph performs no locking. Hosts sharing it between goroutines
// should go through SharedGraph or provide equivalent single-writer discipline.
type ConstellationGraph struct {
	nodes []model.Node
	edges []edge
	// out holds, per node, indices into edges in insertion order.
	out   [][]int
	index map[string]NodeIndex
}

// GraphStats summarises the graph. Link counts are undirected.
type GraphStats struct {
	TotalNodes       int `json:"total_nodes"`
	Satellites       int `json:"satellites"`
	GroundStations   int `json:"ground_stations"`
	TotalLinks       int `json:"total_links"`
	ISLLinks         int `json:"isl_links"`
	GSLinks          int `json:"gs_links"`
	TerrestrialLinks int `json:"terrestrial_links"`
	ActiveLinks      int `json:"active_links"`
}

// LinkRef is one directed edge as yielded by Links.
type LinkRef struct {
	Source string     `json:"source"`
	Target string     `json:"target"`
	Link   model.Link `json:"link"`
}

// LinkUpdate carries optional attribute changes applied symmetrically to both
// directions of a link. Nil fields are left untouched.
type LinkUpdate struct {
	Active       *bool
	MarginDB     *float64
	WeatherScore *float64
	LatencyMs    *float64
}

// NewConstellationGraph returns an empty graph.
func NewConstellationGraph() *ConstellationGraph {
	return &ConstellationGraph{
		index: make(map[string]NodeIndex),
	}
}

// LinkCost is the search cost of traversing link; lower is better. Inactive
// links cost +Inf and are never traversed.
func LinkCost(link model.Link) float64 {
	if !link.Active {
		return math.Inf(1)
	}
	marginFactor := 10.0 / math.Max(link.MarginDB, 0.1)
	weatherFactor := 1.0 / math.Max(link.WeatherScore, 0.1)
	latencyFactor := link.LatencyMs / 10.0
	return marginFactor + weatherFactor + latencyFactor
}

// AddNode registers node and returns its index.
func (g *ConstellationGraph) AddNode(node model.Node) (NodeIndex, error) {
	if node.ID == "" {
		return 0, fmt.Errorf("add node: empty id")
	}
	if _, exists := g.index[node.ID]; exists {
		return 0, fmt.Errorf("%w: %q", ErrNodeExists, node.ID)
	}
	idx := NodeIndex(len(g.nodes))
	g.nodes = append(g.nodes, node)
	g.out = append(g.out, nil)
	g.index[node.ID] = idx
	return idx, nil
}

// AddLink inserts link as the two directed edges from→to and to→from.
func (g *ConstellationGraph) AddLink(fromID, toID string, link model.Link) error {
	from, err := g.lookup(fromID)
	if err != nil {
		return err
	}
	to, err := g.lookup(toID)
	if err != nil {
		return err
	}
	g.addEdge(from, to, link)
	g.addEdge(to, from, link)
	return nil
}

func (g *ConstellationGraph) addEdge(from, to NodeIndex, link model.Link) {
	g.edges = append(g.edges, edge{from: from, to: to, link: link})
	g.out[from] = append(g.out[from], len(g.edges)-1)
}

// UpdateLink sets the active flag and, when marginDB is non-nil, the margin
// of every edge joining the two nodes in both directions.
func (g *ConstellationGraph) UpdateLink(fromID, toID string, active bool, marginDB *float64) error {
	return g.ApplyLinkUpdate(fromID, toID, LinkUpdate{Active: &active, MarginDB: marginDB})
}

// ApplyLinkUpdate applies upd to both directed copies of the link between the
// two nodes.
func (g *ConstellationGraph) ApplyLinkUpdate(fromID, toID string, upd LinkUpdate) error {
	from, err := g.lookup(fromID)
	if err != nil {
		return err
	}
	to, err := g.lookup(toID)
	if err != nil {
		return err
	}

	touched := 0
	for _, pair := range [2][2]NodeIndex{{from, to}, {to, from}} {
		for _, ei := range g.out[pair[0]] {
			e := &g.edges[ei]
			if e.to != pair[1] {
				continue
			}
			if upd.Active != nil {
				e.link.Active = *upd.Active
			}
			if upd.MarginDB != nil {
				e.link.MarginDB = *upd.MarginDB
			}
			if upd.WeatherScore != nil {
				e.link.WeatherScore = *upd.WeatherScore
			}
			if upd.LatencyMs != nil {
				e.link.LatencyMs = *upd.LatencyMs
			}
			touched++
		}
	}
	if touched == 0 {
		return &LinkNotFoundError{From: fromID, To: toID}
	}
	return nil
}

// UpdateNodePosition records a new position fix for a node.
func (g *ConstellationGraph) UpdateNodePosition(id string, latDeg, lonDeg float64, epoch int64) error {
	idx, err := g.lookup(id)
	if err != nil {
		return err
	}
	n := &g.nodes[idx]
	n.LatitudeDeg = latDeg
	n.LongitudeDeg = lonDeg
	n.Epoch = epoch
	return nil
}

// Node returns the node registered under id.
func (g *ConstellationGraph) Node(id string) (model.Node, bool) {
	idx, ok := g.index[id]
	if !ok {
		return model.Node{}, false
	}
	return g.nodes[idx], true
}

// NodeCount returns the number of registered nodes.
func (g *ConstellationGraph) NodeCount() int { return len(g.nodes) }

// Nodes yields every node in registration order.
func (g *ConstellationGraph) Nodes() iter.Seq[model.Node] {
	return func(yield func(model.Node) bool) {
		for _, n := range g.nodes {
			if !yield(n) {
				return
			}
		}
	}
}

func (g *ConstellationGraph) Satellites() iter.Seq[model.Node] {
	return g.filterNodes(model.Node.IsSatellite)
}

func (g *ConstellationGraph) GroundStations() iter.Seq[model.Node] {
	return g.filterNodes(model.Node.IsGroundStation)
}

func (g *ConstellationGraph) filterNodes(keep func(model.Node) bool) iter.Seq[model.Node] {
	return func(yield func(model.Node) bool) {
		for _, n := range g.nodes {
			if keep(n) && !yield(n) {
				return
			}
		}
	}
}

// Links yields every directed edge in insertion order.
func (g *ConstellationGraph) Links() iter.Seq[LinkRef] {
	return func(yield func(LinkRef) bool) {
		for _, e := range g.edges {
			ref := LinkRef{
				Source: g.nodes[e.from].ID,
				Target: g.nodes[e.to].ID,
				Link:   e.link,
			}
			if !yield(ref) {
				return
			}
		}
	}
}

// LinkBetween returns the first link joining a and b, looking at a→b before
// b→a.
func (g *ConstellationGraph) LinkBetween(aID, bID string) (model.Link, bool) {
	a, okA := g.index[aID]
	b, okB := g.index[bID]
	if !okA || !okB {
		return model.Link{}, false
	}
	if l, ok := g.directedLink(a, b); ok {
		return l, true
	}
	return g.directedLink(b, a)
}

func (g *ConstellationGraph) directedLink(from, to NodeIndex) (model.Link, bool) {
	for _, ei := range g.out[from] {
		if g.edges[ei].to == to {
			return g.edges[ei].link, true
		}
	}
	return model.Link{}, false
}

// Neighbors returns the ids reachable over one outgoing edge of id, in edge
// insertion order. Inactive edges are included.
func (g *ConstellationGraph) Neighbors(id string) ([]string, error) {
	idx, err := g.lookup(id)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(g.out[idx]))
	for _, ei := range g.out[idx] {
		out = append(out, g.nodes[g.edges[ei].to].ID)
	}
	return out, nil
}

// PathCost sums the directed edge costs along path. A hop with no edge makes
// the whole path cost +Inf.
func (g *ConstellationGraph) PathCost(path []string) float64 {
	total := 0.0
	for i := 0; i+1 < len(path); i++ {
		from, okF := g.index[path[i]]
		to, okT := g.index[path[i+1]]
		if !okF || !okT {
			return math.Inf(1)
		}
		link, ok := g.directedLink(from, to)
		if !ok {
			return math.Inf(1)
		}
		total += LinkCost(link)
	}
	return total
}

// Stats counts nodes by kind and links by type. Each physical link counts once.
func (g *ConstellationGraph) Stats() GraphStats {
	stats := GraphStats{TotalNodes: len(g.nodes)}
	for _, n := range g.nodes {
		switch n.Kind.(type) {
		case model.Satellite:
			stats.Satellites++
		case model.GroundStation:
			stats.GroundStations++
		}
	}

	var isl, gs, terr, active int
	for _, e := range g.edges {
		switch e.link.Type {
		case model.InterSatellite:
			isl++
		case model.SatelliteToGround:
			gs++
		case model.Terrestrial:
			terr++
		}
		if e.link.Active {
			active++
		}
	}
	stats.TotalLinks = len(g.edges) / 2
	stats.ISLLinks = isl / 2
	stats.GSLinks = gs / 2
	stats.TerrestrialLinks = terr / 2
	stats.ActiveLinks = active / 2
	return stats
}

func (g *ConstellationGraph) lookup(id string) (NodeIndex, error) {
	idx, ok := g.index[id]
	if !ok {
		return 0, &NodeNotFoundError{ID: id}
	}
	return idx, nil
}
