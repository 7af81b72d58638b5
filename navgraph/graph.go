// Package navgraph loads the navigation graph and finds shortest paths on it.
package navgraph

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"tire/localize"
)

// Node is a named waypoint on the floor plan, with an undirected weighted
// adjacency list. The graph exposes adjacency as-is: symmetry is the map
// author's responsibility, mirroring the C++ original's NavigationGraph.
type Node struct {
	ID        string
	Position  localize.Position2D
	Name      string
	AudioCue  string
	Neighbors map[string]float64
}

// Graph is an in-memory, immutable-after-load collection of Nodes.
type Graph struct {
	nodes map[string]*Node
}

type mapFile struct {
	Nodes []mapNode `json:"nodes"`
}

type mapNode struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Audio     string             `json:"audio"`
	X         float64            `json:"x"`
	Y         float64            `json:"y"`
	Neighbors map[string]float64 `json:"neighbors"`
}

// Load parses the map file schema documented in the external interfaces
// section. Loading is all-or-nothing: any schema violation fails the whole
// load rather than returning a partial graph.
func Load(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc mapFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	nodes := make(map[string]*Node, len(doc.Nodes))
	for _, n := range doc.Nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("navgraph: node with empty id")
		}
		if _, dup := nodes[n.ID]; dup {
			return nil, fmt.Errorf("navgraph: duplicate node id %q", n.ID)
		}
		name := n.Name
		if name == "" {
			name = "Unknown"
		}
		nodes[n.ID] = &Node{
			ID:        n.ID,
			Position:  localize.Position2D{X: n.X, Y: n.Y},
			Name:      name,
			AudioCue:  n.Audio,
			Neighbors: n.Neighbors,
		}
	}

	for id, n := range nodes {
		for neighborID, cost := range n.Neighbors {
			if _, ok := nodes[neighborID]; !ok {
				return nil, fmt.Errorf("navgraph: node %q references unknown neighbor %q", id, neighborID)
			}
			if cost < 0 {
				return nil, fmt.Errorf("navgraph: node %q has negative edge cost to %q", id, neighborID)
			}
		}
	}

	return &Graph{nodes: nodes}, nil
}

// Get retrieves a node by id.
func (g *Graph) Get(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// All returns every node in the graph, order unspecified.
func (g *Graph) All() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	return out
}

// Euclidean returns the straight-line distance between two node ids, or a
// negative sentinel if either id is missing.
func (g *Graph) Euclidean(idA, idB string) float64 {
	a, ok := g.nodes[idA]
	if !ok {
		return -1
	}
	b, ok := g.nodes[idB]
	if !ok {
		return -1
	}
	return euclidean(a.Position, b.Position)
}

func euclidean(a, b localize.Position2D) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Hypot(dx, dy)
}

// NearestNode does a deterministic linear scan for the graph node closest
// to pos, breaking ties by node id. Used by the control loop to pick a
// start node for pathfinding from the current EKF position.
func (g *Graph) NearestNode(pos localize.Position2D) (string, bool) {
	var bestID string
	bestDist := math.Inf(1)
	found := false
	for _, n := range g.nodes {
		d := euclidean(n.Position, pos)
		if !found || d < bestDist || (d == bestDist && n.ID < bestID) {
			bestID = n.ID
			bestDist = d
			found = true
		}
	}
	return bestID, found
}
