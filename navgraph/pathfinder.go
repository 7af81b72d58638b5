package navgraph

import (
	"container/heap"
	"math"
)

// scoredNode is one entry in the A* open set's min-heap, ordered by f
// score with a deterministic tie-break on node id.
type scoredNode struct {
	id string
	f  float64
}

type openSet []scoredNode

func (o openSet) Len() int { return len(o) }
func (o openSet) Less(i, j int) bool {
	if o[i].f != o[j].f {
		return o[i].f < o[j].f
	}
	return o[i].id < o[j].id
}
func (o openSet) Swap(i, j int)      { o[i], o[j] = o[j], o[i] }
func (o *openSet) Push(x any)        { *o = append(*o, x.(scoredNode)) }
func (o *openSet) Pop() any {
	old := *o
	n := len(old)
	item := old[n-1]
	*o = old[:n-1]
	return item
}

// FindPath runs A* on g from start to target using the Euclidean distance
// to target as an admissible heuristic. Returns nil if either endpoint is
// missing or no path exists. start == target returns the single-element
// path [start].
func FindPath(g *Graph, start, target string) []string {
	if _, ok := g.Get(start); !ok {
		return nil
	}
	if _, ok := g.Get(target); !ok {
		return nil
	}
	if start == target {
		return []string{start}
	}

	gScore := make(map[string]float64, len(g.nodes))
	for id := range g.nodes {
		gScore[id] = infinity
	}
	gScore[start] = 0

	cameFrom := make(map[string]string, len(g.nodes))

	open := &openSet{{id: start, f: g.Euclidean(start, target)}}
	heap.Init(open)

	closed := make(map[string]bool, len(g.nodes))

	for open.Len() > 0 {
		current := heap.Pop(open).(scoredNode)
		if closed[current.id] {
			continue
		}
		if current.id == target {
			return reconstructPath(cameFrom, start, target)
		}
		closed[current.id] = true

		node := g.nodes[current.id]
		currentG := gScore[current.id]
		for neighborID, cost := range node.Neighbors {
			if closed[neighborID] {
				continue
			}
			tentativeG := currentG + cost
			if tentativeG < gScore[neighborID] {
				cameFrom[neighborID] = current.id
				gScore[neighborID] = tentativeG
				f := tentativeG + g.Euclidean(neighborID, target)
				heap.Push(open, scoredNode{id: neighborID, f: f})
			}
		}
	}

	return nil
}

var infinity = math.Inf(1)

func reconstructPath(cameFrom map[string]string, start, target string) []string {
	path := []string{target}
	current := target
	for current != start {
		prev, ok := cameFrom[current]
		if !ok {
			return nil
		}
		path = append(path, prev)
		current = prev
	}
	// reverse in place
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
