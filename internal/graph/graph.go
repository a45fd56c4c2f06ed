// Package graph builds the undirected customer graph used for network
// detection. Two customers are adjacent when they paid the same real
// beneficiary.
package graph

import (
	"context"
	"sort"

	"github.com/opensource-finance/finguard/internal/domain"
)

// checkEvery is how many nodes or edges are processed between context checks.
const checkEvery = 1024

// Graph is an adjacency-set graph keyed by customer ID. It is not safe for
// concurrent mutation; a built graph is read-only.
type Graph struct {
	adj map[string]map[string]struct{}
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{adj: make(map[string]map[string]struct{})}
}

// AddNode adds an isolated node if it is not already present.
func (g *Graph) AddNode(id string) {
	if _, ok := g.adj[id]; !ok {
		g.adj[id] = make(map[string]struct{})
	}
}

// AddEdge connects a and b. Self loops are ignored.
func (g *Graph) AddEdge(a, b string) {
	g.AddNode(a)
	g.AddNode(b)
	if a == b {
		return
	}
	g.adj[a][b] = struct{}{}
	g.adj[b][a] = struct{}{}
}

// Build creates the graph for txs. Every customer that appears is a node;
// customers sharing a beneficiary other than empty or UNKNOWN form a clique.
func Build(ctx context.Context, txs []*domain.Transaction) (*Graph, error) {
	g := New()
	payers := make(map[string]map[string]struct{})

	for i, tx := range txs {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		g.AddNode(tx.CustomerID)
		if !tx.HasRealBeneficiary() {
			continue
		}
		set, ok := payers[tx.Beneficiary]
		if !ok {
			set = make(map[string]struct{})
			payers[tx.Beneficiary] = set
		}
		set[tx.CustomerID] = struct{}{}
	}

	added := 0
	for _, set := range payers {
		if len(set) < 2 {
			continue
		}
		members := sortedIDs(set)
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				g.AddEdge(members[i], members[j])
				added++
				if added%checkEvery == 0 {
					if err := ctx.Err(); err != nil {
						return nil, err
					}
				}
			}
		}
	}
	return g, nil
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.adj)
}

// EdgeCount returns the number of undirected edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, nbrs := range g.adj {
		n += len(nbrs)
	}
	return n / 2
}

// HasEdge reports whether a and b are adjacent.
func (g *Graph) HasEdge(a, b string) bool {
	_, ok := g.adj[a][b]
	return ok
}

// HasNode reports whether id is a node.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.adj[id]
	return ok
}

// Neighbors returns the sorted neighbours of id.
func (g *Graph) Neighbors(id string) []string {
	return sortedIDs(g.adj[id])
}

// Nodes returns every node, sorted.
func (g *Graph) Nodes() []string {
	nodes := make([]string, 0, len(g.adj))
	for id := range g.adj {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)
	return nodes
}

// Components partitions the graph into connected components using
// breadth-first search. Members are sorted and components are ordered by
// their first member, so the result does not depend on insertion order.
func (g *Graph) Components(ctx context.Context) ([][]string, error) {
	visited := make(map[string]bool, len(g.adj))
	var components [][]string

	for i, start := range g.Nodes() {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if visited[start] {
			continue
		}

		visited[start] = true
		queue := []string{start}
		var members []string
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			members = append(members, id)
			for nbr := range g.adj[id] {
				if !visited[nbr] {
					visited[nbr] = true
					queue = append(queue, nbr)
				}
			}
		}

		sort.Strings(members)
		components = append(components, members)
	}
	// Starts are visited in sorted order, so the first member of each
	// component is already increasing.
	return components, nil
}

func sortedIDs(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
