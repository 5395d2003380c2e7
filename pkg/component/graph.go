package component

import (
	"fmt"
)

// graph is a directed adjacency list of component members. Insertion order is
// kept so execution order is deterministic.
type graph struct {
	nodes         []*member
	adjacencyList map[*member][]*member
}

func newGraph() *graph {
	return &graph{adjacencyList: make(map[*member][]*member)}
}

func (g *graph) addNode(n *member) error {
	if _, exists := g.adjacencyList[n]; exists {
		return fmt.Errorf("node %s already exists in graph", n.path)
	}
	g.nodes = append(g.nodes, n)
	g.adjacencyList[n] = make([]*member, 0)
	return nil
}

func (g *graph) addDirectedEdge(n1, n2 *member) error {
	edges, exists := g.adjacencyList[n1]
	if !exists {
		return fmt.Errorf("start node %s does not exist in graph", n1.path)
	}
	if _, exists := g.adjacencyList[n2]; !exists {
		return fmt.Errorf("end node %s does not exist in graph", n2.path)
	}
	for _, e := range edges {
		if e == n2 {
			return nil
		}
	}
	g.adjacencyList[n1] = append(edges, n2)
	return nil
}

func (g *graph) edges(n *member) []*member {
	return g.adjacencyList[n]
}

// components returns the strongly connected components in topological order
// using Tarjan's algorithm. Members of a component keep insertion order.
func (g *graph) components() [][]*member {
	index := make(map[*member]int, len(g.nodes))
	low := make(map[*member]int, len(g.nodes))
	onStack := make(map[*member]bool, len(g.nodes))
	order := make(map[*member]int, len(g.nodes))
	for i, n := range g.nodes {
		order[n] = i
	}

	var (
		stack []*member
		out   [][]*member
		next  int
	)
	var visit func(n *member)
	visit = func(n *member) {
		index[n] = next
		low[n] = next
		next++
		stack = append(stack, n)
		onStack[n] = true

		for _, m := range g.edges(n) {
			if _, seen := index[m]; !seen {
				visit(m)
				low[n] = min(low[n], low[m])
			} else if onStack[m] {
				low[n] = min(low[n], index[m])
			}
		}

		if low[n] == index[n] {
			var scc []*member
			for {
				m := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[m] = false
				scc = append(scc, m)
				if m == n {
					break
				}
			}
			// insertion order within the cycle
			for i := 1; i < len(scc); i++ {
				for j := i; j > 0 && order[scc[j]] < order[scc[j-1]]; j-- {
					scc[j], scc[j-1] = scc[j-1], scc[j]
				}
			}
			out = append(out, scc)
		}
	}
	for _, n := range g.nodes {
		if _, seen := index[n]; !seen {
			visit(n)
		}
	}

	return g.topological(out, order)
}

// topological orders the strongly connected components so that every edge
// points forward, preferring the earliest inserted member when several
// components are ready.
func (g *graph) topological(sccs [][]*member, order map[*member]int) [][]*member {
	owner := make(map[*member]int, len(g.nodes))
	for i, scc := range sccs {
		for _, n := range scc {
			owner[n] = i
		}
	}
	indegree := make([]int, len(sccs))
	next := make([]map[int]bool, len(sccs))
	for i, scc := range sccs {
		next[i] = map[int]bool{}
		for _, n := range scc {
			for _, m := range g.edges(n) {
				j := owner[m]
				if j != i && !next[i][j] {
					next[i][j] = true
					indegree[j]++
				}
			}
		}
	}

	done := make([]bool, len(sccs))
	out := make([][]*member, 0, len(sccs))
	for len(out) < len(sccs) {
		best := -1
		for i, scc := range sccs {
			if done[i] || indegree[i] > 0 {
				continue
			}
			if best < 0 || order[scc[0]] < order[sccs[best][0]] {
				best = i
			}
		}
		done[best] = true
		out = append(out, sccs[best])
		for j := range next[best] {
			indegree[j]--
		}
	}
	return out
}

// selfLoop reports whether n feeds itself.
func (g *graph) selfLoop(n *member) bool {
	for _, m := range g.edges(n) {
		if m == n {
			return true
		}
	}
	return false
}
