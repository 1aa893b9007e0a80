package query

import (
	"container/heap"

	"github.com/go-gl/mathgl/mgl32"

	"navtile/mesh"
)

const (
	nodeOpen = 1 << iota
	nodeClosed
)

type node struct {
	pos    mgl32.Vec3
	cost   float32
	total  float32
	parent mesh.PolyRef
	ref    mesh.PolyRef
	flags  uint8
	index  int
}

// nodePool maps polygon references to search nodes for one query.
type nodePool struct {
	nodes map[mesh.PolyRef]*node
}

func newNodePool() *nodePool {
	return &nodePool{nodes: make(map[mesh.PolyRef]*node)}
}

func (p *nodePool) get(ref mesh.PolyRef) *node {
	if n, ok := p.nodes[ref]; ok {
		return n
	}
	n := &node{ref: ref, index: -1}
	p.nodes[ref] = n
	return n
}

// nodeQueue is a min-heap over total cost.
type nodeQueue struct {
	items []*node
}

func (q *nodeQueue) Len() int           { return len(q.items) }
func (q *nodeQueue) Less(i, j int) bool { return q.items[i].total < q.items[j].total }
func (q *nodeQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

func (q *nodeQueue) Push(x any) {
	n := x.(*node)
	n.index = len(q.items)
	q.items = append(q.items, n)
}

func (q *nodeQueue) Pop() any {
	old := q.items
	n := old[len(old)-1]
	old[len(old)-1] = nil
	n.index = -1
	q.items = old[:len(old)-1]
	return n
}

func (q *nodeQueue) push(n *node) { heap.Push(q, n) }

func (q *nodeQueue) pop() *node { return heap.Pop(q).(*node) }

func (q *nodeQueue) update(n *node) { heap.Fix(q, n.index) }

func (q *nodeQueue) empty() bool { return len(q.items) == 0 }
