package store

import "container/heap"

// pqItem is one entry in a priorityQueue: a key and the virtual-time score
// it was last given.
type pqItem struct {
	key   string
	score float64
	index int
}

// pqItems backs a priorityQueue's container/heap.Interface implementation.
// No third-party priority-queue package in the dependency pack supports
// arbitrary score mutation on an existing key (see DESIGN.md); container/heap
// plus an index map is the standard way to build that in Go.
type pqItems []*pqItem

func (p pqItems) Len() int { return len(p) }

func (p pqItems) Less(i, j int) bool { return p[i].score < p[j].score }

func (p pqItems) Swap(i, j int) {
	p[i], p[j] = p[j], p[i]
	p[i].index = i
	p[j].index = j
}

func (p *pqItems) Push(x interface{}) {
	item := x.(*pqItem)
	item.index = len(*p)
	*p = append(*p, item)
}

func (p *pqItems) Pop() interface{} {
	old := *p
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*p = old[:n-1]
	return item
}

// priorityQueue is a min-heap keyed by string, supporting arbitrary score
// updates on an existing key in O(log n). It has no capacity of its own;
// Storage.cull keeps it within MaxItems. Popping returns the
// least-popular (lowest score) key, which is the one cull evicts first.
type priorityQueue struct {
	items pqItems
	index map[string]*pqItem
}

func newPriorityQueue() *priorityQueue {
	return &priorityQueue{index: make(map[string]*pqItem)}
}

func (pq *priorityQueue) Len() int { return len(pq.items) }

func (pq *priorityQueue) get(key string) (float64, bool) {
	item, ok := pq.index[key]
	if !ok {
		return 0, false
	}
	return item.score, true
}

// set inserts key with score if absent, or updates its score if present.
func (pq *priorityQueue) set(key string, score float64) {
	if item, ok := pq.index[key]; ok {
		item.score = score
		heap.Fix(&pq.items, item.index)
		return
	}
	item := &pqItem{key: key, score: score}
	heap.Push(&pq.items, item)
	pq.index[key] = item
}

func (pq *priorityQueue) remove(key string) (float64, bool) {
	item, ok := pq.index[key]
	if !ok {
		return 0, false
	}
	score := item.score
	heap.Remove(&pq.items, item.index)
	delete(pq.index, key)
	return score, true
}

func (pq *priorityQueue) popMin() (string, float64, bool) {
	if len(pq.items) == 0 {
		return "", 0, false
	}
	item := heap.Pop(&pq.items).(*pqItem)
	delete(pq.index, item.key)
	return item.key, item.score, true
}
