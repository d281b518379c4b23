// Priority queue ordered by (priority, enqueue-time), ties broken FIFO
// (spec §4.5 "Queue"). Built directly against container/heap's
// documented Interface; no pack repo implements a priority send queue
// of its own.
package transmit

import (
	"container/heap"

	"github.com/JorritSalverda/ramses-gateway/command"
)

type pending struct {
	cmd         command.Command
	seq         int64
	retriesLeft int
	callback    Callback
	index       int // heap bookkeeping
}

// priorityQueue is a max-heap: higher command.Priority sorts first;
// among equal priorities, lower seq (earlier enqueue) sorts first.
type priorityQueue []*pending

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].cmd.Priority != pq[j].cmd.Priority {
		return pq[i].cmd.Priority > pq[j].cmd.Priority
	}
	return pq[i].seq < pq[j].seq
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index, pq[j].index = i, j
}

func (pq *priorityQueue) Push(x interface{}) {
	item := x.(*pending)
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}

var _ heap.Interface = (*priorityQueue)(nil)
