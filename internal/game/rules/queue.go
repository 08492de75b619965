package rules

import "container/heap"

// queuedEvent pairs a pending event with its ordering keys.
type queuedEvent struct {
	event    Event
	priority int
	seq      int
}

// eventHeap orders by priority (lower first), then insertion order.
type eventHeap []queuedEvent

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(queuedEvent)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// EventQueue is a priority queue of pending rules events. Lower numeric
// priority drains first; ties break by insertion order so that events raised
// while processing interleave deterministically.
type EventQueue struct {
	heap eventHeap
	seq  int
}

// NewEventQueue constructs an empty queue.
func NewEventQueue() *EventQueue {
	q := &EventQueue{heap: make(eventHeap, 0, 8)}
	heap.Init(&q.heap)
	return q
}

// Enqueue adds an event with the given priority.
func (q *EventQueue) Enqueue(event Event, priority int) {
	q.seq++
	heap.Push(&q.heap, queuedEvent{event: event, priority: priority, seq: q.seq})
}

// Dequeue removes and returns the next event.
func (q *EventQueue) Dequeue() (Event, bool) {
	if len(q.heap) == 0 {
		return Event{}, false
	}
	item := heap.Pop(&q.heap).(queuedEvent)
	return item.event, true
}

// Len returns the number of pending events.
func (q *EventQueue) Len() int {
	return len(q.heap)
}
