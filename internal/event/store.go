package event

import (
	"container/heap"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the in-memory working set of scheduled events. A min-heap keyed by
// start time feeds the scheduler loop; a uuid index serves lookups and edits.
// One mutex guards both, so listing briefly blocks scheduling and vice versa.
//
// An event popped for firing stays in the index until its worker finishes, so
// it remains visible to list and edit while absent from the queue.
type Store struct {
	mu    sync.Mutex
	queue startHeap
	items map[uuid.UUID]*ScheduledEvent
}

func NewStore() *Store {
	return &Store{items: make(map[uuid.UUID]*ScheduledEvent)}
}

// Insert adds or replaces an event and (re)queues it.
func (s *Store) Insert(e *ScheduledEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.items[e.UUID]; ok {
		s.dequeue(old)
	}
	s.items[e.UUID] = e
	heap.Push(&s.queue, e)
}

// Remove drops an event from both the queue and the index. It returns the
// removed event so callers can tear down its messages and group.
func (s *Store) Remove(id uuid.UUID) (*ScheduledEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return nil, false
	}
	delete(s.items, id)
	s.dequeue(e)
	return e, true
}

// PopDue removes the earliest queued event if its start time has passed and
// returns a snapshot of it. The index entry stays until Remove or a later
// Insert, keeping the event visible during its run.
func (s *Store) PopDue(now time.Time) (*ScheduledEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.Len() == 0 {
		return nil, false
	}
	head := s.queue[0]
	if head.Start.After(now) {
		return nil, false
	}
	heap.Pop(&s.queue)
	return head.clone(), true
}

// PeekEarliest returns a snapshot of the earliest queued event without
// removing it. Events currently running with a worker are not queued and are
// not considered.
func (s *Store) PeekEarliest() (*ScheduledEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.Len() == 0 {
		return nil, false
	}
	return s.queue[0].clone(), true
}

// Find returns a snapshot of the event with the given id.
func (s *Store) Find(id uuid.UUID) (*ScheduledEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return nil, false
	}
	return e.clone(), true
}

// Update applies fn to the stored event under the lock and re-orders the
// queue if the start time moved. It returns a snapshot of the mutated event,
// so read-modify-write callers never race a concurrent Remove.
func (s *Store) Update(id uuid.UUID, fn func(*ScheduledEvent)) (*ScheduledEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return nil, false
	}
	fn(e)
	if i := s.queue.indexOf(e); i >= 0 {
		heap.Fix(&s.queue, i)
	}
	return e.clone(), true
}

// List returns snapshots of every live event ordered by start time.
func (s *Store) List() []*ScheduledEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ScheduledEvent, 0, len(s.items))
	for _, e := range s.items {
		out = append(out, e.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// Len reports the number of live events, queued or running.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Store) dequeue(e *ScheduledEvent) {
	if i := s.queue.indexOf(e); i >= 0 {
		heap.Remove(&s.queue, i)
	}
}

// startHeap is a min-heap over start times. Event counts are small, so the
// linear scan in indexOf is fine.
type startHeap []*ScheduledEvent

func (h startHeap) Len() int            { return len(h) }
func (h startHeap) Less(i, j int) bool  { return h[i].Start.Before(h[j].Start) }
func (h startHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *startHeap) Push(x any)         { *h = append(*h, x.(*ScheduledEvent)) }
func (h *startHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

func (h startHeap) indexOf(e *ScheduledEvent) int {
	for i, q := range h {
		if q == e {
			return i
		}
	}
	return -1
}
