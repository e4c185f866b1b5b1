// Package txqueue implements the transmit-side queueing and sequencing
// engine: the HI/LO priority FIFOs packets wait in, and the sequencer
// that arbitrates channel access and keys PTT around a burst of
// frames.
package txqueue

import (
	"container/list"
	"sync"

	"github.com/n0call/qpsktnc/internal/ax25"
)

// Priority is a transmit-queue priority level.
type Priority int

const (
	// PriorityHI carries digipeated/seized frames: sent before anything
	// else, no random backoff.
	PriorityHI Priority = iota
	// PriorityLO carries ordinary outbound frames, subject to the
	// p-persistent backoff in the sequencer's arbitration.
	PriorityLO

	numPriorities = 2
)

// Packet is one frame waiting for transmission, tagged with the channel
// it belongs to.
type Packet struct {
	Frame   *ax25.Frame
	Channel int
}

// Queue is the two-FIFO (HI, LO) transmit queue shared between producers
// (digipeater, link layer, KISS host) and the single sequencer thread
// that drains it.
type Queue struct {
	mu      sync.Mutex
	items   [numPriorities]list.List
	waking  chan struct{}
	waiting bool

	closed    chan struct{}
	closeOnce sync.Once
}

// New returns an empty, ready-to-use queue.
func New() *Queue {
	return &Queue{waking: make(chan struct{}), closed: make(chan struct{})}
}

// Close wakes a blocked Wait and makes every future Wait return
// immediately. Called at shutdown so the sequencer thread can observe
// its stop signal instead of sleeping on an empty queue forever.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}

// Append enqueues a packet at the given priority and wakes a waiting
// sequencer, if any.
func (q *Queue) Append(prio Priority, pkt *Packet) {
	q.mu.Lock()
	q.items[prio].PushBack(pkt)
	waiting := q.waiting
	q.mu.Unlock()

	if waiting {
		q.waking <- struct{}{}
	}
}

// Peek returns the packet at the head of the given priority's FIFO
// without removing it, or nil if that FIFO is empty.
func (q *Queue) Peek(prio Priority) *Packet {
	q.mu.Lock()
	defer q.mu.Unlock()

	front := q.items[prio].Front()
	if front == nil {
		return nil
	}
	return front.Value.(*Packet)
}

// Remove takes the packet at the head of the given priority's FIFO, or
// nil if empty.
func (q *Queue) Remove(prio Priority) *Packet {
	q.mu.Lock()
	defer q.mu.Unlock()

	front := q.items[prio].Front()
	if front == nil {
		return nil
	}
	q.items[prio].Remove(front)
	return front.Value.(*Packet)
}

// RemoveAny implements the fundamental scheduling primitive: take from
// HI if it has anything, else from LO. It returns the priority the
// packet came from.
func (q *Queue) RemoveAny() (Priority, *Packet) {
	if pkt := q.Remove(PriorityHI); pkt != nil {
		return PriorityHI, pkt
	}
	if pkt := q.Remove(PriorityLO); pkt != nil {
		return PriorityLO, pkt
	}
	return PriorityHI, nil
}

// IsEmpty reports whether both FIFOs are empty.
func (q *Queue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items[PriorityHI].Len() == 0 && q.items[PriorityLO].Len() == 0
}

// Wait blocks until either FIFO is non-empty. It mirrors
// tq_wait_while_empty's condition-variable wait via a wake channel
// instead of a sentinel-counter condvar.
func (q *Queue) Wait() {
	q.mu.Lock()
	empty := q.items[PriorityHI].Len() == 0 && q.items[PriorityLO].Len() == 0
	if empty {
		q.waiting = true
	}
	q.mu.Unlock()

	if !empty {
		return
	}

	select {
	case <-q.waking:
	case <-q.closed:
	}

	q.mu.Lock()
	q.waiting = false
	q.mu.Unlock()
}
