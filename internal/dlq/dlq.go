// Package dlq implements the data-link queue: a FIFO of events that
// carries received frames, client connect/disconnect requests, and
// transmitter status notifications from the radio-channel threads into
// the single-threaded data-link state machine. The list, its mutex and
// the wake-up channel are all owned by an explicit *Queue value, so
// several independent queues can coexist.
package dlq

import (
	"container/list"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/n0call/qpsktnc/internal/ax25"
)

// EventType identifies the kind of item on the queue.
type EventType int

const (
	// RecFrame is a frame received over the radio (or synthesized
	// locally, e.g. for beaconing).
	RecFrame EventType = iota
	// ConnectRequest is a client application asking to connect to
	// another station.
	ConnectRequest
	// DisconnectRequest is a client application asking to disconnect.
	DisconnectRequest
	// OutstandingFramesRequest asks how many I frames are still
	// unacknowledged for a link.
	OutstandingFramesRequest
	// XmitDataRequest is connected-mode data a client wants sent.
	XmitDataRequest
	// RegisterCallsign associates a callsign with a client on a channel.
	RegisterCallsign
	// UnregisterCallsign removes that association.
	UnregisterCallsign
	// ChannelBusy reports a PTT or DCD transition on a channel.
	ChannelBusy
	// SeizeConfirm reports that the transmitter is now on, in response
	// to an earlier seize request.
	SeizeConfirm
	// ClientCleanup reports that a client application's connection has
	// gone away and its link state should be torn down.
	ClientCleanup
)

// Activity is the kind of channel-busy transition carried by a
// ChannelBusy event. Only PTT and DCD activity is queued; other
// activity kinds are filtered out before an event is ever created.
type Activity int

const (
	ActivityPTT Activity = iota
	ActivityDCD
)

// Event is one item on the data-link queue. Only the fields relevant
// to Type are meaningful; the rest are zero.
type Event struct {
	Type EventType

	// RecFrame
	Channel    int
	Subchannel int
	Slice      int
	Frame      *ax25.Frame
	Corrected  int

	// ConnectRequest / DisconnectRequest / OutstandingFramesRequest /
	// XmitDataRequest / RegisterCallsign / UnregisterCallsign
	Addrs  []ax25.Address
	Client int
	PID    byte
	Data   []byte

	// ChannelBusy
	Activity Activity
	Active   bool

	// ClientCleanup reuses Client above.
}

// Queue is a FIFO of Events shared between the per-channel receive
// threads (and client-request handlers) and the data-link state
// machine consumer. Build one with New: the wake-up channel Wait and push
// use is created there, and the zero value has none.
type Queue struct {
	mu       sync.Mutex
	items    list.List
	waking   chan struct{}
	waiting  bool
	newCount int
}

// New returns an empty, ready-to-use queue.
func New() *Queue {
	return &Queue{waking: make(chan struct{})}
}

// PushRecFrame enqueues a received (or locally generated) frame.
func (q *Queue) PushRecFrame(channel, subchannel, slice int, frame *ax25.Frame, corrected int) {
	q.push(&Event{
		Type:       RecFrame,
		Channel:    channel,
		Subchannel: subchannel,
		Slice:      slice,
		Frame:      frame,
		Corrected:  corrected,
	})
}

// PushConnectRequest enqueues a client connect request.
func (q *Queue) PushConnectRequest(addrs []ax25.Address, channel, client int, pid byte) {
	q.push(&Event{Type: ConnectRequest, Addrs: addrs, Channel: channel, Client: client, PID: pid})
}

// PushDisconnectRequest enqueues a client disconnect request.
func (q *Queue) PushDisconnectRequest(addrs []ax25.Address, channel, client int) {
	q.push(&Event{Type: DisconnectRequest, Addrs: addrs, Channel: channel, Client: client})
}

// PushOutstandingFramesRequest enqueues a client query for the number
// of unacknowledged I frames on a link.
func (q *Queue) PushOutstandingFramesRequest(addrs []ax25.Address, channel, client int) {
	q.push(&Event{Type: OutstandingFramesRequest, Addrs: addrs, Channel: channel, Client: client})
}

// PushXmitDataRequest enqueues connected-mode data a client wants
// transmitted.
func (q *Queue) PushXmitDataRequest(addrs []ax25.Address, channel, client int, pid byte, data []byte) {
	q.push(&Event{Type: XmitDataRequest, Addrs: addrs, Channel: channel, Client: client, PID: pid, Data: append([]byte(nil), data...)})
}

// PushRegisterCallsign associates a callsign with a client on a channel.
func (q *Queue) PushRegisterCallsign(addr string, channel, client int) {
	q.push(&Event{Type: RegisterCallsign, Addrs: []ax25.Address{{Call: addr}}, Channel: channel, Client: client})
}

// PushUnregisterCallsign removes that association.
func (q *Queue) PushUnregisterCallsign(addr string, channel, client int) {
	q.push(&Event{Type: UnregisterCallsign, Addrs: []ax25.Address{{Call: addr}}, Channel: channel, Client: client})
}

// PushChannelBusy reports a PTT or DCD transition on a channel. Any
// other activity kind is dropped: the data-link state machine only
// cares about these two.
func (q *Queue) PushChannelBusy(channel int, activity Activity, active bool) {
	if activity != ActivityPTT && activity != ActivityDCD {
		return
	}
	q.push(&Event{Type: ChannelBusy, Channel: channel, Activity: activity, Active: active})
}

// PushSeizeConfirm reports that the transmitter is now keyed, in
// response to an earlier seize request.
func (q *Queue) PushSeizeConfirm(channel int) {
	q.push(&Event{Type: SeizeConfirm, Channel: channel})
}

// PushClientCleanup reports that a client application has disappeared
// and its link state should be torn down.
func (q *Queue) PushClientCleanup(client int) {
	q.push(&Event{Type: ClientCleanup, Client: client})
}

// push appends an event to the tail of the queue and wakes a waiting
// consumer, if any.
func (q *Queue) push(e *Event) {
	q.mu.Lock()
	q.newCount++
	q.items.PushBack(e)
	length := q.items.Len()
	waiting := q.waiting
	q.mu.Unlock()

	// A queue this deep means the consumer has stalled — historically
	// caused by a downstream write (e.g. to a client socket) blocking
	// forever with nothing on the other end to read it. Surface it
	// rather than let the queue grow without bound.
	if length > 10 {
		log.Warn("data-link queue is backing up, consumer is probably stalled", "length", length)
	}

	if waiting {
		q.waking <- struct{}{}
	}
}

// Wait blocks until the queue is non-empty or timeout elapses (zero
// means wait indefinitely). It returns true if it returned because of
// timeout rather than a new event.
func (q *Queue) Wait(timeout time.Duration) (timedOut bool) {
	q.mu.Lock()
	empty := q.items.Len() == 0
	if empty {
		q.waiting = true
	}
	q.mu.Unlock()

	if !empty {
		return false
	}

	defer func() {
		q.mu.Lock()
		q.waiting = false
		q.mu.Unlock()
	}()

	if timeout == 0 {
		<-q.waking
		return false
	}

	select {
	case <-q.waking:
		return false
	case <-time.After(timeout):
		return true
	}
}

// Remove takes the item at the head of the queue, or nil if empty.
func (q *Queue) Remove() *Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	front := q.items.Front()
	if front == nil {
		return nil
	}
	q.items.Remove(front)
	return front.Value.(*Event)
}

// Len reports the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}
