package transfer

import (
	"fmt"
	"sync"
)

// EventKind enumerates provider-side progress notifications.
type EventKind int

const (
	EventClientConnected EventKind = iota + 1
	EventGetRequestReceived
	EventTransferBlobCompleted
	EventTransferCollectionCompleted
	EventTransferAborted
)

func (k EventKind) String() string {
	switch k {
	case EventClientConnected:
		return "client_connected"
	case EventGetRequestReceived:
		return "get_request_received"
	case EventTransferBlobCompleted:
		return "transfer_blob_completed"
	case EventTransferCollectionCompleted:
		return "transfer_collection_completed"
	case EventTransferAborted:
		return "transfer_aborted"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a provider notification. Fields beyond Kind and ConnectionID are
// set where they apply.
type Event struct {
	Kind         EventKind
	ConnectionID string
	Hash         Hash
	Name         string
	Size         int64
	Reason       string
}

// Broadcaster fans events out to subscribers. Every subscriber has a bounded
// queue; an event that does not fit is dropped for that subscriber and its
// Lagged channel is closed.
type Broadcaster struct {
	mu     sync.Mutex
	size   int
	subs   map[*Subscription]struct{}
	closed bool
}

func NewBroadcaster(size int) *Broadcaster {
	if size <= 0 {
		size = 1
	}
	return &Broadcaster{size: size, subs: make(map[*Subscription]struct{})}
}

type Subscription struct {
	b       *Broadcaster
	c       chan Event
	lagged  chan struct{}
	lagOnce sync.Once
}

// Subscribe registers a new subscriber. Subscribing to a closed broadcaster
// yields an already closed subscription.
func (b *Broadcaster) Subscribe() *Subscription {
	s := &Subscription{b: b, c: make(chan Event, b.size), lagged: make(chan struct{})}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.c)
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Publish never blocks.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for s := range b.subs {
		select {
		case s.c <- ev:
		default:
			s.lagOnce.Do(func() { close(s.lagged) })
		}
	}
}

// Close closes every subscription channel. Later publishes are dropped.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		close(s.c)
	}
	b.subs = nil
}

// C delivers events in publish order and is closed when the broadcaster
// closes.
func (s *Subscription) C() <-chan Event {
	return s.c
}

// Lagged is closed once the subscriber has missed at least one event.
func (s *Subscription) Lagged() <-chan struct{} {
	return s.lagged
}

func (s *Subscription) Unsubscribe() {
	b := s.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.c)
	}
}
