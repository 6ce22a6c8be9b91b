package eventbus

import "sync"

// Message is one broadcast unit, delivered to every subscriber of Room.
type Message struct {
	Room    string
	Payload interface{}
}

// Subscriber is one consumer with a bounded delivery queue. Slow
// subscribers never block the publisher: when the queue is full the
// oldest message is dropped to make room.
type Subscriber struct {
	ch    chan Message
	rooms map[string]struct{}
}

// C is the subscriber's receive channel. It is closed when the
// subscriber is dropped or the bus shuts down.
func (s *Subscriber) C() <-chan Message { return s.ch }

// Bus is an in-process pub/sub that routes messages to subscribers by
// room name (rooms are "pipeline:{id}"). Single writer, many readers;
// safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Subscriber]struct{}
	closed bool
}

// New creates a Bus ready for use.
func New() *Bus {
	return &Bus{rooms: make(map[string]map[*Subscriber]struct{})}
}

// NewSubscriber registers a subscriber with the given queue capacity.
// Returns nil after Close.
func (b *Bus) NewSubscriber(buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = 64
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	return &Subscriber{
		ch:    make(chan Message, buffer),
		rooms: make(map[string]struct{}),
	}
}

// Join adds the subscriber to a room.
func (b *Bus) Join(room string, s *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || s == nil {
		return
	}
	members := b.rooms[room]
	if members == nil {
		members = make(map[*Subscriber]struct{})
		b.rooms[room] = members
	}
	members[s] = struct{}{}
	s.rooms[room] = struct{}{}
}

// Leave removes the subscriber from a room. Empty rooms are deleted.
func (b *Bus) Leave(room string, s *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leaveLocked(room, s)
}

func (b *Bus) leaveLocked(room string, s *Subscriber) {
	if members, ok := b.rooms[room]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(b.rooms, room)
		}
	}
	if s != nil {
		delete(s.rooms, room)
	}
}

// Drop removes the subscriber from every room and closes its channel.
func (b *Bus) Drop(s *Subscriber) {
	if s == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for room := range s.rooms {
		b.leaveLocked(room, s)
	}
	if !b.closed {
		close(s.ch)
	}
}

// Publish delivers a message to every subscriber of the room. When a
// subscriber's queue is full, the oldest queued message is dropped in
// its favor. Publish is a no-op after Close.
func (b *Bus) Publish(room string, payload interface{}) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	msg := Message{Room: room, Payload: payload}
	for s := range b.rooms[room] {
		select {
		case s.ch <- msg:
		default:
			// Queue full: drop the oldest, then deliver.
			select {
			case <-s.ch:
			default:
			}
			select {
			case s.ch <- msg:
			default:
			}
		}
	}
}

// SubscriberCount returns the number of subscribers in a room.
func (b *Bus) SubscriberCount(room string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms[room])
}

// Close shuts the bus down: all subscriber channels are closed and
// further Publish/Join calls are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	seen := make(map[*Subscriber]struct{})
	for _, members := range b.rooms {
		for s := range members {
			if _, ok := seen[s]; !ok {
				seen[s] = struct{}{}
				close(s.ch)
			}
		}
	}
	b.rooms = make(map[string]map[*Subscriber]struct{})
}
