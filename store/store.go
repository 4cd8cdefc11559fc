// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"fmt"
	"iter"
	"sync"

	"github.com/bureau-foundation/lorachat/lib/schema"
)

// Filter selects messages by direction.
type Filter int

const (
	All Filter = iota
	Sent
	Received
)

// Filters lists every filter in display order.
var Filters = []Filter{All, Sent, Received}

func (f Filter) String() string {
	switch f {
	case Sent:
		return "sent"
	case Received:
		return "received"
	default:
		return "all"
	}
}

// Next returns the filter after f in [Filters], wrapping around.
func (f Filter) Next() Filter {
	return Filters[(int(f)+1)%len(Filters)]
}

// Match reports whether message passes the filter.
func (f Filter) Match(message schema.Message) bool {
	switch f {
	case Sent:
		return message.Direction == schema.DirectionSent
	case Received:
		return message.Direction == schema.DirectionReceived
	default:
		return true
	}
}

// ParseFilter parses "all", "sent" or "received". The empty string is
// All.
func ParseFilter(s string) (Filter, error) {
	switch s {
	case "", "all":
		return All, nil
	case "sent":
		return Sent, nil
	case "received":
		return Received, nil
	}
	return All, fmt.Errorf("unknown filter %q (want all, sent or received)", s)
}

// Store is an ordered, deduplicated message log. All methods are safe
// for concurrent use.
type Store struct {
	mu       sync.Mutex
	messages []schema.Message
	keys     map[schema.MessageKey]struct{}

	// generation advances on every Clear. A history fetched under an
	// older generation predates the clear and is not loaded.
	generation uint64

	subscribers map[chan struct{}]struct{}
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		keys:        make(map[schema.MessageKey]struct{}),
		subscribers: make(map[chan struct{}]struct{}),
	}
}

// Load merges a history fetch into the store. The result is history
// in its own order, followed by messages already in the store that
// the history does not contain. It returns the resulting length.
func (s *Store) Load(history []schema.Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(history)
}

// Generation returns the current clear generation. Capture it before
// fetching history and pass it to [Store.LoadAt].
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// LoadAt is [Store.Load] for a history fetched at generation. If the
// store was cleared since, the history is stale and is dropped; it
// reports whether the history was loaded.
func (s *Store) LoadAt(generation uint64, history []schema.Message) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != generation {
		return len(s.messages), false
	}
	return s.loadLocked(history), true
}

func (s *Store) loadLocked(history []schema.Message) int {
	merged := make([]schema.Message, 0, len(history)+len(s.messages))
	keys := make(map[schema.MessageKey]struct{}, cap(merged))
	add := func(message schema.Message) {
		key := message.Key()
		if _, seen := keys[key]; seen {
			return
		}
		keys[key] = struct{}{}
		merged = append(merged, message)
	}
	for _, message := range history {
		add(message)
	}
	for _, message := range s.messages {
		add(message)
	}

	s.messages = merged
	s.keys = keys
	s.notifyLocked()
	return len(merged)
}

// Append adds message at the end unless a message with the same key is
// already present. It reports whether the message was added.
func (s *Store) Append(message schema.Message) bool {
	key := message.Key()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.keys[key]; seen {
		return false
	}
	s.keys[key] = struct{}{}
	s.messages = append(s.messages, message)
	s.notifyLocked()
	return true
}

// Clear empties the store. Clearing an empty store changes no
// contents and sends no notification, but still invalidates history
// fetches in flight.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	if len(s.messages) == 0 {
		return
	}
	s.messages = nil
	s.keys = make(map[schema.MessageKey]struct{})
	s.notifyLocked()
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Snapshot returns the current messages. The slice is shared and must
// not be modified.
func (s *Store) Snapshot() []schema.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Messages are never modified in place and later appends cannot
	// reach past this capacity, so the prefix stays valid.
	return s.messages[:len(s.messages):len(s.messages)]
}

// View returns the messages passing filter. Each iteration works over
// the snapshot taken when it starts; changes made during iteration
// are not seen, and the sequence can be iterated again.
func (s *Store) View(filter Filter) iter.Seq[schema.Message] {
	return func(yield func(schema.Message) bool) {
		for _, message := range s.Snapshot() {
			if filter.Match(message) && !yield(message) {
				return
			}
		}
	}
}

// Subscribe returns a channel that receives a value after changes to
// the store, and a function that ends the subscription. Notifications
// coalesce: a reader that falls behind sees one pending value.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	channel := make(chan struct{}, 1)
	s.mu.Lock()
	s.subscribers[channel] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return channel, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, channel)
			s.mu.Unlock()
		})
	}
}

func (s *Store) notifyLocked() {
	for channel := range s.subscribers {
		select {
		case channel <- struct{}{}:
		default:
		}
	}
}
