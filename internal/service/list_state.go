package service

import (
	"strings"
	"sync"

	"github.com/vogiaan1904/realtime-gateway/internal/protocol"
)

// ListSubscription is one member-list window a socket follows.
type ListSubscription struct {
	SpaceID   string
	ChannelID string
	ListID    string
	Ranges    []protocol.Range
}

// Key identifies the subscription as spaceId:channelId:listId.
func (s ListSubscription) Key() string {
	return s.SpaceID + ":" + s.ChannelID + ":" + s.ListID
}

// ListState is the per-socket member-list bookkeeping: subscriptions,
// the users each subscription currently shows, and the user change
// streams the socket listens to.
type ListState struct {
	mu      sync.Mutex
	closed  bool
	subs    map[string]ListSubscription
	visible map[string]map[string]struct{}
	streams map[string]func()
}

func NewListState() *ListState {
	return &ListState{
		subs:    make(map[string]ListSubscription),
		visible: make(map[string]map[string]struct{}),
		streams: make(map[string]func()),
	}
}

// Subscribe records sub, replacing any subscription to the same channel.
func (s *ListState) Subscribe(sub ListSubscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	prefix := sub.SpaceID + ":" + sub.ChannelID + ":"
	for key := range s.subs {
		if strings.HasPrefix(key, prefix) && key != sub.Key() {
			delete(s.subs, key)
			delete(s.visible, key)
		}
	}
	s.subs[sub.Key()] = sub
}

func (s *ListState) Get(key string) (ListSubscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[key]
	return sub, ok
}

// Rekey moves the subscription at key to a new list id and returns the
// new key.
func (s *ListState) Rekey(key, listID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[key]
	if !ok {
		return "", false
	}
	delete(s.subs, key)
	sub.ListID = listID
	newKey := sub.Key()
	s.subs[newKey] = sub
	if vis, ok := s.visible[key]; ok {
		delete(s.visible, key)
		s.visible[newKey] = vis
	}
	return newKey, true
}

func (s *ListState) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.subs))
	for key := range s.subs {
		keys = append(keys, key)
	}
	return keys
}

func (s *ListState) KeysInSpace(spaceID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for key, sub := range s.subs {
		if sub.SpaceID == spaceID {
			keys = append(keys, key)
		}
	}
	return keys
}

// SetVisible replaces the set of users shown by the subscription at key.
func (s *ListState) SetVisible(key string, uIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[key]; !ok {
		return
	}
	set := make(map[string]struct{}, len(uIDs))
	for _, id := range uIDs {
		set[id] = struct{}{}
	}
	s.visible[key] = set
}

// VisibleKeys returns the subscriptions currently showing uID.
func (s *ListState) VisibleKeys(uID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for key, set := range s.visible {
		if _, ok := set[uID]; ok {
			keys = append(keys, key)
		}
	}
	return keys
}

// Watch subscribes once per user. subscribe is not called when a stream
// for uID is already open.
func (s *ListState) Watch(uID string, subscribe func() (func(), error)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if _, ok := s.streams[uID]; ok {
		s.mu.Unlock()
		return nil
	}
	// Reserve the slot so concurrent callers do not double subscribe.
	s.streams[uID] = func() {}
	s.mu.Unlock()

	unsub, err := subscribe()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		delete(s.streams, uID)
		return err
	}
	if s.closed {
		unsub()
		return nil
	}
	s.streams[uID] = unsub
	return nil
}

func (s *ListState) Watching(uID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.streams[uID]
	return ok
}

// Close drops every subscription and closes every stream.
func (s *ListState) Close() {
	s.mu.Lock()
	streams := s.streams
	s.closed = true
	s.subs = make(map[string]ListSubscription)
	s.visible = make(map[string]map[string]struct{})
	s.streams = make(map[string]func())
	s.mu.Unlock()

	for _, unsub := range streams {
		unsub()
	}
}
