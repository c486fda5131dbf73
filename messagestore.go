package fuerte

import "sync"

// messageStore maps message id to the in-flight requestItem (spec §4.3).
// Reads and writes happen from the reactor goroutine only, except
// cancelAll, which shutdownConnection may call from another goroutine
// (spec §4.1) — so the map is mutex-guarded rather than lock-free, the
// same tradeoff the teacher makes for pooledClient.freeconn (client.go).
type messageStore struct {
	mu    sync.Mutex
	items map[uint64]*requestItem
}

func newMessageStore() *messageStore {
	return &messageStore{items: make(map[uint64]*requestItem)}
}

func (s *messageStore) add(item *requestItem) {
	s.mu.Lock()
	s.items[item.request.MessageID] = item
	s.mu.Unlock()
}

// removeByID returns and removes the item for id, or (nil, false) if absent.
func (s *messageStore) removeByID(id uint64) (*requestItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if ok {
		delete(s.items, id)
	}
	return item, ok
}

func (s *messageStore) get(id uint64) (*requestItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	return item, ok
}

// cancelAll atomically drains the store and invokes every item's callback
// with (err, request, nil), exactly once per item (spec §4.3 invariant:
// removeByID followed by cancelAll must not double-invoke a callback —
// guaranteed here because both operations hold the same mutex and an item
// removed by one can never be seen by the other).
func (s *messageStore) cancelAll(err error) {
	s.mu.Lock()
	drained := s.items
	s.items = make(map[uint64]*requestItem)
	s.mu.Unlock()

	for _, item := range drained {
		item.fire(err, nil)
	}
}

func (s *messageStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *messageStore) empty() bool {
	return s.size() == 0
}

func (s *messageStore) keys() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]uint64, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	return keys
}
