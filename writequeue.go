package fuerte

// writeQueue is the bounded, multi-producer/single-consumer queue of
// *requestItem awaiting transmission (spec §2.4, §4.4). Grounded on the
// teacher's channel-based pool (pool_channel.go), which uses a buffered
// Go channel as its lock-free-ish MPSC primitive instead of a hand-rolled
// ring buffer — the idiomatic Go expression of the same structure.
type writeQueue struct {
	items chan *requestItem
}

func newWriteQueue(capacity int) *writeQueue {
	if capacity <= 0 {
		capacity = defaultWriteQueueCapacity
	}
	return &writeQueue{items: make(chan *requestItem, capacity)}
}

// push enqueues an item without blocking. It returns false if the queue is
// at capacity (spec §8: "Write queue at capacity returns
// QueueCapacityExceeded and does NOT register a callback") — the caller
// must not have added the item to the message store yet.
func (q *writeQueue) push(item *requestItem) bool {
	select {
	case q.items <- item:
		return true
	default:
		return false
	}
}

// pop removes one item for the reactor to write, or reports false if the
// queue was empty at the moment of the non-blocking check.
func (q *writeQueue) pop() (*requestItem, bool) {
	select {
	case item := <-q.items:
		return item, true
	default:
		return nil, false
	}
}

// drain removes every item still queued (used during shutdown, spec §4.1).
func (q *writeQueue) drain() []*requestItem {
	var drained []*requestItem
	for {
		select {
		case item := <-q.items:
			drained = append(drained, item)
		default:
			return drained
		}
	}
}
