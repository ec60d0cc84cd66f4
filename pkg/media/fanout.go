package media

import "sync"

// fanoutBuffer is the per-subscriber channel depth.
const fanoutBuffer = 64

// Fanout distributes captured frames to any number of subscribers. It is the
// building block [Track] implementations use for Subscribe. The zero value is
// ready to use.
type Fanout struct {
	mu     sync.Mutex
	subs   map[int]chan []byte
	nextID int
	closed bool
}

// Subscribe registers a new subscriber. The returned cancel function is
// idempotent. Subscribing to a closed Fanout yields an already-closed channel.
func (f *Fanout) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, fanoutBuffer)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(ch)
		return ch, func() {}
	}
	if f.subs == nil {
		f.subs = make(map[int]chan []byte)
	}
	id := f.nextID
	f.nextID++
	f.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if c, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers frame to every subscriber without blocking. Subscribers
// whose buffer is full miss the frame.
func (f *Fanout) Publish(frame []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- frame:
		default:
		}
	}
}

// Close closes every subscriber channel. Later subscriptions receive a closed
// channel.
func (f *Fanout) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}

// Closed reports whether Close has been called.
func (f *Fanout) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
