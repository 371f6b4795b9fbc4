package ingest

import "sync"

// Progress reports an ingestion stage transition for one layer.
type Progress struct {
	LayerID string
	Stage   string // "classify", "fetch", "normalize", "extract", "build", "done", "failed"
	Detail  string
}

// Bus is a fan-out pub/sub for ingestion progress. Publish never blocks;
// a slow subscriber drops events.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Progress]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[chan Progress]struct{})}
}

func (b *Bus) Publish(e Progress) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// subscriber too slow, skip
		}
	}
}

// Subscribe returns a buffered channel that receives progress events.
func (b *Bus) Subscribe() chan Progress {
	ch := make(chan Progress, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(ch chan Progress) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
	close(ch)
}
