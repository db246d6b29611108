package usecase

import (
	"sync"

	"github.com/dkruglov/exam-ingest/internal/core/domain"
)

const defaultProgressBuffer = 64

// ProgressBroadcaster fans pipeline events out to observers over
// bounded channels. A slow observer loses its oldest events; the
// pipeline itself never blocks on Publish.
type ProgressBroadcaster struct {
	mu     sync.Mutex
	buffer int
	subs   map[int]chan domain.ProgressEvent
	nextID int
}

func NewProgressBroadcaster(buffer int) *ProgressBroadcaster {
	if buffer <= 0 {
		buffer = defaultProgressBuffer
	}
	return &ProgressBroadcaster{
		buffer: buffer,
		subs:   make(map[int]chan domain.ProgressEvent),
	}
}

// Subscribe returns an event channel and its cancel function. The
// channel is closed on cancel.
func (b *ProgressBroadcaster) Subscribe() (<-chan domain.ProgressEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan domain.ProgressEvent, b.buffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber, dropping each
// subscriber's oldest event when its buffer is full.
func (b *ProgressBroadcaster) Publish(event domain.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- event:
			default:
			}
		}
	}
}
