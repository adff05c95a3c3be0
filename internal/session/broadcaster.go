package session

import "sync"

// eventChannelBuffer bounds each listener channel; slow listeners drop
// events instead of stalling admissions.
const eventChannelBuffer = 16

// Broadcaster fans admission events out to any number of listeners.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners []chan AdmissionEvent
}

// AddListener adds an event listener.
func (b *Broadcaster) AddListener() chan AdmissionEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan AdmissionEvent, eventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *Broadcaster) RemoveListener(ch chan AdmissionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

func (b *Broadcaster) send(event AdmissionEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}
