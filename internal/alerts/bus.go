package alerts

import (
	"fmt"
	"sync"

	"github.com/halcyonlabs/credit-guardian/internal/models"
)

// Listener receives every published alert. Listeners must tolerate being
// called from the publisher's goroutine.
type Listener func(models.Alert)

// Bus broadcasts alerts to all registered listeners. A listener that panics
// is logged and skipped; it never blocks delivery to the others or the
// publisher's tick.
type Bus struct {
	mu        sync.RWMutex
	listeners []Listener
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

func (b *Bus) Publish(a models.Alert) {
	b.mu.RLock()
	listeners := make([]Listener, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.RUnlock()

	for i, l := range listeners {
		b.deliver(i, l, a)
	}
}

func (b *Bus) deliver(i int, l Listener, a models.Alert) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("[ALERTS] Listener %d failed on %s alert: %v\n", i, a.Type, r)
		}
	}()
	l(a)
}
