// Package gate buffers outbound payloads until the page reports that its
// message listener is attached.
//
// A Gate is not safe for concurrent use. The bridge transport owns one Gate
// per surface and only touches it inside its own critical section.
package gate

import "fmt"

// SendFunc delivers one payload to the page.
type SendFunc func(payload string) error

// Gate is the readiness flag plus the pending queue of a single surface.
type Gate struct {
	ready bool
	queue []string
}

// New returns a gate in the not-ready state.
func New() *Gate {
	return &Gate{}
}

// Ready reports whether MarkReady has been called.
func (g *Gate) Ready() bool { return g.ready }

// Pending returns the number of queued payloads.
func (g *Gate) Pending() int { return len(g.queue) }

// EnqueueOrSend queues payload while not ready, otherwise sends it at once.
// The returned bool is true when the payload was queued.
func (g *Gate) EnqueueOrSend(payload string, send SendFunc) (bool, error) {
	if !g.ready {
		g.queue = append(g.queue, payload)
		return true, nil
	}
	return false, send(payload)
}

// MarkReady flips the gate and flushes the queue in insertion order.
// It returns false without sending anything if the gate was already ready.
// The queue is cleared even when a send fails; the first error is returned.
func (g *Gate) MarkReady(send SendFunc) (bool, int, error) {
	if g.ready {
		return false, 0, nil
	}
	g.ready = true

	queued := g.queue
	g.queue = nil

	var firstErr error
	for i, payload := range queued {
		if err := send(payload); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("flush pending message %d: %w", i, err)
		}
	}
	return true, len(queued), firstErr
}
