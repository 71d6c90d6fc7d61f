package intercom

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
)

// DefaultWorkers is the size of the handler worker pool.
const DefaultWorkers = 8

// ReplyFunc sends the reply to an inbound request. It is one-shot: a second invocation returns
// ErrDoubleReply without touching the wire.
type ReplyFunc func(payload []byte) error

// HandlerFunc services one inbound request. Handlers may block; the dispatcher runs them on a
// worker pool and does not serialize them against each other.
type HandlerFunc func(from Endpoint, payload []byte, reply ReplyFunc)

// Dispatcher maps inbound message ids to registered handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[uint16]HandlerFunc
	pool     pond.Pool
}

// NewDispatcher returns a dispatcher running handlers on a pool of the given size, or
// DefaultWorkers when workers is not positive.
func NewDispatcher(workers int) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	return &Dispatcher{
		handlers: make(map[uint16]HandlerFunc),
		pool:     pond.NewPool(workers),
	}
}

// Handle registers the handler for a message id, replacing any previous registration.
func (d *Dispatcher) Handle(id uint16, h HandlerFunc) {
	d.mu.Lock()
	d.handlers[id] = h
	d.mu.Unlock()
}

// dispatch routes one inbound request frame. The peer must never hang waiting: unhandled ids and
// handlers that return without replying both produce an empty reply.
func (d *Dispatcher) dispatch(from Endpoint, f Frame, send func([]byte) error) {
	d.mu.RLock()
	h := d.handlers[f.MsgID]
	d.mu.RUnlock()

	if h == nil {
		log.Printf("[intercom] No handler for message id %d from endpoint %d", f.MsgID, from.ID)

		_ = send(nil)

		return
	}

	d.pool.Submit(func() {
		var replied int32

		reply := func(p []byte) error {
			if !atomic.CompareAndSwapInt32(&replied, 0, 1) {
				return ErrDoubleReply
			}

			return send(p)
		}

		h(from, f.Payload, reply)

		if atomic.CompareAndSwapInt32(&replied, 0, 1) {
			log.Printf("[intercom] Handler for message id %d did not reply, sending empty reply", f.MsgID)

			_ = send(nil)
		}
	})
}

// Stop waits for in-flight handlers to finish, up to the grace period.
func (d *Dispatcher) Stop(grace time.Duration) {
	done := make(chan struct{})

	go func() {
		d.pool.StopAndWait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		log.Printf("[intercom] Handlers still running after %s grace, terminating", grace)
	}
}
