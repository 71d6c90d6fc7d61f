package intercom

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sendRecorder collects the payloads a dispatch sends back.
type sendRecorder struct {
	mu    sync.Mutex
	sent  [][]byte
	calls int
}

func (s *sendRecorder) send(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, p)
	s.calls++
	return nil
}

func (s *sendRecorder) wait(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		c := s.calls
		s.mu.Unlock()
		if c >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d replies", n)
}

func TestDispatchRepliesOnce(t *testing.T) {
	d := NewDispatcher(2)
	defer d.Stop(time.Second)

	errs := make(chan error, 1)
	d.Handle(7, func(from Endpoint, payload []byte, reply ReplyFunc) {
		require.NoError(t, reply([]byte("pong")))
		errs <- reply([]byte("again"))
	})

	rec := &sendRecorder{}
	d.dispatch(Endpoint{ID: 1}, Frame{MsgID: 7, Payload: []byte("ping")}, rec.send)

	assert.ErrorIs(t, <-errs, ErrDoubleReply)
	rec.wait(t, 1)
	assert.Equal(t, [][]byte{[]byte("pong")}, rec.sent)
}

func TestDispatchAutoReply(t *testing.T) {
	// a handler that never replies must not leave the peer hanging
	d := NewDispatcher(2)
	defer d.Stop(time.Second)

	d.Handle(8, func(from Endpoint, payload []byte, reply ReplyFunc) {})

	rec := &sendRecorder{}
	d.dispatch(Endpoint{ID: 1}, Frame{MsgID: 8}, rec.send)

	rec.wait(t, 1)
	assert.Nil(t, rec.sent[0])
}

func TestDispatchUnknownMessageID(t *testing.T) {
	d := NewDispatcher(2)
	defer d.Stop(time.Second)

	rec := &sendRecorder{}
	d.dispatch(Endpoint{ID: 1}, Frame{MsgID: 999}, rec.send)

	// unhandled ids are acknowledged empty straight away
	assert.Equal(t, 1, rec.calls)
	assert.Nil(t, rec.sent[0])
}

func TestDispatchConcurrentHandlers(t *testing.T) {
	// handlers for different frames are not serialized against each other
	d := NewDispatcher(4)
	defer d.Stop(time.Second)

	gate := make(chan struct{})
	d.Handle(9, func(from Endpoint, payload []byte, reply ReplyFunc) {
		<-gate
		_ = reply(payload)
	})

	rec := &sendRecorder{}
	for i := 0; i < 4; i++ {
		d.dispatch(Endpoint{ID: 1}, Frame{MsgID: 9, Payload: []byte{byte(i)}}, rec.send)
	}

	close(gate) // all four were admitted before any replied
	rec.wait(t, 4)
}
