package intercom

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Session timings.
const (
	// RequestTimeout bounds the wait for a reply to an outbound request.
	RequestTimeout = 30 * time.Second
	// ShutdownGrace bounds how long in-flight handlers may keep running after Close.
	ShutdownGrace = 10 * time.Second

	dialTimeout   = 10 * time.Second
	sweepInterval = time.Second
)

// result is what a pending request resolves to: a reply payload or an error, never both.
type result struct {
	payload []byte
	err     error
}

// pending is one outstanding outbound request in the correlation table.
type pending struct {
	ch       chan result
	deadline time.Time
	remote   uint32
}

// peerConn is one live connection to a peer. Writes are serialized so frames never interleave.
type peerConn struct {
	id  uint32
	c   net.Conn
	wmu sync.Mutex
}

func (pc *peerConn) write(f Frame) error {
	pc.wmu.Lock()
	defer pc.wmu.Unlock()

	return writeFrame(pc.c, f)
}

// Session maintains the local listener, the outbound endpoint connections and the correlation
// table of outstanding requests. Inbound frames are routed to a pending continuation when they are
// replies, or to the dispatcher when they are requests.
type Session struct {
	ownID   uint32
	port    string
	mode    int
	tlsm    *Material
	disp    *Dispatcher
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	corr    uint64
	pending map[uint64]*pending
	conns   map[uint32]*peerConn
	ln      net.Listener
	closed  bool
}

// New returns a session for the local endpoint identity. tlsm may be nil when mode is ModePlain.
func New(ownID uint32, port string, mode int, tlsm *Material, disp *Dispatcher) *Session {
	ctx, cancel := context.WithCancel(context.Background())

	return &Session{
		ownID:   ownID,
		port:    port,
		mode:    mode,
		tlsm:    tlsm,
		disp:    disp,
		timeout: RequestTimeout,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[uint64]*pending),
		conns:   make(map[uint32]*peerConn),
	}
}

// SetTimeout overrides the reply timeout for outbound requests.
func (s *Session) SetTimeout(d time.Duration) {
	s.mu.Lock()
	s.timeout = d
	s.mu.Unlock()
}

// Listen binds the local listener and starts accepting peer connections. Failure to bind is fatal
// to the caller; everything after that reconnects or recovers.
func (s *Session) Listen() error {
	var (
		ln  net.Listener
		err error
	)

	if s.mode == ModeTLS {
		ln, err = tls.Listen("tcp", ":"+s.port, s.tlsm.Server)
	} else {
		ln, err = net.Listen("tcp", ":"+s.port)
	}

	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	log.Printf("[intercom] Endpoint %d listening on port %s", s.ownID, s.port)

	s.wg.Add(2)
	go s.acceptLoop(ln)
	go s.sweepLoop()

	return nil
}

// Addr returns the bound listener address, or the empty string before Listen.
func (s *Session) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln == nil {
		return ""
	}

	return s.ln.Addr().String()
}

// Connect maintains an outbound connection to the remote endpoint, reconnecting with exponential
// backoff whenever it drops, until the session closes.
func (s *Session) Connect(ep Endpoint) {
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		for {
			conn, err := s.dial(ep)
			if err != nil { // only on session close
				return
			}

			pc := &peerConn{id: ep.ID, c: conn}

			s.mu.Lock()
			s.conns[ep.ID] = pc
			s.mu.Unlock()

			log.Printf("[intercom] Connected to endpoint %d at %s", ep.ID, ep.Addr())

			s.readFrames(pc, ep)

			// connection dropped: fail its outstanding requests and go again
			s.failPending(ep.ID, fmt.Errorf("%w: connection to endpoint %d lost", ErrTransport, ep.ID))

			s.mu.Lock()
			if s.conns[ep.ID] == pc {
				delete(s.conns, ep.ID)
			}
			closed := s.closed
			s.mu.Unlock()

			if closed {
				return
			}

			log.Printf("[intercom] Lost connection to endpoint %d, reconnecting", ep.ID)
		}
	}()
}

// dial connects to the remote endpoint, retrying with backoff until it succeeds or the session
// closes.
func (s *Session) dial(ep Endpoint) (net.Conn, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0 // keep trying until the session closes

	var conn net.Conn

	op := func() error {
		var err error

		d := net.Dialer{Timeout: dialTimeout}

		if s.mode == ModeTLS {
			cfg := s.tlsm.Client.Clone()
			cfg.ServerName = ep.Host
			conn, err = tls.DialWithDialer(&d, "tcp", ep.Addr(), cfg)
		} else {
			conn, err = d.DialContext(s.ctx, "tcp", ep.Addr())
		}

		if err != nil {
			log.Printf("[intercom] Cannot connect to endpoint %d at %s: %v", ep.ID, ep.Addr(), err)
		}

		return err
	}

	if err := backoff.Retry(op, backoff.WithContext(b, s.ctx)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
	}

	return conn, nil
}

// Send issues an outbound request to the remote endpoint and waits for the correlated reply. It
// returns the reply payload, or ErrTimeout when no reply arrives within the request timeout,
// ErrCancelled when the session closes or ctx is done first.
func (s *Session) Send(ctx context.Context, remote uint32, msgID uint16, payload []byte) ([]byte, error) {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()

		return nil, ErrCancelled
	}

	pc, ok := s.conns[remote]
	if !ok {
		s.mu.Unlock()

		return nil, fmt.Errorf("%w: endpoint %d", ErrNotConnected, remote)
	}

	s.corr++
	corr := s.corr
	p := &pending{ch: make(chan result, 1), deadline: time.Now().Add(s.timeout), remote: remote}
	s.pending[corr] = p
	s.mu.Unlock()

	if err := pc.write(Frame{Sender: s.ownID, MsgID: msgID, CorrID: corr, Payload: payload}); err != nil {
		s.drop(corr)

		return nil, err
	}

	select {
	case r := <-p.ch:
		return r.payload, r.err
	case <-ctx.Done():
		s.drop(corr)

		return nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	}
}

// Close shuts the session down: stop listening, cancel every pending continuation, close all
// connections and give in-flight handlers the shutdown grace to finish.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()

		return
	}

	s.closed = true
	ln := s.ln
	conns := make([]*peerConn, 0, len(s.conns))

	for _, pc := range s.conns {
		conns = append(conns, pc)
	}

	for corr, p := range s.pending {
		delete(s.pending, corr)
		p.ch <- result{err: ErrCancelled}
	}
	s.mu.Unlock()

	s.cancel()

	if ln != nil {
		_ = ln.Close()
	}

	for _, pc := range conns {
		_ = pc.c.Close()
	}

	s.wg.Wait()
	s.disp.Stop(ShutdownGrace)

	log.Printf("[intercom] Endpoint %d closed", s.ownID)
}

func (s *Session) acceptLoop(ln net.Listener) {
	defer s.wg.Done()

	for {
		c, err := ln.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
			default:
				log.Printf("[intercom] Accept failed: %v", err)
			}

			return
		}

		host, _, _ := net.SplitHostPort(c.RemoteAddr().String())

		s.wg.Add(1)

		go func() {
			defer s.wg.Done()

			pc := &peerConn{c: c}
			s.readFrames(pc, Endpoint{Host: host})

			s.mu.Lock()
			if pc.id != 0 && s.conns[pc.id] == pc {
				delete(s.conns, pc.id)
			}
			s.mu.Unlock()
		}()
	}
}

// readFrames pumps one connection's inbound frames until it drops. Replies resolve their pending
// continuation; requests go to the dispatcher with a reply bound to this connection.
func (s *Session) readFrames(pc *peerConn, ep Endpoint) {
	defer pc.c.Close()

	for {
		f, err := readFrame(pc.c)
		if err != nil {
			select {
			case <-s.ctx.Done():
			default:
				log.Printf("[intercom] Read on connection to endpoint %d failed: %v", pc.id, err)
			}

			return
		}

		// learn the identity of an inbound peer from its first frame
		if pc.id == 0 && f.Sender != 0 {
			pc.id = f.Sender

			s.mu.Lock()
			if _, ok := s.conns[f.Sender]; !ok {
				s.conns[f.Sender] = pc
			}
			s.mu.Unlock()
		}

		if f.MsgID == msgReply {
			s.deliver(f)

			continue
		}

		corr := f.CorrID
		from := Endpoint{ID: f.Sender, Host: ep.Host, Port: ep.Port}

		s.disp.dispatch(from, f, func(p []byte) error {
			return pc.write(Frame{Sender: s.ownID, MsgID: msgReply, CorrID: corr, Payload: p})
		})
	}
}

// deliver resolves the pending continuation for a reply frame. Late replies are discarded.
func (s *Session) deliver(f Frame) {
	s.mu.Lock()
	p, ok := s.pending[f.CorrID]

	if ok {
		delete(s.pending, f.CorrID)
	}
	s.mu.Unlock()

	if !ok {
		log.Printf("[intercom] Discarding late reply for correlation %d", f.CorrID)

		return
	}

	p.ch <- result{payload: f.Payload}
}

// sweepLoop purges pending requests whose deadline passed, resolving them with ErrTimeout.
func (s *Session) sweepLoop() {
	defer s.wg.Done()

	t := time.NewTicker(sweepInterval)
	defer t.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-t.C:
			s.mu.Lock()
			for corr, p := range s.pending {
				if now.After(p.deadline) {
					delete(s.pending, corr)
					p.ch <- result{err: ErrTimeout}
				}
			}
			s.mu.Unlock()
		}
	}
}

// drop removes a correlation entry, if still present.
func (s *Session) drop(corr uint64) {
	s.mu.Lock()
	delete(s.pending, corr)
	s.mu.Unlock()
}

// failPending resolves every pending request addressed to the remote with err.
func (s *Session) failPending(remote uint32, err error) {
	s.mu.Lock()
	for corr, p := range s.pending {
		if p.remote == remote {
			delete(s.pending, corr)
			p.ch <- result{err: err}
		}
	}
	s.mu.Unlock()
}
