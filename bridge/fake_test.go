package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var errClosed = errors.New("fake conn closed")

// fakeConn is an in-memory Conn. Frames pushed with deliver are returned by
// Read; frames written are recorded.
type fakeConn struct {
	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	graceful  atomic.Bool

	mu        sync.Mutex
	written   [][]byte
	failWrite bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (f *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-f.inbound:
		return data, nil
	case <-f.closed:
		return nil, errClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeConn) Write(ctx context.Context, data []byte) error {
	select {
	case <-f.closed:
		return errClosed
	default:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrite {
		return errors.New("broken pipe")
	}
	f.written = append(f.written, append([]byte(nil), data...))
	return nil
}

func (f *fakeConn) Close(reason string) error {
	f.graceful.Store(true)
	return f.CloseNow()
}

func (f *fakeConn) CloseNow() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeConn) setFailWrite(v bool) {
	f.mu.Lock()
	f.failWrite = v
	f.mu.Unlock()
}

func (f *fakeConn) frames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.written...)
}

// fakeTransport hands out fakeConns per endpoint. Endpoints listed in fail
// refuse every handshake.
type fakeTransport struct {
	mu    sync.Mutex
	fail  map[string]bool
	dials map[string]int
	conns map[string][]*fakeConn
}

func newFakeTransport(failing ...string) *fakeTransport {
	t := &fakeTransport{
		fail:  make(map[string]bool),
		dials: make(map[string]int),
		conns: make(map[string][]*fakeConn),
	}
	for _, e := range failing {
		t.fail[e] = true
	}
	return t
}

func (t *fakeTransport) Dial(ctx context.Context, target Target, endpoint string) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dials[endpoint]++
	if t.fail[endpoint] {
		return nil, errors.New("handshake refused")
	}
	c := newFakeConn()
	t.conns[endpoint] = append(t.conns[endpoint], c)
	return c, nil
}

func (t *fakeTransport) setFail(endpoint string, v bool) {
	t.mu.Lock()
	t.fail[endpoint] = v
	t.mu.Unlock()
}

func (t *fakeTransport) dialCount(endpoint string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials[endpoint]
}

// latest returns the most recent conn for endpoint, or nil.
func (t *fakeTransport) latest(endpoint string) *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	cs := t.conns[endpoint]
	if len(cs) == 0 {
		return nil
	}
	return cs[len(cs)-1]
}
