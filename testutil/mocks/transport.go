// =============================================================================
// 🔌 MockTransport - 桥接传输层模拟实现
// =============================================================================
// 用于测试的内存传输层，按端点分配 MockConn，支持握手失败注入
//
// 使用方法:
//
//	tr := mocks.NewMockTransport("ws://host/frontend/bravo")
//	b := bridge.New(cfg, tr, nil, zap.NewNop())
//	conn := tr.Latest("ws://host/shared")
//	conn.Deliver([]byte(`{"kind":"ping"}`))
//
// =============================================================================
package mocks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/BaSui01/millennium/bridge"
)

// ErrConnClosed 连接已关闭
var ErrConnClosed = errors.New("mock conn closed")

// =============================================================================
// 🎯 MockConn
// =============================================================================

// MockConn 是 bridge.Conn 的内存实现
type MockConn struct {
	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	graceful  atomic.Bool

	mu        sync.Mutex
	written   [][]byte
	failWrite bool
}

// NewMockConn 创建新的 MockConn
func NewMockConn() *MockConn {
	return &MockConn{
		inbound: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

// Read 返回通过 Deliver 投递的帧
func (c *MockConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.inbound:
		return data, nil
	case <-c.closed:
		return nil, ErrConnClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Write 记录写入的帧
func (c *MockConn) Write(ctx context.Context, data []byte) error {
	if c.IsClosed() {
		return ErrConnClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrite {
		return errors.New("broken pipe")
	}
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

// Close 优雅关闭
func (c *MockConn) Close(reason string) error {
	c.graceful.Store(true)
	return c.CloseNow()
}

// CloseNow 立即关闭，模拟对端断开
func (c *MockConn) CloseNow() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// Deliver 投递一帧入站消息
func (c *MockConn) Deliver(data []byte) {
	c.inbound <- data
}

// IsClosed 返回连接是否已关闭
func (c *MockConn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// ClosedGracefully 返回连接是否经由 Close 关闭
func (c *MockConn) ClosedGracefully() bool { return c.graceful.Load() }

// SetFailWrite 设置写入是否失败
func (c *MockConn) SetFailWrite(v bool) {
	c.mu.Lock()
	c.failWrite = v
	c.mu.Unlock()
}

// Frames 返回已写入帧的副本
func (c *MockConn) Frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.written...)
}

// Envelopes 解码所有已写入帧，跳过无法解析的帧
func (c *MockConn) Envelopes() []bridge.Envelope {
	var out []bridge.Envelope
	for _, f := range c.Frames() {
		env, err := bridge.DecodeEnvelope(f)
		if err == nil {
			out = append(out, env)
		}
	}
	return out
}

// =============================================================================
// 🎯 MockTransport
// =============================================================================

// MockTransport 是 bridge.Transport 的内存实现
type MockTransport struct {
	mu    sync.Mutex
	fail  map[string]bool
	dials map[string]int
	conns map[string][]*MockConn
}

// NewMockTransport 创建 MockTransport，failing 中的端点拒绝所有握手
func NewMockTransport(failing ...string) *MockTransport {
	t := &MockTransport{
		fail:  make(map[string]bool),
		dials: make(map[string]int),
		conns: make(map[string][]*MockConn),
	}
	for _, e := range failing {
		t.fail[e] = true
	}
	return t
}

// Dial 实现 bridge.Transport
func (t *MockTransport) Dial(ctx context.Context, target bridge.Target, endpoint string) (bridge.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dials[endpoint]++
	if t.fail[endpoint] {
		return nil, errors.New("handshake refused")
	}
	c := NewMockConn()
	t.conns[endpoint] = append(t.conns[endpoint], c)
	return c, nil
}

// SetFail 设置端点握手是否失败
func (t *MockTransport) SetFail(endpoint string, v bool) {
	t.mu.Lock()
	t.fail[endpoint] = v
	t.mu.Unlock()
}

// DialCount 返回端点的握手次数
func (t *MockTransport) DialCount(endpoint string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials[endpoint]
}

// Latest 返回端点最近一次建立的连接，没有则返回 nil
func (t *MockTransport) Latest(endpoint string) *MockConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	cs := t.conns[endpoint]
	if len(cs) == 0 {
		return nil
	}
	return cs[len(cs)-1]
}
