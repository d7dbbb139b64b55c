package bridge

import "context"

// Conn is one established IPC channel.
//
// Read and Write may be called concurrently with each other. Close performs a
// graceful close and must unblock a pending Read; CloseNow drops the channel
// without notifying the peer.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close(reason string) error
	CloseNow() error
}

// Transport performs the handshake with a browser context.
type Transport interface {
	Dial(ctx context.Context, target Target, endpoint string) (Conn, error)
}
