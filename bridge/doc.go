// Package bridge owns the IPC connections between the loader and the host's
// browser contexts.
//
// There is at most one shared-context connection and one frontend connection
// per plugin. Each connection is driven by its own supervisor goroutine that
// performs the handshake with bounded exponential backoff, reads inbound
// envelopes while the connection is open, and reconnects when the transport
// drops. A connection that exhausts its attempts becomes Failed and leaves the
// active set; it never affects other connections.
//
// PostShared and PostGlobal are fire-and-forget broadcasts over whatever is
// open at the moment of the call. Messages are not queued for connections that
// are still connecting.
package bridge
