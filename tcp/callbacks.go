// Package tcp implements the server/connection layer on top of
// package reactor: Server's connection registry and round-robin
// dispatch, and the per-connection state machine with its
// send/shutdown/close contracts.
package tcp

import (
	"github.com/govoltron/reactor/buffer"
	"github.com/govoltron/reactor/netutil"
)

// ConnectionCallback fires once a connection is established, and
// again (with Connected() already false) right before it's torn down.
type ConnectionCallback func(*Connection)

// MessageCallback fires whenever new bytes have been read into a
// connection's input buffer.
type MessageCallback func(*Connection, *buffer.Buffer, netutil.Timestamp)

// WriteCompleteCallback fires once a Send's bytes have all been handed
// to the kernel: right after a direct write that took everything, or
// once the output buffer has been fully drained.
type WriteCompleteCallback func(*Connection)

// HighWaterMarkCallback fires whenever a Send takes the output
// buffer's queued size from below the configured high-water mark to
// at or above it.
type HighWaterMarkCallback func(*Connection, int)
