package logger

import (
	"log/slog"
)

// Standard field keys for structured logging across the R2P2 engine.
// Use these keys consistently across all log statements for log aggregation
// and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry-style trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry-style span ID for operation tracking

	// ========================================================================
	// Worker & Engine
	// ========================================================================
	KeyWorkerID = "worker_id" // xid-assigned identifier of the owning worker
	KeyShard    = "shard"     // worker shard index (0..N-1)

	// ========================================================================
	// Wire / Pair identity
	// ========================================================================
	KeyReqID       = "rid"           // request id from the wire header
	KeyPeer        = "peer"          // remote UDP address (host:port)
	KeyLocalPort   = "local_port"    // local listening port the pair was bound to
	KeyMsgType     = "msg_type"      // REQUEST or RESPONSE
	KeyPolicy      = "policy"        // routing policy nibble
	KeyPacketOrder = "packet_order"  // p_order field of the current packet
	KeyPacketCount = "packet_count"  // total packets in the assembled message
	KeyFirstFlag   = "first_flag"    // F_FLAG bit
	KeyLastFlag    = "last_flag"     // L_FLAG bit
	KeyHeaderSize  = "header_size"   // declared header_size field
	KeyPayloadLen  = "payload_len"   // length of the payload carried by one packet
	KeyMessageLen  = "message_len"   // total reassembled message length

	// ========================================================================
	// State machines
	// ========================================================================
	KeyClientState = "client_state" // W_ACK, W_RESPONSE
	KeyServerState = "server_state" // assembling, delivered, done

	// ========================================================================
	// Pools & resources
	// ========================================================================
	KeyPoolClass     = "pool_class"     // buffer size class name
	KeyPoolInUse     = "pool_in_use"    // slots currently checked out
	KeyPoolCapacity  = "pool_capacity"  // total slots in the pool
	KeyRegistrySize  = "registry_size"  // pending pairs currently tracked

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // operation duration in milliseconds
	KeyError      = "error"       // error message
	KeyErrorCode  = "error_code"  // numeric/sentinel error code
)

// ----------------------------------------------------------------------------
// Worker & Engine
// ----------------------------------------------------------------------------

// WorkerID returns a slog.Attr for the owning worker's id.
func WorkerID(id string) slog.Attr {
	return slog.String(KeyWorkerID, id)
}

// Shard returns a slog.Attr for the worker shard index.
func Shard(n int) slog.Attr {
	return slog.Int(KeyShard, n)
}

// ----------------------------------------------------------------------------
// Wire / Pair identity
// ----------------------------------------------------------------------------

// ReqID returns a slog.Attr for the request id.
func ReqID(rid uint32) slog.Attr {
	return slog.Any(KeyReqID, rid)
}

// Peer returns a slog.Attr for the remote address.
func Peer(addr string) slog.Attr {
	return slog.String(KeyPeer, addr)
}

// LocalPort returns a slog.Attr for the local bound port.
func LocalPort(port int) slog.Attr {
	return slog.Int(KeyLocalPort, port)
}

// PacketOrder returns a slog.Attr for a packet's p_order field.
func PacketOrder(order uint8) slog.Attr {
	return slog.Any(KeyPacketOrder, order)
}

// PacketCount returns a slog.Attr for the total packet count of a message.
func PacketCount(n int) slog.Attr {
	return slog.Int(KeyPacketCount, n)
}

// PayloadLen returns a slog.Attr for a single packet's payload length.
func PayloadLen(n int) slog.Attr {
	return slog.Int(KeyPayloadLen, n)
}

// MessageLen returns a slog.Attr for the total reassembled message length.
func MessageLen(n int) slog.Attr {
	return slog.Int(KeyMessageLen, n)
}

// ----------------------------------------------------------------------------
// State machines
// ----------------------------------------------------------------------------

// ClientState returns a slog.Attr for the client pair state.
func ClientState(s string) slog.Attr {
	return slog.String(KeyClientState, s)
}

// ServerState returns a slog.Attr for the server pair state.
func ServerState(s string) slog.Attr {
	return slog.String(KeyServerState, s)
}

// ----------------------------------------------------------------------------
// Pools & resources
// ----------------------------------------------------------------------------

// PoolClass returns a slog.Attr for a buffer pool size class.
func PoolClass(name string) slog.Attr {
	return slog.String(KeyPoolClass, name)
}

// PoolInUse returns a slog.Attr for the number of slots checked out.
func PoolInUse(n int) slog.Attr {
	return slog.Int(KeyPoolInUse, n)
}

// PoolCapacity returns a slog.Attr for the pool's total capacity.
func PoolCapacity(n int) slog.Attr {
	return slog.Int(KeyPoolCapacity, n)
}

// RegistrySize returns a slog.Attr for the number of tracked pending pairs.
func RegistrySize(n int) slog.Attr {
	return slog.Int(KeyRegistrySize, n)
}

// ----------------------------------------------------------------------------
// Operation Metadata
// ----------------------------------------------------------------------------

// DurationMs returns a slog.Attr for a duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error, or a no-op attr if err is nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a numeric/sentinel error code.
func ErrorCode(code string) slog.Attr {
	return slog.String(KeyErrorCode, code)
}
