package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for control-protocol operations.
const (
	// ========================================================================
	// Peer/session attributes
	// ========================================================================
	AttrPeerAddr   = "peer.address"
	AttrPeerHost   = "peer.host"
	AttrPeerPort   = "peer.port"
	AttrSessionID  = "session.id"

	// ========================================================================
	// Wire protocol attributes
	// ========================================================================
	AttrCmd       = "wire.cmd" // TINIT, RINIT, SENDMETA, FINMETA, ...
	AttrFrameSize = "wire.frame_size"

	// ========================================================================
	// TINIT/RINIT negotiation attributes
	// ========================================================================
	AttrCPUCount = "negotiate.cpu_count"
	AttrPageSize = "negotiate.page_size"
	AttrUseTCP   = "negotiate.use_tcp"

	// ========================================================================
	// Metadata streaming attributes
	// ========================================================================
	AttrMetaBytes  = "meta.bytes"
	AttrMetaChunks = "meta.chunks"

	// ========================================================================
	// Server-initiated record request attributes
	// ========================================================================
	AttrRecordSeq = "svrrecord.seq"

	// ========================================================================
	// Fan-out (--connect) attributes
	// ========================================================================
	AttrFanoutHost  = "fanout.host"
	AttrFanoutParam = "fanout.param"

	// ========================================================================
	// Hook attributes
	// ========================================================================
	AttrHookSystem = "hook.system"
	AttrHookEvent  = "hook.event"

	// ========================================================================
	// Error attributes
	// ========================================================================
	AttrErrorKind = "error.kind"
)

// Span names for control-protocol operations.
const (
	SpanControlSession = "control.session"
	SpanControlTINIT   = "control.TINIT"
	SpanControlRINIT   = "control.RINIT"
	SpanControlMeta    = "control.SENDMETA"
	SpanControlFinMeta = "control.FINMETA"
	SpanControlClose   = "control.CLOSE"

	SpanSvrRecordRequest = "svrrecord.request"
	SpanSvrRecordAck     = "svrrecord.ack"

	SpanFanoutConnect = "fanout.connect"
	SpanFanoutSession = "fanout.session"

	SpanHookParse = "hooks.parse"
)

// PeerAddr returns an attribute for the remote peer address (host:port).
func PeerAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrPeerAddr, addr)
}

// SessionID returns an attribute for the session identifier.
func SessionID(id string) attribute.KeyValue {
	return attribute.String(AttrSessionID, id)
}

// Cmd returns an attribute for the wire command name.
func Cmd(name string) attribute.KeyValue {
	return attribute.String(AttrCmd, name)
}

// FrameSize returns an attribute for a frame's total wire size.
func FrameSize(n uint32) attribute.KeyValue {
	return attribute.Int64(AttrFrameSize, int64(n))
}

// CPUCount returns an attribute for the negotiated CPU count.
func CPUCount(n uint32) attribute.KeyValue {
	return attribute.Int64(AttrCPUCount, int64(n))
}

// PageSize returns an attribute for the negotiated page size.
func PageSize(n uint32) attribute.KeyValue {
	return attribute.Int64(AttrPageSize, int64(n))
}

// UseTCP returns an attribute for whether the session negotiated TCP streaming.
func UseTCP(use bool) attribute.KeyValue {
	return attribute.Bool(AttrUseTCP, use)
}

// MetaBytes returns an attribute for the number of metadata bytes transferred.
func MetaBytes(n int) attribute.KeyValue {
	return attribute.Int64(AttrMetaBytes, int64(n))
}

// MetaChunks returns an attribute for the number of SENDMETA chunks transferred.
func MetaChunks(n int) attribute.KeyValue {
	return attribute.Int64(AttrMetaChunks, int64(n))
}

// RecordSeq returns an attribute for a server-record request sequence number.
func RecordSeq(seq uint32) attribute.KeyValue {
	return attribute.Int64(AttrRecordSeq, int64(seq))
}

// FanoutHost returns an attribute for a fan-out target host.
func FanoutHost(host string) attribute.KeyValue {
	return attribute.String(AttrFanoutHost, host)
}

// FanoutParam returns an attribute for a fan-out connection parameter string.
func FanoutParam(param string) attribute.KeyValue {
	return attribute.String(AttrFanoutParam, param)
}

// HookSystem returns an attribute for a hook's event subsystem.
func HookSystem(system string) attribute.KeyValue {
	return attribute.String(AttrHookSystem, system)
}

// HookEvent returns an attribute for a hook's event name.
func HookEvent(event string) attribute.KeyValue {
	return attribute.String(AttrHookEvent, event)
}

// ErrorKind returns an attribute for a protocol error kind.
func ErrorKind(kind string) attribute.KeyValue {
	return attribute.String(AttrErrorKind, kind)
}

// StartControlSpan starts a span for a control-protocol message exchange.
// This is a convenience function that sets common session attributes.
func StartControlSpan(ctx context.Context, name, sessionID, peer string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		SessionID(sessionID),
		PeerAddr(peer),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}

// StartFanoutSpan starts a span for a --connect fan-out sub-session.
func StartFanoutSpan(ctx context.Context, host, param string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		FanoutHost(host),
		FanoutParam(param),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, SpanFanoutSession, trace.WithAttributes(allAttrs...))
}
