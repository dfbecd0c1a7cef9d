package control

import (
	"context"
	"net"
	"time"

	"github.com/marmos91/tracelisten/internal/logger"
	"github.com/marmos91/tracelisten/internal/msg"
	"github.com/marmos91/tracelisten/internal/protoerr"
	"github.com/marmos91/tracelisten/internal/telemetry"
	"github.com/marmos91/tracelisten/internal/wire"
)

// SendServerRecordReq runs the initiator's half of the server-record
// sub-protocol (§4.5): send SVR_RECORD_REQ with param, then wait for
// SVR_RECORD_ACK within timeout. On success the caller proceeds to run the
// Client state machine on the same socket.
func SendServerRecordReq(ctx context.Context, conn net.Conn, sessionID, param string, timeout time.Duration) error {
	if timeout == 0 {
		timeout = wire.DefaultTimeout
	}

	ctx, span := telemetry.StartControlSpan(ctx, telemetry.SpanSvrRecordRequest, sessionID, conn.RemoteAddr().String())
	defer span.End()

	body, err := msg.BuildServerRecordReq(msg.ServerRecordReq{Param: param})
	if err != nil {
		return err
	}
	if err := wire.WriteFrame(conn, wire.CmdSvrRecordReq, body); err != nil {
		return protoerr.Wrap(protoerr.KindOf(err), err)
	}
	logger.InfoCtx(ctx, "server-record request sent", logger.KeyParam, param)

	cmd, _, err := wire.ReadFrameTimeout(conn, timeout)
	if err != nil {
		return err
	}
	if cmd != wire.CmdSvrRecordAck {
		err := protoerr.Newf(protoerr.ProtocolViolation, "expected SVR_RECORD_ACK, got %s", cmd)
		logger.ErrorCtx(ctx, "server-record handshake failed", logger.Err(err))
		return err
	}
	logger.InfoCtx(ctx, "server-record request acknowledged")
	return nil
}

// ReceiveServerRecordReq runs the responder's half of the server-record
// sub-protocol: receive SVR_RECORD_REQ, validate it, and reply with
// SVR_RECORD_ACK. The returned parameter string is the downstream record
// command's argument text; the caller proceeds to run the Server state
// machine on the same socket.
func ReceiveServerRecordReq(ctx context.Context, conn net.Conn, sessionID string, timeout time.Duration) (string, error) {
	if timeout == 0 {
		timeout = wire.DefaultTimeout
	}

	ctx, span := telemetry.StartControlSpan(ctx, telemetry.SpanSvrRecordAck, sessionID, conn.RemoteAddr().String())
	defer span.End()

	cmd, body, err := wire.ReadFrameTimeout(conn, timeout)
	if err != nil {
		return "", err
	}
	if cmd != wire.CmdSvrRecordReq {
		err := protoerr.Newf(protoerr.ProtocolViolation, "expected SVR_RECORD_REQ, got %s", cmd)
		logger.ErrorCtx(ctx, "server-record handshake failed", logger.Err(err))
		return "", err
	}

	req, err := msg.ParseServerRecordReq(body)
	if err != nil {
		return "", err
	}
	logger.InfoCtx(ctx, "server-record request received", logger.KeyParam, req.Param)

	if err := wire.WriteFrame(conn, wire.CmdSvrRecordAck, nil); err != nil {
		return "", protoerr.Wrap(protoerr.KindOf(err), err)
	}
	return req.Param, nil
}
