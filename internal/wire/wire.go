// Package wire implements the control protocol's frame codec (C1): a
// length-prefixed, command-tagged unit carried over a reliable byte stream.
//
// Frame := size(4) || cmd(4) || body(size-8), all fields big-endian u32.
package wire

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"time"

	"github.com/marmos91/tracelisten/internal/protoerr"
)

// Command is the enumerated tag carried in every frame header.
type Command uint32

const (
	CmdClose        Command = 1
	CmdTINIT        Command = 4
	CmdRINIT        Command = 5
	CmdSendMeta     Command = 6
	CmdFinMeta      Command = 7
	CmdSvrRecordReq Command = 8
	CmdSvrRecordAck Command = 9
)

func (c Command) String() string {
	switch c {
	case CmdClose:
		return "CLOSE"
	case CmdTINIT:
		return "TINIT"
	case CmdRINIT:
		return "RINIT"
	case CmdSendMeta:
		return "SENDMETA"
	case CmdFinMeta:
		return "FINMETA"
	case CmdSvrRecordReq:
		return "SVR_RECORD_REQ"
	case CmdSvrRecordAck:
		return "SVR_RECORD_ACK"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether c is a member of the closed command set.
// Values 2, 3, and anything >= 10 are reserved.
func (c Command) Valid() bool {
	switch c {
	case CmdClose, CmdTINIT, CmdRINIT, CmdSendMeta, CmdFinMeta, CmdSvrRecordReq, CmdSvrRecordAck:
		return true
	default:
		return false
	}
}

const (
	// HeaderSize is the fixed size(4)+cmd(4) frame header.
	HeaderSize = 8

	// MaxFrame is the largest permitted total frame size, BUFSIZ-sized in the
	// reference implementation.
	MaxFrame = 8192

	// CPUMax is the fixed upper bound on per-CPU port entries carried by RINIT.
	CPUMax = 256

	// MaxOptionSize is the largest permitted single TINIT option.
	MaxOptionSize = 4096

	// UDPMaxPacket is the threshold at or above which TCP is auto-negotiated for
	// per-CPU data streams.
	UDPMaxPacket = 65507

	// DefaultTimeout is the default receive deadline for a timed frame read.
	DefaultTimeout = 5000 * time.Millisecond

	// MaxMetaChunk is the largest SENDMETA payload that fits in one frame
	// (MAX_FRAME minus the frame header and the embedded Str header).
	MaxMetaChunk = MaxFrame - HeaderSize - 4
)

// WriteFrame encodes and writes a single frame: size || cmd || body.
// Short writes are retried from the offset (io.Writer on net.Conn already
// retries transparently on interrupted syscalls, so no manual EINTR loop
// is needed here).
func WriteFrame(w io.Writer, cmd Command, body []byte) error {
	size := HeaderSize + len(body)
	if size < HeaderSize || size > MaxFrame {
		return protoerr.Newf(protoerr.ProtocolViolation, "frame size %d out of bounds [%d, %d]", size, HeaderSize, MaxFrame)
	}

	buf := make([]byte, size)
	binary.BigEndian.PutUint32(buf[0:4], uint32(size))
	binary.BigEndian.PutUint32(buf[4:8], uint32(cmd))
	copy(buf[8:], body)

	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return protoerr.Wrap(protoerr.Transport, err)
		}
		buf = buf[n:]
	}
	return nil
}

// ReadFrame reads exactly one frame from r: 8 octets of header, then
// size-8 octets of body, validating bounds along the way.
func ReadFrame(r io.Reader) (Command, []byte, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, protoerr.Wrap(classifyReadErr(err), err)
	}

	size := binary.BigEndian.Uint32(header[0:4])
	cmd := Command(binary.BigEndian.Uint32(header[4:8]))

	if size < HeaderSize || size > MaxFrame {
		return 0, nil, protoerr.Newf(protoerr.ProtocolViolation, "frame size %d out of bounds [%d, %d]", size, HeaderSize, MaxFrame)
	}

	bodyLen := size - HeaderSize
	if bodyLen == 0 {
		return cmd, nil, nil
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, protoerr.Wrap(classifyReadErr(err), err)
	}
	return cmd, body, nil
}

// ReadFrameTimeout reads one frame from conn, failing with a Timeout error
// if no frame is observed within timeout. A zero timeout disables the
// deadline entirely (the debug-mode "wait forever" case).
func ReadFrameTimeout(conn net.Conn, timeout time.Duration) (Command, []byte, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return 0, nil, protoerr.Wrap(protoerr.Transport, err)
	}

	cmd, body, err := ReadFrame(conn)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return 0, nil, protoerr.Wrap(protoerr.Timeout, err)
		}
		return 0, nil, err
	}
	return cmd, body, nil
}

// classifyReadErr distinguishes a clean/truncated peer close (Disconnected)
// from any other transport failure.
func classifyReadErr(err error) protoerr.Kind {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return protoerr.Disconnected
	}
	return protoerr.Transport
}
