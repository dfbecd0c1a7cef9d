// Package msg builds and parses the in-memory representations of each
// command's frame body (C2): TINIT, RINIT, SENDMETA/FINMETA fragments, and
// SVR_RECORD_REQ. Builders compute exact body lengths up front so the wire
// codec can allocate a single contiguous buffer per frame.
package msg

import (
	"encoding/binary"

	"github.com/marmos91/tracelisten/internal/protoerr"
	"github.com/marmos91/tracelisten/internal/wire"
)

// OptUseTCP is the only defined TINIT option command: its presence (with an
// empty string payload) signals "use TCP rather than UDP for per-CPU data
// streams".
const OptUseTCP uint32 = 1

// Option is one TINIT option: a command tag plus an embedded string.
type Option struct {
	Cmd uint32
	Str string
}

// encodedLen is the option's own on-wire length, including its size field.
func (o Option) encodedLen() int {
	return 4 + 4 + 4 + len(o.Str) // size + opt_cmd + str_size + str_bytes
}

// TINIT is the client's handshake advertisement: CPU count, page size, and
// an ordered set of options.
type TINIT struct {
	CPUs     uint32
	PageSize uint32
	Options  []Option
}

// BuildTINIT materializes a TINIT frame body. If PageSize is at or above
// wire.UDPMaxPacket, a USETCP option is auto-inserted (if not already
// present) per §4.2.
func BuildTINIT(t TINIT) ([]byte, bool, error) {
	autoTCP := false
	opts := t.Options
	if t.PageSize >= wire.UDPMaxPacket && !hasOption(opts, OptUseTCP) {
		opts = append(append([]Option{}, opts...), Option{Cmd: OptUseTCP, Str: ""})
		autoTCP = true
	}

	bodyLen := 12
	for _, o := range opts {
		if len(o.Str) > wire.MaxOptionSize {
			return nil, false, protoerr.Newf(protoerr.ProtocolViolation, "option %d string length %d exceeds MAX_OPTION_SIZE", o.Cmd, len(o.Str))
		}
		bodyLen += o.encodedLen()
	}
	if bodyLen > wire.MaxFrame-wire.HeaderSize {
		return nil, false, protoerr.Newf(protoerr.ProtocolViolation, "TINIT body length %d exceeds frame capacity", bodyLen)
	}

	body := make([]byte, bodyLen)
	binary.BigEndian.PutUint32(body[0:4], t.CPUs)
	binary.BigEndian.PutUint32(body[4:8], t.PageSize)
	binary.BigEndian.PutUint32(body[8:12], uint32(len(opts)))

	off := 12
	for _, o := range opts {
		n := o.encodedLen()
		binary.BigEndian.PutUint32(body[off:off+4], uint32(n))
		binary.BigEndian.PutUint32(body[off+4:off+8], o.Cmd)
		binary.BigEndian.PutUint32(body[off+8:off+12], uint32(len(o.Str)))
		copy(body[off+12:off+n], o.Str)
		off += n
	}
	return body, autoTCP, nil
}

// ParseTINIT decodes a TINIT frame body, validating option bounds and
// rejecting unknown option commands per §4.4.
func ParseTINIT(body []byte) (TINIT, error) {
	if len(body) < 12 {
		return TINIT{}, protoerr.Newf(protoerr.ProtocolViolation, "TINIT body too short: %d bytes", len(body))
	}
	t := TINIT{
		CPUs:     binary.BigEndian.Uint32(body[0:4]),
		PageSize: binary.BigEndian.Uint32(body[4:8]),
	}
	if t.PageSize == 0 {
		return TINIT{}, protoerr.New(protoerr.ProtocolViolation, "TINIT page_size must be > 0")
	}
	optNum := binary.BigEndian.Uint32(body[8:12])

	off := 12
	for i := uint32(0); i < optNum; i++ {
		if off+12 > len(body) {
			return TINIT{}, protoerr.New(protoerr.ProtocolViolation, "TINIT option header truncated")
		}
		size := binary.BigEndian.Uint32(body[off : off+4])
		cmd := binary.BigEndian.Uint32(body[off+4 : off+8])
		strSize := binary.BigEndian.Uint32(body[off+8 : off+12])

		if size > wire.MaxOptionSize {
			return TINIT{}, protoerr.Newf(protoerr.ProtocolViolation, "option size %d exceeds MAX_OPTION_SIZE", size)
		}
		if uint64(size) != uint64(12)+uint64(strSize) {
			return TINIT{}, protoerr.Newf(protoerr.ProtocolViolation, "option size %d inconsistent with str_size %d", size, strSize)
		}
		if off+int(size) > len(body) {
			return TINIT{}, protoerr.New(protoerr.ProtocolViolation, "TINIT option body truncated")
		}
		if cmd != OptUseTCP {
			return TINIT{}, protoerr.Newf(protoerr.ProtocolViolation, "unknown TINIT option command %d", cmd)
		}

		str := string(body[off+12 : off+int(size)])
		t.Options = append(t.Options, Option{Cmd: cmd, Str: str})
		off += int(size)
	}
	return t, nil
}

func hasOption(opts []Option, cmd uint32) bool {
	for _, o := range opts {
		if o.Cmd == cmd {
			return true
		}
	}
	return false
}

// UsesTCP reports whether t carries the USETCP option.
func (t TINIT) UsesTCP() bool {
	return hasOption(t.Options, OptUseTCP)
}

// RINIT is the server's handshake reply: the negotiated CPU count and its
// per-CPU data ports. On the wire the port array is always CPU_MAX wide
// regardless of CPUs (§9 over-copy fix).
type RINIT struct {
	CPUs  uint32
	Ports []uint32
}

// BuildRINIT materializes a fixed-width RINIT body: 4 + 4*CPU_MAX bytes
// regardless of len(r.Ports), copying exactly one port per iteration.
func BuildRINIT(r RINIT) ([]byte, error) {
	if r.CPUs > wire.CPUMax {
		return nil, protoerr.Newf(protoerr.ProtocolViolation, "cpus %d exceeds CPU_MAX %d", r.CPUs, wire.CPUMax)
	}
	if int(r.CPUs) > len(r.Ports) {
		return nil, protoerr.Newf(protoerr.ResourceExhaustion, "cpus %d exceeds supplied port count %d", r.CPUs, len(r.Ports))
	}

	body := make([]byte, 4+4*wire.CPUMax)
	binary.BigEndian.PutUint32(body[0:4], r.CPUs)
	for i := uint32(0); i < r.CPUs; i++ {
		off := 4 + 4*int(i)
		binary.BigEndian.PutUint32(body[off:off+4], r.Ports[i])
	}
	return body, nil
}

// ParseRINIT decodes a fixed-width RINIT body, returning only the first
// CPUs live ports.
func ParseRINIT(body []byte) (RINIT, error) {
	if len(body) != 4+4*wire.CPUMax {
		return RINIT{}, protoerr.Newf(protoerr.ProtocolViolation, "RINIT body length %d, expected %d", len(body), 4+4*wire.CPUMax)
	}
	cpus := binary.BigEndian.Uint32(body[0:4])
	if cpus > wire.CPUMax {
		return RINIT{}, protoerr.Newf(protoerr.ProtocolViolation, "cpus %d exceeds CPU_MAX %d", cpus, wire.CPUMax)
	}
	ports := make([]uint32, cpus)
	for i := uint32(0); i < cpus; i++ {
		off := 4 + 4*int(i)
		ports[i] = binary.BigEndian.Uint32(body[off : off+4])
	}
	return RINIT{CPUs: cpus, Ports: ports}, nil
}

// BuildSendMetaChunk materializes a single SENDMETA fragment body. Callers
// are responsible for splitting a logical blob into chunks no larger than
// wire.MaxMetaChunk; the length is computed directly from the chunk, never
// predicted-then-corrected (§9 open question).
func BuildSendMetaChunk(chunk []byte) ([]byte, error) {
	if len(chunk) > wire.MaxMetaChunk {
		return nil, protoerr.Newf(protoerr.ProtocolViolation, "meta chunk length %d exceeds max %d", len(chunk), wire.MaxMetaChunk)
	}
	body := make([]byte, 4+len(chunk))
	binary.BigEndian.PutUint32(body[0:4], uint32(len(chunk)))
	copy(body[4:], chunk)
	return body, nil
}

// ParseSendMeta extracts the raw metadata bytes from a SENDMETA frame body.
func ParseSendMeta(body []byte) ([]byte, error) {
	if len(body) < 4 {
		return nil, protoerr.New(protoerr.ProtocolViolation, "SENDMETA body too short")
	}
	strSize := binary.BigEndian.Uint32(body[0:4])
	if 4+int(strSize) != len(body) {
		return nil, protoerr.Newf(protoerr.ProtocolViolation, "SENDMETA str_size %d inconsistent with body length %d", strSize, len(body))
	}
	return body[4:], nil
}

// ServerRecordReq carries the initiator's record-command argument text, sent
// ahead of the Client/Server state machines per §4.5.
type ServerRecordReq struct {
	Param string
}

// BuildServerRecordReq materializes an SVR_RECORD_REQ body. The wire
// representation is NUL-terminated by convention.
func BuildServerRecordReq(r ServerRecordReq) ([]byte, error) {
	paramLen := len(r.Param) + 1 // + trailing NUL
	bodyLen := 4 + paramLen
	if bodyLen > wire.MaxFrame-wire.HeaderSize {
		return nil, protoerr.Newf(protoerr.ProtocolViolation, "SVR_RECORD_REQ body length %d exceeds frame capacity", bodyLen)
	}
	body := make([]byte, bodyLen)
	binary.BigEndian.PutUint32(body[0:4], uint32(paramLen))
	copy(body[4:], r.Param)
	body[len(body)-1] = 0
	return body, nil
}

// ParseServerRecordReq decodes an SVR_RECORD_REQ body, validating the
// NUL terminator and stripping it.
func ParseServerRecordReq(body []byte) (ServerRecordReq, error) {
	if len(body) < 5 {
		return ServerRecordReq{}, protoerr.New(protoerr.ProtocolViolation, "SVR_RECORD_REQ body too short")
	}
	paramLen := binary.BigEndian.Uint32(body[0:4])
	if 4+int(paramLen) != len(body) {
		return ServerRecordReq{}, protoerr.Newf(protoerr.ProtocolViolation, "SVR_RECORD_REQ param_size %d inconsistent with body length %d", paramLen, len(body))
	}
	if paramLen == 0 || body[len(body)-1] != 0 {
		return ServerRecordReq{}, protoerr.New(protoerr.ProtocolViolation, "SVR_RECORD_REQ param not NUL-terminated")
	}
	return ServerRecordReq{Param: string(body[4 : len(body)-1])}, nil
}
