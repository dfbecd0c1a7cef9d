package msg

import (
	"bytes"
	"testing"

	"github.com/marmos91/tracelisten/internal/protoerr"
	"github.com/marmos91/tracelisten/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildParseTINITNoOptions(t *testing.T) {
	body, autoTCP, err := BuildTINIT(TINIT{CPUs: 2, PageSize: 4096})
	require.NoError(t, err)
	assert.False(t, autoTCP)

	parsed, err := ParseTINIT(body)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), parsed.CPUs)
	assert.Equal(t, uint32(4096), parsed.PageSize)
	assert.Empty(t, parsed.Options)
	assert.False(t, parsed.UsesTCP())
}

func TestBuildParseTINITWithUseTCPOption(t *testing.T) {
	body, autoTCP, err := BuildTINIT(TINIT{
		CPUs:     4,
		PageSize: 4096,
		Options:  []Option{{Cmd: OptUseTCP, Str: ""}},
	})
	require.NoError(t, err)
	assert.False(t, autoTCP)

	parsed, err := ParseTINIT(body)
	require.NoError(t, err)
	assert.True(t, parsed.UsesTCP())
}

func TestBuildTINITAutoInsertsUseTCPAtLargePageSize(t *testing.T) {
	body, autoTCP, err := BuildTINIT(TINIT{CPUs: 1, PageSize: wire.UDPMaxPacket})
	require.NoError(t, err)
	assert.True(t, autoTCP)

	parsed, err := ParseTINIT(body)
	require.NoError(t, err)
	assert.True(t, parsed.UsesTCP())
}

func TestParseTINITRejectsUnknownOption(t *testing.T) {
	body, _, err := BuildTINIT(TINIT{CPUs: 1, PageSize: 4096, Options: []Option{{Cmd: 42, Str: ""}}})
	require.NoError(t, err)
	_, err = ParseTINIT(body)
	require.Error(t, err)
	assert.Equal(t, protoerr.ProtocolViolation, protoerr.KindOf(err))
}

func TestBuildTINITRejectsOversizedOption(t *testing.T) {
	oversized := string(bytes.Repeat([]byte{'x'}, wire.MaxOptionSize+1))
	_, _, err := BuildTINIT(TINIT{CPUs: 1, PageSize: 4096, Options: []Option{{Cmd: OptUseTCP, Str: oversized}}})
	require.Error(t, err)
	assert.Equal(t, protoerr.ProtocolViolation, protoerr.KindOf(err))
}

func TestRINITFixedWidthRegardlessOfCPUCount(t *testing.T) {
	for _, n := range []uint32{0, 1, 2, 200} {
		ports := make([]uint32, n)
		for i := range ports {
			ports[i] = 40000 + uint32(i)
		}
		body, err := BuildRINIT(RINIT{CPUs: n, Ports: ports})
		require.NoError(t, err)
		assert.Equal(t, 4+4*wire.CPUMax, len(body))

		parsed, err := ParseRINIT(body)
		require.NoError(t, err)
		assert.Equal(t, n, parsed.CPUs)
		assert.Equal(t, ports, parsed.Ports)
	}
}

func TestBuildRINITRejectsCPUsOverMax(t *testing.T) {
	_, err := BuildRINIT(RINIT{CPUs: wire.CPUMax + 1, Ports: make([]uint32, wire.CPUMax+1)})
	require.Error(t, err)
	assert.Equal(t, protoerr.ProtocolViolation, protoerr.KindOf(err))
}

func TestSendMetaChunkRoundTrip(t *testing.T) {
	chunk := bytes.Repeat([]byte{0x7A}, 17)
	body, err := BuildSendMetaChunk(chunk)
	require.NoError(t, err)

	got, err := ParseSendMeta(body)
	require.NoError(t, err)
	assert.Equal(t, chunk, got)
}

func TestMetadataChunkingScenarioS4(t *testing.T) {
	blob := bytes.Repeat([]byte{0x01}, 3*wire.MaxMetaChunk+17)

	var sink bytes.Buffer
	var frames int
	for off := 0; off < len(blob); {
		end := off + wire.MaxMetaChunk
		if end > len(blob) {
			end = len(blob)
		}
		body, err := BuildSendMetaChunk(blob[off:end])
		require.NoError(t, err)

		got, err := ParseSendMeta(body)
		require.NoError(t, err)
		sink.Write(got)

		frames++
		off = end
	}

	assert.Equal(t, 4, frames)
	assert.Equal(t, blob, sink.Bytes())
}

func TestBuildSendMetaChunkRejectsOversizedChunk(t *testing.T) {
	_, err := BuildSendMetaChunk(make([]byte, wire.MaxMetaChunk+1))
	require.Error(t, err)
	assert.Equal(t, protoerr.ProtocolViolation, protoerr.KindOf(err))
}

func TestServerRecordReqRoundTrip(t *testing.T) {
	body, err := BuildServerRecordReq(ServerRecordReq{Param: "record -e sched"})
	require.NoError(t, err)

	parsed, err := ParseServerRecordReq(body)
	require.NoError(t, err)
	assert.Equal(t, "record -e sched", parsed.Param)
}

func TestServerRecordReqRoundTripShortParam(t *testing.T) {
	for _, param := range []string{"", "a", "ab"} {
		body, err := BuildServerRecordReq(ServerRecordReq{Param: param})
		require.NoError(t, err)

		parsed, err := ParseServerRecordReq(body)
		require.NoError(t, err)
		assert.Equal(t, param, parsed.Param)
	}
}

func TestParseServerRecordReqRejectsMissingNUL(t *testing.T) {
	body := make([]byte, 4+3)
	body[3] = 3
	copy(body[4:], "abc")
	_, err := ParseServerRecordReq(body)
	require.Error(t, err)
	assert.Equal(t, protoerr.ProtocolViolation, protoerr.KindOf(err))
}

func TestWireFrameEncodeTINITBody(t *testing.T) {
	body, _, err := BuildTINIT(TINIT{CPUs: 2, PageSize: 4096})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, wire.WriteFrame(&buf, wire.CmdTINIT, body))

	cmd, gotBody, err := wire.ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, wire.CmdTINIT, cmd)
	assert.Equal(t, body, gotBody)
}
