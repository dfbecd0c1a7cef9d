package wire

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"github.com/marmos91/tracelisten/internal/protoerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		cmd  Command
		body []byte
	}{
		{"empty body", CmdClose, nil},
		{"tinit-sized body", CmdTINIT, bytes.Repeat([]byte{0xAB}, 64)},
		{"max frame", CmdSendMeta, bytes.Repeat([]byte{0x01}, MaxFrame-HeaderSize)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteFrame(&buf, tc.cmd, tc.body))

			cmd, body, err := ReadFrame(&buf)
			require.NoError(t, err)
			assert.Equal(t, tc.cmd, cmd)
			assert.Equal(t, tc.body, body)
		})
	}
}

func TestWriteFrameOversized(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, CmdTINIT, bytes.Repeat([]byte{0}, MaxFrame))
	require.Error(t, err)
	assert.Equal(t, protoerr.ProtocolViolation, protoerr.KindOf(err))
}

func TestReadFrameBoundsViolation(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 3, 0, 0, 0, byte(CmdTINIT)}) // size=3 < HeaderSize
	_, _, err := ReadFrame(&buf)
	require.Error(t, err)
	assert.Equal(t, protoerr.ProtocolViolation, protoerr.KindOf(err))
}

func TestReadFrameTruncatedHeaderIsDisconnected(t *testing.T) {
	buf := bytes.NewReader([]byte{0, 0})
	_, _, err := ReadFrame(buf)
	require.Error(t, err)
	assert.Equal(t, protoerr.Disconnected, protoerr.KindOf(err))
}

func TestReadFrameTruncatedBodyIsDisconnected(t *testing.T) {
	var header [8]byte
	header[3] = 16 // size=16, promising 8 bytes of body
	buf := bytes.NewBuffer(header[:])
	buf.Write([]byte{1, 2, 3}) // only 3 of the 8 promised bytes
	_, _, err := ReadFrame(buf)
	require.Error(t, err)
	assert.Equal(t, protoerr.Disconnected, protoerr.KindOf(err))
}

func TestReadFrameCleanEOFIsDisconnected(t *testing.T) {
	_, _, err := ReadFrame(bytes.NewReader(nil))
	require.Error(t, err)
	assert.Equal(t, protoerr.Disconnected, protoerr.KindOf(err))
	assert.True(t, protoerr.Is(err, protoerr.Disconnected))
}

func TestReadFrameTimeoutExpires(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	_, _, err := ReadFrameTimeout(server, 20*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, protoerr.Timeout, protoerr.KindOf(err))
}

func TestReadFrameTimeoutSucceedsWithinDeadline(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	done := make(chan error, 1)
	go func() {
		done <- WriteFrame(client, CmdRINIT, []byte("ok"))
	}()

	cmd, body, err := ReadFrameTimeout(server, time.Second)
	require.NoError(t, err)
	assert.Equal(t, CmdRINIT, cmd)
	assert.Equal(t, []byte("ok"), body)
	require.NoError(t, <-done)
}

func TestReadFrameTimeoutZeroDisablesDeadline(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = WriteFrame(client, CmdClose, nil)
	}()

	cmd, _, err := ReadFrameTimeout(server, 0)
	require.NoError(t, err)
	assert.Equal(t, CmdClose, cmd)
}

func TestCommandStringAndValid(t *testing.T) {
	assert.True(t, CmdTINIT.Valid())
	assert.Equal(t, "TINIT", CmdTINIT.String())
	assert.False(t, Command(99).Valid())
	assert.Equal(t, "UNKNOWN", Command(99).String())
}

var _ io.Writer = (*bytes.Buffer)(nil)
