package session

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunClientAndRunServerEndToEnd(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	blob := bytes.Repeat([]byte{0x9}, 10000)
	var sink bytes.Buffer

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- RunServer(context.Background(), serverConn, ServerOptions{
			Timeout: time.Second,
			AllocatePorts: func(_ context.Context, cpus uint32, _ bool) ([]uint32, error) {
				ports := make([]uint32, cpus)
				for i := range ports {
					ports[i] = 40000 + uint32(i)
				}
				return ports, nil
			},
		}, &sink, nil)
	}()

	ports, err := RunClient(context.Background(), clientConn, ClientOptions{
		CPUs: 2, PageSize: 4096, Timeout: time.Second,
	}, bytes.NewReader(blob), nil)

	require.NoError(t, err)
	assert.Equal(t, []uint32{40000, 40001}, ports)
	require.NoError(t, <-serverErr)
	assert.Equal(t, blob, sink.Bytes())
}

func TestRunClientNegotiatesUseTCP(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	var negotiatedTCP bool
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- RunServer(context.Background(), serverConn, ServerOptions{
			Timeout: time.Second,
			AllocatePorts: func(_ context.Context, cpus uint32, useTCP bool) ([]uint32, error) {
				negotiatedTCP = useTCP
				return make([]uint32, cpus), nil
			},
		}, &bytes.Buffer{}, nil)
	}()

	_, err := RunClient(context.Background(), clientConn, ClientOptions{
		CPUs: 1, PageSize: 4096, UseTCP: true, Timeout: time.Second,
	}, bytes.NewReader(nil), nil)

	require.NoError(t, err)
	require.NoError(t, <-serverErr)
	assert.True(t, negotiatedTCP)
}
