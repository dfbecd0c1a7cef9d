package fanout

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/marmos91/tracelisten/internal/protoerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConnectArgsSingleEntry(t *testing.T) {
	reqs, err := ParseConnectArgs([]string{"--connect", "host1:1234", "-e", "sched"})
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, "host1:1234", reqs[0].HostString)
	assert.Equal(t, "host1", reqs[0].Host())
	assert.Equal(t, "1234", reqs[0].Port())
	assert.Equal(t, "-e sched", reqs[0].Param)
}

func TestParseConnectArgsMultipleEntries(t *testing.T) {
	reqs, err := ParseConnectArgs([]string{
		"--connect", "host1", "-e", "sched",
		"--connect", "host2", "-p", "function",
	})
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, "host1", reqs[0].HostString)
	assert.Equal(t, "-e sched", reqs[0].Param)
	assert.Equal(t, "host2", reqs[1].HostString)
	assert.Equal(t, "-p function", reqs[1].Param)
}

func TestParseConnectArgsNoParams(t *testing.T) {
	reqs, err := ParseConnectArgs([]string{"--connect", "host1"})
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, "", reqs[0].Param)
}

func TestParseConnectArgsMissingHostIsParseError(t *testing.T) {
	_, err := ParseConnectArgs([]string{"--connect"})
	require.Error(t, err)
	assert.Equal(t, protoerr.ParseError, protoerr.KindOf(err))
}

func TestParseConnectArgsParamOverflowIsResourceExhaustion(t *testing.T) {
	args := []string{"--connect", "host1"}
	for i := 0; i < maxParamLen; i++ {
		args = append(args, "x")
	}
	_, err := ParseConnectArgs(args)
	require.Error(t, err)
	assert.Equal(t, protoerr.ResourceExhaustion, protoerr.KindOf(err))
}

func TestRunExecutesAllEntriesIndependently(t *testing.T) {
	reqs := []RecordReq{
		{HostString: "ok-host", Param: "a"},
		{HostString: "bad-host", Param: "b"},
		{HostString: "ok-host-2", Param: "c"},
	}

	results := Run(context.Background(), reqs, func(_ context.Context, req RecordReq) error {
		if strings.HasPrefix(req.HostString, "bad") {
			return errors.New("dial failed")
		}
		return nil
	})

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
	assert.True(t, AnyFailed(results))
}

func TestRunAllSucceed(t *testing.T) {
	reqs := []RecordReq{{HostString: "a"}, {HostString: "b"}}
	results := Run(context.Background(), reqs, func(_ context.Context, _ RecordReq) error { return nil })
	assert.False(t, AnyFailed(results))
}
