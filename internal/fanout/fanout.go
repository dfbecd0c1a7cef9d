// Package fanout parses `--connect host [params…]` repetitions into an
// ordered request list (C6) and runs one independent sub-session per entry,
// each a goroutine rather than a child process — the isolation boundary
// §9 permits as long as no mutable state is shared after the split.
package fanout

import (
	"context"
	"net"
	"strings"
	"sync"

	"github.com/marmos91/tracelisten/internal/protoerr"
)

// maxParamLen bounds the joined param string per connection at 4096 bytes.
const maxParamLen = 4096

// FakeHost is the sentinel host used by the reference implementation's test
// harness to exercise fan-out without a real dial; kept for parity.
const FakeHost = "__fake_host__"

// RecordReq is one parsed `--connect host [params…]` entry.
type RecordReq struct {
	HostString string
	Param      string
}

// Host returns the host portion of HostString, splitting off an optional
// ":port" suffix.
func (r RecordReq) Host() string {
	host, _, err := net.SplitHostPort(r.HostString)
	if err != nil {
		return r.HostString
	}
	return host
}

// Port returns the port portion of HostString, or "" if none was given.
func (r RecordReq) Port() string {
	_, port, err := net.SplitHostPort(r.HostString)
	if err != nil {
		return ""
	}
	return port
}

// ParseConnectArgs parses a command-line argv (already stripped of the
// leading program name and subcommand) into an ordered list of RecordReq,
// per §4.6: each `--connect` consumes the next token as host, then consumes
// tokens up to the next `--connect` (or argv end) into one space-joined
// param string of at most maxParamLen bytes.
func ParseConnectArgs(argv []string) ([]RecordReq, error) {
	var reqs []RecordReq

	i := 0
	for i < len(argv) {
		if argv[i] != "--connect" {
			i++
			continue
		}
		i++
		if i >= len(argv) {
			return nil, protoerr.New(protoerr.ParseError, "--connect requires a host argument")
		}
		host := argv[i]
		i++

		var params []string
		paramLen := 0
		for i < len(argv) && argv[i] != "--connect" {
			tok := argv[i]
			addLen := len(tok)
			if len(params) > 0 {
				addLen++ // joining space
			}
			if paramLen+addLen > maxParamLen {
				return nil, protoerr.Newf(protoerr.ResourceExhaustion, "--connect %s: param buffer overflow beyond %d bytes", host, maxParamLen)
			}
			params = append(params, tok)
			paramLen += addLen
			i++
		}

		reqs = append(reqs, RecordReq{HostString: host, Param: strings.Join(params, " ")})
	}

	return reqs, nil
}

// SubSession is the per-entry work a Dialer runs to completion: dial host,
// drive SVR_RECORD_REQ and the control-protocol exchange, and return.
type SubSession func(ctx context.Context, req RecordReq) error

// Result captures one sub-session's terminal status.
type Result struct {
	Req RecordReq
	Err error
}

// Run executes one goroutine per request concurrently and waits for every
// one of them to return. Siblings are never aborted by one another's failure
// (§7): every entry runs to completion or to its own error, and Run reports
// all outcomes.
//
// ctx is handed unchanged to each sub-session; Run itself does not return
// early when ctx is cancelled, so cancellation takes effect only as far as
// each SubSession observes ctx.Done().
func Run(ctx context.Context, reqs []RecordReq, run SubSession) []Result {
	results := make([]Result, len(reqs))
	var wg sync.WaitGroup

	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req RecordReq) {
			defer wg.Done()
			results[i] = Result{Req: req, Err: run(ctx, req)}
		}(i, req)
	}

	wg.Wait()
	return results
}

// AnyFailed reports whether at least one sub-session failed, for the
// parent's overall nonzero exit status (§7).
func AnyFailed(results []Result) bool {
	for _, r := range results {
		if r.Err != nil {
			return true
		}
	}
	return false
}
