// Package hooks parses user-supplied event-hook descriptors used to
// annotate a capture session (C7): strings of the form
// "[sys:]ev,match[,pid]/[sys:]ev,match[,flags]".
//
// The parser is a non-destructive scanner: it never mutates the input, and
// every produced field is a freshly-copied string rather than an alias into
// caller-owned memory (§9 remapping away from strtok-style destructive
// parsing).
package hooks

import (
	"strings"

	"github.com/marmos91/tracelisten/internal/protoerr"
)

// Endpoint is one half of a hook descriptor: the event that brackets the
// measurement, an optional subsystem qualifier, a match expression, and an
// optional trailing token (pid on the start half, flags on the end half).
type Endpoint struct {
	System string // empty if no "sys:" prefix was given
	Event  string
	Match  string
	Extra  string // pid (start half) or raw flags text (end half); empty if absent
}

// Flags are the decoded semantics of the end half's optional flags token.
type Flags struct {
	Migrate bool // default true; cleared by 'p'
	Global  bool // set by 'g', independent of 's'
	Stack   bool // set by 's'
}

// Hook is a fully parsed hook descriptor.
type Hook struct {
	Start Endpoint
	End   Endpoint
	Flags Flags
}

// Parse parses a single hook descriptor string per §4.7. Both halves must
// yield non-empty event and match tokens; start and end halves must be
// separated by exactly one '/'.
func Parse(input string) (Hook, error) {
	halves := strings.Split(input, "/")
	if len(halves) != 2 {
		return Hook{}, protoerr.Newf(protoerr.ParseError, "hook descriptor must contain exactly one '/', got %d", len(halves)-1)
	}

	start, err := parseEndpoint(halves[0], true)
	if err != nil {
		return Hook{}, protoerr.Newf(protoerr.ParseError, "start half %q: %v", halves[0], err)
	}
	end, err := parseEndpoint(halves[1], false)
	if err != nil {
		return Hook{}, protoerr.Newf(protoerr.ParseError, "end half %q: %v", halves[1], err)
	}

	return Hook{Start: start, End: end, Flags: decodeFlags(end.Extra)}, nil
}

// parseEndpoint parses one half of a descriptor: up to three comma-separated
// tokens, the first optionally carrying a "sys:" prefix.
func parseEndpoint(half string, isStart bool) (Endpoint, error) {
	tokens := strings.SplitN(half, ",", 3)

	first := tokens[0]
	var system, event string
	if idx := strings.IndexByte(first, ':'); idx >= 0 {
		system = first[:idx]
		event = first[idx+1:]
	} else {
		event = first
	}
	if event == "" {
		return Endpoint{}, protoerr.New(protoerr.ParseError, "missing event")
	}

	if len(tokens) < 2 || tokens[1] == "" {
		return Endpoint{}, protoerr.New(protoerr.ParseError, "missing match")
	}
	match := tokens[1]

	var extra string
	if len(tokens) == 3 {
		extra = tokens[2]
	}

	return Endpoint{
		System: strings.Clone(system),
		Event:  strings.Clone(event),
		Match:  strings.Clone(match),
		Extra:  strings.Clone(extra),
	}, nil
}

// decodeFlags dispatches each character of the end half's flags token,
// lowercased; unknown letters are ignored (the caller may log a warning).
// 'g' and 's' are independent: a descriptor may request both a global
// (not-per-instance) hook and a stack capture at once.
func decodeFlags(raw string) Flags {
	f := Flags{Migrate: true}
	for _, r := range strings.ToLower(raw) {
		switch r {
		case 'p':
			f.Migrate = false
		case 'g':
			f.Global = true
		case 's':
			f.Stack = true
		}
	}
	return f
}

// UnknownFlags returns the subset of raw's lowercased characters that are
// not recognized flag letters, in input order, for callers that want to
// warn on them.
func UnknownFlags(raw string) []rune {
	var unknown []rune
	for _, r := range strings.ToLower(raw) {
		switch r {
		case 'p', 'g', 's':
		default:
			unknown = append(unknown, r)
		}
	}
	return unknown
}
