package hooks

import (
	"testing"

	"github.com/marmos91/tracelisten/internal/protoerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScenarioS5(t *testing.T) {
	h, err := Parse("sched:sched_switch,prev_pid==1,100/sched:sched_wakeup,pid==1,PgS")
	require.NoError(t, err)

	assert.Equal(t, "sched", h.Start.System)
	assert.Equal(t, "sched_switch", h.Start.Event)
	assert.Equal(t, "prev_pid==1", h.Start.Match)
	assert.Equal(t, "100", h.Start.Extra)

	assert.Equal(t, "sched", h.End.System)
	assert.Equal(t, "sched_wakeup", h.End.Event)
	assert.Equal(t, "pid==1", h.End.Match)

	assert.False(t, h.Flags.Migrate)
	assert.True(t, h.Flags.Global)
	assert.True(t, h.Flags.Stack)
}

func TestParseNoSystemPrefix(t *testing.T) {
	h, err := Parse("sched_switch,prev_pid==1/sched_wakeup,pid==1")
	require.NoError(t, err)
	assert.Empty(t, h.Start.System)
	assert.Equal(t, "sched_switch", h.Start.Event)
	assert.Empty(t, h.Start.Extra)
}

func TestFlagSemanticsTable(t *testing.T) {
	cases := []struct {
		flags            string
		migrate          bool
		global           bool
		stack            bool
	}{
		{"", true, false, false},
		{"p", false, false, false},
		{"g", true, true, false},
		{"s", true, false, true},
		{"PG", false, true, false},
		{"GS", true, true, true},
	}
	for _, tc := range cases {
		h, err := Parse("ev,m/ev,m," + tc.flags)
		require.NoError(t, err)
		assert.Equal(t, tc.migrate, h.Flags.Migrate, "flags=%q migrate", tc.flags)
		assert.Equal(t, tc.global, h.Flags.Global, "flags=%q global", tc.flags)
		assert.Equal(t, tc.stack, h.Flags.Stack, "flags=%q stack", tc.flags)
	}
}

func TestUnknownFlagLetterIgnoredButReported(t *testing.T) {
	h, err := Parse("ev,m/ev,m,gx")
	require.NoError(t, err)
	assert.True(t, h.Flags.Global)
	assert.Equal(t, []rune{'x'}, UnknownFlags("gx"))
}

func TestParseRejectsMissingSlash(t *testing.T) {
	_, err := Parse("ev,m,ev,m")
	require.Error(t, err)
	assert.Equal(t, protoerr.ParseError, protoerr.KindOf(err))
}

func TestParseRejectsExtraSlash(t *testing.T) {
	_, err := Parse("ev,m/ev,m/extra")
	require.Error(t, err)
	assert.Equal(t, protoerr.ParseError, protoerr.KindOf(err))
}

func TestParseRejectsMissingEvent(t *testing.T) {
	_, err := Parse(",m/ev,m")
	require.Error(t, err)
	assert.Equal(t, protoerr.ParseError, protoerr.KindOf(err))
}

func TestParseRejectsMissingMatch(t *testing.T) {
	_, err := Parse("ev/ev,m")
	require.Error(t, err)
	assert.Equal(t, protoerr.ParseError, protoerr.KindOf(err))
}

func TestParseStartPidAndEndFlagsAreIndependentSlots(t *testing.T) {
	h, err := Parse("sys:ev,m,12345/sys:ev,m,s")
	require.NoError(t, err)
	assert.Equal(t, "12345", h.Start.Extra)
	assert.True(t, h.Flags.Stack)
}
