package presence

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/DoyleJ11/reflector-lobby/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return ts }
}

func TestRecordPing_RejectsMalformedAndKeepsPrior(t *testing.T) {
	cases := []struct {
		name string
		ms   float64
	}{
		{name: "negative", ms: -5},
		{name: "nan", ms: math.NaN()},
		{name: "inf", ms: math.Inf(1)},
		{name: "overflows int", ms: 1e19},
		{name: "above ceiling", ms: MaxPingMS + 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := NewTracker("me", fixedClock())
			require.NoError(t, tr.RecordPing("X", Sample{MS: 42}))

			err := tr.RecordPing("X", Sample{MS: tc.ms})
			require.Error(t, err)
			assert.True(t, errors.Is(err, errs.ErrValidation))

			p, ok := tr.Get("X")
			require.True(t, ok)
			assert.Equal(t, 42, p.Ping)
			assert.True(t, tr.IsReachable("X"))
		})
	}
}

func TestRecordPing_RejectedWithoutPriorLeavesNoRow(t *testing.T) {
	tr := NewTracker("me", fixedClock())

	err := tr.RecordPing("X", Sample{MS: -5})
	require.ErrorIs(t, err, errs.ErrValidation)

	_, ok := tr.Get("X")
	assert.False(t, ok)
	assert.True(t, tr.IsReachable("X"))
}

func TestRecordPing_LastWriteWins(t *testing.T) {
	tr := NewTracker("me", fixedClock())
	require.NoError(t, tr.RecordPing("X", Sample{MS: 80.4, CountryCode: "us"}))
	require.NoError(t, tr.RecordPing("X", Sample{MS: 31.6, Jitter: 7}))

	p, _ := tr.Get("X")
	assert.Equal(t, 32, p.Ping)
	assert.True(t, p.HasPing)
	assert.True(t, p.Unstable)
	assert.Equal(t, "US", p.CountryCode)
}

func TestIsReachable_SameRuleForSelfAndPeers(t *testing.T) {
	tr := NewTracker("me", fixedClock())
	assert.True(t, tr.IsReachable("me"))

	tr.SetSelfAway(true)
	assert.True(t, tr.SelfAway())
	assert.False(t, tr.IsReachable("me"))

	require.NoError(t, tr.SetAway("B", true))
	assert.False(t, tr.IsReachable("B"))
	require.NoError(t, tr.SetAway("B", false))
	assert.True(t, tr.IsReachable("B"))
}

func TestJoinLeaveReset(t *testing.T) {
	tr := NewTracker("me", fixedClock())
	require.NoError(t, tr.Join("B", "  Ryu  ", "jp"))
	require.ErrorIs(t, tr.Join(" ", "nobody", ""), errs.ErrValidation)

	p, ok := tr.Get("B")
	require.True(t, ok)
	assert.Equal(t, "Ryu", p.DisplayName)
	assert.Equal(t, "JP", p.CountryCode)

	tr.Leave("B")
	tr.Leave("me")
	_, ok = tr.Get("B")
	assert.False(t, ok)
	_, ok = tr.Get("me")
	assert.True(t, ok)

	tr.SetSelfAway(true)
	require.NoError(t, tr.SetInMatch("C", true))
	tr.Reset()
	assert.False(t, tr.SelfAway())
	assert.Len(t, tr.Snapshot(), 1)
}
