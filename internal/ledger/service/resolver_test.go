package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/service"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
)

func TestResolve_InitialStateIsOutside(t *testing.T) {
	res := service.Resolve(types.TransitionState{}, t0)

	assert.Equal(t, types.TransitionEntry, res.Transition)
	assert.Equal(t, types.Inside, res.Next.Current)
	require.NotNil(t, res.Next.LastEntryAt)
	assert.Equal(t, t0, *res.Next.LastEntryAt)
	assert.Nil(t, res.PreviousEntryAt)
	assert.True(t, res.Next.Valid())
}

func TestResolve_InsideBecomesExit(t *testing.T) {
	entry := t0
	res := service.Resolve(types.TransitionState{Current: types.Inside, LastEntryAt: &entry}, t0.Add(time.Hour))

	assert.Equal(t, types.TransitionExit, res.Transition)
	assert.Equal(t, types.Outside, res.Next.Current)
	assert.Nil(t, res.Next.LastEntryAt)
	require.NotNil(t, res.PreviousEntryAt)
	assert.Equal(t, t0, *res.PreviousEntryAt)
	assert.True(t, res.Next.Valid())
}

func TestResolve_Alternates(t *testing.T) {
	var st types.TransitionState
	want := []types.Transition{
		types.TransitionEntry, types.TransitionExit,
		types.TransitionEntry, types.TransitionExit,
		types.TransitionEntry,
	}
	for i, w := range want {
		res := service.Resolve(st, t0.Add(time.Duration(i)*time.Minute))
		assert.Equal(t, w, res.Transition, "step %d", i)
		st = res.Next
	}
}

func TestDwell(t *testing.T) {
	cases := []struct {
		name  string
		entry time.Time
		exit  time.Time
		want  time.Duration
	}{
		{"whole seconds", t0, t0.Add(90 * time.Second), 90 * time.Second},
		{"truncates fraction", t0, t0.Add(5*time.Second + 900*time.Millisecond), 5 * time.Second},
		{"negative clamps to zero", t0, t0.Add(-time.Minute), 0},
		{"same instant", t0, t0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, service.Dwell(tc.entry, tc.exit))
		})
	}
}

func TestNewDwellRecord_SplitsDuration(t *testing.T) {
	exit := t0.Add(9*time.Hour + 15*time.Minute + 4*time.Second)
	rec := service.NewDwellRecord(ana, t0, exit)

	assert.Equal(t, int64(9), rec.Hours)
	assert.Equal(t, int64(15), rec.Minutes)
	assert.Equal(t, int64(4), rec.Seconds)
	assert.Equal(t, "S001", rec.ExternalCode)
	assert.Equal(t, exit, rec.ExitAt)
	assert.Equal(t, exit.Sub(t0), rec.Duration())
}
