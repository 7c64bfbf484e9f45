package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
)

var (
	presentAt = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	presentID = types.Identity{CardID: 42, DisplayName: "Luis Gómez", ExternalCode: "S002"}
)

func TestFormatDwell(t *testing.T) {
	assert.Equal(t, "0h00m00s", FormatDwell(0))
	assert.Equal(t, "1h30m05s", FormatDwell(90*time.Minute+5*time.Second+400*time.Millisecond))
	assert.Equal(t, "26h00m00s", FormatDwell(26*time.Hour))
}

func TestPresenter_RenderKinds(t *testing.T) {
	p := NewPresenter(&bytes.Buffer{}, "text", time.UTC)

	exit := types.Outcome{
		Kind:       types.OutcomeGranted,
		Identity:   presentID,
		Transition: types.TransitionExit,
		ObservedAt: presentAt,
		Dwell:      &types.DwellRecord{Hours: 1, Minutes: 30},
	}
	line := p.Render(exit)
	assert.Contains(t, line, "EXIT")
	assert.Contains(t, line, "Luis Gómez (S002)")
	assert.Contains(t, line, "09:30:00")
	assert.Contains(t, line, "stayed 1h30m00s")

	exit.DwellErr = errors.New("disk full")
	assert.Contains(t, p.Render(exit), "storage warning")

	unknown := p.Render(types.Outcome{Kind: types.OutcomeUnknown, CardID: 999, ObservedAt: presentAt})
	assert.Contains(t, unknown, "DENIED")
	assert.Contains(t, unknown, "999")

	assert.Contains(t, p.Render(types.Outcome{Kind: types.OutcomeCooldown, ObservedAt: presentAt}), "repeat read ignored")
	assert.Contains(t, p.Render(types.Outcome{Kind: types.OutcomeFailed, ObservedAt: presentAt}), "NOT RECORDED")
}

func TestPresenter_JSON(t *testing.T) {
	var buf bytes.Buffer
	p := NewPresenter(&buf, "json", time.UTC)

	p.Present(types.Outcome{
		Kind:       types.OutcomeGranted,
		Identity:   presentID,
		Transition: types.TransitionEntry,
		ObservedAt: presentAt,
	})
	p.Present(types.Outcome{Kind: types.OutcomeFailed, ObservedAt: presentAt, Err: errors.New("ledger i/o error")})

	dec := json.NewDecoder(&buf)
	var first, second outcomeLine
	require.NoError(t, dec.Decode(&first))
	require.NoError(t, dec.Decode(&second))

	assert.True(t, first.Granted)
	assert.Equal(t, "S002", first.ExternalCode)
	assert.Nil(t, first.DwellSeconds)
	assert.False(t, second.Granted)
	assert.Equal(t, "ledger i/o error", second.Error)
}
