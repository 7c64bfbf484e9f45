package service_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/clock"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/db"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/service"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/store"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/store/file"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/store/sqlite"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/reader"
)

// loadEngine builds and loads an engine over ledger with the default
// cooldown and a fake clock at t0.
func loadEngine(t *testing.T, ledger store.Ledger) *service.Engine {
	t.Helper()

	e := service.NewEngine(ledger, service.Options{
		Cooldown: service.DefaultCooldown,
		Clock:    clock.Fake(t0),
		Logger:   silentLogger(),
	})
	require.NoError(t, e.Load(context.Background()))
	return e
}

func TestEngine_SubMillisecondDwellMatchesSQLiteLog(t *testing.T) {
	ctx := context.Background()
	st, err := sqlite.Open(ctx, db.Config{Path: filepath.Join(t.TempDir(), "ledger.db")})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.InsertIdentity(ctx, ana))

	e := loadEngine(t, st)
	entryAt := t0.Add(10*time.Second + 900*time.Microsecond)
	exitAt := t0.Add(20*time.Second + 500*time.Microsecond)

	entry := e.HandleObservation(ctx, types.Observation{CardID: ana.CardID, ObservedAt: entryAt})
	require.True(t, entry.Granted())
	assert.True(t, entry.Event.Timestamp.Equal(entryAt.Truncate(time.Millisecond)))

	exit := e.HandleObservation(ctx, types.Observation{CardID: ana.CardID, ObservedAt: exitAt})
	require.True(t, exit.Granted())
	require.NotNil(t, exit.Dwell)

	evs, err := st.Events(ctx, store.EventFilter{ExternalCode: "S001"})
	require.NoError(t, err)
	require.Len(t, evs, 2)
	logged := evs[1].Timestamp.Sub(evs[0].Timestamp).Truncate(time.Second)
	assert.Equal(t, 10*time.Second, logged)
	assert.Equal(t, logged, exit.Dwell.Duration())

	recs, err := st.DwellRecords(ctx, store.DwellFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, logged, recs[0].Duration())
}

func TestEngine_RestartFromFileSnapshot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	st, err := file.Open(dir, file.FormatCSV)
	require.NoError(t, err)
	require.NoError(t, st.InsertIdentity(ctx, ana))
	require.NoError(t, st.InsertIdentity(ctx, luis))

	e := loadEngine(t, st)
	require.True(t, e.HandleObservation(ctx, types.Observation{CardID: ana.CardID, ObservedAt: t0}).Granted())
	require.True(t, e.HandleObservation(ctx, types.Observation{CardID: luis.CardID, ObservedAt: t0}).Granted())
	require.True(t, e.HandleObservation(ctx, types.Observation{CardID: luis.CardID, ObservedAt: t0.Add(time.Minute)}).Granted())
	require.NoError(t, e.Flush(ctx))
	require.NoError(t, st.Close())

	reopened, err := file.Open(dir, file.FormatCSV)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	restarted := loadEngine(t, reopened)
	inside := restarted.Occupancy()
	require.Len(t, inside, 1)
	assert.Equal(t, "S001", inside[0].Identity.ExternalCode)
	assert.True(t, inside[0].EntryAt.Equal(t0))
	assert.Equal(t, types.Outside, restarted.State(luis.CardID).Current)

	out := restarted.HandleObservation(ctx, types.Observation{CardID: ana.CardID, ObservedAt: t0.Add(2 * time.Hour)})
	require.True(t, out.Granted())
	assert.Equal(t, types.TransitionExit, out.Transition)
	require.NotNil(t, out.Dwell)
	assert.Equal(t, 2*time.Hour, out.Dwell.Duration())

	evs, err := reopened.Events(ctx, store.EventFilter{})
	require.NoError(t, err)
	assert.Len(t, evs, 4)
}

func TestEngine_RunSurvivesOversizedReaderLine(t *testing.T) {
	h := newHarness(t, ana)
	in := strings.Repeat("#", 70*1024) + "\n" + ana.CardID.String() + " 2026-03-02T08:00:00Z\n"
	src := reader.NewLineSource(strings.NewReader(in), nil)
	defer src.Close()

	var outs []types.Outcome
	err := h.engine.Run(context.Background(), src, func(o types.Outcome) { outs = append(outs, o) })
	require.NoError(t, err)

	require.Len(t, outs, 1)
	assert.Equal(t, types.TransitionEntry, outs[0].Transition)
	assert.Len(t, h.engine.Occupancy(), 1)
}
