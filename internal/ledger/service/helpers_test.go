package service_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/clock"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/service"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/store/memory"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	engine *service.Engine
	store  *memory.Store
	clock  *clock.FakeClock
}

// newHarness builds a loaded engine over an in-memory store with the
// default cooldown and a fake clock parked at t0.
func newHarness(t *testing.T, enrolled ...types.Identity) *harness {
	t.Helper()

	st := memory.New()
	for _, id := range enrolled {
		require.NoError(t, st.InsertIdentity(context.Background(), id))
	}
	return openHarness(t, st)
}

// openHarness starts a fresh engine over st, as a restarted process would.
func openHarness(t *testing.T, st *memory.Store) *harness {
	t.Helper()

	clk := clock.Fake(t0)
	e := service.NewEngine(st, service.Options{
		Cooldown: service.DefaultCooldown,
		Clock:    clk,
		Logger:   silentLogger(),
	})
	require.NoError(t, e.Load(context.Background()))
	return &harness{engine: e, store: st, clock: clk}
}

// present reads card at the current fake time.
func (h *harness) present(card types.CardID) types.Outcome {
	return h.engine.HandleObservation(context.Background(), types.Observation{CardID: card})
}

var (
	ana  = types.Identity{CardID: 584190037762, DisplayName: "Ana Pérez", ExternalCode: "S001"}
	luis = types.Identity{CardID: 42, DisplayName: "Luis Gómez", ExternalCode: "S002"}
)
