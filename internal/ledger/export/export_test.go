package export_test

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/export"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/store"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/store/memory"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
)

func seeded(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	at := time.Date(2026, 3, 2, 8, 15, 0, 0, time.UTC)
	for i, ev := range []types.Event{
		{ID: "e1", Timestamp: at, ExternalCode: "S001", DisplayName: "Ana Pérez", Transition: types.TransitionEntry},
		{ID: "e2", Timestamp: at.Add(time.Minute), ExternalCode: "S002", DisplayName: "Gómez, Luis", Transition: types.TransitionEntry},
		{ID: "e3", Timestamp: at.Add(9 * time.Hour), ExternalCode: "S001", DisplayName: "Ana Pérez", Transition: types.TransitionExit},
	} {
		require.NoError(t, s.AppendEvent(context.Background(), ev), i)
	}
	return s
}

func TestEvents_CSVGolden(t *testing.T) {
	var buf bytes.Buffer
	n, err := export.Events(context.Background(), seeded(t), &buf, export.Options{Format: export.FormatCSV})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "events_csv", buf.Bytes())
}

func TestEvents_CompressedRoundTrip(t *testing.T) {
	var plain bytes.Buffer
	_, err := export.Events(context.Background(), seeded(t), &plain, export.Options{Format: export.FormatJSONL})
	require.NoError(t, err)

	for _, c := range []export.Compression{export.CompressZstd, export.CompressLZ4} {
		t.Run(string(c), func(t *testing.T) {
			var buf bytes.Buffer
			_, err := export.Events(context.Background(), seeded(t), &buf, export.Options{Format: export.FormatJSONL, Compression: c})
			require.NoError(t, err)
			assert.NotEqual(t, plain.Bytes(), buf.Bytes())

			r, done, err := export.Decompress(&buf, c)
			require.NoError(t, err)
			defer done()
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, plain.String(), string(got))
		})
	}
}

func TestEvents_Filter(t *testing.T) {
	var buf bytes.Buffer
	n, err := export.Events(context.Background(), seeded(t), &buf, export.Options{
		Format: export.FormatJSONL,
		Filter: store.EventFilter{ExternalCode: "S002"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, buf.String(), `"display_name":"Gómez, Luis"`)
}

func TestOptions_Extension(t *testing.T) {
	assert.Equal(t, ".csv", export.Options{Format: export.FormatCSV}.Extension())
	assert.Equal(t, ".jsonl.zst", export.Options{Format: export.FormatJSONL, Compression: export.CompressZstd}.Extension())
	assert.Equal(t, ".csv.lz4", export.Options{Format: export.FormatCSV, Compression: export.CompressLZ4}.Extension())
}

func TestParse(t *testing.T) {
	f, err := export.ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, export.FormatJSONL, f)

	c, err := export.ParseCompression("zst")
	require.NoError(t, err)
	assert.Equal(t, export.CompressZstd, c)

	_, err = export.ParseCompression("gzip")
	assert.ErrorIs(t, err, export.ErrUnsupported)
}
