// Package export dumps the event log for archiving or spreadsheet import,
// optionally compressed.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/store"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
)

var ErrUnsupported = errors.New("unsupported export option")

type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
)

type Compression string

const (
	CompressNone Compression = "none"
	CompressZstd Compression = "zstd"
	CompressLZ4  Compression = "lz4"
)

type Options struct {
	Format      Format
	Compression Compression
	Filter      store.EventFilter
}

// Extension returns the conventional file suffix for o, e.g. ".csv.zst".
func (o Options) Extension() string {
	ext := "." + string(o.Format)
	switch o.Compression {
	case CompressZstd:
		ext += ".zst"
	case CompressLZ4:
		ext += ".lz4"
	}
	return ext
}

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatJSONL, "json":
		return FormatJSONL, nil
	}
	return "", fmt.Errorf("%w: format %q", ErrUnsupported, s)
}

func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(strings.TrimSpace(s))); c {
	case "", CompressNone:
		return CompressNone, nil
	case CompressZstd, "zst":
		return CompressZstd, nil
	case CompressLZ4:
		return CompressLZ4, nil
	}
	return "", fmt.Errorf("%w: compression %q", ErrUnsupported, s)
}

// Events writes every event matching opts.Filter to w and returns how many
// were written.
func Events(ctx context.Context, log store.EventLog, w io.Writer, opts Options) (int, error) {
	evs, err := log.Events(ctx, opts.Filter)
	if err != nil {
		return 0, fmt.Errorf("export: %w", err)
	}

	out, closeFn, err := compress(w, opts.Compression)
	if err != nil {
		return 0, err
	}

	switch opts.Format {
	case FormatCSV, "":
		err = writeCSV(out, evs)
	case FormatJSONL:
		err = writeJSONL(out, evs)
	default:
		err = fmt.Errorf("%w: format %q", ErrUnsupported, opts.Format)
	}
	if cerr := closeFn(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("export: %w", err)
	}
	return len(evs), nil
}

func compress(w io.Writer, c Compression) (io.Writer, func() error, error) {
	switch c {
	case CompressNone, "":
		return w, func() error { return nil }, nil
	case CompressZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd writer: %w", err)
		}
		return zw, zw.Close, nil
	case CompressLZ4:
		lw := lz4.NewWriter(w)
		return lw, lw.Close, nil
	}
	return nil, nil, fmt.Errorf("%w: compression %q", ErrUnsupported, c)
}

// Decompress wraps r according to c, for reading an export back.
func Decompress(r io.Reader, c Compression) (io.Reader, func(), error) {
	switch c {
	case CompressNone, "":
		return r, func() {}, nil
	case CompressZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd reader: %w", err)
		}
		return zr, zr.Close, nil
	case CompressLZ4:
		return lz4.NewReader(r), func() {}, nil
	}
	return nil, nil, fmt.Errorf("%w: compression %q", ErrUnsupported, c)
}

func writeCSV(w io.Writer, evs []types.Event) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "external_code", "display_name", "transition", "event_id"}); err != nil {
		return err
	}
	for _, ev := range evs {
		if err := cw.Write([]string{
			ev.Timestamp.UTC().Format(time.RFC3339),
			ev.ExternalCode,
			ev.DisplayName,
			string(ev.Transition),
			ev.ID,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeJSONL(w io.Writer, evs []types.Event) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, ev := range evs {
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}
	return nil
}
