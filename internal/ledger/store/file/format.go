package file

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
)

// Format selects the on-disk encoding of the event and dwell logs. All
// formats carry the same fields and read back to the same records.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
	FormatText  Format = "text"
)

var ErrUnknownFormat = errors.New("unknown log format")

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSONL, FormatCSV, FormatText:
		return f, nil
	case "", "json":
		return FormatJSONL, nil
	case "txt":
		return FormatText, nil
	}
	return "", fmt.Errorf("%w %q (want jsonl, csv or text)", ErrUnknownFormat, s)
}

// recordCodec turns one record into exactly one line (without the
// trailing newline) and back.
type recordCodec interface {
	ext() string
	// eventHeader and dwellHeader are written once to a new file; nil
	// means the format has no header.
	eventHeader() []byte
	dwellHeader() []byte

	encodeEvent(ev types.Event) ([]byte, error)
	decodeEvent(line []byte) (types.Event, error)
	encodeDwell(rec types.DwellRecord) ([]byte, error)
	decodeDwell(line []byte) (types.DwellRecord, error)
}

func codecFor(f Format) (recordCodec, error) {
	switch f {
	case FormatJSONL:
		return jsonlCodec{}, nil
	case FormatCSV:
		return csvCodec{}, nil
	case FormatText:
		return textCodec{}, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownFormat, f)
}

const stampLayout = time.RFC3339Nano

func formatStamp(t time.Time) string { return t.UTC().Format(stampLayout) }

func parseStamp(s string) (time.Time, error) {
	t, err := time.Parse(stampLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// ── jsonl ────────────────────────────────────────────────────────────────────

type jsonlCodec struct{}

func (jsonlCodec) ext() string         { return "jsonl" }
func (jsonlCodec) eventHeader() []byte { return nil }
func (jsonlCodec) dwellHeader() []byte { return nil }

func (jsonlCodec) encodeEvent(ev types.Event) ([]byte, error) {
	ev.Timestamp = ev.Timestamp.UTC()
	return json.Marshal(ev)
}

func (jsonlCodec) decodeEvent(line []byte) (types.Event, error) {
	var ev types.Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return types.Event{}, err
	}
	ev.Timestamp = ev.Timestamp.UTC()
	return ev, nil
}

func (jsonlCodec) encodeDwell(rec types.DwellRecord) ([]byte, error) {
	rec.ExitAt = rec.ExitAt.UTC()
	return json.Marshal(rec)
}

func (jsonlCodec) decodeDwell(line []byte) (types.DwellRecord, error) {
	var rec types.DwellRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return types.DwellRecord{}, err
	}
	rec.ExitAt = rec.ExitAt.UTC()
	return rec, nil
}

// ── csv ──────────────────────────────────────────────────────────────────────

type csvCodec struct{}

var (
	eventColumns = []string{"timestamp", "event_id", "external_code", "display_name", "transition", "card_hash"}
	dwellColumns = []string{"exit_at", "external_code", "display_name", "hours", "minutes", "seconds"}
)

func (csvCodec) ext() string { return "csv" }

func (csvCodec) eventHeader() []byte {
	b, _ := csvLine(eventColumns)
	return b
}

func (csvCodec) dwellHeader() []byte {
	b, _ := csvLine(dwellColumns)
	return b
}

func (csvCodec) encodeEvent(ev types.Event) ([]byte, error) {
	return csvLine([]string{
		formatStamp(ev.Timestamp), ev.ID, ev.ExternalCode, oneLine(ev.DisplayName),
		string(ev.Transition), ev.CardHash,
	})
}

func (csvCodec) decodeEvent(line []byte) (types.Event, error) {
	rec, err := csvFields(line, len(eventColumns))
	if err != nil {
		return types.Event{}, err
	}
	ts, err := parseStamp(rec[0])
	if err != nil {
		return types.Event{}, err
	}
	tr, err := types.ParseTransition(rec[4])
	if err != nil {
		return types.Event{}, err
	}
	return types.Event{
		ID: rec[1], Timestamp: ts, ExternalCode: rec[2], DisplayName: rec[3],
		Transition: tr, CardHash: rec[5],
	}, nil
}

func (csvCodec) encodeDwell(rec types.DwellRecord) ([]byte, error) {
	return csvLine([]string{
		formatStamp(rec.ExitAt), rec.ExternalCode, oneLine(rec.DisplayName),
		strconv.FormatInt(rec.Hours, 10),
		strconv.FormatInt(rec.Minutes, 10),
		strconv.FormatInt(rec.Seconds, 10),
	})
}

func (csvCodec) decodeDwell(line []byte) (types.DwellRecord, error) {
	f, err := csvFields(line, len(dwellColumns))
	if err != nil {
		return types.DwellRecord{}, err
	}
	exit, err := parseStamp(f[0])
	if err != nil {
		return types.DwellRecord{}, err
	}
	var hms [3]int64
	for i := range hms {
		if hms[i], err = strconv.ParseInt(f[3+i], 10, 64); err != nil {
			return types.DwellRecord{}, err
		}
	}
	return types.DwellRecord{
		ExitAt: exit, ExternalCode: f[1], DisplayName: f[2],
		Hours: hms[0], Minutes: hms[1], Seconds: hms[2],
	}, nil
}

func csvLine(fields []string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(fields); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func csvFields(line []byte, want int) ([]string, error) {
	r := csv.NewReader(bytes.NewReader(line))
	r.FieldsPerRecord = want
	return r.Read()
}

// ── text ─────────────────────────────────────────────────────────────────────

// textCodec writes one human-readable line per record with fields split
// by " | ". The display name is always last so it may contain anything
// but a newline.
type textCodec struct{}

const textSep = " | "

func (textCodec) ext() string         { return "log" }
func (textCodec) eventHeader() []byte { return nil }
func (textCodec) dwellHeader() []byte { return nil }

func (textCodec) encodeEvent(ev types.Event) ([]byte, error) {
	hash := ev.CardHash
	if hash == "" {
		hash = "-"
	}
	return []byte(strings.Join([]string{
		formatStamp(ev.Timestamp),
		strings.ToUpper(string(ev.Transition)),
		ev.ExternalCode,
		ev.ID,
		hash,
		oneLine(ev.DisplayName),
	}, textSep)), nil
}

func (textCodec) decodeEvent(line []byte) (types.Event, error) {
	f := strings.SplitN(string(line), textSep, 6)
	if len(f) != 6 {
		return types.Event{}, fmt.Errorf("text event: want 6 fields, got %d", len(f))
	}
	ts, err := parseStamp(f[0])
	if err != nil {
		return types.Event{}, err
	}
	tr, err := types.ParseTransition(f[1])
	if err != nil {
		return types.Event{}, err
	}
	hash := f[4]
	if hash == "-" {
		hash = ""
	}
	return types.Event{
		Timestamp: ts, Transition: tr, ExternalCode: f[2], ID: f[3],
		CardHash: hash, DisplayName: f[5],
	}, nil
}

func (textCodec) encodeDwell(rec types.DwellRecord) ([]byte, error) {
	return []byte(strings.Join([]string{
		formatStamp(rec.ExitAt),
		rec.ExternalCode,
		fmt.Sprintf("%dh%02dm%02ds", rec.Hours, rec.Minutes, rec.Seconds),
		oneLine(rec.DisplayName),
	}, textSep)), nil
}

func (textCodec) decodeDwell(line []byte) (types.DwellRecord, error) {
	f := strings.SplitN(string(line), textSep, 4)
	if len(f) != 4 {
		return types.DwellRecord{}, fmt.Errorf("text dwell: want 4 fields, got %d", len(f))
	}
	exit, err := parseStamp(f[0])
	if err != nil {
		return types.DwellRecord{}, err
	}
	rec := types.DwellRecord{ExitAt: exit, ExternalCode: f[1], DisplayName: f[3]}
	if _, err := fmt.Sscanf(f[2], "%dh%dm%ds", &rec.Hours, &rec.Minutes, &rec.Seconds); err != nil {
		return types.DwellRecord{}, fmt.Errorf("text dwell duration %q: %w", f[2], err)
	}
	return rec, nil
}

func oneLine(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
