package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/export"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/payload"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
)

type result struct {
	stdout string
	stderr string
	err    error
}

func (r result) code() int { return GetExitCode(r.err) }

// execute runs the CLI once against a fresh root command.
func execute(t *testing.T, stdin string, args ...string) result {
	t.Helper()

	cmd := NewRootCommand()
	var out, errb bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errb)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return result{stdout: out.String(), stderr: errb.String(), err: err}
}

// ledgerArgs points every command at a file ledger in dir.
func ledgerArgs(dir string, args ...string) []string {
	return append([]string{"--backend=file", "--data-dir=" + dir, "--timezone=UTC", "--log-level=error"}, args...)
}

func jsonData[T any](t *testing.T, out string) T {
	t.Helper()
	var resp struct {
		Status string `json:"status"`
		Data   T      `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "nfc-ledger", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"run", "enroll", "import", "inside", "summary", "history", "card", "export"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	for _, name := range []string{"encode", "decode"} {
		sub, _, err := cmd.Find([]string{"card", name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)

	for _, name := range []string{"config", "backend", "data-dir", "log-format", "cooldown"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestInvalidFormat(t *testing.T) {
	res := execute(t, "", "--format=xml", "inside")
	assert.Equal(t, ExitCommandError, res.code())
	assert.Contains(t, res.stderr, "invalid format")
}

func TestUnknownBackend(t *testing.T) {
	res := execute(t, "", "--backend=postgres", "inside")
	assert.Equal(t, ExitCommandError, res.code())
	assert.Contains(t, res.stderr, ErrCodeConfig)
}

func TestEnroll_RunAndReport(t *testing.T) {
	dir := t.TempDir()

	res := execute(t, "", ledgerArgs(dir, "enroll", "584190037762", "Ana Pérez", "S001")...)
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "enrolled Ana Pérez (S001)")

	reads := strings.Join([]string{
		"584190037762 2026-03-02T08:00:00Z",
		"584190037762 2026-03-02T08:00:01Z",
		"999 2026-03-02T08:00:05Z",
		"# reader idle",
		"584190037762 2026-03-02T09:30:00Z",
		"",
	}, "\n")
	res = execute(t, reads, ledgerArgs(dir, "--format=json", "run", "--http-addr=off", "--grpc-addr=off")...)
	require.NoError(t, res.err, res.stderr)

	var lines []outcomeLine
	sc := bufio.NewScanner(strings.NewReader(res.stdout))
	for sc.Scan() {
		var l outcomeLine
		require.NoError(t, json.Unmarshal(sc.Bytes(), &l))
		lines = append(lines, l)
	}
	require.Len(t, lines, 4)

	assert.Equal(t, types.OutcomeGranted, lines[0].Outcome)
	assert.Equal(t, types.TransitionEntry, lines[0].Transition)
	assert.Equal(t, types.OutcomeCooldown, lines[1].Outcome)
	assert.Equal(t, types.OutcomeUnknown, lines[2].Outcome)
	assert.False(t, lines[2].Granted)
	assert.Equal(t, types.TransitionExit, lines[3].Transition)
	require.NotNil(t, lines[3].DwellSeconds)
	assert.Equal(t, int64(5400), *lines[3].DwellSeconds)

	res = execute(t, "", ledgerArgs(dir, "--format=json", "inside")...)
	require.NoError(t, res.err, res.stderr)
	occ := jsonData[types.OccupancyResponse](t, res.stdout)
	assert.Equal(t, 0, occ.Count)

	res = execute(t, "", ledgerArgs(dir, "--format=json", "history", "S001")...)
	require.NoError(t, res.err, res.stderr)
	hist := jsonData[types.EventsResponse](t, res.stdout)
	require.Len(t, hist.Events, 2)
	assert.Equal(t, types.TransitionEntry, hist.Events[0].Transition)
	assert.Equal(t, types.TransitionExit, hist.Events[1].Transition)

	res = execute(t, "", ledgerArgs(dir, "--format=json", "summary", "--date=2026-03-02")...)
	require.NoError(t, res.err, res.stderr)
	sum := jsonData[types.DailySummary](t, res.stdout)
	assert.Equal(t, 1, sum.Entries)
	assert.Equal(t, 1, sum.Exits)

	res = execute(t, "", ledgerArgs(dir, "summary", "--date=2026-03-02")...)
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "2026-03-02: 1 entries, 1 exits")
	assert.Contains(t, res.stdout, "nobody inside")
}

func TestRun_StatePersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, execute(t, "", ledgerArgs(dir, "enroll", "42", "Luis", "S002")...).err)

	res := execute(t, "42 2026-03-02T08:00:00Z\n", ledgerArgs(dir, "run", "--http-addr=off")...)
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "ENTRY")

	res = execute(t, "", ledgerArgs(dir, "inside")...)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "1 inside")
	assert.Contains(t, res.stdout, "S002")

	res = execute(t, "42 2026-03-02T10:00:00Z\n", ledgerArgs(dir, "run", "--http-addr=off")...)
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "EXIT")
	assert.Contains(t, res.stdout, "stayed 2h00m00s")
}

func TestEnroll_Duplicate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, execute(t, "", ledgerArgs(dir, "enroll", "42", "Luis", "S002")...).err)

	res := execute(t, "", ledgerArgs(dir, "--format=json", "enroll", "42", "Other", "S999")...)
	assert.Equal(t, ExitFailure, res.code())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeAlreadyEnrolled, resp.Error.Code)
}

func TestEnroll_MissingArgs(t *testing.T) {
	res := execute(t, "", ledgerArgs(t.TempDir(), "enroll", "42", "Luis")...)
	assert.Equal(t, ExitCommandError, res.code())
}

func TestEnroll_FromPayload(t *testing.T) {
	dir := t.TempDir()

	res := execute(t, "", ledgerArgs(dir, "--format=json", "enroll", "42",
		`--payload={"i":"S002","n":"Luis Gómez","t":"v"}`)...)
	require.NoError(t, res.err, res.stderr)

	id := jsonData[types.Identity](t, res.stdout)
	assert.Equal(t, types.CardID(42), id.CardID)
	assert.Equal(t, "S002", id.ExternalCode)
	assert.Equal(t, "Luis Gómez", id.DisplayName)
	assert.Equal(t, types.TypeVisitor, id.TypeCode)

	res = execute(t, "", ledgerArgs(dir, "enroll", "43", "--payload={broken")...)
	assert.Equal(t, ExitFailure, res.code())
}

func TestImport(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(t.TempDir(), "usuarios.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(
		"UID,Nombre,Matricula\n"+
			"584190037762,Ana Pérez,S001\n"+
			"not-a-uid,Nobody,S404\n"+
			"42,Luis Gómez,N/A\n"+
			"77,,S077\n"+
			"584190037762,Ana Again,S001\n"), 0o600))

	res := execute(t, "", ledgerArgs(dir, "--format=json", "import", csvPath)...)
	require.NoError(t, res.err, res.stderr)

	got := jsonData[ImportResult](t, res.stdout)
	assert.Equal(t, 2, got.Imported)
	assert.Equal(t, 1, got.Duplicates)
	assert.Equal(t, 2, got.Skipped)
	assert.Len(t, got.Warnings, 2)

	res = execute(t, "42 2026-03-02T08:00:00Z\n", ledgerArgs(dir, "--format=json", "run", "--http-addr=off")...)
	require.NoError(t, res.err, res.stderr)
	var line outcomeLine
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(res.stdout)), &line))
	assert.Equal(t, "S42", line.ExternalCode)
}

func TestCard_EncodeWriteDecode(t *testing.T) {
	tmp := t.TempDir()
	out := filepath.Join(tmp, "card.bin")
	device := filepath.Join(tmp, "writer")

	res := execute(t, "", "--format=json", "card", "encode",
		"--id=S001", "--name=Ana Pérez", "--codec=cbor", "-o", out, "--write", device, "--backoff=0s")
	require.NoError(t, res.err, res.stderr)
	enc := jsonData[CardPayload](t, res.stdout)
	assert.Equal(t, "cbor", enc.Codec)
	assert.Equal(t, device, enc.Written)
	assert.LessOrEqual(t, enc.Bytes, payload.MaxPayloadBytes)

	written, err := os.ReadFile(device)
	require.NoError(t, err)
	saved, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, saved, written)

	res = execute(t, "", "--format=json", "card", "decode", "--codec=cbor", out)
	require.NoError(t, res.err, res.stderr)
	dec := jsonData[CardPayload](t, res.stdout)
	assert.Equal(t, "S001", dec.Descriptor.ShortID)
	assert.Equal(t, types.TypeEmployee, dec.Descriptor.TypeCode)

	res = execute(t, "", "card", "decode", "--hex="+enc.Hex, "--codec=cbor")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "id=S001")
}

func TestCard_EncodeRejectsOversized(t *testing.T) {
	device := filepath.Join(t.TempDir(), "writer")

	res := execute(t, "", "--format=json", "card", "encode",
		"--id=S001", "--name="+strings.Repeat("x", 200), "--write", device)
	assert.Equal(t, ExitFailure, res.code())
	assert.Contains(t, res.stdout, ErrCodePayload)

	_, err := os.Stat(device)
	assert.True(t, os.IsNotExist(err), "nothing may reach the writer")
}

func TestCard_DecodeFromStdin(t *testing.T) {
	res := execute(t, `  {"i":"S003","n":"Eva"}  `, "card", "decode")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "id=S003 name=Eva type=E")

	res = execute(t, "garbage", "card", "decode")
	assert.Equal(t, ExitFailure, res.code())
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, execute(t, "", ledgerArgs(dir, "enroll", "42", "Luis", "S002")...).err)
	require.NoError(t, execute(t,
		"42 2026-03-02T08:00:00Z\n42 2026-03-02T12:00:00Z\n42 2026-03-03T08:00:00Z\n",
		ledgerArgs(dir, "run", "--http-addr=off")...).err)

	out := filepath.Join(t.TempDir(), "events.jsonl.zst")
	res := execute(t, "", ledgerArgs(dir, "--format=json", "export",
		"--as=jsonl", "--compress=zstd", "--from=2026-03-02", "--to=2026-03-02", "-o", out)...)
	require.NoError(t, res.err, res.stderr)
	assert.Equal(t, 2, jsonData[ExportResult](t, res.stdout).Events)

	fh, err := os.Open(out)
	require.NoError(t, err)
	defer fh.Close()
	r, done, err := export.Decompress(fh, export.CompressZstd)
	require.NoError(t, err)
	defer done()
	raw, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(raw), "\n"))

	res = execute(t, "", ledgerArgs(dir, "export")...)
	require.NoError(t, res.err, res.stderr)
	assert.True(t, strings.HasPrefix(res.stdout, "timestamp,external_code,display_name,transition,event_id\n"))
	assert.Equal(t, 4, strings.Count(res.stdout, "\n"))
}

func TestRun_SQLiteWithDevSeed(t *testing.T) {
	t.Setenv("NFCLEDGER_SEED_IDENTITIES", "42:Luis Gómez:S002")
	dir := t.TempDir()
	args := func(extra ...string) []string {
		return append([]string{"--backend=sqlite", "--data-dir=" + dir, "--log-level=error"}, extra...)
	}

	// Seeding runs on every dev start and must not duplicate.
	for i := 0; i < 2; i++ {
		res := execute(t, "42 2026-03-02T08:00:00Z\n", args("--format=json", "run", "--http-addr=off")...)
		require.NoError(t, res.err, res.stderr)
	}

	res := execute(t, "", args("--format=json", "history", "S002", "--limit=-1")...)
	require.NoError(t, res.err, res.stderr)
	hist := jsonData[types.EventsResponse](t, res.stdout)
	require.Len(t, hist.Events, 2)
	assert.Equal(t, "Luis Gómez", hist.Events[0].DisplayName)
	assert.Equal(t, types.TransitionExit, hist.Events[1].Transition)

	_, err := os.Stat(filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
}
