package cli

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/payload"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/service"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
)

type enrollOptions struct {
	TypeCode    string
	Payload     string
	PayloadFile string
	Codec       string
}

func NewEnrollCommand(rootOpts *RootOptions) *cobra.Command {
	eo := &enrollOptions{}

	cmd := &cobra.Command{
		Use:   "enroll <card-id> [<name> <code>]",
		Short: "Bind a card to a person",
		Long: `Enrolls a card. The name and external code come either from the
arguments or from a card payload (--payload or --payload-file), as
written by "card encode".

A card that is already enrolled is never overwritten.`,
		Args: cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnroll(rootOpts, eo, cmd, args)
		},
	}

	cmd.Flags().StringVar(&eo.TypeCode, "type", "", "type code: E employee, V visitor, A admin (default E)")
	cmd.Flags().StringVar(&eo.Payload, "payload", "", "card payload text, e.g. '{\"i\":\"S001\",\"n\":\"Ana\"}'")
	cmd.Flags().StringVar(&eo.PayloadFile, "payload-file", "", "file holding the raw card payload")
	cmd.Flags().StringVar(&eo.Codec, "codec", "", "payload codec: json, cbor or proto (default from config)")

	return cmd
}

func runEnroll(rootOpts *RootOptions, eo *enrollOptions, cmd *cobra.Command, args []string) error {
	f := rootOpts.formatter(cmd)

	card, err := types.ParseCardID(args[0])
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInvalidIdentity, "invalid card id", err)
	}

	fromPayload := eo.Payload != "" || eo.PayloadFile != ""
	switch {
	case fromPayload && len(args) > 1:
		return f.Fail(ExitCommandError, ErrCodeGeneric, "give either name and code or a payload, not both", nil)
	case !fromPayload && len(args) != 3:
		return f.Fail(ExitCommandError, ErrCodeGeneric, "name and code are required without a payload", nil)
	}

	a, err := rootOpts.openApp(cmd, f)
	if err != nil {
		return err
	}
	defer a.Close()

	id := types.Identity{CardID: card, TypeCode: eo.TypeCode}
	if fromPayload {
		desc, err := readPayload(eo, a.cfg.PayloadCodec)
		if err != nil {
			return f.Fail(ExitFailure, ErrCodePayload, "cannot read card payload", err)
		}
		id = desc.Identity(card)
		if eo.TypeCode != "" {
			id.TypeCode = eo.TypeCode
		}
	} else {
		id.DisplayName, id.ExternalCode = args[1], args[2]
	}

	enrolled, err := a.engine.Enroll(cmd.Context(), id)
	if err != nil {
		return enrollFailure(f, err)
	}

	return f.Success(enrolled, fmt.Sprintf("enrolled %s (%s) on card %s\n",
		enrolled.DisplayName, enrolled.ExternalCode, enrolled.CardID))
}

func enrollFailure(f *OutputFormatter, err error) error {
	switch {
	case errors.Is(err, service.ErrAlreadyEnrolled):
		return f.Fail(ExitFailure, ErrCodeAlreadyEnrolled, "card already enrolled", err)
	case errors.Is(err, service.ErrInvalidIdentity), errors.Is(err, service.ErrInvalidCardID):
		return f.Fail(ExitFailure, ErrCodeInvalidIdentity, "invalid identity", err)
	}
	return f.Fail(ExitCommandError, ErrCodeStorage, "enrollment not stored", err)
}

func readPayload(eo *enrollOptions, defaultCodec string) (payload.Descriptor, error) {
	name := eo.Codec
	if name == "" {
		name = defaultCodec
	}
	codec, err := payload.CodecFor(name)
	if err != nil {
		return payload.Descriptor{}, err
	}

	raw := []byte(eo.Payload)
	if eo.PayloadFile != "" {
		raw, err = os.ReadFile(eo.PayloadFile)
		if err != nil {
			return payload.Descriptor{}, err
		}
	}
	return payload.Decode(codec, raw)
}

// ImportResult summarizes a directory import.
type ImportResult struct {
	Imported   int      `json:"imported"`
	Duplicates int      `json:"duplicates"`
	Skipped    int      `json:"skipped"`
	Warnings   []string `json:"warnings,omitempty"`
}

func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <users.csv>",
		Short: "Enroll every row of a UID,Name,Code CSV file",
		Long: `Imports a user list with the columns UID, name and external code.
A header row is skipped. Rows with an unreadable UID or no name are
skipped with a warning. A missing or N/A code becomes S<uid>. Cards that
are already enrolled are counted as duplicates and left unchanged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(rootOpts, cmd, args[0])
		},
	}
	return cmd
}

func runImport(rootOpts *RootOptions, cmd *cobra.Command, path string) error {
	f := rootOpts.formatter(cmd)

	fh, err := os.Open(path)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "cannot open import file", err)
	}
	defer fh.Close()

	rows, err := readImportRows(fh)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeGeneric, "cannot parse import file", err)
	}

	a, err := rootOpts.openApp(cmd, f)
	if err != nil {
		return err
	}
	defer a.Close()

	var res ImportResult
	for _, row := range rows {
		if row.warning != "" {
			res.Skipped++
			res.Warnings = append(res.Warnings, row.warning)
			a.log.Warn("import row skipped", "line", row.line, "reason", row.warning)
			continue
		}

		_, err := a.engine.Enroll(cmd.Context(), row.id)
		switch {
		case err == nil:
			res.Imported++
		case errors.Is(err, service.ErrAlreadyEnrolled):
			res.Duplicates++
		case errors.Is(err, service.ErrInvalidIdentity):
			res.Skipped++
			res.Warnings = append(res.Warnings, fmt.Sprintf("line %d: %v", row.line, err))
		default:
			return f.Fail(ExitCommandError, ErrCodeStorage, "import aborted", err)
		}
	}

	text := fmt.Sprintf("imported %d, duplicates %d, skipped %d\n", res.Imported, res.Duplicates, res.Skipped)
	if rootOpts.Verbose {
		for _, w := range res.Warnings {
			text += "  " + w + "\n"
		}
	}
	return f.Success(res, text)
}

type importRow struct {
	line    int
	id      types.Identity
	warning string
}

func readImportRows(r io.Reader) ([]importRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var rows []importRow
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			continue
		}

		uid := strings.TrimSpace(rec[0])
		card, perr := types.ParseCardID(uid)
		if perr != nil {
			if line == 1 {
				continue // header
			}
			rows = append(rows, importRow{line: line, warning: fmt.Sprintf("line %d: invalid UID %q", line, uid)})
			continue
		}

		var name, code string
		if len(rec) > 1 {
			name = strings.TrimSpace(rec[1])
		}
		if len(rec) > 2 {
			code = strings.TrimSpace(rec[2])
		}
		if name == "" {
			rows = append(rows, importRow{line: line, warning: fmt.Sprintf("line %d: missing name", line)})
			continue
		}
		if code == "" || strings.EqualFold(code, "N/A") {
			code = "S" + card.String()
		}

		rows = append(rows, importRow{line: line, id: types.Identity{
			CardID:       card,
			DisplayName:  name,
			ExternalCode: code,
		}})
	}
}
