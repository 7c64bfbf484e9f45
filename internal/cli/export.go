package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/export"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/store"
)

type exportOptions struct {
	Output      string
	Format      string
	Compression string
	Code        string
	From        string
	To          string
}

// ExportResult is reported after an export to a file.
type ExportResult struct {
	Events int    `json:"events"`
	Path   string `json:"path"`
}

func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	xo := &exportOptions{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the event log as CSV or JSONL",
		Long: `Exports events, oldest first. Without --output the data goes to
stdout. --from and --to take YYYY-MM-DD days; --to is inclusive.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(rootOpts, xo, cmd)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&xo.Output, "output", "o", "", "output file (default stdout)")
	fl.StringVar(&xo.Format, "as", "csv", "csv or jsonl")
	fl.StringVar(&xo.Compression, "compress", "none", "none, zstd or lz4")
	fl.StringVar(&xo.Code, "code", "", "only events for this external code")
	fl.StringVar(&xo.From, "from", "", "first day to include")
	fl.StringVar(&xo.To, "to", "", "last day to include")

	return cmd
}

func runExport(rootOpts *RootOptions, xo *exportOptions, cmd *cobra.Command) error {
	f := rootOpts.formatter(cmd)

	format, err := export.ParseFormat(xo.Format)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "invalid --as", err)
	}
	comp, err := export.ParseCompression(xo.Compression)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "invalid --compress", err)
	}

	a, err := rootOpts.openApp(cmd, f)
	if err != nil {
		return err
	}
	defer a.Close()

	filter := store.EventFilter{ExternalCode: xo.Code}
	if xo.From != "" {
		day, err := a.reports.ParseDay(xo.From)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeGeneric, "invalid --from", err)
		}
		filter.From = day
	}
	if xo.To != "" {
		day, err := a.reports.ParseDay(xo.To)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeGeneric, "invalid --to", err)
		}
		filter.To = day.AddDate(0, 0, 1)
	}

	opts := export.Options{Format: format, Compression: comp, Filter: filter}

	var w io.Writer = cmd.OutOrStdout()
	if xo.Output != "" {
		fh, err := os.Create(xo.Output)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeGeneric, "cannot create output file", err)
		}
		defer fh.Close()
		w = fh
	}

	n, err := export.Events(cmd.Context(), a.ledger, w, opts)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStorage, "export failed", err)
	}

	// Raw data on stdout is the result itself.
	if xo.Output == "" {
		return nil
	}
	return f.Success(ExportResult{Events: n, Path: xo.Output},
		fmt.Sprintf("exported %d events to %s\n", n, xo.Output))
}
