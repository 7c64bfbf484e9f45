package cli

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/config"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/payload"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/reader"
)

func NewCardCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "card",
		Short: "Encode and decode self-describing card payloads",
	}
	cmd.AddCommand(newCardEncodeCommand(rootOpts))
	cmd.AddCommand(newCardDecodeCommand(rootOpts))
	return cmd
}

type cardEncodeOptions struct {
	ID       string
	Name     string
	TypeCode string
	Codec    string
	Out      string
	Write    string
	Attempts int
	Backoff  time.Duration
}

// CardPayload is the result of card encode and card decode.
type CardPayload struct {
	Codec      string             `json:"codec"`
	Bytes      int                `json:"bytes"`
	Hex        string             `json:"hex"`
	Descriptor payload.Descriptor `json:"descriptor"`
	Written    string             `json:"written,omitempty"`
}

func newCardEncodeCommand(rootOpts *RootOptions) *cobra.Command {
	co := &cardEncodeOptions{}

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Build the payload for a card",
		Long: `Encodes a holder descriptor with the chosen codec. Payloads over the
card capacity are rejected before anything is written. --write hands
the payload to a writer device, retrying a bounded number of times.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCardEncode(rootOpts, co, cmd)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&co.ID, "id", "", "short id / external code (required)")
	fl.StringVar(&co.Name, "name", "", "display name (required)")
	fl.StringVar(&co.TypeCode, "type", "", "type code: E, V or A (default E)")
	fl.StringVar(&co.Codec, "codec", "", "json, cbor or proto (default from config)")
	fl.StringVarP(&co.Out, "output", "o", "", "write the raw payload to this file")
	fl.StringVar(&co.Write, "write", "", "writer device to hand the payload to")
	fl.IntVar(&co.Attempts, "attempts", 3, "write attempts before giving up")
	fl.DurationVar(&co.Backoff, "backoff", 200*time.Millisecond, "pause between write attempts")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func payloadCodec(rootOpts *RootOptions, name string) (payload.Codec, error) {
	if name == "" {
		cfg := config.Defaults()
		if rootOpts.ConfigPath != "" {
			if err := cfg.LoadFile(rootOpts.ConfigPath); err != nil {
				return nil, err
			}
		}
		cfg.ApplyEnv()
		name = cfg.PayloadCodec
	}
	return payload.CodecFor(name)
}

func runCardEncode(rootOpts *RootOptions, co *cardEncodeOptions, cmd *cobra.Command) error {
	f := rootOpts.formatter(cmd)

	codec, err := payloadCodec(rootOpts, co.Codec)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeConfig, "unknown codec", err)
	}

	desc := payload.Descriptor{ShortID: co.ID, DisplayName: co.Name, TypeCode: co.TypeCode}
	data, err := payload.Encode(codec, desc)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodePayload, "cannot encode payload", err)
	}
	// Decode back so the output shows the normalized descriptor.
	desc, _ = payload.Decode(codec, data)

	res := CardPayload{Codec: codec.Name(), Bytes: len(data), Hex: hex.EncodeToString(data), Descriptor: desc}

	if co.Out != "" {
		if err := os.WriteFile(co.Out, data, 0o644); err != nil {
			return f.Fail(ExitCommandError, ErrCodeGeneric, "cannot write output file", err)
		}
	}
	if co.Write != "" {
		policy := reader.RetryPolicy{MaxAttempts: co.Attempts, Backoff: co.Backoff}
		if err := reader.WriteWithRetry(cmd.Context(), reader.FileWriter{Path: co.Write}, data, policy); err != nil {
			return f.Fail(ExitFailure, ErrCodeCardWrite, "card not written", err)
		}
		res.Written = co.Write
	}

	text := fmt.Sprintf("%s payload, %d/%d bytes\n%s\n", res.Codec, res.Bytes, payload.MaxPayloadBytes, res.Hex)
	if res.Written != "" {
		text += "written to " + res.Written + "\n"
	}
	return f.Success(res, text)
}

func newCardDecodeCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		codecName string
		hexInput  string
	)

	cmd := &cobra.Command{
		Use:   "decode [payload-file|-]",
		Short: "Decode a payload read off a card",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)

			codec, err := payloadCodec(rootOpts, codecName)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeConfig, "unknown codec", err)
			}

			var raw []byte
			switch {
			case hexInput != "":
				raw, err = hex.DecodeString(strings.TrimSpace(hexInput))
			case len(args) == 0 || args[0] == "-":
				raw, err = io.ReadAll(io.LimitReader(cmd.InOrStdin(), payload.MaxPayloadBytes*4))
			default:
				raw, err = os.ReadFile(args[0])
			}
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeGeneric, "cannot read payload", err)
			}

			desc, err := payload.Decode(codec, raw)
			if err != nil {
				code := ErrCodeGeneric
				if errors.Is(err, payload.ErrMalformedPayload) {
					code = ErrCodePayload
				}
				return f.Fail(ExitFailure, code, "cannot decode payload", err)
			}

			res := CardPayload{Codec: codec.Name(), Bytes: len(raw), Hex: hex.EncodeToString(raw), Descriptor: desc}
			return f.Success(res, fmt.Sprintf("id=%s name=%s type=%s\n", desc.ShortID, desc.DisplayName, desc.TypeCode))
		},
	}

	cmd.Flags().StringVar(&codecName, "codec", "", "json, cbor or proto (default from config)")
	cmd.Flags().StringVar(&hexInput, "hex", "", "payload as a hex string instead of a file")
	return cmd
}
