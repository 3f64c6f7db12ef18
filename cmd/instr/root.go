// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/bassosimone/instr"
	"github.com/bassosimone/instr/visa"
	"github.com/spf13/cobra"
)

// globalFlags are shared by all subcommands.
type globalFlags struct {
	config  string
	verbose bool
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "instr",
		Short: "Resolve and probe laboratory instrument addresses",
		Long: `Resolve GPIB, VISA TCPIP SOCKET, VXI-11 and host:port instrument
addresses to their canonical form and open connections to them.

Examples:
  instr parse GPIB0::15::INSTR 192.168.0.20:5025
  instr probe --write '*IDN?' TCPIP0::10.0.0.9::INSTR`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&flags.config, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log to stderr as JSON")
	root.AddCommand(newParseCommand(flags), newProbeCommand(flags))
	return root
}

// setup loads the configuration file, if any, and creates the logger.
func (flags *globalFlags) setup(cmd *cobra.Command) (*instr.Config, *instr.FileConfig, instr.SLogger, error) {
	logger := instr.DefaultSLogger()
	if flags.verbose {
		handler := slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug})
		logger = slog.New(handler).With("spanID", instr.NewSpanID())
	}
	cfg := instr.NewConfig()
	fc := &instr.FileConfig{}
	if flags.config != "" {
		var err error
		if fc, err = instr.LoadFileConfig(flags.config); err != nil {
			return nil, nil, nil, err
		}
		if err := fc.Apply(cfg, logger); err != nil {
			return nil, nil, nil, err
		}
	}
	return cfg, fc, logger, nil
}

type parseResult struct {
	Input     string `json:"input"`
	Kind      string `json:"kind"`
	Canonical string `json:"canonical"`
}

func newParseCommand(flags *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "parse <address>...",
		Short: "Print the kind and canonical form of addresses",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, fc, _, err := flags.setup(cmd)
			if err != nil {
				return err
			}
			parser := instr.NewParser(cfg)
			results := make([]parseResult, 0, len(args))
			for _, arg := range args {
				addr, err := parser.Parse(fc.Lookup(arg))
				if err != nil {
					return err
				}
				results = append(results, parseResult{Input: arg, Kind: addr.Kind().String(), Canonical: addr.String()})
			}
			return printParseResults(cmd.OutOrStdout(), results, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON object per address")
	return cmd
}

func printParseResults(w io.Writer, results []parseResult, asJSON bool) error {
	enc := json.NewEncoder(w)
	for _, result := range results {
		if asJSON {
			if err := enc.Encode(result); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintf(w, "%-12s %s\n", result.Kind, result.Canonical)
	}
	return nil
}

// probeFlags are the flags of the probe subcommand.
type probeFlags struct {
	fallback bool
	frame    int
	term     string
	timeout  time.Duration
	variant  string
	write    string
}

func newProbeCommand(flags *globalFlags) *cobra.Command {
	pflags := &probeFlags{}
	cmd := &cobra.Command{
		Use:   "probe <address>",
		Short: "Connect, optionally write a command, and read one message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(cmd, flags, pflags, args[0])
		},
	}
	cmd.Flags().BoolVar(&pflags.fallback, "fallback", false, "dial VISA sockets over TCP when the driver is missing")
	cmd.Flags().IntVar(&pflags.frame, "frame", 0, "read fixed-size frames of this many bytes")
	cmd.Flags().StringVar(&pflags.term, "term", "lf", "termination: lf, cr, crlf, none or hex:<bytes>")
	cmd.Flags().DurationVar(&pflags.timeout, "timeout", instr.DefaultTimeout, "I/O timeout")
	cmd.Flags().StringVar(&pflags.variant, "variant", "", "driver variant: primary, keysight or nivisa")
	cmd.Flags().StringVarP(&pflags.write, "write", "w", "", "command to write before reading (terminator appended)")
	return cmd
}

func runProbe(cmd *cobra.Command, flags *globalFlags, pflags *probeFlags, arg string) error {
	cfg, fc, logger, err := flags.setup(cmd)
	if err != nil {
		return err
	}
	if pflags.variant != "" {
		if cfg.Variant, err = visa.ParseVariant(pflags.variant); err != nil {
			return err
		}
	}
	cfg.SocketFallback = cfg.SocketFallback || pflags.fallback
	term, err := instr.ParseTermination(pflags.term)
	if err != nil {
		return err
	}

	addr, err := instr.NewParser(cfg).Parse(fc.Lookup(arg))
	if err != nil {
		return err
	}
	conn, err := instr.NewConnectFunc(cfg, logger).Call(cmd.Context(), addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.SetTimeout(pflags.timeout); err != nil {
		return err
	}
	if err := conn.SetFrameSize(pflags.frame); err != nil {
		return err
	}
	if err := conn.SetTermination(term); err != nil {
		return err
	}
	if pflags.write != "" {
		if _, err := conn.Write(append([]byte(pflags.write), term.Bytes()...)); err != nil {
			return err
		}
	}
	msg, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", msg)
	return nil
}
