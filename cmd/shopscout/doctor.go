package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/basket/shopscout/internal/config"
	"github.com/basket/shopscout/internal/doctor"
	"github.com/basket/shopscout/internal/mcp"
	"github.com/basket/shopscout/internal/telemetry"
)

type doctorOptions struct {
	jsonOut bool
	probe   bool
	offline bool
}

func newDoctorCmd(opts *rootOptions) *cobra.Command {
	do := &doctorOptions{}
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts, do)
		},
	}
	cmd.Flags().BoolVar(&do.jsonOut, "json", false, "print the report as JSON")
	cmd.Flags().BoolVar(&do.probe, "probe", false, "start the tool server and list its tools")
	cmd.Flags().BoolVar(&do.offline, "offline", false, "skip DNS checks")
	return cmd
}

func runDoctor(ctx context.Context, stdout, stderr io.Writer, opts *rootOptions, do *doctorOptions) error {
	var cfgPtr *config.Config
	cfg, err := loadConfig(opts)
	if err != nil {
		// Keep going so the report shows why.
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
	} else {
		cfgPtr = &cfg
	}

	dopts := doctor.Options{SkipNetwork: do.offline}
	if do.probe {
		dopts.Dialer = mcp.StdioDialer{Logger: telemetry.New(io.Discard, "error")}
	}
	diag := doctor.Run(ctx, cfgPtr, Version, dopts)

	if do.jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(diag); err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
	} else {
		renderDiagnosis(stdout, diag, isTerminal(stdout))
	}

	if diag.Failed() {
		return &exitError{code: 1}
	}
	return nil
}
