package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.3.0-dev"

// exitError carries a process exit code without printing anything extra;
// the command has already told the user what went wrong.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "shopscout",
		Short:         "Product search across e-commerce sites through an LLM agent",
		Long:          "ShopScout sends a product query to an LLM agent that scrapes the selected shopping sites through the Bright Data MCP server, then shows the validated results.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file path (default $SHOPSCOUT_HOME/config.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newSearchCmd(opts))
	root.AddCommand(newDoctorCmd(opts))
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	var ee *exitError
	if errors.As(err, &ee) {
		os.Exit(ee.code)
	}
	fmt.Fprintf(os.Stderr, "shopscout: %v\n", err)
	os.Exit(1)
}
