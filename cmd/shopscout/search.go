package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/basket/shopscout/internal/search"
)

type searchOptions struct {
	platforms []string
	jsonOut   bool
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	so := &searchOptions{}
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run one search from the command line",
		Example: `  shopscout search wireless bluetooth headphones under $100 -p Amazon -p "Best Buy"
  shopscout search "usb-c hub" --platform walmart,target --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts, so, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringSliceVarP(&so.platforms, "platform", "p", nil,
		"platform to search, repeatable ("+strings.Join(search.Platforms, ", ")+")")
	cmd.Flags().BoolVar(&so.jsonOut, "json", false, "print the SearchResponse as JSON")
	return cmd
}

func runSearch(ctx context.Context, stdout, stderr io.Writer, opts *rootOptions, so *searchOptions, query string) error {
	// Validate before anything is started.
	req, err := search.NewRequest(query, so.platforms)
	if err != nil {
		fmt.Fprintln(stderr, search.UserMessage(err))
		return &exitError{code: 2}
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if err := cfg.CheckSecrets(); err != nil {
		fmt.Fprintln(stderr, search.UserMessage(err))
		return &exitError{code: 1}
	}

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.bridge.Search(ctx, req.Query, req.Platforms)
	if err != nil {
		fmt.Fprintln(stderr, search.UserMessage(err))
		return &exitError{code: 1}
	}

	if so.jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	renderResults(stdout, req, resp, isTerminal(stdout))
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
