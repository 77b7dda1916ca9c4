package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for hostcrawl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hostcrawl",
		Short: "Concurrent link crawler scoped to a single host",
		Long: `hostcrawl discovers every page reachable by following links from a start URL,
without ever leaving the start URL's host.

Pages are fetched concurrently with a fixed upper bound, each URL is fetched
at most once, and finished crawls are kept in a local history database.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
