package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ledgerly/sentinel/cmd/server"
	"github.com/spf13/cobra"
)

var sentinelCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Sentinel is the session security layer of the Ledgerly API",
	Long: `Sentinel issues, validates and revokes fingerprint-bound session tokens
for the Ledgerly expense-tracking API. It provides the authentication gate,
CSRF protection and token storage that the business services mount their
routes behind.`,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sentinelCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	sentinelCmd.AddCommand(server.ServerCmd)
}
