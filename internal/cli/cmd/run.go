package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/loghook/loghook/authcache"
	"github.com/loghook/loghook/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one pipeline run",
	Long:  "Load the checkpoint, fetch new audit-log events, deliver them to the webhook, and advance the checkpoint",
	Example: `  loghook run
  loghook run --config loghook.yaml`,
	RunE: runOnce,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	settings, store, err := buildComponents()
	if err != nil {
		return err
	}
	if closer, ok := store.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	p, err := pipeline.New(settings, store, authcache.New(authcache.DefaultCapacity, authcache.DefaultTTL))
	if err != nil {
		return err
	}

	result, err := p.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Println(color.GreenString("✓ Run complete: %d fetched, %d delivered, cursor %q",
		result.EventsFetched, result.EventsDelivered, result.Cursor))
	return nil
}
