package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/loghook/loghook/checkpoint"
	"github.com/loghook/loghook/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the loaded configuration",
	Long:  "Load settings from the config file and environment and report missing required keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		fmt.Println(color.GreenString("✓ Configuration valid"))
		if verbose {
			fmt.Printf("  source:     %s\n", settings.SourceBaseURL())
			fmt.Printf("  webhook:    %s\n", settings.Webhook.URL)
			fmt.Printf("  checkpoint: %s\n", settings.Checkpoint.Backend)
			fmt.Printf("  batch size: %d, concurrency: %d\n", settings.BatchSize, settings.Webhook.Concurrency)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(configCmd)
}

// buildComponents loads validated settings and opens the checkpoint store.
func buildComponents() (*config.Settings, checkpoint.Store, error) {
	settings, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}

	store, err := checkpoint.NewStore(settings.Checkpoint.Backend, map[string]interface{}{
		"name":           settings.Checkpoint.Name,
		"redis_address":  settings.Checkpoint.RedisAddress,
		"redis_password": settings.Checkpoint.RedisPassword,
		"redis_db":       settings.Checkpoint.RedisDB,
		"path":           settings.Checkpoint.BoltPath,
	})
	if err != nil {
		return nil, nil, err
	}
	return settings, store, nil
}
