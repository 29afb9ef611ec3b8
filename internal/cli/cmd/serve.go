package cmd

import (
	"fmt"
	"net/http"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/loghook/loghook/authcache"
	"github.com/loghook/loghook/internal/server"
	"github.com/loghook/loghook/pipeline"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP trigger endpoint",
	Long:  "Serve /run (GET or POST starts one pipeline run), /healthz, and /metrics",
	RunE:  serve,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, args []string) error {
	settings, store, err := buildComponents()
	if err != nil {
		return err
	}

	p, err := pipeline.New(settings, store, authcache.New(authcache.DefaultCapacity, authcache.DefaultTTL))
	if err != nil {
		return err
	}

	fmt.Println(color.GreenString("Listening on %s", settings.HTTP.Addr))
	return http.ListenAndServe(settings.HTTP.Addr, server.New(p).Router())
}
