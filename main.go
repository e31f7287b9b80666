package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Leonccaa/claudecodeui/internal/defaults"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "claudecodeui",
		Short: "Web UI backend for the Gemini CLI",
		Long:  "Serves the web UI's event channel, session browser, and shell terminal on top of the Gemini CLI.",
	}

	var host string
	var port int

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the backend server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !defaults.IsGeminiInstalled() {
				fmt.Println("[WARN] gemini CLI not found; chat features will be unavailable until it is installed")
			}

			app, err := NewApp()
			if err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			defer app.Shutdown()

			return app.Serve(host, port)
		},
	}
	serve.Flags().StringVar(&host, "host", "127.0.0.1", "interface to bind")
	serve.Flags().IntVar(&port, "port", 3008, "port to listen on")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	root.AddCommand(serve, versionCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
