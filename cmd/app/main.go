package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"IPOPulse/internal/di"
	"IPOPulse/internal/domain/errs"
	"IPOPulse/pkg/config"
	"IPOPulse/pkg/server"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:          "ipopulse",
		Short:        "IPO listing, subscription and grey market premium pipeline",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "config file path (empty for defaults)")

	root.AddCommand(serveCmd(&configPath))
	root.AddCommand(runCmd(&configPath))
	root.AddCommand(statusCmd(&configPath))
	return root
}

// build loads the config and wires the application.
func build(configPath string) (*server.App, func(), error) {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config load failed: %w", err)
	}
	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("app initialization failed: %w", err)
	}
	return app, cleanup, nil
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, websocket feed and run triggers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, cleanup, err := build(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()
			return app.Run()
		},
	}
}

func runCmd(configPath *string) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one pipeline run and print it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, cleanup, err := build(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			run, err := app.RunOnce(ctx, date, "cli")
			if run != nil {
				if perr := printJSON(cmd, run); perr != nil {
					log.Printf("print run: %v", perr)
				}
			}
			if err != nil && run != nil {
				return fmt.Errorf("run %s failed: %w", run.ID, err)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "market date YYYY-MM-DD (defaults to today in IST)")
	return cmd
}

func statusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the last persisted pipeline run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, cleanup, err := build(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			run, err := app.LatestRun(cmd.Context())
			if err != nil {
				if errs.IsKind(err, errs.KindNotFound) {
					fmt.Fprintln(cmd.OutOrStdout(), "no pipeline run recorded yet")
					return nil
				}
				return err
			}
			return printJSON(cmd, run)
		},
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
