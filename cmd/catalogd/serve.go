package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/najoast/catalog/bootstrap"
	"github.com/najoast/catalog/config"
	"github.com/najoast/catalog/logging"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the catalog with its HTTP gateway",
		Long: `Run the catalog daemon. The owner wallet and the catalog are created on
first start; with the store enabled later starts resume from the last
snapshot.

When --config names a file, edits to it are applied without a restart
where possible (fee schedule and log level).

Example:
  catalogd serve                         # defaults, port 8080
  catalogd serve -c catalogd.yaml        # explicit config, hot reload
  catalogd serve --port 9090`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.API.Address = addr
			}
			if port != 0 {
				cfg.API.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			log, err := logging.New(cfg.Log)
			if err != nil {
				return fmt.Errorf("initializing logging: %w", err)
			}
			defer log.Close()

			app, err := bootstrap.NewApplication(cfg, log)
			if err != nil {
				return err
			}

			if root.configFile != "" {
				watcher, err := config.NewWatcher(root.configFile, config.NewLoader(), log.Logger)
				if err != nil {
					return err
				}
				app.Watch(watcher)
				if err := watcher.Start(); err != nil {
					log.Warn("config watcher not started", zap.Error(err))
				} else {
					defer watcher.Stop()
				}
			}

			return app.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")
	return cmd
}
