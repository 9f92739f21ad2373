package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/najoast/catalog/config"
)

type rootOptions struct {
	configFile string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "catalogd",
		Short:        "Track catalog on an actor ledger",
		Long:         `catalogd keeps a catalog of tracks and collections, each one an actor with a derived address, and charges fees for every message between them.`,
		Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "",
		"config file (default: search ./catalogd.yaml, ./config, /etc/catalogd)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "",
		"override the configured log level")

	cmd.AddCommand(
		newServeCmd(opts),
		newDeriveCmd(opts),
		newSimulateCmd(opts),
	)
	return cmd
}

// load reads the configuration named by --config, or discovers one.
func (o *rootOptions) load() (*config.Config, error) {
	loader := config.NewLoader()
	var (
		cfg *config.Config
		err error
	)
	if o.configFile != "" {
		cfg, err = loader.LoadFromFile(o.configFile)
	} else {
		cfg, err = loader.AutoLoad()
	}
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = config.LogLevel(o.logLevel)
		if !cfg.Log.Level.IsValid() {
			return nil, fmt.Errorf("%w: %s", config.ErrInvalidLogLevel, o.logLevel)
		}
	}
	return cfg, nil
}
