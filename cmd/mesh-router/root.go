package main

import (
	"github.com/signalsfoundry/mesh-router/internal/config"
	"github.com/signalsfoundry/mesh-router/internal/logging"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	topology   string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "mesh-router",
		Short: "Route adjudication for satellite mesh networks",
		Long: `mesh-router scores candidate routes across a satellite and ground-station
mesh, adjudicates them as Buy, Spread or Sell, and ranks them against payload
SLAs with a calibrated objective.

Examples:
  mesh-router serve --config router.toml
  mesh-router route GS-1 GS-2 --topology topology.json --tier gold
  mesh-router adjudicate GS-1 GS-2 --topology topology.json`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "TOML config file (defaults and environment when empty)")
	cmd.PersistentFlags().StringVar(&opts.topology, "topology", "", "JSON topology file, overriding the config")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		newServeCmd(opts),
		newRouteCmd(opts),
		newAdjudicateCmd(opts),
		newStatsCmd(opts),
		newCoefficientsCmd(opts),
	)
	return cmd
}

// load resolves the configuration for a command and builds its logger.
func (o *rootOptions) load() (config.Config, logging.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if o.topology != "" {
		cfg.Topology.Path = o.topology
	}
	if o.verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, logging.New(cfg.Log.Logging()), nil
}
