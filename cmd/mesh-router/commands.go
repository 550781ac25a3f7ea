package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/mesh-router/internal/adjudicator"
	"github.com/signalsfoundry/mesh-router/internal/calibration"
	"github.com/signalsfoundry/mesh-router/internal/objective"
	"github.com/signalsfoundry/mesh-router/internal/observability"
	"github.com/signalsfoundry/mesh-router/model"
	"github.com/spf13/cobra"
)

// openApp assembles the router for a one-shot command.
func openApp(opts *rootOptions) (*app, error) {
	cfg, log, err := opts.load()
	if err != nil {
		return nil, err
	}
	collector, err := observability.NewRouterCollector(prometheus.NewRegistry())
	if err != nil {
		return nil, err
	}
	return newApp(cfg, collector, log)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRouteCmd(opts *rootOptions) *cobra.Command {
	var (
		alternatives int
		tier         string
		lMaxMs       float64
		deadlineMs   uint64
	)
	cmd := &cobra.Command{
		Use:   "route SOURCE DESTINATION",
		Short: "Adjudicate routes and rank them for a payload",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			slaTier, err := model.ParseSLATier(tier)
			if err != nil {
				return err
			}
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			req := adjudicator.RouteRequest{
				SourceID:      args[0],
				DestinationID: args[1],
				Alternatives:  a.cfg.Router.Alternatives,
			}
			if cmd.Flags().Changed("alternatives") {
				req.Alternatives = alternatives
			}
			payload := model.PayloadForTier("cli", slaTier, lMaxMs)
			if deadlineMs > 0 {
				payload = payload.WithDeadline(deadlineMs)
			}
			if err := payload.Validate(); err != nil {
				return err
			}

			ev, err := a.router.Evaluate(cmd.Context(), req, payload, uint64(time.Now().UnixMilli()))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), ev)
		},
	}
	cmd.Flags().IntVar(&alternatives, "alternatives", 0, "maximum alternative routes (default router.alternatives)")
	cmd.Flags().StringVar(&tier, "tier", "silver", "payload SLA tier: gold, silver or bulk")
	cmd.Flags().Float64Var(&lMaxMs, "l-max-ms", 50, "latency bound in ms (ignored for bulk)")
	cmd.Flags().Uint64Var(&deadlineMs, "deadline-ms", 0, "payload deadline as unix milliseconds")
	return cmd
}

type adjudication struct {
	Source      string                   `json:"source"`
	Destination string                   `json:"destination"`
	Decision    adjudicator.Decision     `json:"decision"`
	Route       *adjudicator.ScoredRoute `json:"route,omitempty"`
	Reason      string                   `json:"reason,omitempty"`
}

func newAdjudicateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "adjudicate SOURCE DESTINATION",
		Short: "Print the Buy, Spread or Sell verdict for the best route",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			out := adjudication{Source: args[0], Destination: args[1], Decision: adjudicator.Sell}
			best, err := a.service.BestRoute(args[0], args[1])
			if err != nil {
				out.Reason = err.Error()
			} else {
				out.Decision = best.Decision
				out.Route = &best
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print topology statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			return writeJSON(cmd.OutOrStdout(), a.graph.Stats())
		},
	}
}

func newCoefficientsCmd(opts *rootOptions) *cobra.Command {
	var candidate string
	cmd := &cobra.Command{
		Use:   "coefficients [PRESET]",
		Short: "Print coefficient presets or validate a candidate file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if candidate != "" {
				c, err := calibration.LoadCandidate(candidate)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), c)
			}
			if len(args) == 1 {
				c, err := objective.Preset(args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), c)
			}

			all := make(map[string]objective.RoutingCoefficients)
			for _, name := range objective.PresetNames() {
				c, err := objective.Preset(name)
				if err != nil {
					return fmt.Errorf("preset %s: %w", name, err)
				}
				all[name] = c
			}
			return writeJSON(cmd.OutOrStdout(), all)
		},
	}
	cmd.Flags().StringVar(&candidate, "candidate", "", "TOML candidate file to validate")
	return cmd
}
