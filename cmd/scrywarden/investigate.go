package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/scrywarden/scrywarden/pkg/curator"
	"github.com/scrywarden/scrywarden/pkg/investigator"
	"github.com/scrywarden/scrywarden/pkg/wiring"
)

var investigateCmd = &cobra.Command{
	Use:   "investigate",
	Short: "Claim windows of scored events, run the analyzer, and ship confirmed findings",
	RunE:  runInvestigate,
}

func runInvestigate(cmd *cobra.Command, args []string) error {
	ctx, cancel := shutdownContext()
	defer cancel()

	rt, err := bootstrap(ctx, "investigate")
	if err != nil {
		return err
	}
	defer rt.close()

	resolved, err := wiring.BuildProfiles(ctx, rt.cfg.Profiles, rt.repo, rt.logger)
	if err != nil {
		return fmt.Errorf("failed to build profiles: %w", err)
	}

	investigators := make([]curator.Investigator, 0, len(resolved))
	for _, rp := range resolved {
		inv := investigator.New(rp.Profile.Model.ID, rp.Profile.Model.Name, "", rt.repo, rp.Collector, rp.Analyzer, rt.logger)
		inv.Metrics = rt.metrics
		investigators = append(investigators, inv)
	}

	shippers, shipperQueueSizes, err := wiring.BuildShippers(rt.cfg.Shippers, rt.logger, rt.metrics)
	if err != nil {
		return fmt.Errorf("failed to build shippers: %w", err)
	}

	c := curator.New(investigators, shippers, shipperQueueSizes, 0, rt.logger)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return rt.http.Run(gctx, ":"+getEnv("HTTP_PORT", "8080"))
	})
	group.Go(func() error {
		return c.Run(gctx)
	})
	return group.Wait()
}
