package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/scrywarden/scrywarden/pkg/pipeline"
	"github.com/scrywarden/scrywarden/pkg/profile"
	"github.com/scrywarden/scrywarden/pkg/wiring"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Ingest messages through configured transports and score them against behavioral profiles",
	RunE:  runCollect,
}

func runCollect(cmd *cobra.Command, args []string) error {
	ctx, cancel := shutdownContext()
	defer cancel()

	rt, err := bootstrap(ctx, "collect")
	if err != nil {
		return err
	}
	defer rt.close()

	transports, err := wiring.BuildTransports(rt.cfg.Transports, rt.logger)
	if err != nil {
		return fmt.Errorf("failed to build transports: %w", err)
	}

	resolved, err := wiring.BuildProfiles(ctx, rt.cfg.Profiles, rt.repo, rt.logger)
	if err != nil {
		return fmt.Errorf("failed to build profiles: %w", err)
	}
	profiles := make([]*profile.Profile, 0, len(resolved))
	for _, rp := range resolved {
		profiles = append(profiles, rp.Profile)
	}

	coordinator := &pipeline.Coordinator{
		Transports: transports,
		Profiles:   profiles,
		Repo:       rt.repo,
		QueueSize:  rt.cfg.Pipeline.QueueSize,
		Timeout:    rt.cfg.Pipeline.Timeout,
		Logger:     rt.logger,
		Metrics:    rt.metrics,
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return rt.http.Run(gctx, ":"+getEnv("HTTP_PORT", "8080"))
	})
	group.Go(func() error {
		return coordinator.Run(gctx)
	})
	return group.Wait()
}
