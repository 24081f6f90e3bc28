package main

import (
	"github.com/spf13/cobra"

	"ragbridge/loader/service"
)

func NewWatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the source folder and ingest new files",
		Long:  `Watch LOADER_SOURCE_DIR, ingest every matching file once it stopped changing, then move it to the archive or bad folder.`,
		Args:  cobra.NoArgs,
		RunE:  makeWatchRunner(a),
	}
	cmd.Flags().Duration("quiet", 0, "Quiet period before a file is processed (overrides LOADER_MONITORING_TIME)")
	return cmd
}

func makeWatchRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		if quiet, _ := cmd.Flags().GetDuration("quiet"); quiet > 0 {
			a.cfg.Loader.MonitoringTime = quiet
		}

		p, err := a.pipeline(cmd.Context())
		if err != nil {
			return err
		}
		return service.New(a.cfg.Loader, p).Run(cmd.Context())
	}
}
