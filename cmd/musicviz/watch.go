package main

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/satindergrewal/musicviz/internal/pipeline"
	"github.com/satindergrewal/musicviz/internal/watch"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Render audio files as they are added to the input directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, closer, err := setup(cmd)
			if err != nil {
				return err
			}
			defer closer.Close()

			p, err := pipeline.FromConfig(cfg, log)
			if err != nil {
				return err
			}

			var results []pipeline.Result
			w := &watch.Watcher{
				Dir:    cfg.InputDir,
				Exts:   cfg.Extensions,
				Settle: cfg.Watch.Settle,
				Log:    log,
				Handle: func(ctx context.Context, path string) {
					res := p.Process(ctx, path)
					if res.Err != nil {
						log.WithField("file", filepath.Base(path)).WithError(res.Err).Error("Failed")
					}
					results = append(results, res)
					if cfg.Report {
						if err := pipeline.WriteReport(filepath.Join(cfg.OutputDir, pipeline.ReportName), results); err != nil {
							log.WithError(err).Warn("Could not write report")
						}
					}
				},
			}
			if err := w.Run(cmd.Context()); err != nil {
				return err
			}
			log.Info("Stopped watching")
			return nil
		},
	}
	addRenderFlags(cmd.Flags())
	return cmd
}
