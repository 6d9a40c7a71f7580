package main

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/satindergrewal/musicviz/internal/pipeline"
)

func newRenderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render [files...]",
		Short: "Render every audio file in the input directory, or the given files",
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
			if len(args) > 0 {
				results, err = p.Run(cmd.Context(), args)
			} else {
				results, err = p.RunDir(cmd.Context(), cfg.InputDir, cfg.Extensions)
			}

			if cfg.Report && len(results) > 0 {
				path := filepath.Join(cfg.OutputDir, pipeline.ReportName)
				if rerr := pipeline.WriteReport(path, results); rerr != nil {
					log.WithError(rerr).Warn("Could not write report")
				} else {
					log.Debugf("Report written to %s", path)
				}
			}
			if err != nil {
				return err
			}
			return summarize(log, results)
		},
	}
	addRenderFlags(cmd.Flags())
	return cmd
}

func summarize(log logrus.FieldLogger, results []pipeline.Result) error {
	var failed, unmuxed int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
		case r.MuxError != nil:
			unmuxed++
		}
	}
	if len(results) > 0 {
		log.WithFields(logrus.Fields{
			"rendered": len(results) - failed,
			"failed":   failed,
			"no_audio": unmuxed,
		}).Info("Done")
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}
