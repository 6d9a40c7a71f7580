package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/satindergrewal/musicviz/internal/video"
)

func newEncodersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encoders",
		Short: "Show which configured video codec would be used",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, closer, err := setup(cmd)
			if err != nil {
				return err
			}
			defer closer.Close()

			prober := &video.FFmpegProber{
				Path:   cfg.FFmpegPath,
				Width:  cfg.Video.Width,
				Height: cfg.Video.Height,
				FPS:    cfg.Video.FPS,
			}
			sel := video.NewSelector(prober, video.Candidates(cfg.Video.Codecs), log)
			_, selErr := sel.Select(cmd.Context())

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CODEC\tENCODER\tSTATE\tERROR")
			for _, a := range sel.Attempts() {
				msg := ""
				if a.Err != nil {
					msg = a.Err.Error()
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.Candidate.Name, a.Candidate.Encoder, a.State, msg)
			}
			tw.Flush()
			return selErr
		},
	}
	return cmd
}
