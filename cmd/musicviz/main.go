package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/satindergrewal/musicviz/internal/config"
	"github.com/satindergrewal/musicviz/internal/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "musicviz",
		Short:         "Render spectrum visualisations of audio files to video",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "config file (default musicviz.yaml in . or ./config)")
	root.PersistentFlags().String("log-dir", "", "directory for log files")
	root.PersistentFlags().String("ffmpeg", "", "path to the ffmpeg binary")

	root.AddCommand(newRenderCmd(), newWatchCmd(), newEncodersCmd())
	return root
}

func addRenderFlags(fs *pflag.FlagSet) {
	fs.StringP("input", "i", "", "input directory")
	fs.StringP("output", "o", "", "output directory")
	fs.Int("width", 0, "video width")
	fs.Int("height", 0, "video height")
	fs.Float64("fps", 0, "frames per second")
	fs.Int("workers", 0, "render goroutines (0 = one per CPU)")
	fs.Bool("progress", false, "show a progress bar per file")
}

// setup loads configuration and the logger for a command.
func setup(cmd *cobra.Command) (config.Config, *logrus.Logger, io.Closer, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	log, closer, err := logging.New(logging.Options{
		Dir:          cfg.Log.Dir,
		Level:        cfg.Log.Level,
		ConsoleLevel: cfg.Log.ConsoleLevel,
	})
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	log.WithFields(logrus.Fields{
		"input":  cfg.InputDir,
		"output": cfg.OutputDir,
		"size":   fmt.Sprintf("%dx%d", cfg.Video.Width, cfg.Video.Height),
		"fps":    cfg.Video.FPS,
	}).Debug("Configuration loaded")
	return cfg, log, closer, nil
}
