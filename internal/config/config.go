// Package config loads musicviz settings from defaults, an optional YAML
// file, MUSICVIZ_* environment variables and command line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "MUSICVIZ"

// Config holds all runtime configuration.
type Config struct {
	InputDir   string   `mapstructure:"input_dir"`
	OutputDir  string   `mapstructure:"output_dir"`
	Extensions []string `mapstructure:"extensions"`
	OutputExt  string   `mapstructure:"output_ext"`
	FFmpegPath string   `mapstructure:"ffmpeg_path"`
	Progress   bool     `mapstructure:"progress"`
	Report     bool     `mapstructure:"report"`

	Audio    AudioConfig    `mapstructure:"audio"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Video    VideoConfig    `mapstructure:"video"`
	Log      LogConfig      `mapstructure:"log"`
	Watch    WatchConfig    `mapstructure:"watch"`
}

type AudioConfig struct {
	SampleRate int    `mapstructure:"sample_rate"`
	Decoder    string `mapstructure:"decoder"` // ffmpeg, native or auto
}

type AnalysisConfig struct {
	WindowSize int    `mapstructure:"window_size"`
	HopSize    int    `mapstructure:"hop_size"`
	Bands      int    `mapstructure:"bands"`
	Sync       string `mapstructure:"sync"` // index or time
}

type VideoConfig struct {
	Width       int      `mapstructure:"width"`
	Height      int      `mapstructure:"height"`
	FPS         float64  `mapstructure:"fps"`
	Codecs      []string `mapstructure:"codecs"`
	PixelFormat string   `mapstructure:"pixel_format"`
	Workers     int      `mapstructure:"workers"` // 0 means one per CPU
	MuxAudio    bool     `mapstructure:"mux_audio"`
	AudioCodec  string   `mapstructure:"audio_codec"`
}

type LogConfig struct {
	Dir          string `mapstructure:"dir"`
	Level        string `mapstructure:"level"`
	ConsoleLevel string `mapstructure:"console_level"`
}

type WatchConfig struct {
	Settle time.Duration `mapstructure:"settle"`
}

var defaults = map[string]any{
	"input_dir":            "downloads",
	"output_dir":           "output",
	"extensions":           []string{".mp3", ".wav", ".ogg"},
	"output_ext":           ".mp4",
	"ffmpeg_path":          "ffmpeg",
	"progress":             false,
	"report":               true,
	"audio.sample_rate":    22050,
	"audio.decoder":        "ffmpeg",
	"analysis.window_size": 2048,
	"analysis.hop_size":    512,
	"analysis.bands":       10,
	"analysis.sync":        "index",
	"video.width":          800,
	"video.height":         600,
	"video.fps":            30.0,
	"video.codecs":         []string{"mp4v", "avc1", "h264"},
	"video.pixel_format":   "rgba",
	"video.workers":        0,
	"video.mux_audio":      true,
	"video.audio_codec":    "aac",
	"log.dir":              "logs",
	"log.level":            "debug",
	"log.console_level":    "info",
	"watch.settle":         2 * time.Second,
}

// FlagKeys maps command line flag names to config keys.
var FlagKeys = map[string]string{
	"input":    "input_dir",
	"output":   "output_dir",
	"width":    "video.width",
	"height":   "video.height",
	"fps":      "video.fps",
	"workers":  "video.workers",
	"progress": "progress",
	"log-dir":  "log.dir",
	"ffmpeg":   "ffmpeg_path",
}

// Default returns the built-in configuration.
func Default() Config {
	var cfg Config
	if err := defaultViper().Unmarshal(&cfg); err != nil {
		panic(err) // defaults are static
	}
	return cfg
}

// Load reads configuration. path names a YAML file; when empty,
// musicviz.yaml is looked for in . and ./config and skipped if absent.
// Only flags in flags that were set on the command line override.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("musicviz")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return load(v, flags)
}

func defaultViper() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	return v
}

func newViper() *viper.Viper {
	v := defaultViper()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func load(v *viper.Viper, flags *pflag.FlagSet) (Config, error) {
	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Extensions = normalizeExts(cfg.Extensions)
	cfg.OutputExt = normalizeExt(cfg.OutputExt)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.InputDir == "":
		return errors.New("config: input_dir is empty")
	case c.OutputDir == "":
		return errors.New("config: output_dir is empty")
	case len(c.Extensions) == 0:
		return errors.New("config: no input extensions")
	case c.OutputExt == "":
		return errors.New("config: output_ext is empty")
	case c.Audio.SampleRate <= 0:
		return fmt.Errorf("config: audio.sample_rate must be positive: %d", c.Audio.SampleRate)
	case c.Analysis.WindowSize < 2:
		return fmt.Errorf("config: analysis.window_size must be >= 2: %d", c.Analysis.WindowSize)
	case c.Analysis.HopSize <= 0 || c.Analysis.HopSize > c.Analysis.WindowSize:
		return fmt.Errorf("config: analysis.hop_size must be in [1,%d]: %d", c.Analysis.WindowSize, c.Analysis.HopSize)
	case c.Analysis.Bands <= 0:
		return fmt.Errorf("config: analysis.bands must be positive: %d", c.Analysis.Bands)
	case c.Video.Width <= 0 || c.Video.Height <= 0:
		return fmt.Errorf("config: video size must be positive: %dx%d", c.Video.Width, c.Video.Height)
	case c.Video.FPS <= 0:
		return fmt.Errorf("config: video.fps must be positive: %v", c.Video.FPS)
	case len(c.Video.Codecs) == 0:
		return errors.New("config: no video codecs")
	case c.Video.Workers < 0:
		return fmt.Errorf("config: video.workers must not be negative: %d", c.Video.Workers)
	case c.Watch.Settle < 0:
		return fmt.Errorf("config: watch.settle must not be negative: %v", c.Watch.Settle)
	}
	if err := oneOf("audio.decoder", c.Audio.Decoder, "ffmpeg", "native", "auto"); err != nil {
		return err
	}
	if err := oneOf("analysis.sync", c.Analysis.Sync, "index", "time"); err != nil {
		return err
	}
	return oneOf("video.pixel_format", c.Video.PixelFormat, "rgba", "bgra")
}

// Workers returns the render worker count, resolving 0 to the CPU count.
func (c Config) Workers() int {
	if c.Video.Workers > 0 {
		return c.Video.Workers
	}
	return runtime.NumCPU()
}

func oneOf(key, val string, allowed ...string) error {
	for _, a := range allowed {
		if strings.EqualFold(val, a) {
			return nil
		}
	}
	return fmt.Errorf("config: %s must be one of %s: %q", key, strings.Join(allowed, ", "), val)
}

func normalizeExts(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		if e = normalizeExt(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

func normalizeExt(e string) string {
	e = strings.ToLower(strings.TrimSpace(e))
	if e != "" && !strings.HasPrefix(e, ".") {
		e = "." + e
	}
	return e
}
