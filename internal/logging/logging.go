// Package logging builds the logrus logger used by every command: a
// timestamped log file for the run plus a quieter console.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const timestampFormat = "2006-01-02 15:04:05"

// Options configures New.
type Options struct {
	Dir          string // no log file when empty
	Level        string
	ConsoleLevel string
	Console      io.Writer // defaults to os.Stderr
	Now          func() time.Time
}

// New returns a logger writing to a file under opts.Dir and to the console.
// The returned closer closes the log file.
func New(opts Options) (*logrus.Logger, io.Closer, error) {
	fileLevel, err := parseLevel(opts.Level, logrus.DebugLevel)
	if err != nil {
		return nil, nil, err
	}
	consoleLevel, err := parseLevel(opts.ConsoleLevel, logrus.InfoLevel)
	if err != nil {
		return nil, nil, err
	}
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(consoleLevel)
	l.AddHook(NewWriterHook(console, consoleLevel, &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: timestampFormat,
	}))

	if opts.Dir == "" {
		return l, nopCloser{}, nil
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	path := filepath.Join(opts.Dir, FileName(now()))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	l.AddHook(NewWriterHook(f, fileLevel, &logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: timestampFormat,
	}))
	if fileLevel > consoleLevel {
		l.SetLevel(fileLevel)
	}
	return l, f, nil
}

// FileName is the log file name for a run started at t.
func FileName(t time.Time) string {
	return "musicviz_" + t.Format("20060102_150405") + ".log"
}

// WriterHook writes entries at or above a level to w.
type WriterHook struct {
	mu        sync.Mutex
	w         io.Writer
	levels    []logrus.Level
	formatter logrus.Formatter
}

// NewWriterHook returns a hook firing for level and every more severe level.
func NewWriterHook(w io.Writer, level logrus.Level, f logrus.Formatter) *WriterHook {
	var levels []logrus.Level
	for _, lvl := range logrus.AllLevels {
		if lvl <= level {
			levels = append(levels, lvl)
		}
	}
	return &WriterHook{w: w, levels: levels, formatter: f}
}

func (h *WriterHook) Levels() []logrus.Level { return h.levels }

func (h *WriterHook) Fire(e *logrus.Entry) error {
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.w.Write(b)
	return err
}

func parseLevel(s string, fallback logrus.Level) (logrus.Level, error) {
	if s == "" {
		return fallback, nil
	}
	return logrus.ParseLevel(s)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
