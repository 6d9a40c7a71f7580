package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Muxer attaches an audio track to a silent video with FFmpeg.
type Muxer struct {
	FFmpegPath string
	AudioCodec string
	Log        logrus.FieldLogger
}

// Mux writes out from the video stream of silent and the audio of
// audioPath. On success silent is removed. On failure silent is moved to
// out so a video-only file is still delivered, and a *MuxError is returned.
func (m *Muxer) Mux(ctx context.Context, silent, audioPath, out string) error {
	tmp := tempPath(out)
	codec := m.AudioCodec
	if codec == "" {
		codec = "aac"
	}

	cmd := exec.CommandContext(ctx, ffmpegBin(m.FFmpegPath),
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", silent,
		"-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", codec,
		"-shortest",
		tmp,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		if _, statErr := os.Stat(tmp); statErr != nil {
			err = fmt.Errorf("no output produced: %w", statErr)
		}
	} else if msg := strings.TrimSpace(stderr.String()); msg != "" {
		err = fmt.Errorf("%w: %s", err, lastLine(msg))
	}
	if err == nil {
		err = os.Rename(tmp, out)
	}
	if err != nil {
		os.Remove(tmp)
		if keepErr := Keep(silent, out); keepErr != nil {
			err = errors.Join(err, keepErr)
		}
		m.logger().WithField("file", out).WithError(err).Warn("Mux failed, keeping video without audio")
		return &MuxError{Output: out, Err: err}
	}

	if silent != out {
		os.Remove(silent)
	}
	m.logger().WithField("file", out).Debug("Muxed audio track")
	return nil
}

// Keep moves the silent video into place as the final output.
func Keep(silent, out string) error {
	if silent == out {
		return nil
	}
	return os.Rename(silent, out)
}

// SilentPath returns the working path for out's video-only stream.
func SilentPath(out string) string {
	dir, base := filepath.Split(out)
	ext := filepath.Ext(base)
	return filepath.Join(dir, "."+strings.TrimSuffix(base, ext)+".silent"+ext)
}

func tempPath(out string) string {
	dir, base := filepath.Split(out)
	ext := filepath.Ext(base)
	return filepath.Join(dir, "."+strings.TrimSuffix(base, ext)+".mux"+ext)
}

func (m *Muxer) logger() logrus.FieldLogger {
	if m.Log == nil {
		return logrus.StandardLogger()
	}
	return m.Log
}
