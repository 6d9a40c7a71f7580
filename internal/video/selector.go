package video

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// State is where a candidate codec stands in selection.
type State int

const (
	Untried State = iota
	Opened
	Failed
)

func (s State) String() string {
	switch s {
	case Untried:
		return "untried"
	case Opened:
		return "opened"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Attempt records the state of one candidate.
type Attempt struct {
	Candidate Candidate
	State     State
	Err       error
}

// Prober checks whether a candidate encoder can be opened.
type Prober interface {
	Probe(ctx context.Context, c Candidate) error
}

// FFmpegProber encodes one black frame to the null muxer with the candidate.
type FFmpegProber struct {
	Path          string
	Width, Height int
	FPS           float64
}

func (p *FFmpegProber) Probe(ctx context.Context, c Candidate) error {
	src := fmt.Sprintf("color=c=black:s=%dx%d:r=%s:d=1", p.Width, p.Height, formatFPS(p.FPS))
	args := []string{"-hide_banner", "-loglevel", "error", "-f", "lavfi", "-i", src, "-frames:v", "1", "-c:v", c.Encoder}
	args = append(args, c.Args...)
	args = append(args, "-pix_fmt", "yuv420p", "-f", "null", "-")

	cmd := exec.CommandContext(ctx, ffmpegBin(p.Path), args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", c.Encoder, err, lastLine(msg))
		}
		return fmt.Errorf("%s: %w", c.Encoder, err)
	}
	return nil
}

// Selector tries candidates in order until one opens. The outcome is
// terminal: once a codec opened, or every candidate failed, later calls
// return the same result without probing again.
type Selector struct {
	prober Prober
	log    logrus.FieldLogger

	mu       sync.Mutex
	attempts []Attempt
	chosen   int
	done     bool
}

// NewSelector returns a selector over candidates, all Untried.
func NewSelector(p Prober, candidates []Candidate, log logrus.FieldLogger) *Selector {
	attempts := make([]Attempt, len(candidates))
	for i, c := range candidates {
		attempts[i] = Attempt{Candidate: c}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Selector{prober: p, log: log, attempts: attempts, chosen: -1}
}

// Select returns the first candidate that opens. If none does it returns an
// *EncoderUnavailableError. A cancelled context leaves the remaining
// candidates Untried.
func (s *Selector) Select(ctx context.Context) (Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.done {
		for i := range s.attempts {
			a := &s.attempts[i]
			if a.State != Untried {
				continue
			}
			if err := ctx.Err(); err != nil {
				return Candidate{}, err
			}
			if err := s.prober.Probe(ctx, a.Candidate); err != nil {
				if ctx.Err() != nil {
					return Candidate{}, ctx.Err()
				}
				a.State, a.Err = Failed, err
				s.log.WithField("codec", a.Candidate.Name).WithError(err).Warn("Codec failed to open, trying next")
				continue
			}
			a.State = Opened
			s.chosen = i
			s.log.WithField("codec", a.Candidate.String()).Info("Using video codec")
			break
		}
		s.done = true
	}

	if s.chosen < 0 {
		return Candidate{}, &EncoderUnavailableError{Attempts: s.snapshot()}
	}
	return s.attempts[s.chosen].Candidate, nil
}

// Reject marks the chosen candidate Failed with err, so the next Select
// probes the candidates after it. It is a no-op unless c is the chosen one.
func (s *Selector) Reject(c Candidate, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.chosen < 0 || s.attempts[s.chosen].Candidate.Name != c.Name {
		return
	}
	a := &s.attempts[s.chosen]
	a.State, a.Err = Failed, err
	s.chosen = -1
	s.done = false
	s.log.WithField("codec", c.Name).WithError(err).Warn("Codec failed to start, trying next")
}

// Attempts returns a copy of the per-candidate states.
func (s *Selector) Attempts() []Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Selector) snapshot() []Attempt {
	out := make([]Attempt, len(s.attempts))
	copy(out, s.attempts)
	return out
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
