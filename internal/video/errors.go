package video

import (
	"fmt"
	"strings"
)

// EncoderUnavailableError means no candidate codec could be opened.
type EncoderUnavailableError struct {
	Attempts []Attempt
}

func (e *EncoderUnavailableError) Error() string {
	if len(e.Attempts) == 0 {
		return "no video encoder candidates configured"
	}
	names := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		names[i] = a.Candidate.Name
	}
	return fmt.Sprintf("no usable video encoder (tried %s)", strings.Join(names, ", "))
}

func (e *EncoderUnavailableError) Unwrap() []error {
	var errs []error
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}

// FrameWriteError is a failure to hand one frame to the encoder. The frame
// is lost but the file can continue.
type FrameWriteError struct {
	Frame int
	Err   error
}

func (e *FrameWriteError) Error() string {
	return fmt.Sprintf("write frame %d: %v", e.Frame, e.Err)
}

func (e *FrameWriteError) Unwrap() error { return e.Err }

// MuxError is a failed audio/video merge. The video-only file is left at
// Output.
type MuxError struct {
	Output string
	Err    error
}

func (e *MuxError) Error() string {
	return fmt.Sprintf("mux %s: %v", e.Output, e.Err)
}

func (e *MuxError) Unwrap() error { return e.Err }
