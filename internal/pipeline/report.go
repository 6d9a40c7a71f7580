package pipeline

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ReportName is the run report's file name inside the output directory.
const ReportName = "report.yaml"

type Report struct {
	GeneratedAt time.Time    `yaml:"generated_at"`
	Files       []FileReport `yaml:"files"`
}

type FileReport struct {
	Input        string  `yaml:"input"`
	Output       string  `yaml:"output,omitempty"`
	Codec        string  `yaml:"codec,omitempty"`
	Frames       int     `yaml:"frames"`
	Written      int     `yaml:"written"`
	Skipped      int     `yaml:"skipped"`
	Muxed        bool    `yaml:"muxed"`
	AudioSeconds float64 `yaml:"audio_seconds"`
	Elapsed      string  `yaml:"elapsed"`
	MuxError     string  `yaml:"mux_error,omitempty"`
	Error        string  `yaml:"error,omitempty"`
}

// NewReport summarizes results.
func NewReport(results []Result, now time.Time) Report {
	r := Report{GeneratedAt: now.UTC().Truncate(time.Second), Files: make([]FileReport, 0, len(results))}
	for _, res := range results {
		fr := FileReport{
			Input:        res.Input,
			Output:       res.Output,
			Codec:        res.Codec,
			Frames:       res.Frames,
			Written:      res.Written,
			Skipped:      res.Skipped,
			Muxed:        res.Muxed,
			AudioSeconds: res.Audio.Seconds(),
			Elapsed:      res.Elapsed.Round(time.Millisecond).String(),
		}
		if res.MuxError != nil {
			fr.MuxError = res.MuxError.Error()
		}
		if res.Err != nil {
			fr.Error = res.Err.Error()
			fr.Output = ""
		}
		r.Files = append(r.Files, fr)
	}
	return r
}

// WriteReport writes results as YAML to path.
func WriteReport(path string, results []Result) error {
	data, err := yaml.Marshal(NewReport(results, time.Now()))
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// ReadReport loads a report written by WriteReport.
func ReadReport(path string) (Report, error) {
	var r Report
	data, err := os.ReadFile(path)
	if err != nil {
		return r, err
	}
	if err := yaml.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("decode report: %w", err)
	}
	return r, nil
}
