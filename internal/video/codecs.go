package video

import "strings"

// CodecMap maps fourcc style codec names to FFmpeg encoder names.
var CodecMap = map[string]string{
	"mp4v": "mpeg4",
	"avc1": "libx264",
	"h264": "libopenh264",
	"x264": "libx264",
	"xvid": "libxvid",
	"vp09": "libvpx-vp9",
}

// encoderArgs are extra output options per FFmpeg encoder.
var encoderArgs = map[string][]string{
	"mpeg4":       {"-q:v", "4"},
	"libx264":     {"-preset", "medium", "-crf", "20"},
	"libopenh264": {"-b:v", "4M"},
	"libvpx-vp9":  {"-b:v", "0", "-crf", "32"},
}

// DefaultCodecs is the order codecs are tried in when none are configured.
var DefaultCodecs = []string{"mp4v", "avc1", "h264"}

// Candidate is one encoder configuration to try.
type Candidate struct {
	Name    string // as configured
	Encoder string // FFmpeg -c:v value
	Args    []string
}

// GetEncoder returns the FFmpeg encoder for a codec name. Unknown names are
// passed through unchanged.
func GetEncoder(name string) string {
	if enc, ok := CodecMap[strings.ToLower(name)]; ok {
		return enc
	}
	return name
}

// Candidates builds the ordered candidate list for names, skipping blanks.
func Candidates(names []string) []Candidate {
	out := make([]Candidate, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		enc := GetEncoder(n)
		out = append(out, Candidate{Name: n, Encoder: enc, Args: encoderArgs[enc]})
	}
	return out
}

func (c Candidate) String() string {
	if c.Name == c.Encoder {
		return c.Name
	}
	return c.Name + " (" + c.Encoder + ")"
}
