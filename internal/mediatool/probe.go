package mediatool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrNoVideoStream is returned when ffprobe reports no video stream.
var ErrNoVideoStream = errors.New("no video stream")

// ProbeResult is the metadata extracted from a source file.
type ProbeResult struct {
	DurationSeconds float64
	Codec           string
	BitrateKbps     int64
	Width           int
	Height          int
	FPS             float64
}

// DegradedProbe is recorded in place of real metadata when probing fails
// and degraded metadata is allowed.
var DegradedProbe = ProbeResult{
	DurationSeconds: 0,
	Codec:           "h264",
	BitrateKbps:     5000,
	Width:           1920,
	Height:          1080,
}

type Prober struct {
	runner  ToolRunner
	path    string
	timeout time.Duration
}

func NewProber(runner ToolRunner, ffprobePath string, timeout time.Duration) *Prober {
	return &Prober{runner: runner, path: ffprobePath, timeout: timeout}
}

func (p *Prober) Probe(ctx context.Context, src string) (*ProbeResult, error) {
	res, err := p.runner.Run(ctx, Invocation{
		Tool: "ffprobe",
		Path: p.path,
		Args: []string{
			"-v", "error",
			"-select_streams", "v:0",
			"-show_entries", "stream=codec_name,width,height,bit_rate,duration,r_frame_rate:format=duration,bit_rate",
			"-of", "json",
			src,
		},
		Timeout: p.timeout,
	})
	if err != nil {
		return nil, err
	}
	return ParseProbeJSON(res.Stdout)
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

type ffprobeStream struct {
	CodecName  string `json:"codec_name"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	BitRate    string `json:"bit_rate"`
	Duration   string `json:"duration"`
	RFrameRate string `json:"r_frame_rate"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
	BitRate  string `json:"bit_rate"`
}

// ParseProbeJSON converts ffprobe JSON output into a ProbeResult. Stream
// values win over format values; the format fills in what the stream lacks.
func ParseProbeJSON(data []byte) (*ProbeResult, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe JSON: %w", err)
	}
	if len(raw.Streams) == 0 {
		return nil, ErrNoVideoStream
	}

	s := raw.Streams[0]
	res := &ProbeResult{
		Codec:  s.CodecName,
		Width:  s.Width,
		Height: s.Height,
		FPS:    parseRate(s.RFrameRate),
	}

	res.DurationSeconds = parseFloat(s.Duration)
	if res.DurationSeconds == 0 {
		res.DurationSeconds = parseFloat(raw.Format.Duration)
	}

	bps := parseInt64(s.BitRate)
	if bps == 0 {
		bps = parseInt64(raw.Format.BitRate)
	}
	res.BitrateKbps = bps / 1000

	if res.Width <= 0 || res.Height <= 0 {
		return nil, fmt.Errorf("%w: invalid dimensions %dx%d", ErrNoVideoStream, res.Width, res.Height)
	}
	return res, nil
}

// parseRate reads an ffprobe rational such as "30000/1001".
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return parseFloat(num)
	}
	d := parseFloat(den)
	if d == 0 {
		return 0
	}
	return parseFloat(num) / d
}

// ffprobe returns numbers as strings

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}
