package mediatool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"
)

// Profile is one output quality.
type Profile struct {
	Name             string `json:"name"`
	Width            int    `json:"width"`
	Height           int    `json:"height"`
	VideoBitrateKbps int    `json:"video_bitrate_kbps"`
	VideoCodec       string `json:"video_codec"`
	AudioCodec       string `json:"audio_codec"`
	AudioBitrateKbps int    `json:"audio_bitrate_kbps"`
	Preset           string `json:"preset"`
}

// Resolution returns the WxH form ffmpeg expects for -s.
func (p Profile) Resolution() string {
	return fmt.Sprintf("%dx%d", p.Width, p.Height)
}

// DefaultProfiles returns the standard ladder in encode order.
func DefaultProfiles() []Profile {
	return []Profile{
		newProfile("360p", 640, 360, 500),
		newProfile("480p", 854, 480, 1000),
		newProfile("720p", 1280, 720, 2500),
		newProfile("1080p", 1920, 1080, 5000),
	}
}

func newProfile(name string, w, h, kbps int) Profile {
	return Profile{
		Name:             name,
		Width:            w,
		Height:           h,
		VideoBitrateKbps: kbps,
		VideoCodec:       "libx264",
		AudioCodec:       "aac",
		AudioBitrateKbps: 128,
		Preset:           "medium",
	}
}

var profileNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// LoadProfiles reads a JSON array of profiles from path. Missing codec,
// audio bitrate and preset fields take the default ladder's values.
func LoadProfiles(path string) ([]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles file: %w", err)
	}

	var profiles []Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("parse profiles file: %w", err)
	}

	for i := range profiles {
		p := &profiles[i]
		if p.VideoCodec == "" {
			p.VideoCodec = "libx264"
		}
		if p.AudioCodec == "" {
			p.AudioCodec = "aac"
		}
		if p.AudioBitrateKbps == 0 {
			p.AudioBitrateKbps = 128
		}
		if p.Preset == "" {
			p.Preset = "medium"
		}
	}

	if err := ValidateProfiles(profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

// ValidateProfiles rejects empty ladders, duplicate or unsafe names, and
// non-positive dimensions or bitrates.
func ValidateProfiles(profiles []Profile) error {
	if len(profiles) == 0 {
		return errors.New("at least one profile is required")
	}
	seen := make(map[string]bool, len(profiles))
	for _, p := range profiles {
		if !profileNamePattern.MatchString(p.Name) {
			return fmt.Errorf("invalid profile name %q", p.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate profile %q", p.Name)
		}
		seen[p.Name] = true
		if p.Width <= 0 || p.Height <= 0 || p.VideoBitrateKbps <= 0 {
			return fmt.Errorf("profile %q: dimensions and bitrate must be positive", p.Name)
		}
	}
	return nil
}

type Encoder struct {
	runner  ToolRunner
	path    string
	timeout time.Duration
}

func NewEncoder(runner ToolRunner, ffmpegPath string, timeout time.Duration) *Encoder {
	return &Encoder{runner: runner, path: ffmpegPath, timeout: timeout}
}

// Encode writes one rendition of src to out and returns its size in bytes.
func (e *Encoder) Encode(ctx context.Context, src, out string, p Profile) (int64, error) {
	_, err := e.runner.Run(ctx, Invocation{
		Tool:    "ffmpeg",
		Path:    e.path,
		Args:    EncodeArgs(src, out, p),
		Timeout: e.timeout,
	})
	if err != nil {
		return 0, err
	}

	fi, err := os.Stat(out)
	if err != nil {
		return 0, fmt.Errorf("encoder produced no output for %s: %w", p.Name, err)
	}
	return fi.Size(), nil
}

func EncodeArgs(src, out string, p Profile) []string {
	return []string{
		"-y",
		"-i", src,
		"-c:v", p.VideoCodec,
		"-b:v", strconv.Itoa(p.VideoBitrateKbps) + "k",
		"-s", p.Resolution(),
		"-c:a", p.AudioCodec,
		"-b:a", strconv.Itoa(p.AudioBitrateKbps) + "k",
		"-preset", p.Preset,
		"-movflags", "+faststart",
		"-f", "mp4",
		out,
	}
}
