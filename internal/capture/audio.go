package capture

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"perch/internal/admission"
	"perch/internal/config"
)

// System config keys consumed as opaque strings. The core passes these
// through without interpretation beyond fallback defaults.
const (
	ConfigKeyAudioDevice   = "audio_device"
	ConfigKeyChannelLabelA = "channel_label_a"
	ConfigKeyChannelLabelB = "channel_label_b"
	ConfigKeyStoragePath   = "storage_path"
	ConfigKeyCameraAddress = "camera_address"
	ConfigKeyCameraUser    = "camera_username"
	ConfigKeyCameraPass    = "camera_password"
)

const (
	defaultChannelLabelA = "source_A"
	defaultChannelLabelB = "source_B"

	audioTimestampLayout = "20060102_150405"
)

// ConfigSource supplies runtime-mutable settings from the system config
// table.
type ConfigSource interface {
	GetConfig(ctx context.Context, key, fallback string) (string, error)
}

// StaticConfig is a ConfigSource backed by a fixed map, for tests and
// store-less operation.
type StaticConfig map[string]string

func (m StaticConfig) GetConfig(_ context.Context, key, fallback string) (string, error) {
	if value, ok := m[key]; ok {
		return value, nil
	}
	return fallback, nil
}

// plan is the launch decision for one capture: the command, the expected
// output artifacts, and the admission inputs.
type plan struct {
	spec          CommandSpec
	outputs       []string
	targetDir     string
	forecastBytes int64
	// quitBytes, when set, is written to stdin for a graceful stop
	// before falling back to signals.
	quitBytes []byte
}

type planner interface {
	plan(ctx context.Context, req Request) (*plan, error)
}

// audioPlanner builds the dual-mono ALSA capture command: the stereo
// input is split into two mono PCM WAV files, one per physical source.
type audioPlanner struct {
	cfg    *config.Config
	source ConfigSource
}

func (p *audioPlanner) plan(ctx context.Context, req Request) (*plan, error) {
	device, err := p.source.GetConfig(ctx, ConfigKeyAudioDevice, p.cfg.Audio.Device)
	if err != nil {
		return nil, err
	}
	labelA, err := p.source.GetConfig(ctx, ConfigKeyChannelLabelA, defaultChannelLabelA)
	if err != nil {
		return nil, err
	}
	labelB, err := p.source.GetConfig(ctx, ConfigKeyChannelLabelB, defaultChannelLabelB)
	if err != nil {
		return nil, err
	}

	dir := p.cfg.Paths.RecordingsDir
	timestamp := time.Now().Format(audioTimestampLayout)
	fileA := filepath.Join(dir, fmt.Sprintf("%s_%s.wav", sanitizeFileName(labelA), timestamp))
	fileB := filepath.Join(dir, fmt.Sprintf("%s_%s.wav", sanitizeFileName(labelB), timestamp))

	sampleRate := strconv.Itoa(p.cfg.Audio.SampleRate)
	args := []string{
		"-f", "alsa",
		"-i", device,
		"-t", strconv.Itoa(req.DurationSeconds),
		"-filter_complex", "[0:a]channelsplit=channel_layout=stereo[left][right]",
		"-map", "[left]",
		"-acodec", "pcm_s16le",
		"-ar", sampleRate,
		fileA,
		"-map", "[right]",
		"-acodec", "pcm_s16le",
		"-ar", sampleRate,
		fileB,
	}

	// 16-bit PCM: sample rate x 2 bytes per channel-second.
	forecast := admission.ForecastDiskUsage(
		req.DurationSeconds,
		p.cfg.Audio.Channels,
		int64(p.cfg.Audio.SampleRate)*2,
	)

	return &plan{
		spec: CommandSpec{
			Binary: p.cfg.FFmpegBinary(),
			Args:   args,
		},
		outputs:       []string{fileA, fileB},
		targetDir:     dir,
		forecastBytes: forecast,
	}, nil
}
