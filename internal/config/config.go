package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	RecordingsDir string `toml:"recordings_dir"`
	VideoDir      string `toml:"video_dir"`
	LogDir        string `toml:"log_dir"`
}

// Audio contains settings for the dual-channel audio capture path.
type Audio struct {
	Device             string `toml:"device"`
	SampleRate         int    `toml:"sample_rate"`
	Channels           int    `toml:"channels"`
	MaxDurationSeconds int    `toml:"max_duration_seconds"`
	StopTimeoutSeconds int    `toml:"stop_timeout_seconds"`
}

// Video contains settings for the RTSP capture and transcode path.
type Video struct {
	Enabled               bool   `toml:"enabled"`
	RTSPTransport         string `toml:"rtsp_transport"`
	EstimatedMBPerHour    int    `toml:"estimated_mb_per_hour"`
	TranscodeBitrate      string `toml:"transcode_bitrate"`
	TranscodeEnabled      bool   `toml:"transcode_enabled"`
	DeleteRawAfterEncode  bool   `toml:"delete_raw_after_encode"`
	StopTimeoutSeconds    int    `toml:"stop_timeout_seconds"`
	TranscodeTimeoutHours int    `toml:"transcode_timeout_hours"`
}

// Scheduler contains timing configuration for the schedule engine.
type Scheduler struct {
	HeartbeatInterval int `toml:"heartbeat_interval"`
	RetentionDays     int `toml:"retention_days"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for perch.
//
// Configuration sections by subsystem:
//   - Paths: recording, video, and log directories
//   - Audio: ALSA device and capture limits
//   - Video: RTSP capture and hardware transcode settings
//   - Scheduler: engine timing and retention
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Audio     Audio     `toml:"audio"`
	Video     Video     `toml:"video"`
	Scheduler Scheduler `toml:"scheduler"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/perch/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a file was actually found at the resolved path.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("perch.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// VideoDir is created on a best-effort basis so the daemon can run when
// the external video storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.RecordingsDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.VideoDir) != "" {
		_ = os.MkdirAll(c.Paths.VideoDir, 0o755)
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name used for capture.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
