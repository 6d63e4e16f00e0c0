package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateAudio(); err != nil {
		return err
	}
	if err := c.validateVideo(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.RecordingsDir) == "" {
		return errors.New("paths.recordings_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateAudio() error {
	if c.Audio.Device == "" {
		return errors.New("audio.device must be set")
	}
	if c.Audio.Channels != 2 {
		return fmt.Errorf("audio.channels must be 2 for dual-channel capture, got %d", c.Audio.Channels)
	}
	if c.Audio.SampleRate < 8000 || c.Audio.SampleRate > 192000 {
		return fmt.Errorf("audio.sample_rate %d is outside the supported range", c.Audio.SampleRate)
	}
	return nil
}

func (c *Config) validateVideo() error {
	if !c.Video.Enabled {
		return nil
	}
	switch c.Video.RTSPTransport {
	case "tcp", "udp":
	default:
		return fmt.Errorf("video.rtsp_transport must be tcp or udp, got %q", c.Video.RTSPTransport)
	}
	if strings.TrimSpace(c.Paths.VideoDir) == "" {
		return errors.New("paths.video_dir must be set when video.enabled is true")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not recognized", c.Logging.Level)
	}
	return nil
}
