package config

import (
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAudio()
	c.normalizeVideo()
	c.normalizeScheduler()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.RecordingsDir, err = expandPath(c.Paths.RecordingsDir); err != nil {
		return err
	}
	if c.Paths.VideoDir, err = expandPath(c.Paths.VideoDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	return nil
}

func (c *Config) normalizeAudio() {
	c.Audio.Device = strings.TrimSpace(c.Audio.Device)
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = defaultSampleRate
	}
	if c.Audio.Channels <= 0 {
		c.Audio.Channels = defaultChannels
	}
	if c.Audio.MaxDurationSeconds <= 0 {
		c.Audio.MaxDurationSeconds = defaultMaxDuration
	}
	if c.Audio.StopTimeoutSeconds <= 0 {
		c.Audio.StopTimeoutSeconds = defaultStopTimeout
	}
}

func (c *Config) normalizeVideo() {
	c.Video.RTSPTransport = strings.ToLower(strings.TrimSpace(c.Video.RTSPTransport))
	if c.Video.RTSPTransport == "" {
		c.Video.RTSPTransport = defaultRTSPTransport
	}
	if c.Video.EstimatedMBPerHour <= 0 {
		c.Video.EstimatedMBPerHour = defaultVideoMBPerHour
	}
	if strings.TrimSpace(c.Video.TranscodeBitrate) == "" {
		c.Video.TranscodeBitrate = defaultTranscodeBitrate
	}
	if c.Video.StopTimeoutSeconds <= 0 {
		c.Video.StopTimeoutSeconds = defaultStopTimeout
	}
	if c.Video.TranscodeTimeoutHours <= 0 {
		c.Video.TranscodeTimeoutHours = defaultTranscodeTimeout
	}
}

func (c *Config) normalizeScheduler() {
	if c.Scheduler.HeartbeatInterval <= 0 {
		c.Scheduler.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Scheduler.RetentionDays <= 0 {
		c.Scheduler.RetentionDays = defaultRetentionDays
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
