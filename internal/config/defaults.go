package config

const (
	defaultRecordingsDir      = "~/.local/share/perch/recordings"
	defaultVideoDir           = "/mnt/usb_recorder"
	defaultLogDir             = "~/.local/share/perch/logs"
	defaultAudioDevice        = "hw:1"
	defaultSampleRate         = 48000
	defaultChannels           = 2
	defaultMaxDuration        = 14400
	defaultStopTimeout        = 10
	defaultRTSPTransport      = "tcp"
	defaultVideoMBPerHour     = 2000
	defaultTranscodeBitrate   = "4M"
	defaultTranscodeTimeout   = 6
	defaultHeartbeatInterval  = 30
	defaultRetentionDays      = 90
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			RecordingsDir: defaultRecordingsDir,
			VideoDir:      defaultVideoDir,
			LogDir:        defaultLogDir,
		},
		Audio: Audio{
			Device:             defaultAudioDevice,
			SampleRate:         defaultSampleRate,
			Channels:           defaultChannels,
			MaxDurationSeconds: defaultMaxDuration,
			StopTimeoutSeconds: defaultStopTimeout,
		},
		Video: Video{
			Enabled:               false,
			RTSPTransport:         defaultRTSPTransport,
			EstimatedMBPerHour:    defaultVideoMBPerHour,
			TranscodeBitrate:      defaultTranscodeBitrate,
			TranscodeEnabled:      true,
			DeleteRawAfterEncode:  true,
			StopTimeoutSeconds:    defaultStopTimeout,
			TranscodeTimeoutHours: defaultTranscodeTimeout,
		},
		Scheduler: Scheduler{
			HeartbeatInterval: defaultHeartbeatInterval,
			RetentionDays:     defaultRetentionDays,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
