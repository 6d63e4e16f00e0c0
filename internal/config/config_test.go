package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaultsWhenMissing(t *testing.T) {
	cfg, _, exists, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatal("reported a file that does not exist")
	}
	if cfg.Audio.Device != defaultAudioDevice || cfg.Audio.SampleRate != defaultSampleRate {
		t.Fatalf("audio defaults = %+v", cfg.Audio)
	}
	if cfg.Scheduler.RetentionDays != defaultRetentionDays {
		t.Fatalf("retention = %d", cfg.Scheduler.RetentionDays)
	}
	if !filepath.IsAbs(cfg.Paths.RecordingsDir) {
		t.Fatalf("recordings dir not expanded: %q", cfg.Paths.RecordingsDir)
	}
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
recordings_dir = "` + filepath.Join(dir, "rec") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[audio]
device = "hw:3,1"
sample_rate = 96000

[logging]
format = "JSON"
level = "Debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("exists=%v resolved=%q", exists, resolved)
	}
	if cfg.Audio.Device != "hw:3,1" || cfg.Audio.SampleRate != 96000 {
		t.Fatalf("audio overrides lost: %+v", cfg.Audio)
	}
	// Case is normalized before validation.
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	// Untouched sections keep their defaults.
	if cfg.Video.TranscodeBitrate != defaultTranscodeBitrate {
		t.Fatalf("bitrate = %q", cfg.Video.TranscodeBitrate)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{
			"mono capture",
			"[audio]\nchannels = 1\n",
			"audio.channels",
		},
		{
			"sample rate out of range",
			"[audio]\nsample_rate = 1000000\n",
			"audio.sample_rate",
		},
		{
			"bad transport",
			"[video]\nenabled = true\nrtsp_transport = \"http\"\n",
			"rtsp_transport",
		},
		{
			"bad log level",
			"[logging]\nlevel = \"verbose\"\n",
			"logging.level",
		},
	}
	for _, tc := range cases {
		path := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(path, []byte(tc.content), 0o644); err != nil {
			t.Fatalf("%s: write: %v", tc.name, err)
		}
		_, _, _, err := Load(path)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: got %v, want error mentioning %q", tc.name, err, tc.want)
		}
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if _, _, exists, err := Load(path); err != nil || !exists {
		t.Fatalf("sample config does not load: exists=%v err=%v", exists, err)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}
	got, err := ExpandPath("~/recordings")
	if err != nil {
		t.Fatalf("ExpandPath: %v", err)
	}
	if got != filepath.Join(home, "recordings") {
		t.Fatalf("got %q", got)
	}

	abs, err := ExpandPath("/var/log/perch")
	if err != nil || abs != "/var/log/perch" {
		t.Fatalf("absolute path mangled: %q, %v", abs, err)
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Paths.RecordingsDir = filepath.Join(dir, "rec")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	cfg.Paths.VideoDir = filepath.Join(dir, "video")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, path := range []string{cfg.Paths.RecordingsDir, cfg.Paths.LogDir, cfg.Paths.VideoDir} {
		if info, err := os.Stat(path); err != nil || !info.IsDir() {
			t.Fatalf("directory %q missing: %v", path, err)
		}
	}
}
