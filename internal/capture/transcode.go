package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"perch/internal/config"
	"perch/internal/faults"
	"perch/internal/logging"
)

// durationTolerance is the allowed gap between raw and transcoded
// durations before the encode is considered truncated.
const durationTolerance = 5 * time.Second

var timeProgressPattern = regexp.MustCompile(`time=(\d+):(\d{2}):(\d{2})`)

// Transcoder re-encodes raw camera captures with the hardware H.264
// encoder and verifies the result against the source before the raw
// file is released.
type Transcoder struct {
	cfg      *config.Config
	launcher Launcher
	logger   *slog.Logger
	probe    func(ctx context.Context, path string) (time.Duration, error)
}

func NewTranscoder(cfg *config.Config, launcher Launcher, logger *slog.Logger) *Transcoder {
	t := &Transcoder{
		cfg:      cfg,
		launcher: launcher,
		logger:   logging.NewComponentLogger(logger, "transcoder"),
	}
	t.probe = t.probeDuration
	return t
}

// ProcessOutputs transcodes each raw capture in sequence. Shaped to
// plug directly into a supervisor post-process hook; errors are logged,
// not returned, because nothing upstream can retry them.
func (t *Transcoder) ProcessOutputs(outputs []string) {
	if !t.cfg.Video.TranscodeEnabled {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(t.cfg.Video.TranscodeTimeoutHours)*time.Hour)
	defer cancel()
	for _, raw := range outputs {
		if err := t.Transcode(ctx, raw); err != nil {
			t.logger.Error("transcode failed",
				logging.String("path", raw),
				logging.Error(err),
			)
		}
	}
}

// Transcode encodes rawPath into the final video directory and, when
// verification passes and deletion is enabled, removes the raw file.
func (t *Transcoder) Transcode(ctx context.Context, rawPath string) error {
	finalPath := filepath.Join(t.cfg.Paths.VideoDir, filepath.Base(rawPath))
	if finalPath == rawPath {
		return faults.Wrap(faults.ErrValidation, "transcoder", "transcode",
			"raw and final paths collide: "+rawPath, nil)
	}

	rawDuration, err := t.probe(ctx, rawPath)
	if err != nil {
		return faults.Wrap(faults.ErrProcess, "transcoder", "probe", "inspect raw capture", err)
	}

	t.logger.Info("transcode starting",
		logging.String("raw", rawPath),
		logging.String("final", finalPath),
		logging.Duration("source_duration", rawDuration),
	)

	started := time.Now()
	lastReport := started
	spec := CommandSpec{
		Binary: t.cfg.FFmpegBinary(),
		Args: []string{
			"-y",
			"-i", rawPath,
			"-c:v", "h264_v4l2m2m",
			"-b:v", t.cfg.Video.TranscodeBitrate,
			"-pix_fmt", "yuv420p",
			"-c:a", "copy",
			"-movflags", "+faststart",
			finalPath,
		},
		OnStderrLine: func(line string) {
			progress, ok := parseProgress(line)
			if !ok || time.Since(lastReport) < 30*time.Second {
				return
			}
			lastReport = time.Now()
			percent := 0.0
			if rawDuration > 0 {
				percent = float64(progress) / float64(rawDuration) * 100
			}
			t.logger.Info("transcode progress",
				logging.String("raw", rawPath),
				logging.Duration("encoded", progress),
				logging.Float64("percent", percent),
			)
		},
	}

	handle, err := t.launcher.Launch(ctx, spec)
	if err != nil {
		return faults.Wrap(faults.ErrProcess, "transcoder", "transcode", "launch encoder", err)
	}
	if err := waitOrCancel(ctx, handle); err != nil {
		os.Remove(finalPath)
		return faults.Wrap(faults.ErrProcess, "transcoder", "transcode",
			tailMessage(handle.StderrTail()), err)
	}

	finalDuration, err := t.probe(ctx, finalPath)
	if err != nil {
		os.Remove(finalPath)
		return faults.Wrap(faults.ErrProcess, "transcoder", "verify", "inspect transcoded file", err)
	}
	if gap := rawDuration - finalDuration; gap > durationTolerance || gap < -durationTolerance {
		os.Remove(finalPath)
		return faults.Wrap(faults.ErrProcess, "transcoder", "verify",
			fmt.Sprintf("duration mismatch: raw %s vs transcoded %s", rawDuration, finalDuration), nil)
	}

	t.logger.Info("transcode finished",
		logging.String("final", finalPath),
		logging.Duration("elapsed", time.Since(started)),
	)

	if t.cfg.Video.DeleteRawAfterEncode {
		if err := os.Remove(rawPath); err != nil {
			t.logger.Warn("failed to remove raw capture",
				logging.String("path", rawPath),
				logging.Error(err),
			)
		}
	}
	return nil
}

// waitOrCancel waits for the encoder, killing it when the context
// expires so a stalled hardware encoder cannot pin the pipeline.
func waitOrCancel(ctx context.Context, handle Handle) error {
	select {
	case <-handle.Done():
		return handle.Wait()
	case <-ctx.Done():
		handle.Kill()
		<-handle.Done()
		return ctx.Err()
	}
}

// probeDuration reads the container duration with ffprobe.
func (t *Transcoder) probeDuration(ctx context.Context, path string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, t.cfg.FFprobeBinary(),
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// parseProgress extracts the encoded position from an ffmpeg stderr
// status line.
func parseProgress(line string) (time.Duration, bool) {
	match := timeProgressPattern.FindStringSubmatch(line)
	if match == nil {
		return 0, false
	}
	hours, _ := strconv.Atoi(match[1])
	minutes, _ := strconv.Atoi(match[2])
	seconds, _ := strconv.Atoi(match[3])
	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second, true
}
