package capture

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"perch/internal/admission"
	"perch/internal/config"
	"perch/internal/faults"
)

const videoTimestampLayout = "2006_Jan_02_15-04-05"

// videoPlanner builds the RTSP stream-copy capture command. The camera
// stream is remuxed without re-encoding; transcoding happens in a
// separate pass after the session closes.
type videoPlanner struct {
	cfg    *config.Config
	source ConfigSource
}

func (p *videoPlanner) plan(ctx context.Context, req Request) (*plan, error) {
	address, err := p.source.GetConfig(ctx, ConfigKeyCameraAddress, "")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(address) == "" {
		return nil, faults.Wrap(faults.ErrValidation, "capture", "plan", "camera address is not configured", nil)
	}
	user, err := p.source.GetConfig(ctx, ConfigKeyCameraUser, "")
	if err != nil {
		return nil, err
	}
	pass, err := p.source.GetConfig(ctx, ConfigKeyCameraPass, "")
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(p.cfg.Paths.VideoDir, "raw")
	timestamp := time.Now().Format(videoTimestampLayout)
	output := filepath.Join(dir, fmt.Sprintf("video_%s.mp4", timestamp))

	args := []string{
		"-rtsp_transport", p.cfg.Video.RTSPTransport,
		"-i", rtspURL(address, user, pass),
		"-c", "copy",
		"-map", "0",
		"-movflags", "+faststart",
		"-t", strconv.Itoa(req.DurationSeconds),
		output,
	}

	return &plan{
		spec: CommandSpec{
			Binary:    p.cfg.FFmpegBinary(),
			Args:      args,
			WantStdin: true,
		},
		outputs:       []string{output},
		targetDir:     dir,
		forecastBytes: admission.ForecastVideoUsage(req.DurationSeconds, p.cfg.Video.EstimatedMBPerHour),
		quitBytes:     []byte("q"),
	}, nil
}

// rtspURL assembles the camera URL, escaping credentials so passwords
// with reserved characters survive the trip through ffmpeg.
func rtspURL(address, user, pass string) string {
	if user == "" {
		return "rtsp://" + address
	}
	cred := url.QueryEscape(user)
	if pass != "" {
		cred += ":" + url.QueryEscape(pass)
	}
	return "rtsp://" + cred + "@" + address
}
