package admission

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"perch/internal/faults"
)

const (
	// SafetyMargin inflates the linear size forecast to cover container
	// overhead.
	SafetyMargin = 1.1
	// AdmissionMultiplier is applied on top of the forecast before a
	// capture is admitted: both target files must coexist with the
	// filesystem's own overhead.
	AdmissionMultiplier = 2
)

// ForecastDiskUsage estimates the total on-disk size of a capture:
// duration x bytes-per-channel-second x channel count, inflated by the
// safety margin. For 16-bit PCM, bytesPerChannelSecond is sampleRate x 2.
func ForecastDiskUsage(seconds, channels int, bytesPerChannelSecond int64) int64 {
	if seconds <= 0 || channels <= 0 || bytesPerChannelSecond <= 0 {
		return 0
	}
	perChannel := float64(seconds) * float64(bytesPerChannelSecond) * SafetyMargin
	return int64(perChannel * float64(channels))
}

// ForecastVideoUsage estimates the raw stream-copy size of an RTSP capture
// from an MB-per-hour rate, inflated by the safety margin.
func ForecastVideoUsage(seconds, mbPerHour int) int64 {
	if seconds <= 0 || mbPerHour <= 0 {
		return 0
	}
	bytes := float64(seconds) / 3600 * float64(mbPerHour) * 1024 * 1024 * SafetyMargin
	return int64(bytes)
}

// CheckDiskSpace reports whether targetDir has room for requiredBytes
// after the 2x admission multiplier. It returns the available bytes and
// the multiplied requirement regardless of outcome.
func CheckDiskSpace(requiredBytes int64, targetDir string) (bool, int64, int64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(targetDir, &stat); err != nil {
		return false, 0, 0, fmt.Errorf("statfs %s: %w", targetDir, err)
	}
	available := int64(stat.Bavail) * stat.Bsize
	requiredWithMargin := requiredBytes * AdmissionMultiplier
	return available >= requiredWithMargin, available, requiredWithMargin, nil
}

// RequireDiskSpace runs CheckDiskSpace and converts a shortfall into an
// ErrDiskSpace admission failure.
func RequireDiskSpace(requiredBytes int64, targetDir string) error {
	ok, available, required, err := CheckDiskSpace(requiredBytes, targetDir)
	if err != nil {
		return faults.Wrap(faults.ErrDiskSpace, "admission", "disk", "", err)
	}
	if !ok {
		return faults.Wrap(faults.ErrDiskSpace, "admission", "disk",
			fmt.Sprintf("available %s, required %s (forecast %s with %dx margin)",
				humanize.IBytes(uint64(available)),
				humanize.IBytes(uint64(required)),
				humanize.IBytes(uint64(requiredBytes)),
				AdmissionMultiplier), nil)
	}
	return nil
}

// StorageInfo summarizes a storage volume for status output.
type StorageInfo struct {
	Path           string
	TotalBytes     int64
	UsedBytes      int64
	FreeBytes      int64
	PercentUsed    float64
	HoursRemaining float64
}

// GetStorageInfo reports disk usage for a storage path. hoursEstimateMB is
// the consumption rate used to estimate remaining capture hours; zero
// disables the estimate.
func GetStorageInfo(path string, hoursEstimateMB int) (StorageInfo, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return StorageInfo{}, fmt.Errorf("statfs %s: %w", path, err)
	}
	total := int64(stat.Blocks) * stat.Bsize
	free := int64(stat.Bavail) * stat.Bsize
	used := total - free
	info := StorageInfo{
		Path:       path,
		TotalBytes: total,
		UsedBytes:  used,
		FreeBytes:  free,
	}
	if total > 0 {
		info.PercentUsed = float64(used) / float64(total) * 100
	}
	if hoursEstimateMB > 0 {
		info.HoursRemaining = float64(free) / (1024 * 1024) / float64(hoursEstimateMB)
	}
	return info, nil
}
