package admission

import (
	"errors"
	"math"
	"testing"

	"perch/internal/faults"
)

func TestForecastDiskUsage(t *testing.T) {
	// 1 hour, 2 channels, 48 kHz 16-bit: 3600 x 96000 x 2 x 1.1.
	got := ForecastDiskUsage(3600, 2, 48000*2)
	want := int64(math.Round(3600 * 96000 * 1.1 * 2))
	if diff := got - want; diff > 1 || diff < -1 {
		t.Fatalf("ForecastDiskUsage = %d, want %d", got, want)
	}

	if ForecastDiskUsage(0, 2, 96000) != 0 {
		t.Fatal("zero duration should forecast zero bytes")
	}
	if ForecastDiskUsage(3600, 0, 96000) != 0 {
		t.Fatal("zero channels should forecast zero bytes")
	}
}

func TestForecastVideoUsage(t *testing.T) {
	got := ForecastVideoUsage(3600, 2000)
	want := int64(2000 * 1024 * 1024 * 1.1)
	if diff := got - want; diff > 1 || diff < -1 {
		t.Fatalf("ForecastVideoUsage = %d, want %d", got, want)
	}
	if ForecastVideoUsage(1800, 0) != 0 {
		t.Fatal("zero rate should forecast zero bytes")
	}
}

func TestCheckDiskSpaceMultiplier(t *testing.T) {
	dir := t.TempDir()
	ok, available, required, err := CheckDiskSpace(1024, dir)
	if err != nil {
		t.Fatalf("CheckDiskSpace: %v", err)
	}
	if required != 1024*AdmissionMultiplier {
		t.Fatalf("required = %d, want %d", required, 1024*AdmissionMultiplier)
	}
	if !ok {
		t.Fatalf("1 KiB should be admitted on a temp filesystem (available %d)", available)
	}

	// A requirement one byte beyond half the free space must fail after
	// the 2x multiplier.
	over := available/AdmissionMultiplier + 1
	ok, _, _, err = CheckDiskSpace(over, dir)
	if err != nil {
		t.Fatalf("CheckDiskSpace: %v", err)
	}
	if ok {
		t.Fatalf("forecast %d should not fit after %dx margin with %d available", over, AdmissionMultiplier, available)
	}
}

func TestRequireDiskSpace(t *testing.T) {
	dir := t.TempDir()
	if err := RequireDiskSpace(1024, dir); err != nil {
		t.Fatalf("RequireDiskSpace small: %v", err)
	}

	err := RequireDiskSpace(int64(1)<<60, dir)
	if !errors.Is(err, faults.ErrDiskSpace) {
		t.Fatalf("huge requirement: got %v, want disk space error", err)
	}
}

func TestGetStorageInfo(t *testing.T) {
	info, err := GetStorageInfo(t.TempDir(), 660)
	if err != nil {
		t.Fatalf("GetStorageInfo: %v", err)
	}
	if info.TotalBytes <= 0 || info.FreeBytes <= 0 {
		t.Fatalf("implausible storage info: %+v", info)
	}
	if info.TotalBytes < info.FreeBytes {
		t.Fatalf("free %d exceeds total %d", info.FreeBytes, info.TotalBytes)
	}
	if info.HoursRemaining <= 0 {
		t.Fatalf("expected an hours estimate, got %f", info.HoursRemaining)
	}
}

func TestValidateStoragePath(t *testing.T) {
	if err := ValidateStoragePath(t.TempDir()); err != nil {
		t.Fatalf("writable temp dir rejected: %v", err)
	}
	if err := ValidateStoragePath("/does/not/exist"); err == nil {
		t.Fatal("missing path accepted")
	}
}
