package main

import (
	"reflect"
	"testing"
	"time"
)

func TestParsePatternFlags(t *testing.T) {
	pattern, err := parsePatternFlags("daily", "09:30", "", 0)
	if err != nil {
		t.Fatalf("daily: %v", err)
	}
	if pattern.Kind != "daily" || pattern.Hour != 9 || pattern.Minute != 30 {
		t.Fatalf("daily pattern = %+v", pattern)
	}

	pattern, err = parsePatternFlags("weekly", "06:00", "mon,Wed,5", 0)
	if err != nil {
		t.Fatalf("weekly: %v", err)
	}
	if !reflect.DeepEqual(pattern.Days, []int{1, 3, 5}) {
		t.Fatalf("weekly days = %v", pattern.Days)
	}

	pattern, err = parsePatternFlags("monthly", "12:00", "", 15)
	if err != nil {
		t.Fatalf("monthly: %v", err)
	}
	if pattern.DayOfMonth != 15 {
		t.Fatalf("monthly day = %d", pattern.DayOfMonth)
	}

	if pattern, err := parsePatternFlags("", "", "", 0); err != nil || pattern != nil {
		t.Fatalf("empty kind: %+v, %v", pattern, err)
	}
	if _, err := parsePatternFlags("yearly", "09:00", "", 0); err == nil {
		t.Fatal("unknown kind accepted")
	}
	if _, err := parsePatternFlags("daily", "", "", 0); err == nil {
		t.Fatal("missing --at accepted")
	}
	if _, err := parsePatternFlags("weekly", "09:00", "", 0); err == nil {
		t.Fatal("weekly without --days accepted")
	}
	if _, err := parsePatternFlags("weekly", "09:00", "noday", 0); err == nil {
		t.Fatal("unknown weekday accepted")
	}
	if _, err := parsePatternFlags("daily", "nine", "", 0); err == nil {
		t.Fatal("malformed time of day accepted")
	}
}

func TestParseStartTime(t *testing.T) {
	at, err := parseStartTime("2026-09-01 06:30")
	if err != nil {
		t.Fatalf("parseStartTime: %v", err)
	}
	want := time.Date(2026, 9, 1, 6, 30, 0, 0, time.Local)
	if at == nil || !at.Equal(want) {
		t.Fatalf("got %v, want %v", at, want)
	}

	if at, err := parseStartTime("  "); err != nil || at != nil {
		t.Fatalf("blank start: %v, %v", at, err)
	}
	if _, err := parseStartTime("tomorrow"); err == nil {
		t.Fatal("malformed start accepted")
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		seconds int
		want    string
	}{
		{45, "45s"},
		{90, "1m30s"},
		{600, "10m00s"},
		{3600, "1h00m"},
		{5400, "1h30m"},
		{86400, "24h00m"},
	}
	for _, tc := range cases {
		if got := formatDuration(tc.seconds); got != tc.want {
			t.Errorf("formatDuration(%d) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}

func TestParseJobID(t *testing.T) {
	id, err := parseJobID(" 42 ")
	if err != nil || id != 42 {
		t.Fatalf("got %d, %v", id, err)
	}
	for _, bad := range []string{"", "abc", "0", "-3"} {
		if _, err := parseJobID(bad); err == nil {
			t.Errorf("parseJobID(%q) accepted", bad)
		}
	}
}

func TestCaptureClass(t *testing.T) {
	if captureClass(false) != "audio" || captureClass(true) != "video" {
		t.Fatal("capture class mapping broken")
	}
}
