package schedule

import (
	"errors"
	"testing"
	"time"

	"perch/internal/faults"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.Local)
}

func TestPatternValidate(t *testing.T) {
	cases := []struct {
		name    string
		pattern *Pattern
		wantErr bool
	}{
		{name: "nil pattern", pattern: nil, wantErr: true},
		{name: "daily", pattern: &Pattern{Kind: PatternDaily, Hour: 9, Minute: 30}},
		{name: "daily with days", pattern: &Pattern{Kind: PatternDaily, Days: []int{1}, Hour: 9}, wantErr: true},
		{name: "weekly", pattern: &Pattern{Kind: PatternWeekly, Days: []int{0, 3, 6}, Hour: 7}},
		{name: "weekly empty days", pattern: &Pattern{Kind: PatternWeekly, Hour: 7}, wantErr: true},
		{name: "weekly day out of range", pattern: &Pattern{Kind: PatternWeekly, Days: []int{7}, Hour: 7}, wantErr: true},
		{name: "monthly", pattern: &Pattern{Kind: PatternMonthly, DayOfMonth: 31, Hour: 23, Minute: 59}},
		{name: "monthly day zero", pattern: &Pattern{Kind: PatternMonthly, Hour: 1}, wantErr: true},
		{name: "monthly day 32", pattern: &Pattern{Kind: PatternMonthly, DayOfMonth: 32, Hour: 1}, wantErr: true},
		{name: "unknown kind", pattern: &Pattern{Kind: "fortnightly", Hour: 1}, wantErr: true},
		{name: "hour out of range", pattern: &Pattern{Kind: PatternDaily, Hour: 24}, wantErr: true},
		{name: "minute out of range", pattern: &Pattern{Kind: PatternDaily, Minute: 60}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.pattern.Validate()
			if tc.wantErr {
				if !errors.Is(err, faults.ErrValidation) {
					t.Fatalf("got %v, want validation error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
		})
	}
}

func TestOccursOn(t *testing.T) {
	daily := &Pattern{Kind: PatternDaily, Hour: 9}
	if !daily.OccursOn(date(2026, time.March, 15)) {
		t.Fatal("daily pattern must occur every day")
	}

	// 2026-03-15 is a Sunday.
	weekly := &Pattern{Kind: PatternWeekly, Days: []int{0, 2}, Hour: 9}
	if !weekly.OccursOn(date(2026, time.March, 15)) {
		t.Fatal("weekly pattern should occur on Sunday (day 0)")
	}
	if weekly.OccursOn(date(2026, time.March, 16)) {
		t.Fatal("weekly pattern should not occur on Monday")
	}
	if !weekly.OccursOn(date(2026, time.March, 17)) {
		t.Fatal("weekly pattern should occur on Tuesday (day 2)")
	}

	monthly := &Pattern{Kind: PatternMonthly, DayOfMonth: 15, Hour: 9}
	if !monthly.OccursOn(date(2026, time.March, 15)) {
		t.Fatal("monthly pattern should occur on its day")
	}
	if monthly.OccursOn(date(2026, time.March, 14)) {
		t.Fatal("monthly pattern should not occur on other days")
	}
}

func TestNextFireTime(t *testing.T) {
	daily := &Pattern{Kind: PatternDaily, Hour: 9, Minute: 30}

	before := time.Date(2026, time.March, 15, 8, 0, 0, 0, time.Local)
	got := daily.NextFireTime(before)
	want := time.Date(2026, time.March, 15, 9, 30, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Fatalf("daily before time-of-day: got %v, want %v", got, want)
	}

	after := time.Date(2026, time.March, 15, 10, 0, 0, 0, time.Local)
	got = daily.NextFireTime(after)
	want = time.Date(2026, time.March, 16, 9, 30, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Fatalf("daily after time-of-day: got %v, want %v", got, want)
	}
}

func TestNextFireTimeWeekly(t *testing.T) {
	// Fires Mondays and Fridays at 06:00. From a Sunday evening the next
	// fire is Monday morning.
	weekly := &Pattern{Kind: PatternWeekly, Days: []int{1, 5}, Hour: 6}
	from := time.Date(2026, time.March, 15, 20, 0, 0, 0, time.Local)
	got := weekly.NextFireTime(from)
	want := time.Date(2026, time.March, 16, 6, 0, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Fatalf("weekly: got %v, want %v", got, want)
	}
}

func TestNextFireTimeMonthlySkipsShortMonths(t *testing.T) {
	monthly := &Pattern{Kind: PatternMonthly, DayOfMonth: 31, Hour: 12}

	// From February 1st the next day-31 is March 31st: February has no
	// 31st and the pattern must not roll over to the 28th.
	from := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.Local)
	got := monthly.NextFireTime(from)
	want := time.Date(2026, time.March, 31, 12, 0, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Fatalf("monthly day 31 from February: got %v, want %v", got, want)
	}
}

func TestPatternRoundTrip(t *testing.T) {
	original := &Pattern{Kind: PatternWeekly, Days: []int{1, 3, 5}, Hour: 22, Minute: 15}
	encoded, err := encodePattern(original)
	if err != nil {
		t.Fatalf("encodePattern: %v", err)
	}
	decoded, err := decodePattern(encoded)
	if err != nil {
		t.Fatalf("decodePattern: %v", err)
	}
	if decoded.Kind != original.Kind || decoded.Hour != original.Hour || decoded.Minute != original.Minute {
		t.Fatalf("round trip mismatch: %+v vs %+v", decoded, original)
	}
	if len(decoded.Days) != 3 || decoded.Days[1] != 3 {
		t.Fatalf("days lost in round trip: %v", decoded.Days)
	}
}

func TestDescribe(t *testing.T) {
	daily := &Pattern{Kind: PatternDaily, Hour: 9, Minute: 5}
	if desc := daily.Describe(); desc == "" {
		t.Fatal("Describe returned empty string")
	}
}
