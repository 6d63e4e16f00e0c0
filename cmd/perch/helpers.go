package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"perch/internal/ipc"
)

const startTimeLayout = "2006-01-02 15:04"

var weekdayNames = map[string]int{
	"sun": 0, "sunday": 0,
	"mon": 1, "monday": 1,
	"tue": 2, "tuesday": 2,
	"wed": 3, "wednesday": 3,
	"thu": 4, "thursday": 4,
	"fri": 5, "friday": 5,
	"sat": 6, "saturday": 6,
}

// parsePatternFlags assembles a recurrence pattern from CLI flags.
func parsePatternFlags(kind, at, days string, dayOfMonth int) (*ipc.Pattern, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		return nil, nil
	}

	hour, minute, err := parseTimeOfDay(at)
	if err != nil {
		return nil, err
	}

	pattern := &ipc.Pattern{Kind: kind, Hour: hour, Minute: minute}
	switch kind {
	case "daily":
	case "weekly":
		parsed, err := parseWeekdays(days)
		if err != nil {
			return nil, err
		}
		pattern.Days = parsed
	case "monthly":
		pattern.DayOfMonth = dayOfMonth
	default:
		return nil, fmt.Errorf("unknown recurrence %q (expected daily, weekly, or monthly)", kind)
	}
	return pattern, nil
}

func parseTimeOfDay(at string) (int, int, error) {
	at = strings.TrimSpace(at)
	if at == "" {
		return 0, 0, fmt.Errorf("recurring jobs require --at HH:MM")
	}
	parts := strings.SplitN(at, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time of day %q (expected HH:MM)", at)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid hour in %q", at)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid minute in %q", at)
	}
	return hour, minute, nil
}

// parseWeekdays accepts names (mon,wed) or numbers (1,3), Sunday = 0.
func parseWeekdays(days string) ([]int, error) {
	days = strings.TrimSpace(days)
	if days == "" {
		return nil, fmt.Errorf("weekly recurrence requires --days")
	}
	var parsed []int
	for _, token := range strings.Split(days, ",") {
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" {
			continue
		}
		if day, ok := weekdayNames[token]; ok {
			parsed = append(parsed, day)
			continue
		}
		day, err := strconv.Atoi(token)
		if err != nil {
			return nil, fmt.Errorf("unknown weekday %q", token)
		}
		parsed = append(parsed, day)
	}
	return parsed, nil
}

func parseStartTime(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	at, err := time.ParseInLocation(startTimeLayout, value, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid start time %q (expected %q)", value, startTimeLayout)
	}
	return &at, nil
}

func formatTime(at *time.Time) string {
	if at == nil {
		return "-"
	}
	return at.Local().Format(startTimeLayout)
}

func formatDuration(seconds int) string {
	d := time.Duration(seconds) * time.Second
	if d >= time.Hour {
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
	if d >= time.Minute {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%ds", seconds)
}

func parseJobID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid job id %q", arg)
	}
	return id, nil
}

func captureClass(video bool) string {
	if video {
		return "video"
	}
	return "audio"
}
