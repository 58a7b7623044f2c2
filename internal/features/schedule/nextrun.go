package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// CronSpec compiles a schedule into a robfig expression carrying its
// timezone, e.g. "CRON_TZ=Europe/Berlin 30 8 * * 1".
func CronSpec(t ScheduleType, c Config) (string, error) {
	tz := c.Timezone
	if tz == "" {
		tz = "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return "", fmt.Errorf("unknown timezone %q", c.Timezone)
	}

	var expr string
	switch t {
	case TypeCustomCron:
		expr = strings.TrimSpace(c.CronExpression)
		if expr == "" {
			return "", fmt.Errorf("cron expression is required")
		}
		if strings.HasPrefix(expr, "CRON_TZ=") || strings.HasPrefix(expr, "TZ=") {
			return "", fmt.Errorf("set the timezone field instead of a TZ prefix")
		}
	case TypeDaily, TypeWeekly, TypeMonthly:
		hour, minute, err := parseTimeOfDay(c.TimeOfDay)
		if err != nil {
			return "", err
		}
		switch t {
		case TypeDaily:
			expr = fmt.Sprintf("%d %d * * *", minute, hour)
		case TypeWeekly:
			if c.Weekday == nil || *c.Weekday < 0 || *c.Weekday > 6 {
				return "", fmt.Errorf("weekday must be between 0 (Sunday) and 6")
			}
			expr = fmt.Sprintf("%d %d * * %d", minute, hour, *c.Weekday)
		case TypeMonthly:
			if c.DayOfMonth < 1 || c.DayOfMonth > 31 {
				return "", fmt.Errorf("day of month must be between 1 and 31")
			}
			expr = fmt.Sprintf("%d %d %d * *", minute, hour, c.DayOfMonth)
		}
	default:
		return "", fmt.Errorf("unknown schedule type %q", t)
	}
	return "CRON_TZ=" + tz + " " + expr, nil
}

func parseTimeOfDay(s string) (int, int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, 0, fmt.Errorf("time of day must be HH:MM")
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("time of day must be HH:MM")
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time of day must be HH:MM")
	}
	return hour, minute, nil
}

func parse(s *Schedule) (cron.Schedule, error) {
	spec, err := CronSpec(s.ScheduleType, s.ScheduleConfig)
	if err != nil {
		return nil, err
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return sched, nil
}

// NextRun is the first fire time strictly after the given instant.
func NextRun(s *Schedule, after time.Time) (time.Time, error) {
	sched, err := parse(s)
	if err != nil {
		return time.Time{}, err
	}
	next := sched.Next(after)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("schedule never fires")
	}
	return next.UTC(), nil
}

// Advance moves past a fired nextRunAt: the first fire time after the
// previous one that is also strictly after now. Missed slots are skipped,
// not replayed.
func Advance(s *Schedule, now time.Time) (time.Time, error) {
	if s.NextRunAt == nil {
		return NextRun(s, now)
	}
	sched, err := parse(s)
	if err != nil {
		return time.Time{}, err
	}
	next := sched.Next(*s.NextRunAt)
	for !next.IsZero() && !next.After(now) {
		next = sched.Next(next)
	}
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("schedule never fires")
	}
	return next.UTC(), nil
}
