package medication

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Frequency grammar. Accepted forms:
//
//	once daily | daily
//	twice daily
//	N times daily        (1 <= N <= 6, digits or once/twice/three..six)
//	every N hours        (1 <= N <= 24)
//	weekly
//	as needed | prn      (nothing is scheduled)
//
// Expansion is a pure function of (start, frequency, horizon): same inputs,
// same scheduled times, which is what makes regeneration idempotent.
type scheduleKind int

const (
	kindDaily scheduleKind = iota
	kindEveryHours
	kindWeekly
	kindAsNeeded
)

// Schedule is a parsed frequency.
type Schedule struct {
	kind         scheduleKind
	timesPerDay  int
	intervalHrs  int
}

var (
	timesDailyRe = regexp.MustCompile(`^(\d+|once|twice|three|four|five|six) times? daily$`)
	everyHoursRe = regexp.MustCompile(`^every (\d+) hours?$`)

	wordCounts = map[string]int{
		"once": 1, "twice": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	}
)

// ParseFrequency parses a frequency string into a Schedule.
func ParseFrequency(raw string) (Schedule, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.Join(strings.Fields(s), " ")

	switch s {
	case "daily", "once daily":
		return Schedule{kind: kindDaily, timesPerDay: 1}, nil
	case "twice daily":
		return Schedule{kind: kindDaily, timesPerDay: 2}, nil
	case "weekly":
		return Schedule{kind: kindWeekly}, nil
	case "as needed", "prn":
		return Schedule{kind: kindAsNeeded}, nil
	}

	if m := timesDailyRe.FindStringSubmatch(s); m != nil {
		n, ok := wordCounts[m[1]]
		if !ok {
			n, _ = strconv.Atoi(m[1])
		}
		if n < 1 || n > 6 {
			return Schedule{}, fmt.Errorf("times per day out of range: %d", n)
		}
		return Schedule{kind: kindDaily, timesPerDay: n}, nil
	}

	if m := everyHoursRe.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n < 1 || n > 24 {
			return Schedule{}, fmt.Errorf("hour interval out of range: %d", n)
		}
		return Schedule{kind: kindEveryHours, intervalHrs: n}, nil
	}

	return Schedule{}, fmt.Errorf("unrecognized frequency %q", raw)
}

// Dose slot anchors. Daily slots spread evenly across waking hours; the
// every-N-hours form runs continuously from the first morning slot.
const (
	firstSlotHour = 8
	lastSlotHour  = 22
	singleDoseHr  = 9
)

// Expand returns the scheduled times inside the window [start's midnight,
// start's midnight + horizon), in ascending order. Start is normalized to
// midnight so the same calendar day always yields the same slots. The
// interval and weekly sequences are anchored to the anchor day (the day the
// medication was created), so a generation run started on a later day
// continues the original sequence instead of re-anchoring it.
func (s Schedule) Expand(anchor, start time.Time, horizonDays int) []time.Time {
	if horizonDays <= 0 || s.kind == kindAsNeeded {
		return nil
	}

	day := midnight(start)
	end := day.AddDate(0, 0, horizonDays)
	anchorDay := midnight(anchor)

	var out []time.Time
	switch s.kind {
	case kindDaily:
		for d := day; d.Before(end); d = d.AddDate(0, 0, 1) {
			for _, hour := range dailySlots(s.timesPerDay) {
				out = append(out, d.Add(hour))
			}
		}
	case kindEveryHours:
		step := time.Duration(s.intervalHrs) * time.Hour
		t := anchorDay.Add(firstSlotHour * time.Hour)
		if skip := day.Sub(t); skip > 0 {
			// First slot of the original sequence on or after the window.
			t = t.Add((skip + step - 1) / step * step)
		}
		for ; t.Before(end); t = t.Add(step) {
			out = append(out, t)
		}
	case kindWeekly:
		t := anchorDay.Add(singleDoseHr * time.Hour)
		for t.Before(day) {
			t = t.AddDate(0, 0, 7)
		}
		for ; t.Before(end); t = t.AddDate(0, 0, 7) {
			out = append(out, t)
		}
	}
	return out
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// dailySlots spreads n doses between the first and last slot hours.
func dailySlots(n int) []time.Duration {
	if n <= 1 {
		return []time.Duration{singleDoseHr * time.Hour}
	}
	span := time.Duration(lastSlotHour-firstSlotHour) * time.Hour
	step := span / time.Duration(n-1)
	slots := make([]time.Duration, n)
	for i := range slots {
		slots[i] = firstSlotHour*time.Hour + time.Duration(i)*step
	}
	return slots
}
