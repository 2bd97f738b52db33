package doctor

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// TimeLabelLayout is the wall-clock format appointments are booked in.
const TimeLabelLayout = "03:04 PM"

// TimeLabel is a canonical "hh:mm AM|PM" slot label.
type TimeLabel string

// ParseTimeLabel accepts "8:00 am", "08:00 AM" and similar spellings and
// returns the canonical label.
func ParseTimeLabel(s string) (TimeLabel, error) {
	s = strings.ToUpper(strings.Join(strings.Fields(s), " "))
	for _, layout := range []string{TimeLabelLayout, "3:04 PM"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeLabel(t.Format(TimeLabelLayout)), nil
		}
	}
	return "", fmt.Errorf("invalid time %q, expected hh:mm AM/PM", s)
}

func MustTimeLabel(s string) TimeLabel {
	l, err := ParseTimeLabel(s)
	if err != nil {
		panic(err)
	}
	return l
}

func (l TimeLabel) String() string { return string(l) }

// Minutes is the number of minutes since midnight.
func (l TimeLabel) Minutes() int {
	t, err := time.Parse(TimeLabelLayout, string(l))
	if err != nil {
		return -1
	}
	return t.Hour()*60 + t.Minute()
}

func (l *TimeLabel) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*l = ""
		return nil
	}
	parsed, err := ParseTimeLabel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// WorkingHours is the ordered set of labels a doctor accepts bookings at.
type WorkingHours []TimeLabel

// DefaultWorkingHours are hourly slots from 08:00 AM, the last one
// starting at 05:00 PM.
func DefaultWorkingHours() WorkingHours {
	wh := make(WorkingHours, 0, 10)
	for h := 8; h < 18; h++ {
		wh = append(wh, TimeLabel(time.Date(0, 1, 1, h, 0, 0, 0, time.UTC).Format(TimeLabelLayout)))
	}
	return wh
}

// ParseWorkingHours canonicalizes, de-duplicates and sorts labels.
func ParseWorkingHours(labels []string) (WorkingHours, error) {
	seen := make(map[TimeLabel]bool, len(labels))
	wh := make(WorkingHours, 0, len(labels))
	for _, s := range labels {
		l, err := ParseTimeLabel(s)
		if err != nil {
			return nil, err
		}
		if seen[l] {
			continue
		}
		seen[l] = true
		wh = append(wh, l)
	}
	sort.Slice(wh, func(i, j int) bool { return wh[i].Minutes() < wh[j].Minutes() })
	return wh, nil
}

func (wh WorkingHours) Contains(l TimeLabel) bool {
	for _, h := range wh {
		if h == l {
			return true
		}
	}
	return false
}

func (wh WorkingHours) Strings() []string {
	out := make([]string, len(wh))
	for i, l := range wh {
		out[i] = string(l)
	}
	return out
}

// WorkingDays is the set of weekdays a doctor sees patients.
type WorkingDays []time.Weekday

func DefaultWorkingDays() WorkingDays {
	return WorkingDays{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
}

func (wd WorkingDays) Contains(d time.Weekday) bool {
	for _, w := range wd {
		if w == d {
			return true
		}
	}
	return false
}

func (wd WorkingDays) Ints() []int16 {
	out := make([]int16, len(wd))
	for i, d := range wd {
		out[i] = int16(d)
	}
	return out
}

func workingDaysFromInts(in []int16) WorkingDays {
	out := make(WorkingDays, 0, len(in))
	for _, d := range in {
		if d >= 0 && d <= 6 {
			out = append(out, time.Weekday(d))
		}
	}
	return out
}
