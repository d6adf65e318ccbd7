// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package admission

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time within a day, stored as minutes since
// midnight.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM" into a TimeOfDay.
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	hourPart, minutePart, found := strings.Cut(value, ":")
	if !found {
		return 0, fmt.Errorf("admission: time of day %q: want HH:MM", value)
	}
	hour, err := strconv.Atoi(hourPart)
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("admission: time of day %q: bad hour", value)
	}
	minute, err := strconv.Atoi(minutePart)
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("admission: time of day %q: bad minute", value)
	}
	return TimeOfDay(hour*60 + minute), nil
}

// String renders the time as HH:MM.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Window is an inclusive time-of-day range in UTC. End < Start means
// the window wraps midnight (e.g. 22:00–06:00).
type Window struct {
	Start TimeOfDay
	End   TimeOfDay
}

// ParseWindow parses "HH:MM-HH:MM" into a Window.
func ParseWindow(value string) (Window, error) {
	startPart, endPart, found := strings.Cut(value, "-")
	if !found {
		return Window{}, fmt.Errorf("admission: window %q: want HH:MM-HH:MM", value)
	}
	start, err := ParseTimeOfDay(strings.TrimSpace(startPart))
	if err != nil {
		return Window{}, err
	}
	end, err := ParseTimeOfDay(strings.TrimSpace(endPart))
	if err != nil {
		return Window{}, err
	}
	return Window{Start: start, End: end}, nil
}

// Contains reports whether the UTC time-of-day of now falls within
// the window, treating End < Start as a wrap across midnight.
func (w Window) Contains(now time.Time) bool {
	utc := now.UTC()
	current := TimeOfDay(utc.Hour()*60 + utc.Minute())
	if w.Start <= w.End {
		return current >= w.Start && current <= w.End
	}
	return current >= w.Start || current <= w.End
}

// String renders the window as "HH:MM-HH:MM".
func (w Window) String() string {
	return w.Start.String() + "-" + w.End.String()
}
