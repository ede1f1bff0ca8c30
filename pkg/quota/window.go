package quota

import (
	"fmt"
	"strings"
	"time"
)

// Window is a calendar-aligned rate limit period.
type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
	WindowDay    Window = "day"
)

// ParseWindow maps a config string onto a Window.
func ParseWindow(s string) (Window, error) {
	switch Window(strings.ToLower(strings.TrimSpace(s))) {
	case WindowMinute:
		return WindowMinute, nil
	case WindowHour:
		return WindowHour, nil
	case WindowDay:
		return WindowDay, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownWindow, s)
}

// Valid reports whether w is one of the defined windows.
func (w Window) Valid() bool {
	switch w {
	case WindowMinute, WindowHour, WindowDay:
		return true
	}
	return false
}

// Duration returns the window length.
func (w Window) Duration() time.Duration {
	switch w {
	case WindowMinute:
		return time.Minute
	case WindowHour:
		return time.Hour
	case WindowDay:
		return 24 * time.Hour
	}
	return 0
}

// Truncate aligns t to the start of its window. Day windows align to UTC
// midnight so every instance agrees on bucket boundaries.
func (w Window) Truncate(t time.Time) time.Time {
	switch w {
	case WindowMinute:
		return t.UTC().Truncate(time.Minute)
	case WindowHour:
		return t.UTC().Truncate(time.Hour)
	case WindowDay:
		return t.UTC().Truncate(24 * time.Hour)
	}
	return t.UTC()
}

func (w Window) String() string { return string(w) }
