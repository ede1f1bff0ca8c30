package quota

import (
	"errors"
	"testing"
	"time"
)

func TestParseWindow(t *testing.T) {
	tests := []struct {
		in      string
		want    Window
		wantErr bool
	}{
		{"minute", WindowMinute, false},
		{"HOUR", WindowHour, false},
		{" day ", WindowDay, false},
		{"week", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseWindow(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseWindow(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err != nil {
			if !errors.Is(err, ErrUnknownWindow) {
				t.Errorf("ParseWindow(%q) error = %v, want ErrUnknownWindow", tt.in, err)
			}
			continue
		}
		if got != tt.want {
			t.Errorf("ParseWindow(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWindow_Truncate(t *testing.T) {
	at := time.Date(2025, 3, 14, 15, 9, 26, 535897, time.UTC)

	tests := []struct {
		window Window
		want   time.Time
	}{
		{WindowMinute, time.Date(2025, 3, 14, 15, 9, 0, 0, time.UTC)},
		{WindowHour, time.Date(2025, 3, 14, 15, 0, 0, 0, time.UTC)},
		{WindowDay, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		if got := tt.window.Truncate(at); !got.Equal(tt.want) {
			t.Errorf("%s.Truncate() = %v, want %v", tt.window, got, tt.want)
		}
	}
}

func TestWindow_Truncate_NonUTC(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	local := time.Date(2025, 3, 14, 2, 30, 0, 0, loc)

	// 02:30 UTC+5 is 21:30 the previous day in UTC; day buckets align on UTC.
	want := time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC)
	if got := WindowDay.Truncate(local); !got.Equal(want) {
		t.Errorf("Truncate() = %v, want %v", got, want)
	}
}

func TestWindow_Duration(t *testing.T) {
	if WindowMinute.Duration() != time.Minute {
		t.Error("minute duration wrong")
	}
	if WindowHour.Duration() != time.Hour {
		t.Error("hour duration wrong")
	}
	if WindowDay.Duration() != 24*time.Hour {
		t.Error("day duration wrong")
	}
	if Window("week").Duration() != 0 {
		t.Error("unknown window should have zero duration")
	}
}
