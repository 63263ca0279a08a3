package convo

import (
	"testing"
	"time"
)

var testToday = time.Date(2025, 8, 20, 15, 30, 0, 0, time.UTC)

func TestParseSowingDate(t *testing.T) {
	cases := []struct {
		input string
		want  time.Time
		ok    bool
	}{
		{"hoy", time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC), true},
		{"today", time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC), true},
		{"hace 10 dias", time.Date(2025, 8, 10, 0, 0, 0, 0, time.UTC), true},
		{"10 days ago", time.Date(2025, 8, 10, 0, 0, 0, 0, time.UTC), true},
		{"hace 2 semanas", time.Date(2025, 8, 6, 0, 0, 0, 0, time.UTC), true},
		{"15/8/2025", time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC), true},
		{"abc", time.Time{}, false},
		{"40/13/2025", time.Time{}, false},
		{"15/8", time.Time{}, false},
		{"hace muchos dias", time.Time{}, false},
		{"hace 3 meses", time.Time{}, false},
	}

	for _, tc := range cases {
		got, ok := parseSowingDate(tc.input, testToday)
		if ok != tc.ok {
			t.Errorf("parseSowingDate(%q) ok = %v, want %v", tc.input, ok, tc.ok)
			continue
		}
		if ok && !got.Equal(tc.want) {
			t.Errorf("parseSowingDate(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestElapsedDays(t *testing.T) {
	sowing := time.Date(2025, 8, 10, 0, 0, 0, 0, time.UTC)
	if got := elapsedDays(sowing, testToday); got != 10 {
		t.Fatalf("expected 10 elapsed days, got %d", got)
	}
	if got := elapsedDays(testToday, testToday); got != 0 {
		t.Fatalf("expected 0 elapsed days for today, got %d", got)
	}
}

func TestElapsedDaysAcrossOffsetChange(t *testing.T) {
	// Spring-forward: the two local midnights are only 23h apart.
	sowing := time.Date(2025, 3, 8, 0, 0, 0, 0, time.FixedZone("UTC-5", -5*3600))
	today := time.Date(2025, 3, 9, 8, 0, 0, 0, time.FixedZone("UTC-4", -4*3600))
	if got := elapsedDays(sowing, today); got != 1 {
		t.Fatalf("expected 1 elapsed day across the offset change, got %d", got)
	}
}
