package source

import "testing"

func TestParseTimestampMs_Numeric(t *testing.T) {
	cases := []struct {
		in   any
		want int64
		ok   bool
	}{
		{int64(1_700_000_000_000), 1_700_000_000_000, true}, // already ms
		{int64(1_700_000_000), 1_700_000_000_000, true},     // seconds
		{float64(1_700_000_000), 1_700_000_000_000, true},
		{int(1_700_000_000), 1_700_000_000_000, true},
		{int64(0), 0, false},
		{int64(-5), 0, false},
		{nil, 0, false},
		{true, 0, false},
	}

	for _, tc := range cases {
		got, ok := ParseTimestampMs(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ParseTimestampMs(%v) = %d, %v; want %d, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestParseTimestampMs_ISO(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"1970-01-01T00:00:01Z", 1000, true},
		{"1970-01-01T00:00:01+00:00", 1000, true},
		{"1970-01-01T00:00:01", 1000, true}, // naive, interpreted as UTC
		{"1970-01-01 00:00:01", 1000, true},
		{"1970-01-01T00:00:01.500Z", 1500, true},
		{"", 0, false},
		{"   ", 0, false},
		{"not a time", 0, false},
	}

	for _, tc := range cases {
		got, ok := ParseTimestampMs(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ParseTimestampMs(%q) = %d, %v; want %d, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
