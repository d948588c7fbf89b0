package interval

import (
	"errors"
	"testing"
	"time"
)

func TestParseSingleToken(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"1s", time.Second},
		{"45s", 45 * time.Second},
		{"3m", 3 * time.Minute},
		{"3h", 3 * time.Hour},
		{"2d", 48 * time.Hour},
		{"10d", 240 * time.Hour},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			got, err := Parse(tt.raw)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("Parse(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseMultiToken(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"1d12h", 36 * time.Hour},
		{"1h30m", 90 * time.Minute},
		{"2d0h30m15s", 48*time.Hour + 30*time.Minute + 15*time.Second},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			got, err := Parse(tt.raw)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("Parse(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseWhitespaceTrimmed(t *testing.T) {
	t.Parallel()
	got, err := Parse("  2d ")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if got != 48*time.Hour {
		t.Fatalf("Parse = %v, want 48h", got)
	}
}

func TestParseInvalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"zero", "0d"},
		{"zero multi", "0h0m"},
		{"unknown unit", "5w"},
		{"bare unit", "d"},
		{"trailing digits", "2d15"},
		{"garbage", "abc"},
		{"negative-ish", "-5s"},
		{"overflows duration", "200000000d"},
		{"overflow across tokens", "100000000d100000000d100000000d"},
		{"absurd count", "99999999999999999999s"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw)
			if err == nil {
				t.Fatalf("Parse(%q): expected error", tt.raw)
			}
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("Parse(%q): error %v does not wrap ErrInvalid", tt.raw, err)
			}
		})
	}
}

func TestParseNeverNegative(t *testing.T) {
	t.Parallel()
	// Large-but-grammatical inputs must error out rather than wrap into
	// a negative duration and leave the schedule permanently due.
	for _, raw := range []string{"200000000d", "106752d", "9000000000s"} {
		d, err := Parse(raw)
		if err == nil && d <= 0 {
			t.Fatalf("Parse(%q) = %v with nil error", raw, d)
		}
		if err != nil && !errors.Is(err, ErrInvalid) {
			t.Fatalf("Parse(%q): error %v does not wrap ErrInvalid", raw, err)
		}
	}
}

func TestParseDeterministic(t *testing.T) {
	t.Parallel()
	a, err := Parse("1d12h")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	b, err := Parse("1d12h")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if a != b {
		t.Fatalf("Parse not deterministic: %v != %v", a, b)
	}
}
