package position

import (
	"errors"
	"testing"
)

// TestHumanReadableKnownValues checks label rendering against fixed cases.
func TestHumanReadableKnownValues(t *testing.T) {
	cases := []struct {
		x, y int
		want string
	}{
		{0, 0, "A1"},
		{2, 5, "C6"},
		{25, 29, "Z30"},
		{26, 29, "AA30"},
		{27, 0, "AB1"},
		{51, 0, "AZ1"},
		{52, 0, "BA1"},
		{701, 99, "ZZ100"},
		{702, 99, "AAA100"},
	}
	for _, tc := range cases {
		got := New(tc.x, tc.y).HumanReadable()
		if got != tc.want {
			t.Errorf("Position(%d,%d).HumanReadable() = %q, want %q", tc.x, tc.y, got, tc.want)
		}
	}
}

// TestRoundTrip verifies ParseHumanReadable inverts HumanReadable for all
// coordinates below 1000.
func TestRoundTrip(t *testing.T) {
	for x := 0; x < 1000; x += 7 {
		for y := 0; y < 1000; y += 13 {
			p := New(x, y)
			got, err := ParseHumanReadable(p.HumanReadable())
			if err != nil {
				t.Fatalf("ParseHumanReadable(%q): %v", p.HumanReadable(), err)
			}
			if got != p {
				t.Fatalf("round trip (%d,%d) -> %q -> (%d,%d)", x, y, p.HumanReadable(), got.X, got.Y)
			}
		}
	}
}

// TestParseRejectsMalformed verifies malformed labels fail with ErrInvalidPosition.
func TestParseRejectsMalformed(t *testing.T) {
	bad := []string{"", "12", "A", "A0", "1A", "A1B", "a1", "A-1", "A1 "}
	for _, s := range bad {
		if _, err := ParseHumanReadable(s); !errors.Is(err, ErrInvalidPosition) {
			t.Errorf("ParseHumanReadable(%q) error = %v, want ErrInvalidPosition", s, err)
		}
	}
}

// TestNewClampsNegative verifies negative inputs clamp to zero.
func TestNewClampsNegative(t *testing.T) {
	p := New(-3, -1)
	if p.X != 0 || p.Y != 0 {
		t.Errorf("New(-3,-1) = (%d,%d), want (0,0)", p.X, p.Y)
	}
}
