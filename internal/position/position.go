// Package position implements board coordinates and their spreadsheet-style
// human-readable labels ("A1", "C6", "AA30").
package position

import (
	"errors"
	"fmt"
)

// ErrInvalidPosition is returned when a human-readable label cannot be
// parsed back into a coordinate.
var ErrInvalidPosition = errors.New("position: invalid human readable position")

// Position is an immutable 2-D board coordinate. X and Y are both zero-based
// and non-negative. Equality is structural (== works).
type Position struct {
	X int
	Y int
}

// New constructs a Position. Negative coordinates are a programmer error and
// are clamped to zero rather than panicking.
func New(x, y int) Position {
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	return Position{X: x, Y: y}
}

// HumanReadable renders the position as column letters followed by a 1-based
// row number. Column 0 is "A", 25 is "Z", 26 is "AA" (bijective base 26).
func (p Position) HumanReadable() string {
	return columnLabel(p.X) + fmt.Sprintf("%d", p.Y+1)
}

// String implements fmt.Stringer.
func (p Position) String() string { return p.HumanReadable() }

// columnLabel converts a zero-based column index to bijective base-26
// letters, the same scheme spreadsheets use for column headers.
func columnLabel(x int) string {
	// Work in 1-based bijective base 26.
	n := x + 1
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		n--
		i--
		buf[i] = byte('A' + n%26)
		n /= 26
	}
	return string(buf[i:])
}

// ParseHumanReadable parses a label produced by HumanReadable back into a
// Position. It fails with ErrInvalidPosition when the label has no letter
// prefix, no digit suffix, stray characters, or a row number below 1.
func ParseHumanReadable(s string) (Position, error) {
	if s == "" {
		return Position{}, fmt.Errorf("%w: empty string", ErrInvalidPosition)
	}

	i := 0
	x := 0
	for ; i < len(s); i++ {
		c := s[i]
		if c < 'A' || c > 'Z' {
			break
		}
		x = x*26 + int(c-'A') + 1
	}
	if i == 0 {
		return Position{}, fmt.Errorf("%w: %q has no column letters", ErrInvalidPosition, s)
	}

	if i == len(s) {
		return Position{}, fmt.Errorf("%w: %q has no row number", ErrInvalidPosition, s)
	}
	y := 0
	for ; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return Position{}, fmt.Errorf("%w: %q has a malformed row number", ErrInvalidPosition, s)
		}
		y = y*10 + int(c-'0')
	}
	if y < 1 {
		return Position{}, fmt.Errorf("%w: %q row numbers start at 1", ErrInvalidPosition, s)
	}

	return Position{X: x - 1, Y: y - 1}, nil
}
