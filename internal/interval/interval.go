// Package interval parses the compact backup-interval notation used in the
// bot config: a concatenation of <digits><unit> tokens where the unit is one
// of s, m, h, d ("2d", "45s", "1d12h").
package interval

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrInvalid is wrapped by every parse failure so callers can test with
// errors.Is without caring about the exact reason.
var ErrInvalid = errors.New("invalid interval")

var unitSeconds = map[byte]int64{
	's': 1,
	'm': 60,
	'h': 3600,
	'd': 86400,
}

// maxSeconds is the largest total that still fits a time.Duration; past
// it the nanosecond conversion would wrap negative.
const maxSeconds = math.MaxInt64 / int64(time.Second)

// Parse converts an interval string into a duration.
//
// The grammar is strict: every run of digits must be followed by a unit
// letter, unknown characters are rejected, and the total must be positive
// (a zero interval would turn the scheduler into a busy-fire loop).
func Parse(text string) (time.Duration, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalid)
	}

	var total int64
	var digits strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			digits.WriteByte(c)
		default:
			secs, ok := unitSeconds[c]
			if !ok {
				return 0, fmt.Errorf("%w: unknown unit %q in %q", ErrInvalid, string(c), text)
			}
			if digits.Len() == 0 {
				return 0, fmt.Errorf("%w: unit %q without a number in %q", ErrInvalid, string(c), text)
			}
			n, err := parseCount(digits.String())
			if err != nil {
				return 0, fmt.Errorf("%w: %v in %q", ErrInvalid, err, text)
			}
			total += n * secs
			if total > maxSeconds {
				return 0, fmt.Errorf("%w: interval too large in %q", ErrInvalid, text)
			}
			digits.Reset()
		}
	}
	if digits.Len() > 0 {
		return 0, fmt.Errorf("%w: trailing digits without a unit in %q", ErrInvalid, text)
	}
	if total <= 0 {
		return 0, fmt.Errorf("%w: interval must be positive, got %q", ErrInvalid, text)
	}

	return time.Duration(total) * time.Second, nil
}

func parseCount(s string) (int64, error) {
	// Manual accumulation keeps the overflow check simple; interval strings
	// are short so strconv would work too, but this rejects absurd values
	// with a clearer message.
	var n int64
	for i := 0; i < len(s); i++ {
		n = n*10 + int64(s[i]-'0')
		if n > 1<<40 {
			return 0, errors.New("number too large")
		}
	}
	return n, nil
}
