package profile

import (
	"math"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/maestro-performance/maestro-go/internal/common/maestroerrors"
)

// DefaultUnboundedRateEstimate is used to estimate how long sending a fixed number of messages takes when the
// rate is unbounded.
const DefaultUnboundedRateEstimate = 10 * time.Minute

// TestDuration is either a wall-clock duration, written like "30s" or "1h5m", or a number of messages, written as a
// plain integer. The textual form is what peers receive in Set requests.
type TestDuration struct {
	raw   string
	time  time.Duration
	count int64
}

// ParseDuration parses the two accepted forms. Both must be strictly positive.
func ParseDuration(s string) (TestDuration, error) {
	if count, err := strconv.ParseInt(s, 10, 64); err == nil {
		if count <= 0 {
			return TestDuration{}, invalidDuration(s, "message count must be positive")
		}
		return TestDuration{raw: s, count: count}, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return TestDuration{}, invalidDuration(s, "neither a duration nor a message count")
	}
	if d <= 0 {
		return TestDuration{}, invalidDuration(s, "duration must be positive")
	}
	return TestDuration{raw: s, time: d}, nil
}

func MustParseDuration(s string) TestDuration {
	d, err := ParseDuration(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TimeDuration(d time.Duration) TestDuration {
	return TestDuration{raw: formatTime(d), time: d}
}

func CountDuration(count int64) TestDuration {
	return TestDuration{raw: strconv.FormatInt(count, 10), count: count}
}

func invalidDuration(s, message string) error {
	return errors.WithStack(&maestroerrors.ErrInvalidArgument{Name: "duration", Value: s, Message: message})
}

func (d TestDuration) IsZero() bool { return d.raw == "" }

func (d TestDuration) IsCount() bool { return d.count > 0 }

func (d TestDuration) Time() time.Duration { return d.time }

func (d TestDuration) Count() int64 { return d.count }

func (d TestDuration) String() string { return d.raw }

// WarmUp is a tenth of d: at least one second for time durations and at least one message for counts.
func (d TestDuration) WarmUp() TestDuration {
	if d.IsCount() {
		count := d.count / 10
		if count < 1 {
			count = 1
		}
		return CountDuration(count)
	}
	warmUp := (d.time / 10).Truncate(time.Second)
	if warmUp < time.Second {
		warmUp = time.Second
	}
	return TimeDuration(warmUp)
}

// Balanced spreads a message count across parallelCount connections, rounding to the nearest count and never
// below one message. Time durations apply to each connection as they are.
func (d TestDuration) Balanced(parallelCount int) TestDuration {
	if !d.IsCount() || parallelCount <= 1 {
		return d
	}
	count := int64(math.Round(float64(d.count) / float64(parallelCount)))
	if count < 1 {
		count = 1
	}
	return CountDuration(count)
}

// EstimatedCompletion is how long a phase of this duration is expected to take at rate messages per second,
// per connection. Message counts with an unbounded rate (0) fall back to unboundedEstimate.
func (d TestDuration) EstimatedCompletion(rate int, unboundedEstimate time.Duration) time.Duration {
	if !d.IsCount() {
		return d.time
	}
	if rate <= 0 {
		return unboundedEstimate
	}
	seconds := math.Ceil(float64(d.count) / float64(rate))
	return time.Duration(seconds) * time.Second
}

func (d TestDuration) MarshalText() ([]byte, error) {
	return []byte(d.raw), nil
}

func (d *TestDuration) UnmarshalText(text []byte) error {
	parsed, err := ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d *TestDuration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

func (d TestDuration) MarshalYAML() (interface{}, error) {
	return d.raw, nil
}

// formatTime writes whole-second durations without the trailing zero units time.Duration.String adds.
func formatTime(d time.Duration) string {
	if d%time.Second != 0 {
		return d.String()
	}
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	out := ""
	if h > 0 {
		out += strconv.FormatInt(int64(h), 10) + "h"
	}
	if m > 0 {
		out += strconv.FormatInt(int64(m), 10) + "m"
	}
	if s > 0 || out == "" {
		out += strconv.FormatInt(int64(s), 10) + "s"
	}
	return out
}
