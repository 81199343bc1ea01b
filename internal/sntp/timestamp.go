package sntp

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
)

const (
	EraLength     int64   = 4_294_967_296 // 2^32
	UnixEraOffset int64   = 2_208_988_800 // 1970 - 1900 in seconds
	ShortLength   float64 = 65536         // 2^16
)

// Seconds values below the pivot belong to era 1, which starts
// 2036-02-07T06:28:16Z (RFC 2030 section 3).
const eraPivot = 1 << 31

// Timestamp is a 32.32 fixed-point NTP time: seconds since 1900-01-01 plus a
// binary fraction of a second.
type Timestamp struct {
	Seconds  uint32
	Fraction uint32
}

var Zero = Timestamp{}

func NewTimestamp(seconds, fraction int64) (Timestamp, error) {
	if seconds < 0 {
		return Zero, fmt.Errorf("%w: seconds<0", ErrInvalidArgument)
	}
	if fraction < 0 {
		return Zero, fmt.Errorf("%w: fraction<0", ErrInvalidArgument)
	}
	if seconds > math.MaxUint32 || fraction > math.MaxUint32 {
		return Zero, fmt.Errorf("%w: timestamp does not fit in 32.32 bits", ErrInvalidArgument)
	}
	return Timestamp{Seconds: uint32(seconds), Fraction: uint32(fraction)}, nil
}

// FromLocalMillis converts milliseconds since the Unix epoch. The fraction is
// rounded up so that converting back yields the same millisecond.
func FromLocalMillis(ms int64) Timestamp {
	seconds := floorDiv(ms, 1000)
	rem := uint64(ms - seconds*1000)
	fraction := (rem<<32 + 999) / 1000
	return Timestamp{
		Seconds:  uint32(seconds + UnixEraOffset),
		Fraction: uint32(fraction),
	}
}

func FromTime(t time.Time) Timestamp {
	return Timestamp{
		Seconds:  uint32(t.Unix() + UnixEraOffset),
		Fraction: uint32((uint64(t.Nanosecond()) << 32) / 1e9),
	}
}

// LocalMillis converts to milliseconds since the Unix epoch, truncating the
// sub-millisecond part of the fraction.
func (t Timestamp) LocalMillis() int64 {
	return t.unixSeconds()*1000 + int64((uint64(t.Fraction)*1000)>>32)
}

func (t Timestamp) Time() time.Time {
	return time.Unix(t.unixSeconds(), int64((uint64(t.Fraction)*1e9)>>32))
}

func (t Timestamp) IsZero() bool {
	return t == Zero
}

func (t Timestamp) String() string {
	return strconv.FormatUint(uint64(t.Seconds), 10) + "." + strconv.FormatUint(uint64(t.Fraction), 10)
}

func (t Timestamp) unixSeconds() int64 {
	seconds := int64(t.Seconds)
	if t.Seconds < eraPivot {
		seconds += EraLength
	}
	return seconds - UnixEraOffset
}

// NowMillis reads the realtime clock in milliseconds since the Unix epoch.
func NowMillis() int64 {
	var now unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_REALTIME, &now); err != nil {
		return time.Now().UnixMilli()
	}
	sec, nsec := now.Unix()
	return sec*1000 + nsec/1e6
}

func Now() Timestamp {
	return FromLocalMillis(NowMillis())
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
