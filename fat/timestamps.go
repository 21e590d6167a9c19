package fat

import "time"

// fatEpoch is the earliest timestamp FAT can represent, 1980-01-01 00:00:00 local
// time.
var fatEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.Local)

// fatLastTimestamp is the latest timestamp FAT can represent.
var fatLastTimestamp = time.Date(2107, time.December, 31, 23, 59, 58, 0, time.Local)

// PackTimestamp converts `t` to FAT's packed date and time words, using host
// local time. Timestamps outside the representable range are clamped.
//
// The date is (year - 1980) << 9 | month << 5 | day, and the time is
// hour << 11 | minute << 5 | second / 2.
func PackTimestamp(t time.Time) (date uint16, clock uint16) {
	t = t.In(time.Local)
	if t.Before(fatEpoch) {
		t = fatEpoch
	} else if t.After(fatLastTimestamp) {
		t = fatLastTimestamp
	}

	date = uint16(t.Year()-1980)<<9 | uint16(t.Month())<<5 | uint16(t.Day())
	clock = uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
	return date, clock
}

// UnpackTimestamp is the inverse of [PackTimestamp]. Seconds are rounded down to
// an even number.
func UnpackTimestamp(date uint16, clock uint16) time.Time {
	return time.Date(
		int(date>>9)+1980,
		time.Month((date>>5)&0x0F),
		int(date&0x1F),
		int(clock>>11),
		int((clock>>5)&0x3F),
		int(clock&0x1F)*2,
		0,
		time.Local,
	)
}
