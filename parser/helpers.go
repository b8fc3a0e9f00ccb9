package parser

import (
	"fmt"
	"time"
)

// 100ns intervals between 1601-01-01 and 1970-01-01
const filetime_epoch_delta = 116444736000000000

// A WinFileTime is a timestamp in windows filetime format.
type WinFileTime struct {
	time.Time
}

func (self WinFileTime) GoString() string {
	return fmt.Sprintf("%v", self.Time)
}

func (self WinFileTime) DebugString() string {
	return fmt.Sprintf("%v", self.Time)
}

func NewWinFileTime(filetime int64) WinFileTime {
	if filetime == 0 {
		return WinFileTime{}
	}
	return WinFileTime{time.Unix(0, (filetime-filetime_epoch_delta)*100).UTC()}
}

// ToFileTime is the inverse of NewWinFileTime
func ToFileTime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()/100 + filetime_epoch_delta
}
