package types

import (
	"fmt"
	"time"
)

// ByteRate is a throughput in bytes per second.
type ByteRate float64

func (r ByteRate) String() string {
	v := float64(r)
	switch {
	case v > 1000*1000*1000:
		return fmt.Sprintf("%.1fG/s", v/(1<<30))
	case v > 1000*1000:
		return fmt.Sprintf("%.1fM/s", v/(1<<20))
	case v > 1000:
		return fmt.Sprintf("%.1fk/s", v/(1<<10))
	default:
		return fmt.Sprintf("%.1f /s", v)
	}
}

// Percent is a share expressed in percent; values above 100 mean more
// than one CPU.
type Percent float64

func (p Percent) String() string { return fmt.Sprintf("%.1f%%", float64(p)) }

// Nanoseconds is a CPU time counter such as cpuacct.usage.
type Nanoseconds int64

// Duration converts the counter to a time.Duration.
func (n Nanoseconds) Duration() time.Duration { return time.Duration(n) }

// String picks days, hours, minutes or seconds with one decimal.
func (n Nanoseconds) String() string {
	sec := float64(n) / float64(time.Second)
	const (
		minute = 60
		hour   = 60 * minute
		day    = 24 * hour
	)
	switch {
	case sec > day:
		return fmt.Sprintf("%.1fd", sec/day)
	case sec > hour:
		return fmt.Sprintf("%.1fh", sec/hour)
	case sec > minute:
		return fmt.Sprintf("%.1fm", sec/minute)
	default:
		return fmt.Sprintf("%.1fs", sec)
	}
}
