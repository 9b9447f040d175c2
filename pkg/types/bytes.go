package types

import "fmt"

// Bytes is a byte count. It is signed because deltas and derived values
// such as swap usage can go negative.
type Bytes int64

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// Humanized returns a human-readable string with automatic unit (B, KB, MB, GB, TB).
func (b Bytes) Humanized() string {
	v := float64(b)
	switch a := abs64(int64(b)); {
	case a >= 1<<40:
		return fmt.Sprintf("%.2f TB", v/(1<<40))
	case a >= 1<<30:
		return fmt.Sprintf("%.2f GB", v/(1<<30))
	case a >= 1<<20:
		return fmt.Sprintf("%.2f MB", v/(1<<20))
	case a >= 1<<10:
		return fmt.Sprintf("%.2f KB", v/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// Compact is the narrow column form used by top: the unit switches at
// decimal thresholds but divides by binary ones, so 1.1 MB prints as
// "1.0M" and 999 bytes as "999.0 ".
func (b Bytes) Compact() string {
	v := float64(b)
	switch a := abs64(int64(b)); {
	case a > 1000*1000*1000:
		return fmt.Sprintf("%.1fG", v/(1<<30))
	case a > 1000*1000:
		return fmt.Sprintf("%.1fM", v/(1<<20))
	case a > 1000:
		return fmt.Sprintf("%.1fk", v/(1<<10))
	default:
		return fmt.Sprintf("%.1f ", v)
	}
}

// KB returns the number of kilobytes (1024 base).
func (b Bytes) KB() float64 { return float64(b) / 1024 }

// MB returns the number of megabytes (1024 base).
func (b Bytes) MB() float64 { return float64(b) / (1024 * 1024) }

// GB returns the number of gigabytes (1024 base).
func (b Bytes) GB() float64 { return float64(b) / (1024 * 1024 * 1024) }
