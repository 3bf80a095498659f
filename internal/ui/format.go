package ui

import (
	"fmt"
	"strings"
	"time"
)

// FormatRate formats a per-second rate, e.g. "12.3/s".
func FormatRate(perSec float64) string {
	switch {
	case perSec <= 0:
		return "0/s"
	case perSec < 10:
		return fmt.Sprintf("%.2f/s", perSec)
	case perSec < 100:
		return fmt.Sprintf("%.1f/s", perSec)
	default:
		return fmt.Sprintf("%.0f/s", perSec)
	}
}

// FormatETA formats a duration as a human-readable ETA string.
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return "--"
	}
	return FormatDuration(d)
}

// FormatCount formats an integer with comma separators.
func FormatCount(n int64) string {
	if n < 0 {
		return "-" + FormatCount(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		b.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatBytes formats a byte count using binary units.
func FormatBytes(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	units := []string{"KB", "MB", "GB", "TB", "PB"}
	val := float64(n) / 1024
	for i, u := range units {
		if val < 1024 || i == len(units)-1 {
			return fmt.Sprintf("%.1f %s", val, u)
		}
		val /= 1024
	}
	return ""
}

// FormatPercent renders a 0..1 ratio as a whole percentage.
func FormatPercent(ratio float64) string {
	return fmt.Sprintf("%.0f%%", ratio*100)
}

// FormatShape renders an N×C×H×W shape.
func FormatShape(s [4]int) string {
	return fmt.Sprintf("%dx%dx%dx%d", s[0], s[1], s[2], s[3])
}

// ProgressBar renders a progress bar of the given width using ▪/□ characters.
func ProgressBar(pct float64, width int) string {
	if width <= 0 {
		return ""
	}
	pct = max(0, min(pct, 1))
	filled := min(int(pct*float64(width)), width)

	var b strings.Builder
	for range filled {
		b.WriteRune('▪') // ▪ (filled)
	}
	for range width - filled {
		b.WriteRune('□') // □ (empty)
	}
	return b.String()
}

// FormatDuration formats elapsed time concisely.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// eta estimates time to consume the remaining batches at rate per second.
func eta(done, total int64, rate float64) time.Duration {
	if total <= 0 || rate <= 0 || done >= total {
		return 0
	}
	return time.Duration(float64(total-done) / rate * float64(time.Second))
}
