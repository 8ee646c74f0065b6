// Package report holds formatting helpers for run summaries and logs.
package report

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// RunIDLayout formats run ids, e.g. 20250731_020000.
const RunIDLayout = "20060102_150405"

var (
	byteUnits = []string{"B", "KB", "MB", "GB", "TB"}
	printer   = message.NewPrinter(language.English)
)

// RunID returns the run id for a run started at t.
func RunID(t time.Time) string {
	return t.UTC().Format(RunIDLayout)
}

// FormatBytes renders n with 1024-based units and one decimal, e.g. "1.5KB".
// Zero is "0B".
func FormatBytes(n int64) string {
	if n == 0 {
		return "0B"
	}
	v := float64(n)
	i := 0
	for math.Abs(v) >= 1024 && i < len(byteUnits)-1 {
		v /= 1024
		i++
	}
	return fmt.Sprintf("%.1f%s", v, byteUnits[i])
}

// HumanBytes renders n the way humanize does, e.g. "1.5 KiB".
func HumanBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n))
	}
	return humanize.IBytes(uint64(n))
}

// FormatDuration renders d as "12.3s", "4m 5.0s" or "2h 3m".
func FormatDuration(d time.Duration) string {
	s := d.Seconds()
	switch {
	case s < 60:
		return fmt.Sprintf("%.1fs", s)
	case s < 3600:
		m := int(s / 60)
		return fmt.Sprintf("%dm %.1fs", m, s-float64(m*60))
	default:
		h := int(s / 3600)
		m := int(math.Mod(s, 3600) / 60)
		return fmt.Sprintf("%dh %dm", h, m)
	}
}

// Mask hides all but the last visible characters of s.
func Mask(s string, visible int) string {
	if s == "" {
		return ""
	}
	r := []rune(s)
	if len(r) <= visible {
		return strings.Repeat("*", len(r))
	}
	return strings.Repeat("*", len(r)-visible) + string(r[len(r)-visible:])
}

// Percentage is part/total*100 rounded to places decimals, 0 when total is 0.
func Percentage(part, total int64, places int) float64 {
	if total == 0 {
		return 0
	}
	return Round(float64(part)/float64(total)*100, places)
}

// Round rounds v to places decimals.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Count renders n with thousands separators, e.g. "12,345".
func Count(n int64) string {
	return humanize.Comma(n)
}

// Money renders v with two decimals and thousands separators.
func Money(v float64) string {
	return printer.Sprintf("%.2f", v)
}
