package util

import (
	"strconv"
	"strings"
	"time"
)

// RunDateLayout is the canonical date key format.
const RunDateLayout = "2006-01-02"

var exchangeLayouts = []string{"02-Jan-2006", "2-Jan-2006", "02-Jan-2006 15:04:05", "02-Jan-2006 15:04", "02 Jan 2006"}

// MarketLocation is the exchange's local time zone; falls back to a fixed IST offset.
func MarketLocation() *time.Location {
	if loc, err := time.LoadLocation("Asia/Kolkata"); err == nil {
		return loc
	}
	return time.FixedZone("IST", 5*3600+1800)
}

// RunDate formats t as a run date in the exchange's time zone.
func RunDate(t time.Time) string {
	return t.In(MarketLocation()).Format(RunDateLayout)
}

// ParseRunDate validates a YYYY-MM-DD date; empty means today.
func ParseRunDate(s string, now time.Time) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return RunDate(now), nil
	}
	t, err := time.Parse(RunDateLayout, s)
	if err != nil {
		return "", err
	}
	return t.Format(RunDateLayout), nil
}

// ParseExchangeDate parses dates in the exchange's "17-Oct-2026" style.
func ParseExchangeDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range exchangeLayouts {
		if t, err := time.ParseInLocation(layout, s, MarketLocation()); err == nil {
			return t, true
		}
	}
	return ParseTime(s)
}

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}
