package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseExchangeDate(t *testing.T) {
	got, ok := ParseExchangeDate("17-Oct-2026")
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Format(RunDateLayout) != "2026-10-17" {
		t.Fatalf("unexpected date %v", got)
	}
	if _, ok := ParseExchangeDate(""); ok {
		t.Fatalf("empty must not parse")
	}
}

func TestParseRunDate(t *testing.T) {
	now := time.Date(2026, 10, 16, 20, 0, 0, 0, time.UTC) // 01:30 next day in IST
	got, err := ParseRunDate("", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "2026-10-17" {
		t.Fatalf("expected market-local date, got %s", got)
	}
	if _, err := ParseRunDate("17/10/2026", now); err == nil {
		t.Fatalf("expected error for bad layout")
	}
}
