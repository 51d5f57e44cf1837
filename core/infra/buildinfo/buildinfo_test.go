package buildinfo

import (
	"strings"
	"testing"
)

func TestSummaryString(t *testing.T) {
	s := Summary{Binary: "workbridge-worker", Version: "1.2.3", Commit: "abc1234", Date: "2026-08-30"}
	got := s.String()
	want := "workbridge-worker version=1.2.3 commit=abc1234 date=2026-08-30"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestGetDefaults(t *testing.T) {
	s := Get("workbridge-enqueue")
	if s.Binary != "workbridge-enqueue" {
		t.Fatalf("unexpected binary: %q", s.Binary)
	}
	if !strings.Contains(s.String(), "version="+Version) {
		t.Fatalf("summary missing version: %q", s.String())
	}
}
