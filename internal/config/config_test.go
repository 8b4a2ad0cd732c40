package config

import (
	"errors"
	"testing"
	"time"
)

const sampleYAML = `
global:
  base-dir: /srv/backy
  worker-limit: 3
  backup-completed-callback: ["/usr/local/bin/notify"]

schedules:
  default:
    daily:
      interval: 1d
      keep: 7
    weekly:
      interval: 1w
      keep: 4

jobs:
  vm-foo:
    schedule: default
    source:
      type: file
      path: /dev/vg/vm-foo
`

func TestParseValidConfig(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Global.BaseDir != "/srv/backy" {
		t.Fatalf("BaseDir = %q", cfg.Global.BaseDir)
	}
	if cfg.Global.WorkerLimit != 3 {
		t.Fatalf("WorkerLimit = %d, want 3", cfg.Global.WorkerLimit)
	}
	sched, ok := cfg.Schedules["default"]
	if !ok {
		t.Fatalf("missing schedule %q", "default")
	}
	policy, ok := sched.Policy("daily")
	if !ok || policy.Interval != 24*time.Hour || policy.Keep != 7 {
		t.Fatalf("daily policy = %+v, ok=%v", policy, ok)
	}
	job, ok := cfg.Jobs["vm-foo"]
	if !ok {
		t.Fatalf("missing job vm-foo")
	}
	if job.Source.Type != "file" {
		t.Fatalf("job source type = %q, want file", job.Source.Type)
	}
}

func TestParseMissingBaseDirIsInvalid(t *testing.T) {
	_, err := Parse([]byte("global:\n  worker-limit: 1\n"))
	var invalid *ConfigInvalid
	if !errors.As(err, &invalid) {
		t.Fatalf("Parse() error = %v, want *ConfigInvalid", err)
	}
}

func TestParseUnknownScheduleReferenceIsInvalid(t *testing.T) {
	bad := `
global:
  base-dir: /srv/backy
jobs:
  vm-foo:
    schedule: nope
    source:
      type: file
      path: /dev/vg/vm-foo
`
	_, err := Parse([]byte(bad))
	var invalid *ConfigInvalid
	if !errors.As(err, &invalid) {
		t.Fatalf("Parse() error = %v, want *ConfigInvalid", err)
	}
}

func TestParseIntervalGrammar(t *testing.T) {
	cases := map[string]time.Duration{
		"30s": 30 * time.Second,
		"5m":  5 * time.Minute,
		"2h":  2 * time.Hour,
		"1d":  24 * time.Hour,
		"1w":  7 * 24 * time.Hour,
	}
	for in, want := range cases {
		got, err := ParseInterval(in)
		if err != nil {
			t.Errorf("ParseInterval(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseInterval(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseIntervalRejectsBadSuffix(t *testing.T) {
	if _, err := ParseInterval("3x"); err == nil {
		t.Fatalf("ParseInterval(3x) should have failed")
	}
}
