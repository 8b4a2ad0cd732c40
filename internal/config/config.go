// Package config loads backy's daemon configuration: the global
// settings, the named retention schedules and the job graph that ties
// sources to repositories (spec.md §6, §7).
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flyingcircusio/backy/internal/schedule"
)

// ConfigInvalid wraps every error produced while parsing or validating a
// configuration document, so callers can distinguish "bad config" from
// I/O failures (spec.md §7). On reload, a ConfigInvalid error leaves the
// previously loaded configuration in effect; at startup it is fatal.
type ConfigInvalid struct {
	Err error
}

func (e *ConfigInvalid) Error() string { return fmt.Sprintf("invalid configuration: %v", e.Err) }
func (e *ConfigInvalid) Unwrap() error { return e.Err }

// Global holds the daemon-wide settings under the top-level "global" key.
type Global struct {
	BaseDir                  string   `yaml:"base-dir"`
	WorkerLimit              int      `yaml:"worker-limit"`
	BackupCompletedCallback  []string `yaml:"backup-completed-callback,omitempty"`
}

// rawTagPolicy is the YAML shape of one schedule entry before its
// interval string is parsed into a time.Duration.
type rawTagPolicy struct {
	Interval string `yaml:"interval"`
	Keep     int    `yaml:"keep"`
}

// SourceSpec is the YAML shape of a job's "source" stanza. Type selects
// which internal/source adapter to build; the remaining fields are
// adapter-specific and left as a raw map for the daemon's source
// factory to interpret.
type SourceSpec struct {
	Type   string                 `yaml:"type"`
	Fields map[string]interface{} `yaml:",inline"`
}

type rawJob struct {
	Schedule string     `yaml:"schedule"`
	Source   SourceSpec `yaml:"source"`
}

type rawConfig struct {
	Global    Global                            `yaml:"global"`
	Schedules map[string]map[string]rawTagPolicy `yaml:"schedules"`
	Jobs      map[string]rawJob                `yaml:"jobs"`
}

// Job is a fully resolved job definition: a named schedule and a source
// spec, ready for the daemon to build a source.Source and AddJob it with
// the scheduler.
type Job struct {
	Name         string
	ScheduleName string
	Schedule     *schedule.Schedule
	Source       SourceSpec
}

// Config is backy's fully parsed and validated daemon configuration.
type Config struct {
	Global    Global
	Schedules map[string]*schedule.Schedule
	Jobs      map[string]Job
}

// Load reads and validates the configuration at path. Any parsing or
// validation failure is returned wrapped in ConfigInvalid.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse validates and builds a Config from a YAML document's bytes.
func Parse(data []byte) (*Config, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigInvalid{Err: err}
	}

	if raw.Global.BaseDir == "" {
		return nil, &ConfigInvalid{Err: fmt.Errorf("global.base-dir is required")}
	}
	if raw.Global.WorkerLimit <= 0 {
		raw.Global.WorkerLimit = 4
	}

	schedules := make(map[string]*schedule.Schedule, len(raw.Schedules))
	for name, tags := range raw.Schedules {
		order := make([]string, 0, len(tags))
		for tag := range tags {
			order = append(order, tag)
		}
		sort.Strings(order)

		policies := make(map[string]schedule.TagPolicy, len(tags))
		for tag, rp := range tags {
			interval, err := ParseInterval(rp.Interval)
			if err != nil {
				return nil, &ConfigInvalid{Err: fmt.Errorf("schedules.%s.%s: %w", name, tag, err)}
			}
			if rp.Keep <= 0 {
				return nil, &ConfigInvalid{Err: fmt.Errorf("schedules.%s.%s: keep must be positive", name, tag)}
			}
			policies[tag] = schedule.TagPolicy{Interval: interval, Keep: rp.Keep}
		}
		schedules[name] = schedule.New(order, policies)
	}

	jobs := make(map[string]Job, len(raw.Jobs))
	for name, rj := range raw.Jobs {
		sched, ok := schedules[rj.Schedule]
		if !ok {
			return nil, &ConfigInvalid{Err: fmt.Errorf("jobs.%s: unknown schedule %q", name, rj.Schedule)}
		}
		if rj.Source.Type == "" {
			return nil, &ConfigInvalid{Err: fmt.Errorf("jobs.%s: source.type is required", name)}
		}
		jobs[name] = Job{Name: name, ScheduleName: rj.Schedule, Schedule: sched, Source: rj.Source}
	}

	return &Config{Global: raw.Global, Schedules: schedules, Jobs: jobs}, nil
}

// ParseInterval parses the interval grammar from spec.md §6: a positive
// integer followed by a unit suffix, s(econds)/m(inutes)/h(ours)/
// d(ays)/w(eeks).
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid interval %q", s)
	}
	unit := s[len(s)-1]
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid interval %q", s)
	}
	var per time.Duration
	switch unit {
	case 's':
		per = time.Second
	case 'm':
		per = time.Minute
	case 'h':
		per = time.Hour
	case 'd':
		per = 24 * time.Hour
	case 'w':
		per = 7 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("invalid interval suffix in %q", s)
	}
	return time.Duration(n) * per, nil
}
