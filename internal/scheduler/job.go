package scheduler

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"math/rand"
	"sync"
	"time"

	"github.com/flyingcircusio/backy/internal/blog"
	"github.com/flyingcircusio/backy/internal/repository"
	"github.com/flyingcircusio/backy/internal/schedule"
	"github.com/flyingcircusio/backy/internal/source"
)

// SlowThreshold is the duration a job's previous run must reach for this
// run to be dispatched into the slow pool instead of the fast one
// (spec.md §4.6).
const SlowThreshold = 600 * time.Second

// State names the per-job state machine positions from spec.md §4.6.
type State string

const (
	StateDead             State = "DEAD"
	StateWaitingDeadline  State = "WAITING_DEADLINE"
	StateWaitingSlotFast  State = "WAITING_SLOT(FAST)"
	StateWaitingSlotSlow  State = "WAITING_SLOT(SLOW)"
	StateRunningFast      State = "RUNNING(FAST)"
	StateRunningSlow      State = "RUNNING(SLOW)"
	StateFinished         State = "FINISHED"
	StateFailed           State = "FAILED"
)

// Job is the runtime entity pairing a repository with its schedule,
// current state and backoff bookkeeping (spec.md §3).
type Job struct {
	Name     string
	Source   source.Source
	Schedule *schedule.Schedule
	Repo     *repository.Repository
	Tags     []string

	log *blog.Logger

	mu           sync.Mutex
	state        State
	lastDuration time.Duration
	failures     int

	runImmediately chan struct{}
	cancelWait     context.CancelFunc
}

func newJob(name string, src source.Source, sched *schedule.Schedule, repo *repository.Repository, tags []string, log *blog.Logger) *Job {
	return &Job{
		Name:           name,
		Source:         src,
		Schedule:       sched,
		Repo:           repo,
		Tags:           tags,
		log:            log.With(map[string]interface{}{"job": name}),
		state:          StateWaitingDeadline,
		runImmediately: make(chan struct{}, 1),
	}
}

func (j *Job) setState(s State) {
	j.mu.Lock()
	j.state = s
	j.mu.Unlock()
	j.log.Debug("%s: state -> %s", j.Name, s)
}

// State returns the job's current state machine position.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Failures returns the current consecutive-failure count.
func (j *Job) Failures() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.failures
}

// slow reports whether the job's most recently completed run qualifies
// it for the slow pool; a job defaults to fast on its first run
// (spec.md §4.6).
func (j *Job) slow() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastDuration >= SlowThreshold
}

// triggerNow asks the job to skip its remaining deadline wait and
// attempt a run immediately (the external run(job) hook from spec.md
// §4.6). It does not reset the failure counter or backoff.
func (j *Job) triggerNow() {
	select {
	case j.runImmediately <- struct{}{}:
	default:
	}
}

// spread derives a stable pseudo-random delay from the job name, bounded
// by the schedule's longest interval, so that many jobs with the same
// interval do not all fire at once after a daemon restart (expansion,
// grounded on original_source/src/backy/daemon/scheduler.py's Job.spread).
func (j *Job) spread() time.Duration {
	limit := time.Duration(0)
	for _, tag := range j.Schedule.Tags() {
		if p, ok := j.Schedule.Policy(tag); ok && p.Interval > limit {
			limit = p.Interval
		}
	}
	if limit <= 0 {
		return 0
	}

	sum := md5.Sum([]byte(j.Name))
	seed := int64(binary.BigEndian.Uint64(sum[:8]))
	r := rand.New(rand.NewSource(seed))
	return time.Duration(r.Int63n(int64(limit)))
}
