// Package scheduler runs backy's daemon job loop: one state machine per
// configured job, dispatched into a fast or slow bounded worker pool
// depending on how long its previous run took (spec.md §4.6).
package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/flyingcircusio/backy/internal/blog"
	"github.com/flyingcircusio/backy/internal/repository"
	"github.com/flyingcircusio/backy/internal/schedule"
	"github.com/flyingcircusio/backy/internal/source"
	"gopkg.in/yaml.v3"
)

// JobStatus is the admin-hook view of one job (spec.md §4.6, §9).
type JobStatus struct {
	Name     string    `yaml:"name"`
	State    State     `yaml:"state"`
	NextTime time.Time `yaml:"next_time,omitempty"`
	Failures int       `yaml:"failures"`
	Overdue  bool      `yaml:"overdue"`
}

// Scheduler owns every configured job's state machine goroutine plus the
// two bounded worker pools jobs are dispatched into.
type Scheduler struct {
	log *blog.Logger

	mu       sync.Mutex
	jobs     map[string]*Job
	fastPool *pool
	slowPool *pool
	callback []string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler with the given worker-limit (applied
// independently to each of the fast and slow pools, per spec.md §4.6)
// and an optional backup-completion callback argv.
func New(workerLimit int, callback []string, log *blog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		log:      log,
		jobs:     make(map[string]*Job),
		fastPool: newPool(workerLimit),
		slowPool: newPool(workerLimit),
		callback: callback,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// AddJob registers a job and starts its state machine goroutine. It must
// be called before Shutdown, or while already running to pick up a
// configuration reload.
func (s *Scheduler) AddJob(name string, src source.Source, sched *schedule.Schedule, repo *repository.Repository, tags []string) *Job {
	j := newJob(name, src, sched, repo, tags, s.log)

	s.mu.Lock()
	s.jobs[name] = j
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runJob(j)
	return j
}

// RemoveJob stops a job's state machine goroutine and drops it from the
// scheduler, used by the daemon's configuration reload (cmd/backyd) when
// a job is removed from configuration. The running job, if any, is
// allowed to finish.
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	delete(s.jobs, name)
	s.mu.Unlock()
}

// Jobs returns every registered job's current status, sorted by name.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for name, j := range s.jobs {
		h, _ := j.Repo.History()
		out = append(out, JobStatus{
			Name:     name,
			State:    j.State(),
			Failures: j.Failures(),
			Overdue:  h != nil && len(j.Schedule.Overdue(h, time.Now())) > 0,
		})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// Status renders Jobs() as the YAML document served by the admin status
// hook (spec.md §9).
func (s *Scheduler) Status() ([]byte, error) {
	return yaml.Marshal(s.Jobs())
}

// Run triggers an immediate out-of-schedule run of the named job,
// mirroring the "run now" admin hook. It returns an error if the job is
// unknown.
func (s *Scheduler) Run(name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown job %q", name)
	}
	j.triggerNow()
	return nil
}

// Shutdown stops accepting new job runs: jobs currently waiting on a
// deadline or a pool slot are cancelled immediately, while jobs already
// running are allowed to finish (spec.md §4.6's SIGTERM handling). It
// blocks until every job goroutine has exited.
func (s *Scheduler) Shutdown() {
	s.cancel()
	s.wg.Wait()
}

// runJob is the per-job state machine loop: WAITING_DEADLINE ->
// WAITING_SLOT(pool) -> RUNNING(pool) -> FINISHED/FAILED -> (loop).
func (s *Scheduler) runJob(j *Job) {
	defer s.wg.Done()

	offset := j.spread()
	timer := time.NewTimer(offset)
	defer timer.Stop()
	first := true

	for {
		s.mu.Lock()
		_, registered := s.jobs[j.Name]
		s.mu.Unlock()
		if !registered {
			j.setState(StateDead)
			return
		}

		j.setState(StateWaitingDeadline)

		history, err := j.Repo.History()
		if err != nil {
			j.log.Error("loading history: %v", err)
		}

		var wait time.Duration
		j.mu.Lock()
		failures := j.failures
		j.mu.Unlock()
		if failures > 0 {
			wait = backoffFor(failures)
		} else if history != nil {
			due := j.Schedule.NextDue(history)
			if due.IsZero() {
				wait = 0
			} else if d := time.Until(due); d > 0 {
				wait = d
			}
		}
		if first {
			// The spread delays only the first deadline after start-up.
			wait += offset
			first = false
		}
		timer.Reset(wait)

		select {
		case <-s.ctx.Done():
			return
		case <-j.runImmediately:
		case <-timer.C:
		}

		s.mu.Lock()
		_, registered = s.jobs[j.Name]
		s.mu.Unlock()
		if !registered {
			j.setState(StateDead)
			return
		}

		p := s.fastPool
		state := StateWaitingSlotFast
		running := StateRunningFast
		if j.slow() {
			p = s.slowPool
			state = StateWaitingSlotSlow
			running = StateRunningSlow
		}

		j.setState(state)
		if err := p.acquire(s.ctx); err != nil {
			return
		}

		j.setState(running)
		start := time.Now()
		runErr := s.runOnce(j)
		elapsed := time.Since(start)
		p.release()

		j.mu.Lock()
		j.lastDuration = elapsed
		if runErr != nil {
			j.failures++
		} else {
			j.failures = 0
		}
		j.mu.Unlock()

		if runErr != nil {
			j.log.Error("%s: backup failed: %v", j.Name, runErr)
			j.setState(StateFailed)
		} else {
			j.setState(StateFinished)
			s.invokeCallback(j)
		}

		select {
		case <-s.ctx.Done():
			return
		default:
		}
	}
}

func (s *Scheduler) runOnce(j *Job) error {
	history, err := j.Repo.History()
	if err != nil {
		return err
	}
	due := j.Schedule.DueTags(history, time.Now())
	tags := append([]string(nil), j.Tags...)
	tags = append(tags, due...)

	// The backup is not tied to s.ctx, so Shutdown lets it finish.
	_, err = j.Repo.Backup(context.Background(), j.Source, tags)
	if err != nil {
		return err
	}
	return j.Repo.Expire(j.Schedule)
}

// invokeCallback runs the configured backup-completion callback, if the
// job FINISHED successfully, passing the job name as the callback's
// first argument and the job's repository status as a YAML document on
// stdin (spec.md §4.6, §9). It never runs for a FAILED job.
func (s *Scheduler) invokeCallback(j *Job) {
	if len(s.callback) == 0 {
		return
	}
	st, err := j.Repo.Status(j.Name)
	if err != nil {
		j.log.Warning("%s: status for callback: %v", j.Name, err)
		return
	}
	body, err := yaml.Marshal(st)
	if err != nil {
		j.log.Warning("%s: marshal status for callback: %v", j.Name, err)
		return
	}

	args := append([]string{j.Name}, s.callback[1:]...)
	cmd := exec.CommandContext(s.ctx, s.callback[0], args...)
	cmd.Stdin = bytes.NewReader(body)
	if out, err := cmd.CombinedOutput(); err != nil {
		j.log.Warning("%s: completion callback: %v: %s", j.Name, err, out)
	}
}
