// Package autopost implements C11: a small scheduler that re-fires a fixed
// set of named tool calls on their own intervals, independent of C10's
// event-driven loop — the mechanism behind periodic offer (SVC_ANNOUNCE)
// and RFQ broadcasts.
package autopost

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/intercomswap/swap-core/internal/tools"
)

// Job is one scheduled broadcast: call Tool with Args every IntervalSec,
// until TTLSec elapses since the job started or ValidUntilUnix passes,
// whichever comes first. TTLSec and ValidUntilUnix of zero mean unset.
type Job struct {
	Name           string     `json:"name"`
	Tool           string     `json:"tool"`
	Args           tools.Args `json:"args"`
	IntervalSec    int64      `json:"interval_sec"`
	TTLSec         int64      `json:"ttl_sec,omitempty"`
	ValidUntilUnix int64      `json:"valid_until_unix,omitempty"`
}

// LoadJobs reads a JSON array of Job from path, the autopost counterpart to
// automation.LoadOfferBook. An empty path is valid and yields no jobs.
func LoadJobs(path string) ([]Job, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("autopost: read jobs file %s: %w", path, err)
	}
	var jobs []Job
	if err := json.Unmarshal(raw, &jobs); err != nil {
		return nil, fmt.Errorf("autopost: parse jobs file %s: %w", path, err)
	}
	return jobs, nil
}

type jobState struct {
	job        Job
	startedAt  time.Time
	nextFireAt time.Time
	fires      int
	lastErr    error
}

func (js *jobState) expired(now time.Time) bool {
	if js.job.TTLSec > 0 && now.Sub(js.startedAt) > time.Duration(js.job.TTLSec)*time.Second {
		return true
	}
	if js.job.ValidUntilUnix > 0 && now.Unix() > js.job.ValidUntilUnix {
		return true
	}
	return false
}

// Scheduler runs every registered Job until it expires or the scheduler
// itself stops.
type Scheduler struct {
	Exec *tools.Executor
	Now  func() time.Time

	jobs map[string]*jobState
}

// NewScheduler builds a Scheduler with jobs all starting their clock now.
func NewScheduler(exec *tools.Executor, jobs []Job, now func() time.Time) *Scheduler {
	s := &Scheduler{Exec: exec, Now: now, jobs: make(map[string]*jobState, len(jobs))}
	started := s.now()
	for _, j := range jobs {
		s.jobs[j.Name] = &jobState{job: j, startedAt: started, nextFireAt: started}
	}
	return s
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Tick fires every job due to run, dropping any that have expired.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()
	for name, js := range s.jobs {
		if js.expired(now) {
			delete(s.jobs, name)
			continue
		}
		if now.Before(js.nextFireAt) {
			continue
		}
		_, err := s.Exec.Execute(ctx, js.job.Tool, js.job.Args, tools.Context{AutoApprove: true})
		js.lastErr = err
		js.fires++
		js.nextFireAt = now.Add(time.Duration(js.job.IntervalSec) * time.Second)
	}
}

// Run drives Tick on a one-second cadence until ctx is canceled. A second
// is the finest resolution IntervalSec can express.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Jobs returns the names of jobs still scheduled.
func (s *Scheduler) Jobs() []string {
	out := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		out = append(out, name)
	}
	return out
}

// LastError returns the most recent execution error for name, if any.
func (s *Scheduler) LastError(name string) (error, error) {
	js, ok := s.jobs[name]
	if !ok {
		return nil, fmt.Errorf("autopost: unknown job %q", name)
	}
	return js.lastErr, nil
}
