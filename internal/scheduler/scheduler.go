package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/bft-labs/satlink/internal/domain"
	"github.com/bft-labs/satlink/internal/ports"
)

// Func is the work of a job. The context is cancelled when the scheduler is
// shut down without waiting.
type Func func(ctx context.Context) error

// Options configures a Scheduler.
type Options struct {
	// OnFinish, if set, is called after every execution.
	OnFinish func(id string, err error, elapsed time.Duration)

	// Now overrides the clock used for trigger arithmetic.
	Now func() time.Time
}

type entry struct {
	id      string
	trigger Trigger
	fn      Func
	state   State
	anchor  time.Time
	next    time.Time
	timer   *time.Timer
	gen     uint64
	runs    int
	lastErr error
}

// Scheduler executes jobs one at a time on a single worker goroutine.
// Every state transition happens under mu:
//
//	Schedule:   absent  -> Pending
//	trigger:    Pending -> Running (queued for the worker)
//	completion: Running -> removed (one-shot) or Pending (interval)
//	Unschedule: Pending -> removed
type Scheduler struct {
	logger ports.Logger
	opts   Options

	mu      sync.Mutex
	jobs    map[string]*entry
	ready   []*entry
	stopped bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}

	jobCtx    context.Context
	cancelJob context.CancelFunc
	stopOnce  sync.Once
}

// New creates a scheduler and starts its worker.
func New(logger ports.Logger, opts Options) *Scheduler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		logger:    logger,
		opts:      opts,
		jobs:      make(map[string]*entry),
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		jobCtx:    ctx,
		cancelJob: cancel,
	}
	go s.worker()
	return s
}

// Schedule registers fn under id. For an id that is already known:
// a running job is left alone, a pending job with an equal trigger is left
// alone, and a pending job with a different trigger gets the new trigger.
func (s *Scheduler) Schedule(id string, trigger Trigger, fn Func) (ScheduleResult, error) {
	if id == "" {
		return 0, fmt.Errorf("schedule: empty job id")
	}
	if fn == nil {
		return 0, fmt.Errorf("schedule %s: nil job function", id)
	}
	if err := trigger.validate(); err != nil {
		return 0, fmt.Errorf("schedule %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return 0, domain.ErrSchedulerStopped
	}

	if e, ok := s.jobs[id]; ok {
		if e.state == StateRunning || e.trigger.Equal(trigger) {
			return AlreadyActive, nil
		}
		e.trigger = trigger
		e.fn = fn
		s.armLocked(e, true)
		s.logger.Info("job rescheduled",
			ports.String("job", id),
			ports.String("trigger", trigger.String()),
			ports.Time("next_run", e.next))
		return Rescheduled, nil
	}

	e := &entry{id: id, trigger: trigger, fn: fn, state: StatePending}
	s.jobs[id] = e
	s.armLocked(e, true)
	s.logger.Info("job scheduled",
		ports.String("job", id),
		ports.String("trigger", trigger.String()),
		ports.Time("next_run", e.next))
	return Added, nil
}

// Unschedule removes a pending job.
func (s *Scheduler) Unschedule(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	if e.state != StatePending {
		return fmt.Errorf("%w: %s is %s", domain.ErrJobNotPending, id, e.state)
	}
	s.disarmLocked(e)
	delete(s.jobs, id)
	s.logger.Info("job unscheduled", ports.String("job", id))
	return nil
}

// Lookup returns a view of the job with id.
func (s *Scheduler) Lookup(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return e.view(), true
}

// Snapshot returns every known job sorted by id.
func (s *Scheduler) Snapshot() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]Job, 0, len(s.jobs))
	for _, e := range s.jobs {
		jobs = append(jobs, e.view())
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs
}

// Shutdown stops every trigger and the worker. With wait the in-flight job
// runs to completion before Shutdown returns; without wait its context is
// cancelled and Shutdown returns immediately. Shutdown is idempotent.
func (s *Scheduler) Shutdown(wait bool) {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		for _, e := range s.jobs {
			s.disarmLocked(e)
		}
		s.ready = nil
		s.mu.Unlock()

		if !wait {
			s.cancelJob()
		}
		close(s.quit)
	})

	if wait {
		<-s.done
		s.cancelJob()
	}
}

// armLocked starts the timer for the next fire of e.
func (s *Scheduler) armLocked(e *entry, fresh bool) {
	s.disarmLocked(e)

	now := s.opts.Now()
	if fresh {
		e.anchor = e.trigger.StartAt
		if e.anchor.IsZero() {
			e.anchor = now
		}
		e.next = e.trigger.first(e.anchor, now)
	} else {
		e.next = e.trigger.after(e.anchor, now)
	}

	e.gen++
	gen := e.gen
	e.timer = time.AfterFunc(e.next.Sub(now), func() { s.fire(e.id, gen) })
}

func (s *Scheduler) disarmLocked(e *entry) {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.gen++
}

// fire moves a pending job onto the ready queue. Stale timers from a
// replaced trigger are ignored.
func (s *Scheduler) fire(id string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[id]
	if !ok || e.gen != gen || s.stopped || e.state != StatePending {
		return
	}
	e.timer = nil
	e.state = StateRunning
	s.ready = append(s.ready, e)

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) worker() {
	defer close(s.done)

	for {
		s.mu.Lock()
		var e *entry
		if !s.stopped && len(s.ready) > 0 {
			e = s.ready[0]
			s.ready = s.ready[1:]
		}
		s.mu.Unlock()

		if e != nil {
			s.execute(e)
			continue
		}

		select {
		case <-s.wake:
		case <-s.quit:
			return
		}
	}
}

func (s *Scheduler) execute(e *entry) {
	start := time.Now()
	err := s.call(e)
	elapsed := time.Since(start)

	if err != nil {
		s.logger.Error("job failed",
			ports.String("job", e.id),
			ports.Duration("elapsed", elapsed),
			ports.Err(err))
	} else {
		s.logger.Debug("job finished",
			ports.String("job", e.id),
			ports.Duration("elapsed", elapsed))
	}

	s.mu.Lock()
	e.runs++
	e.lastErr = err
	if e.trigger.IsInterval() && !s.stopped {
		e.state = StatePending
		s.armLocked(e, false)
	} else {
		delete(s.jobs, e.id)
	}
	s.mu.Unlock()

	if s.opts.OnFinish != nil {
		s.opts.OnFinish(e.id, err, elapsed)
	}
}

// call runs the job function, converting a panic into an error.
func (s *Scheduler) call(e *entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", e.id, r)
			s.logger.Error("job panic",
				ports.String("job", e.id),
				ports.String("stack", string(debug.Stack())))
		}
	}()
	return e.fn(s.jobCtx)
}

func (e *entry) view() Job {
	return Job{
		ID:      e.id,
		Trigger: e.trigger,
		State:   e.state,
		NextRun: e.next,
		Runs:    e.runs,
		LastErr: e.lastErr,
	}
}
