// package executor
//
// runs tasks on a bounded worker pool in two phases. every task is initialized before
// any task executes so sizes are stable while progress is counted
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/baderkha/db-migrate/pkg/migrate/task"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInitialization = errors.New("some tasks failed to initialize")
	ErrTasksFailed    = errors.New("some tasks failed")
)

// DefaultPollInterval : how often progress is sampled and reported
const DefaultPollInterval = time.Second

// Options : pool size and reporting
type Options struct {
	Concurrency  int
	PollInterval time.Duration
	// Unit : what completed counts, rows or bytes
	Unit     Unit
	Reporter Reporter
}

// Executor : not safe for concurrent Execute calls, one executor owns its tasks
type Executor struct {
	opts Options
	log  zerolog.Logger
}

// New : executor with defaults filled in, a nil reporter logs through log
func New(opts Options, log zerolog.Logger) *Executor {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Reporter == nil {
		opts.Reporter = NewLogReporter(log, opts.Unit)
	}
	return &Executor{
		opts: opts,
		log:  log.With().Str("component", "executor").Logger(),
	}
}

// Execute : initializes then executes every task. an initialization failure cancels the
// remaining initializations, a failed execution leaves the other tasks running. the
// result aggregates the errors of all failed tasks
func (e *Executor) Execute(ctx context.Context, tasks []*task.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	e.log.Debug().Int("tasks", len(tasks)).Msg("initializing tasks")
	if err := e.initialize(ctx, tasks); err != nil {
		return err
	}
	e.log.Debug().Int("tasks", len(tasks)).Msg("executing tasks")
	return e.execute(ctx, tasks)
}

func (e *Executor) initialize(ctx context.Context, tasks []*task.Task) error {
	poll := func() bool {
		initialized, failed := 0, 0
		for _, t := range tasks {
			s := t.Snapshot()
			if s.Failed {
				failed++
			} else if s.Initialized {
				initialized++
			}
		}
		e.opts.Reporter.Initialized(initialized, len(tasks))
		return failed > 0
	}
	e.phase(ctx, tasks, func(ctx context.Context, t *task.Task) error {
		return t.Initialize(ctx)
	}, poll, true)

	if err := failures(ErrInitialization, tasks); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("initialization interrupted : %w", err)
	}
	for _, t := range tasks {
		if !t.Initialized() {
			return fmt.Errorf("%w : %s was not initialized", ErrInitialization, t.Name())
		}
	}
	return nil
}

func (e *Executor) execute(ctx context.Context, tasks []*task.Task) error {
	var size int64
	for _, t := range tasks {
		size += t.Size()
	}
	started := time.Now()
	speed := newSpeedWindow(speedSamples)
	speed.add(started, 0, 0)
	poll := func() bool {
		p := e.progress(tasks, size, speed, time.Now())
		e.opts.Reporter.Progress(p)
		return p.Failed > 0
	}
	e.phase(ctx, tasks, func(ctx context.Context, t *task.Task) error {
		return t.Execute(ctx)
	}, poll, false)

	final := e.progress(tasks, size, speed, time.Now())
	final.Elapsed = time.Since(started)
	e.opts.Reporter.Done(final)

	if err := failures(ErrTasksFailed, tasks); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("execution interrupted : %w", err)
	}
	if final.Complete != len(tasks) {
		return fmt.Errorf("%w : %d of %d tasks completed", ErrTasksFailed, final.Complete, len(tasks))
	}
	return nil
}

// phase runs step for every task on the pool and polls until all steps returned.
// with failFast a failed step, or a failure seen by poll, cancels the other steps
func (e *Executor) phase(ctx context.Context, tasks []*task.Task, step func(context.Context, *task.Task) error, poll func() bool, failFast bool) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)

	submitted := make(chan struct{})
	go func() {
		defer close(submitted)
		for _, t := range tasks {
			t := t
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := step(gctx, t); err != nil {
					e.log.Error().Err(err).Str("task", t.Name()).Msg("error executing task")
					if failFast {
						return err
					}
				}
				return nil
			})
		}
	}()
	finished := make(chan struct{})
	go func() {
		<-submitted
		_ = g.Wait()
		close(finished)
	}()

	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-finished:
			poll()
			return
		case <-ticker.C:
			if poll() && failFast {
				cancel()
			}
		}
	}
}

func (e *Executor) progress(tasks []*task.Task, size int64, speed *speedWindow, now time.Time) Progress {
	p := Progress{Total: len(tasks), Size: size, Unit: e.opts.Unit, ETA: -1}
	for _, t := range tasks {
		s := t.Snapshot()
		p.Completed += s.Completed
		switch {
		case s.Failed:
			p.Failed++
		case s.Complete:
			p.Complete++
		}
		if s.Executing {
			p.Executing++
		}
	}
	p.Percent = 100
	if size > 0 {
		p.Percent = 100 * float64(p.Completed) / float64(size)
	}
	speed.add(now, p.Executing, p.Completed)
	if perMs := speed.mean(); perMs > 0 {
		p.Speed = perMs * 1000
		p.ETA = time.Duration(float64(size-p.Completed)/perMs) * time.Millisecond
	}
	return p
}

func failures(sentinel error, tasks []*task.Task) error {
	var res *multierror.Error
	for _, t := range tasks {
		if err := t.Err(); err != nil {
			if res == nil {
				res = multierror.Append(res, sentinel)
			}
			res = multierror.Append(res, err)
		}
	}
	return res.ErrorOrNil()
}
