// package task
//
// a unit of work with a two phase lifecycle : initialize sets the size, execute
// advances completed up to size. every counter write is checked, a broken invariant
// fails the task instead of producing wrong progress numbers
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrInvariant : size or progress written in a way the lifecycle forbids
var ErrInvariant = errors.New("task invariant violated")

// Work : what a task does, implementations report through the task they are handed
type Work interface {
	Name() string
	// Initialize : must call SetSize, a size of 0 means the work will not be executed
	Initialize(ctx context.Context, t *Task) error
	// Execute : must advance completed up to the size
	Execute(ctx context.Context, t *Task) error
}

// Task : progress and failure state of one Work
type Task struct {
	work      Work
	lifecycle sync.Mutex

	mu        sync.Mutex
	size      int64
	completed int64
	executing bool
	err       error
}

// Snapshot : consistent copy of the task state
type Snapshot struct {
	Name        string
	Size        int64
	Completed   int64
	Executing   bool
	Initialized bool
	Complete    bool
	Failed      bool
	Err         error
}

// New : uninitialized task for w
func New(w Work) *Task {
	return &Task{work: w, size: -1}
}

func (t *Task) Name() string {
	return t.work.Name()
}

// Work : the wrapped work
func (t *Task) Work() Work {
	return t.work
}

// SetSize : write once, negative sizes are rejected
func (t *Task) SetSize(size int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case size < 0:
		return t.violation("negative size not allowed : %d", size)
	case t.size != -1:
		return t.violation("size has already been set")
	}
	t.size = size
	return nil
}

// SetCompleted : sets progress, never backwards, never past the size and never once complete
func (t *Task) SetCompleted(completed int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.setCompleted(completed)
}

// Advance : adds delta to the progress with the checks of SetCompleted
func (t *Task) Advance(delta int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if delta < 0 {
		return t.violation("negative advance not allowed : %d", delta)
	}
	return t.setCompleted(t.completed + delta)
}

func (t *Task) setCompleted(completed int64) error {
	switch {
	case completed < 0:
		return t.violation("negative completion not allowed : %d", completed)
	case t.size == -1:
		return t.violation("size has not yet been initialized")
	case completed > t.size:
		return t.violation("completion cannot be greater than size : %d > %d", completed, t.size)
	case t.completed == t.size:
		return t.violation("completion cannot be set after the task has been completed")
	case completed < t.completed:
		return t.violation("completion cannot decrease : %d < %d", completed, t.completed)
	}
	t.completed = completed
	return nil
}

// callers hold mu
func (t *Task) violation(format string, args ...any) error {
	err := fmt.Errorf("%s : %w : %s", t.work.Name(), ErrInvariant, fmt.Sprintf(format, args...))
	if t.err == nil {
		t.err = err
	}
	return err
}

func (t *Task) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err == nil {
		t.err = err
	}
}

func (t *Task) Size() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size
}

func (t *Task) Completed() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed
}

// Err : the first failure, permanent once set
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Task) Failed() bool {
	return t.Err() != nil
}

func (t *Task) Initialized() bool {
	s := t.Snapshot()
	return s.Initialized
}

func (t *Task) Complete() bool {
	s := t.Snapshot()
	return s.Complete
}

func (t *Task) Executing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.executing
}

func (t *Task) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	ok := t.err == nil && t.size != -1
	return Snapshot{
		Name:        t.work.Name(),
		Size:        t.size,
		Completed:   t.completed,
		Executing:   t.executing,
		Initialized: ok,
		Complete:    ok && t.completed == t.size,
		Failed:      t.err != nil,
		Err:         t.err,
	}
}

// Initialize : runs the initialization of the work once
func (t *Task) Initialize(ctx context.Context) (err error) {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()
	if t.Size() != -1 {
		return fmt.Errorf("%s : %w : already initialized", t.Name(), ErrInvariant)
	}
	defer func() {
		if err != nil {
			t.fail(err)
		}
	}()
	if err := guard(func() error { return t.work.Initialize(ctx, t) }); err != nil {
		return fmt.Errorf("%s : %w", t.Name(), err)
	}
	if t.Size() < 0 {
		return fmt.Errorf("%s : %w : initialization did not set a size", t.Name(), ErrInvariant)
	}
	return nil
}

// Execute : runs the work once, a task of size 0 completes without running it
func (t *Task) Execute(ctx context.Context) (err error) {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()
	s := t.Snapshot()
	switch {
	case s.Size < 0:
		return fmt.Errorf("%s : %w : not initialized", s.Name, ErrInvariant)
	case s.Completed != 0:
		return fmt.Errorf("%s : %w : already executed", s.Name, ErrInvariant)
	case s.Failed:
		return fmt.Errorf("%s : cannot start a task with failed initialization : %w", s.Name, s.Err)
	case s.Completed == s.Size:
		return nil
	}

	defer func() {
		if err != nil {
			t.fail(err)
		}
	}()
	t.setExecuting(true)
	err = guard(func() error { return t.work.Execute(ctx, t) })
	t.setExecuting(false)
	if err != nil {
		return fmt.Errorf("%s : %w", s.Name, err)
	}
	if s = t.Snapshot(); s.Failed {
		return s.Err
	}
	if s.Completed < s.Size {
		return fmt.Errorf("%s : %w : execution did not complete : %d < %d", s.Name, ErrInvariant, s.Completed, s.Size)
	}
	return nil
}

func (t *Task) setExecuting(v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.executing = v
}

func guard(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic : %v", r)
		}
	}()
	return f()
}
