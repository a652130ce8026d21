package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/baderkha/db-migrate/pkg/migrate/task"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type work struct {
	name    string
	size    int64
	initErr error
	execute func(ctx context.Context, t *task.Task) error
	ran     atomic.Bool
}

func (w *work) Name() string { return w.name }

func (w *work) Initialize(_ context.Context, t *task.Task) error {
	if w.initErr != nil {
		return w.initErr
	}
	return t.SetSize(w.size)
}

func (w *work) Execute(ctx context.Context, t *task.Task) error {
	w.ran.Store(true)
	if w.execute != nil {
		return w.execute(ctx, t)
	}
	return t.SetCompleted(w.size)
}

type recorder struct {
	mu       sync.Mutex
	samples  []Progress
	done     *Progress
	initSeen int
}

func (r *recorder) Initialized(initialized int, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initSeen++
}

func (r *recorder) Progress(p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, p)
}

func (r *recorder) Done(p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = &p
}

func newExecutor(concurrency int, rep Reporter) *Executor {
	return New(Options{Concurrency: concurrency, PollInterval: 5 * time.Millisecond, Unit: UnitRows, Reporter: rep}, zerolog.Nop())
}

func TestExecuteAll(t *testing.T) {
	rec := &recorder{}
	var tasks []*task.Task
	for i, size := range []int64{3, 0, 7} {
		tasks = append(tasks, task.New(&work{name: string(rune('a' + i)), size: size}))
	}
	require.NoError(t, newExecutor(2, rec).Execute(context.Background(), tasks))
	for _, tk := range tasks {
		assert.True(t, tk.Complete(), tk.Name())
	}
	require.NotNil(t, rec.done)
	assert.Equal(t, 3, rec.done.Complete)
	assert.Equal(t, int64(10), rec.done.Completed)
	assert.Equal(t, float64(100), rec.done.Percent)
	assert.Positive(t, rec.initSeen)
	assert.False(t, tasks[1].Work().(*work).ran.Load(), "empty tasks are not executed")
}

func TestNoTasks(t *testing.T) {
	assert.NoError(t, newExecutor(1, &recorder{}).Execute(context.Background(), nil))
}

func TestInitializeBarrier(t *testing.T) {
	var tasks []*task.Task
	check := func(ctx context.Context, t *task.Task) error {
		for _, other := range tasks {
			if !other.Initialized() {
				return errors.New("executed before every task was initialized")
			}
		}
		return t.SetCompleted(t.Size())
	}
	for i := 0; i < 8; i++ {
		tasks = append(tasks, task.New(&work{name: "t", size: 1, execute: check}))
	}
	require.NoError(t, newExecutor(3, &recorder{}).Execute(context.Background(), tasks))
}

func TestInitializationFailure(t *testing.T) {
	boom := errors.New("cannot count rows")
	good := &work{name: "good", size: 1}
	tasks := []*task.Task{
		task.New(good),
		task.New(&work{name: "bad", initErr: boom}),
	}
	err := newExecutor(1, &recorder{}).Execute(context.Background(), tasks)
	assert.ErrorIs(t, err, ErrInitialization)
	assert.ErrorIs(t, err, boom)
	assert.False(t, good.ran.Load())
}

func TestInitializationFailFast(t *testing.T) {
	boom := errors.New("cannot count rows")
	var cancelled atomic.Bool
	blocked := &blockedInit{cancelled: &cancelled}
	tasks := []*task.Task{
		task.New(blocked),
		task.New(&work{name: "bad", initErr: boom}),
	}
	done := make(chan error, 1)
	go func() { done <- newExecutor(2, &recorder{}).Execute(context.Background(), tasks) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrInitialization)
		assert.ErrorIs(t, err, boom)
	case <-time.After(5 * time.Second):
		t.Fatal("executor did not cancel the remaining initializations")
	}
	assert.True(t, cancelled.Load())
}

// blockedInit : initialization that only returns once cancelled
type blockedInit struct {
	cancelled *atomic.Bool
}

func (b *blockedInit) Name() string { return "blocked" }

func (b *blockedInit) Initialize(ctx context.Context, _ *task.Task) error {
	<-ctx.Done()
	b.cancelled.Store(true)
	return ctx.Err()
}

func (b *blockedInit) Execute(context.Context, *task.Task) error { return nil }

func TestFailedExecutionLeavesOthersRunning(t *testing.T) {
	boom := errors.New("rounding violation")
	slow := func(ctx context.Context, t *task.Task) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
		return t.SetCompleted(t.Size())
	}
	failing := func(ctx context.Context, t *task.Task) error {
		return boom
	}
	tasks := []*task.Task{
		task.New(&work{name: "slow", size: 1, execute: slow}),
		task.New(&work{name: "bad", size: 1, execute: failing}),
		task.New(&work{name: "queued", size: 2}),
	}
	rec := &recorder{}
	err := newExecutor(2, rec).Execute(context.Background(), tasks)
	assert.ErrorIs(t, err, ErrTasksFailed)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, context.Canceled)

	assert.True(t, tasks[0].Complete())
	assert.True(t, tasks[1].Failed())
	assert.True(t, tasks[2].Complete())
	require.NotNil(t, rec.done)
	assert.Equal(t, 1, rec.done.Failed)
	assert.Equal(t, 2, rec.done.Complete)
}

func TestConcurrencyLimit(t *testing.T) {
	var running, peak atomic.Int32
	body := func(ctx context.Context, t *task.Task) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return t.SetCompleted(1)
	}
	var tasks []*task.Task
	for i := 0; i < 10; i++ {
		tasks = append(tasks, task.New(&work{name: "t", size: 1, execute: body}))
	}
	require.NoError(t, newExecutor(3, &recorder{}).Execute(context.Background(), tasks))
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	blocked := func(ctx context.Context, t *task.Task) error {
		<-ctx.Done()
		return ctx.Err()
	}
	tasks := []*task.Task{task.New(&work{name: "t", size: 1, execute: blocked})}
	time.AfterFunc(20*time.Millisecond, cancel)
	err := newExecutor(1, &recorder{}).Execute(ctx, tasks)
	assert.ErrorIs(t, err, context.Canceled)
}
