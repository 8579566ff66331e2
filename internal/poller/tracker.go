package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thebridge/bridge-checkout/internal/metrics"
)

var ErrTrackerClosed = errors.New("order tracker is shut down")

// Job describes one order to track on behalf of an owner.
type Job struct {
	Owner      string
	PubTrackID string
	Query      StatusFunc
	// OnCompleted runs once when the order completes and the task was not
	// cancelled first.
	OnCompleted func(ctx context.Context) error
	// OnResolved runs once with the final result, whatever the outcome.
	OnResolved func(ctx context.Context, res Result)
}

// Snapshot is a point-in-time view of a task.
type Snapshot struct {
	Owner      string
	PubTrackID string
	Processing bool
	Outcome    Outcome
	Attempts   int
	Err        error
	StartedAt  time.Time
	ResolvedAt *time.Time
}

// Task is a running or finished tracking run owned by a Tracker.
type Task struct {
	owner      string
	pubTrackID string
	startedAt  time.Time
	cancel     context.CancelFunc
	done       chan struct{}
	attempts   atomic.Int32

	mu         sync.Mutex
	result     Result
	resolvedAt time.Time
}

func (t *Task) Owner() string      { return t.owner }
func (t *Task) PubTrackID() string { return t.pubTrackID }

// Cancel stops polling. The task resolves as aborted unless it already
// reached another terminal outcome.
func (t *Task) Cancel() { t.cancel() }

func (t *Task) Done() <-chan struct{} { return t.done }

// Processing reports whether the task is still waiting on the order.
func (t *Task) Processing() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// Wait blocks until the task resolves or ctx ends.
func (t *Task) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (t *Task) Snapshot() Snapshot {
	processing := t.Processing()
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{
		Owner:      t.owner,
		PubTrackID: t.pubTrackID,
		Processing: processing,
		Outcome:    OutcomePolling,
		Attempts:   int(t.attempts.Load()),
		StartedAt:  t.startedAt,
	}
	if !processing {
		resolved := t.resolvedAt
		snap.Outcome = t.result.Outcome
		snap.Err = t.result.Err
		snap.ResolvedAt = &resolved
	}
	return snap
}

func (t *Task) settled() bool {
	if t.Processing() {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result.Outcome.Final()
}

func (t *Task) finish(res Result, at time.Time) {
	t.mu.Lock()
	t.result = res
	t.resolvedAt = at
	t.mu.Unlock()
	close(t.done)
}

type taskKey struct {
	owner      string
	pubTrackID string
}

// Tracker owns every tracking task. At most one task per owner and
// tracking id polls at a time; different orders poll independently.
type Tracker struct {
	poller    *Poller
	retention time.Duration
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	tasks  map[taskKey]*Task
	closed bool
}

// NewTracker creates a tracker. Finished tasks stay queryable for retention.
func NewTracker(p *Poller, retention time.Duration) *Tracker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		poller:    p,
		retention: retention,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		tasks:     make(map[taskKey]*Task),
	}
}

// Start begins tracking job. It returns the retained task instead when that
// task is still polling the same order for the same owner, or when the order
// already settled as completed, failed or cancelled. Runs that timed out,
// hit a query error or were aborted are started again.
func (tr *Tracker) Start(job Job) (*Task, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.closed {
		return nil, ErrTrackerClosed
	}
	tr.pruneLocked()

	key := taskKey{owner: job.Owner, pubTrackID: job.PubTrackID}
	if existing, ok := tr.tasks[key]; ok && (existing.Processing() || existing.settled()) {
		return existing, nil
	}

	ctx, cancel := context.WithCancel(tr.ctx)
	task := &Task{
		owner:      job.Owner,
		pubTrackID: job.PubTrackID,
		startedAt:  tr.now(),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	tr.tasks[key] = task

	tr.wg.Add(1)
	go tr.run(ctx, task, job)

	return task, nil
}

func (tr *Tracker) run(ctx context.Context, task *Task, job Job) {
	defer tr.wg.Done()
	defer task.cancel()

	metrics.TrackingActive.Inc()
	defer metrics.TrackingActive.Dec()

	logger := slog.With("member_id", job.Owner, "pub_track_id", job.PubTrackID)

	query := func(qctx context.Context, id string) (Status, error) {
		task.attempts.Add(1)
		return job.Query(qctx, id)
	}
	res := tr.poller.Run(ctx, job.PubTrackID, query)

	if res.Outcome == OutcomeCompleted && job.OnCompleted != nil {
		// A consumer that went away must not trigger invalidation.
		if err := ctx.Err(); err != nil {
			res.Outcome = OutcomeAborted
			res.Err = err
		} else if err := job.OnCompleted(ctx); err != nil {
			logger.Error("post-completion hook failed", "error", err)
		}
	}

	task.finish(res, tr.now())
	metrics.TrackingOutcomes.WithLabelValues(string(res.Outcome)).Inc()

	if res.Err != nil && res.Outcome != OutcomeAborted {
		logger.Warn("order tracking ended", "outcome", res.Outcome, "attempts", res.Attempts, "error", res.Err)
	} else {
		logger.Info("order tracking ended", "outcome", res.Outcome, "attempts", res.Attempts)
	}

	if job.OnResolved != nil {
		job.OnResolved(context.WithoutCancel(ctx), res)
	}
}

// Get returns the task for owner and tracking id, running or retained.
func (tr *Tracker) Get(owner, pubTrackID string) (*Task, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.pruneLocked()
	task, ok := tr.tasks[taskKey{owner: owner, pubTrackID: pubTrackID}]
	return task, ok
}

// Cancel stops the owner's task for the tracking id. It reports whether a
// running task was found.
func (tr *Tracker) Cancel(owner, pubTrackID string) bool {
	tr.mu.Lock()
	task, ok := tr.tasks[taskKey{owner: owner, pubTrackID: pubTrackID}]
	tr.mu.Unlock()
	if !ok || !task.Processing() {
		return false
	}
	task.Cancel()
	return true
}

// CancelOwner stops every running task of owner and returns how many.
func (tr *Tracker) CancelOwner(owner string) int {
	tr.mu.Lock()
	var running []*Task
	for key, task := range tr.tasks {
		if key.owner == owner && task.Processing() {
			running = append(running, task)
		}
	}
	tr.mu.Unlock()

	for _, task := range running {
		task.Cancel()
	}
	return len(running)
}

// Tasks lists snapshots of every known task.
func (tr *Tracker) Tasks() []Snapshot {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.pruneLocked()
	out := make([]Snapshot, 0, len(tr.tasks))
	for _, task := range tr.tasks {
		out = append(out, task.Snapshot())
	}
	return out
}

// Active returns the number of tasks still polling.
func (tr *Tracker) Active() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	n := 0
	for _, task := range tr.tasks {
		if task.Processing() {
			n++
		}
	}
	return n
}

// Shutdown cancels all tasks and waits for them to resolve or ctx to end.
func (tr *Tracker) Shutdown(ctx context.Context) error {
	tr.mu.Lock()
	tr.closed = true
	tr.mu.Unlock()
	tr.cancel()

	done := make(chan struct{})
	go func() {
		tr.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (tr *Tracker) pruneLocked() {
	if tr.retention <= 0 {
		return
	}
	cutoff := tr.now().Add(-tr.retention)
	for key, task := range tr.tasks {
		if task.Processing() {
			continue
		}
		task.mu.Lock()
		expired := task.resolvedAt.Before(cutoff)
		task.mu.Unlock()
		if expired {
			delete(tr.tasks, key)
		}
	}
}
