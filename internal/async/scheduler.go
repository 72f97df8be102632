package async

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/pulseengine/wrt-go/internal/exec"
	"github.com/pulseengine/wrt-go/internal/platform"
)

// defaultMaxConcurrentWaits bounds how many tasks may be simultaneously
// parked in TaskWaiting across the whole scheduler, independent of the
// per-wait maxWaitablesPerSet cap, per SPEC_FULL.md §2's semaphore note.
const defaultMaxConcurrentWaits = 256

// defaultFuelPerTick is how much fuel is added to a task's remaining fuel
// each time the scheduler gives it a turn; a task that exhausts it mid-instruction
// simply yields back to the run queue rather than trapping, so fuel
// accounting bounds tick latency without bounding total task lifetime.
const defaultFuelPerTick uint64 = 100_000

// defaultTaskFuelBudget is a task's total lifetime fuel cap, per spec.md
// §4.4's fuel_budget; exceeding it (unlike exhausting a single tick's
// grant) cancels the task outright.
const defaultTaskFuelBudget uint64 = 1_000_000

// Scheduler is the fuel-metered cooperative task scheduler, per spec.md
// §4.4: a run queue of Ready tasks, a bounded pool of concurrently
// blocked waits, and the builtin registry that gives task.wait/
// task.yield/task.poll their semantics on top of internal/exec's
// builtin-agnostic Step.
type Scheduler struct {
	log *zap.Logger

	clock platform.Clock

	tasks    *HandleTable[*Task]
	runQueue []TaskId
	waiting  []TaskId

	// resources backs every Waitable a task.wait/task.poll call may
	// name: futures, streams, and the synthetic per-task "done" waitable
	// DoneWaitable exposes. waitSets backs the WaitableSet a WaitOperation
	// points at, so the ABI can pass a single packed Handle rather than
	// an inline list of waitables on every task.wait call.
	resources *HandleTable[*Resource]
	waitSets  *HandleTable[*WaitableSet]

	waitSem *semaphore.Weighted

	fuelPerTick    uint64
	taskFuelBudget uint64
}

// SchedulerOption configures a Scheduler at construction time.
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger attaches a structured logger.
func WithSchedulerLogger(log *zap.Logger) SchedulerOption {
	return func(s *Scheduler) { s.log = log }
}

// WithMaxConcurrentWaits overrides defaultMaxConcurrentWaits.
func WithMaxConcurrentWaits(n int64) SchedulerOption {
	return func(s *Scheduler) { s.waitSem = semaphore.NewWeighted(n) }
}

// WithFuelPerTick overrides defaultFuelPerTick.
func WithFuelPerTick(fuel uint64) SchedulerOption {
	return func(s *Scheduler) { s.fuelPerTick = fuel }
}

// WithTaskFuelBudget overrides defaultTaskFuelBudget, the per-task
// lifetime fuel cap newly spawned tasks are given.
func WithTaskFuelBudget(budget uint64) SchedulerOption {
	return func(s *Scheduler) { s.taskFuelBudget = budget }
}

// WithClock overrides the default platform.Clock (for deterministic
// tests).
func WithClock(c platform.Clock) SchedulerOption {
	return func(s *Scheduler) { s.clock = c }
}

// NewScheduler constructs an empty Scheduler.
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		log:            zap.NewNop(),
		clock:          platform.NewClock(),
		tasks:          NewHandleTable[*Task](),
		resources:      NewHandleTable[*Resource](),
		waitSets:       NewHandleTable[*WaitableSet](),
		waitSem:        semaphore.NewWeighted(defaultMaxConcurrentWaits),
		fuelPerTick:    defaultFuelPerTick,
		taskFuelBudget: defaultTaskFuelBudget,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Spawn registers a new task around inst's funcIdx call, Ready to run on
// the next Tick/RunUntilIdle pass, with the scheduler's default
// taskFuelBudget as its lifetime fuel cap.
func (s *Scheduler) Spawn(inst *exec.Instance, funcIdx uint32, args []uint64) (TaskId, error) {
	return s.SpawnWithFuelBudget(inst, funcIdx, args, s.taskFuelBudget)
}

// SpawnWithFuelBudget is Spawn with an explicit per-task fuel_budget cap
// (0 means unbounded), for callers that need a tighter or looser ceiling
// than the scheduler's default.
func (s *Scheduler) SpawnWithFuelBudget(inst *exec.Instance, funcIdx uint32, args []uint64, fuelBudget uint64) (TaskId, error) {
	fn := inst.Functions[funcIdx]
	ctx := &exec.ExecutionContext{Instance: inst, VerificationLevel: exec.VerificationStandard}
	doneHandle, err := s.resources.Allocate(&Resource{})
	if err != nil {
		return TaskId{}, err
	}
	t := &Task{ctx: ctx, state: TaskReady, fuelBudget: fuelBudget, doneResource: doneHandle}
	locals := make([]uint64, fn.Compiled.NumLocals)
	copy(locals, args)
	ctx.Frames = append(ctx.Frames, &exec.Frame{
		Func:    fn,
		Locals:  locals,
		Operand: make([]uint64, 0, fn.Compiled.MaxStackHeight+1),
	})
	id, err := s.tasks.Allocate(t)
	if err != nil {
		return TaskId{}, err
	}
	t.ID = id
	s.enqueue(id)
	return id, nil
}

// Task looks up a previously spawned task by id.
func (s *Scheduler) Task(id TaskId) (*Task, error) { return s.tasks.Get(id) }

// NewResource allocates a fresh not-ready Resource and returns its
// Handle, for embedders that back a future/stream endpoint not tied to
// any task (e.g. a host I/O completion), per spec.md §3.4's Waitable
// model.
func (s *Scheduler) NewResource() (Handle, error) { return s.resources.Allocate(&Resource{}) }

// MarkResourceReady marks the Resource named by h ready, so any pending
// task.wait whose WaitableSet includes a Waitable over h is unblocked on
// the next resolveWaits pass (and any task.poll immediately observes it).
func (s *Scheduler) MarkResourceReady(h Handle) error {
	r, err := s.resources.Get(h)
	if err != nil {
		return err
	}
	r.ready = true
	return nil
}

// NewWaitableSet registers a WaitableSet built from items and returns its
// Handle, for use as task.wait/task.poll's set argument.
func (s *Scheduler) NewWaitableSet(items ...Waitable) (Handle, error) {
	set, err := NewWaitableSet(items...)
	if err != nil {
		return Handle{}, err
	}
	return s.waitSets.Allocate(set)
}

// firstReady returns the index of the first ready Waitable in set, if
// any.
func (s *Scheduler) firstReady(set *WaitableSet) (int, bool) {
	for i, w := range set.Items {
		r, err := s.resources.Get(w.Handle)
		if err != nil {
			continue
		}
		if r.IsReady() {
			return i, true
		}
	}
	return 0, false
}

func (s *Scheduler) enqueue(id TaskId) { s.runQueue = append(s.runQueue, id) }

// admitWait bounds concurrent WaitOperations to waitSem's weight; a task
// that cannot acquire a slot fails its wait immediately rather than
// silently growing an unbounded waiter list, per SPEC_FULL.md §2.
func (s *Scheduler) admitWait(t *Task) error {
	if !s.waitSem.TryAcquire(1) {
		t.ctx.PushBuiltinResult([]uint64{uint64(WaitStatusCancelled), 0})
		t.state = TaskReady
		s.enqueue(t.ID)
		return nil
	}
	s.waiting = append(s.waiting, t.ID)
	return nil
}

// resolveWaits promotes every TaskWaiting task whose WaitOperation
// target has a ready waitable, or whose deadline has passed, back to
// Ready, releasing its waitSem slot.
func (s *Scheduler) resolveWaits() {
	remaining := s.waiting[:0]
	for _, id := range s.waiting {
		t, err := s.tasks.Get(id)
		if err != nil || t.wait == nil {
			continue
		}
		ready := false
		status := WaitStatusPending
		index := 0

		set, serr := s.waitSets.Get(t.wait.Set)
		switch {
		case serr != nil:
			ready, status = true, WaitStatusCancelled
		default:
			if idx, hit := s.firstReady(set); hit {
				ready, status, index = true, WaitStatusReady, idx
			} else if t.wait.Deadline != noDeadline && s.clock.Now() >= t.wait.Deadline {
				ready, status = true, WaitStatusTimedOut
			}
		}

		if ready {
			t.ctx.PushBuiltinResult([]uint64{uint64(status), uint64(index)})
			t.wait = nil
			t.state = TaskReady
			s.waitSem.Release(1)
			s.enqueue(t.ID)
			continue
		}
		remaining = append(remaining, id)
	}
	s.waiting = remaining
}

// markDone marks t terminal with the given state, and marks its
// DoneWaitable's backing resource ready so any task.wait parked on
// t.DoneWaitable() unblocks.
func (s *Scheduler) markDone(t *Task, state TaskState) {
	t.state = state
	if r, err := s.resources.Get(t.doneResource); err == nil {
		r.ready = true
	}
}

// Tick gives every currently-Ready task a turn, adding fuelPerTick to
// whatever fuel it has left and running it until that runs out (or it
// yields/completes/traps), then resolves any waits that became
// satisfied as a result, per spec.md §4.4's round-robin cooperative
// scheduling model. It returns false once there is no more work: no
// Ready tasks and no pending waits.
func (s *Scheduler) Tick() bool {
	queue := s.runQueue
	s.runQueue = nil
	for _, id := range queue {
		s.runOne(id)
	}
	s.resolveWaits()
	return len(s.runQueue) > 0 || len(s.waiting) > 0
}

func (s *Scheduler) runOne(id TaskId) {
	t, err := s.tasks.Get(id)
	if err != nil {
		return
	}
	t.state = TaskRunning

	// fuel_budget (spec.md §4.4) is the task's lifetime cap, checked at
	// the start of each turn and again after every step: exhausting a
	// single tick's fuelPerTick grant yields the task cooperatively
	// (YieldOutOfFuel below) so it gets another grant next tick, but a
	// task whose cumulative fuelConsumed has reached its budget is
	// cancelled instead of re-armed, and one whose last step took it past
	// the budget is cancelled at once.
	if t.fuelBudget != 0 && t.fuelConsumed >= t.fuelBudget {
		s.markDone(t, TaskCancelled)
		t.err = ErrTaskFuelBudgetExceeded
		s.log.Warn("task cancelled: fuel budget exceeded", zap.Stringer("task", t.ID))
		return
	}
	t.ctx.FuelRemaining += s.fuelPerTick

	for {
		before := t.ctx.FuelRemaining
		res := exec.Step(t.ctx)
		if after := t.ctx.FuelRemaining; before > after {
			t.fuelConsumed += before - after
		}
		if t.fuelBudget != 0 && t.fuelConsumed > t.fuelBudget {
			s.markDone(t, TaskCancelled)
			t.err = ErrTaskFuelBudgetExceeded
			s.log.Warn("task cancelled: fuel budget exceeded", zap.Stringer("task", t.ID))
			return
		}

		switch res.Kind {
		case exec.Continued:
			continue
		case exec.Completed:
			s.markDone(t, TaskCompleted)
			t.result = res.Values
			s.log.Debug("task completed", zap.Stringer("task", t.ID))
			return
		case exec.Trapped:
			s.markDone(t, TaskCompleted)
			t.err = res.Trap
			s.log.Warn("task trapped", zap.Stringer("task", t.ID), zap.Error(res.Trap))
			return
		case exec.Yielded:
			switch res.Reason {
			case exec.YieldOutOfFuel:
				t.state = TaskReady
				s.enqueue(id)
				return
			case exec.YieldCooperative:
				t.state = TaskReady
				s.enqueue(id)
				return
			case exec.YieldBuiltin:
				// Every handler fully owns t's next scheduling state
				// (Ready+enqueued, or Waiting) before returning, so this
				// tick's involvement with t ends here regardless of
				// outcome — re-running Step now would race the
				// already-enqueued resumption.
				if err := dispatchBuiltin(s, t, res.Builtin); err != nil {
					s.markDone(t, TaskCancelled)
					t.err = err
				}
				return
			}
		}
	}
}

// RunUntilIdle drains the run queue and every pending wait to
// completion, dispatching each tick on a single worker goroutine managed
// by an errgroup so cancellation (ctx.Done) and any future
// multi-worker extension compose with the caller's own goroutine
// group, per SPEC_FULL.md §2's errgroup wiring note.
func (s *Scheduler) RunUntilIdle(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for s.Tick() {
			if err := gctx.Err(); err != nil {
				return err
			}
		}
		return nil
	})
	return g.Wait()
}
