package async

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/pulseengine/wrt-go/internal/exec"
)

// TaskState is a task's position in the scheduler's state machine, per
// spec.md §4.4: `state ∈ {Ready, Running, Waiting, Completed,
// Cancelled}`.
type TaskState uint8

const (
	TaskReady TaskState = iota
	TaskRunning
	TaskWaiting
	TaskCompleted
	TaskCancelled
)

func (s TaskState) String() string {
	switch s {
	case TaskReady:
		return "ready"
	case TaskRunning:
		return "running"
	case TaskWaiting:
		return "waiting"
	case TaskCompleted:
		return "completed"
	case TaskCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Done reports whether s is a terminal state (Completed or Cancelled),
// the two outcomes spec.md §4.4's fuel-cap property and task.wait's
// target-completion check both treat identically, while State() still
// exposes which one actually occurred.
func (s TaskState) Done() bool { return s == TaskCompleted || s == TaskCancelled }

// Task is one in-flight call: the suspended interpreter continuation
// (exec.ExecutionContext) the scheduler resumes by calling exec.Step,
// plus scheduling metadata the interpreter itself knows nothing about.
// Storing ctx directly is what makes suspension across scheduler ticks
// free — there is no separate snapshot/restore step, per spec.md §9's
// "the execution context is the continuation."
type Task struct {
	ID   TaskId
	UUID uuid.UUID // set only when minted via NewTaskIDFromUUID's caller; zero otherwise

	ctx   *exec.ExecutionContext
	state TaskState

	wait *WaitOperation

	// fuelBudget is the task's total fuel cap (spec.md §4.4's
	// fuel_budget); fuelConsumed is the monotonic running total charged
	// against it across every tick this task has run. Exceeding it
	// cancels the task with ErrTaskFuelBudgetExceeded rather than merely
	// re-queuing it for another tick.
	fuelBudget   uint64
	fuelConsumed uint64

	// doneResource is a FutureReadable waitable this task's own
	// completion marks ready, letting another task task.wait on it
	// (Task.DoneWaitable) without L4 modeling a separate "wait on task"
	// kind outside spec.md §3.4's Waitable enum.
	doneResource Handle

	result []uint64
	err    error
}

// State returns the task's current scheduling state.
func (t *Task) State() TaskState { return t.state }

// Result returns the task's return values and error once State().Done();
// both are zero/nil before then.
func (t *Task) Result() ([]uint64, error) { return t.result, t.err }

// FuelConsumed returns the total fuel charged against this task so far,
// per spec.md §4.4's fuel_consumed.
func (t *Task) FuelConsumed() uint64 { return t.fuelConsumed }

// chargeFuel charges cost against the task's total fuel_budget cap,
// reporting false (and leaving fuelConsumed unchanged) if the charge
// would exceed it, per spec.md §4.4 "exceeding the cap cancels the
// task." This is independent of the per-tick fuelPerTick grant the
// scheduler re-arms on ExecutionContext.FuelRemaining: that one governs
// cooperative re-queuing within a single call to Step, this one governs
// the task's lifetime total.
func (t *Task) chargeFuel(cost uint64) bool {
	if t.fuelBudget != 0 && t.fuelConsumed+cost > t.fuelBudget {
		return false
	}
	t.fuelConsumed += cost
	return true
}

// DoneWaitable returns a Waitable that becomes ready the instant this
// task reaches TaskCompleted or TaskCancelled, for another task to
// task.wait/task.poll on via a WaitableSet.
func (t *Task) DoneWaitable() Waitable { return Waitable{Kind: FutureReadable, Handle: t.doneResource} }

// NewTaskIDFromUUID derives a TaskId whose Index is not meaningful on
// its own but whose paired UUID gives embedders a globally-unique
// identifier across separate runtime instances — an alternative to the
// scheduler's default monotonic-counter handles for logs/traces that
// span multiple processes, per SPEC_FULL.md §2's uuid wiring note. The
// returned id is not registered with any Scheduler, so it does not name
// a spawned task.
func NewTaskIDFromUUID() (TaskId, uuid.UUID) {
	id := uuid.New()
	// The first 4 bytes of a random UUID are as good a monotonic-free
	// Index seed as any; Generation 0 marks it not-yet-registered.
	return TaskId{Index: binary.BigEndian.Uint32(id[:4])}, id
}
