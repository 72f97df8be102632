package async

import (
	"fmt"

	"github.com/pulseengine/wrt-go/internal/exec"
)

// BuiltinHandler interprets one async builtin call on behalf of t,
// returning the result values Step's caller should feed back via
// exec.ExecutionContext.PushBuiltinResult once the task is ready to
// resume (immediately, for task.yield/task.poll; only after the task
// leaves TaskWaiting, for task.wait). A non-nil error (spec.md §4.4's
// task.wait InvalidInput/ResourceLimitExceeded rejections) cancels the
// task with that error; a trap, by contrast, completes the task with the
// trap recorded as its error.
type BuiltinHandler func(s *Scheduler, t *Task, call *exec.BuiltinCall) error

// Fuel costs for the async builtins, fixed per spec.md §4.4: task.wait
// 50, task.yield 20, task.poll 30.
const (
	taskWaitFuel  uint64 = 50
	taskYieldFuel uint64 = 20
	taskPollFuel  uint64 = 30
)

// builtinRegistry is the "small registry of named operations" SPEC_FULL.md
// §4 calls for, keeping internal/exec's interpreter loop ignorant of task
// semantics: it only ever sees opcode names, never scheduler state.
var builtinRegistry = map[string]BuiltinHandler{
	"task.wait":  handleTaskWait,
	"task.yield": handleTaskYield,
	"task.poll":  handleTaskPoll,
}

// dispatchBuiltin looks up and runs the handler for call.Name, per
// spec.md §4.4's task.wait/task.yield/task.poll builtins.
func dispatchBuiltin(s *Scheduler, t *Task, call *exec.BuiltinCall) error {
	h, ok := builtinRegistry[call.Name]
	if !ok {
		return fmt.Errorf("async: unknown builtin %q", call.Name)
	}
	return h(s, t, call)
}

// handleTaskWait implements spec.md §4.4's task.wait(set, timeout?):
// reject an empty or oversized set, otherwise check for an
// already-ready waitable (returning synchronously), otherwise register a
// WaitOperation and park the task.
//
// call.Args[0] is the target WaitableSet's Handle, packed into a single
// uint64 (see packHandle); call.Args[1] is the deadline, or the all-ones
// sentinel decoded as noDeadline when task.wait was called without a
// timeout.
func handleTaskWait(s *Scheduler, t *Task, call *exec.BuiltinCall) error {
	if !t.chargeFuel(taskWaitFuel) {
		return ErrTaskFuelBudgetExceeded
	}
	setHandle := unpackHandle(call.Args[0])
	deadline := int64(call.Args[1])

	set, err := s.waitSets.Get(setHandle)
	if err != nil {
		return err
	}
	if len(set.Items) == 0 {
		return ErrWaitableSetEmpty
	}
	if len(set.Items) > maxWaitablesPerSet {
		return ErrTooManyWaitables
	}

	if idx, ready := s.firstReady(set); ready {
		t.ctx.PushBuiltinResult([]uint64{uint64(WaitStatusReady), uint64(idx)})
		t.state = TaskReady
		s.enqueue(t.ID)
		return nil
	}

	t.wait = &WaitOperation{Set: setHandle, Deadline: deadline}
	t.state = TaskWaiting
	return s.admitWait(t)
}

// handleTaskYield is a pure cooperative yield: no wait condition, the
// task becomes Ready again immediately and the scheduler's tick loop
// resumes it on its next pass, after every other Ready task has had a
// turn. No result values are produced.
func handleTaskYield(s *Scheduler, t *Task, call *exec.BuiltinCall) error {
	if !t.chargeFuel(taskYieldFuel) {
		return ErrTaskFuelBudgetExceeded
	}
	t.state = TaskReady
	s.enqueue(t.ID)
	return nil
}

// handleTaskPoll is task.wait's non-blocking sibling: it checks the
// named WaitableSet once and reports WaitStatusReady/Pending immediately
// rather than suspending, per spec.md §4.4's task.poll(set).
func handleTaskPoll(s *Scheduler, t *Task, call *exec.BuiltinCall) error {
	if !t.chargeFuel(taskPollFuel) {
		return ErrTaskFuelBudgetExceeded
	}
	setHandle := unpackHandle(call.Args[0])
	status, index := WaitStatusPending, uint64(0)
	if set, err := s.waitSets.Get(setHandle); err != nil {
		status = WaitStatusCancelled
	} else if idx, ready := s.firstReady(set); ready {
		status, index = WaitStatusReady, uint64(idx)
	}
	t.ctx.PushBuiltinResult([]uint64{uint64(status), index})
	t.state = TaskReady
	s.enqueue(t.ID)
	return nil
}
