package async

import (
	"context"
	"testing"

	"github.com/pulseengine/wrt-go/api"
	"github.com/pulseengine/wrt-go/internal/exec"
	"github.com/pulseengine/wrt-go/internal/foundation"
	"github.com/pulseengine/wrt-go/internal/leb128"
	"github.com/pulseengine/wrt-go/internal/wasmbin"
	"github.com/stretchr/testify/require"
)

func newTestInstance(t *testing.T, m *wasmbin.Module) *exec.Instance {
	t.Helper()
	sys, err := foundation.InitMemorySystem(foundation.Config{
		Profile:        foundation.ProfileEmbedded,
		Enforcement:    foundation.Strict,
		GlobalCapBytes: 256 << 20,
	})
	require.NoError(t, err)
	inst, err := exec.Instantiate(sys, m, &exec.Imports{}, api.CoreFeaturesV2, nil)
	require.NoError(t, err)
	return inst
}

// constModule builds a module with n nullary functions, function i
// returning the i32 constant results[i].
func constModule(results []int32) *wasmbin.Module {
	i32 := api.ValueTypeI32
	m := &wasmbin.Module{
		TypeSection: []*wasmbin.FuncType{{Results: []wasmbin.ValueType{i32}}},
	}
	for range results {
		m.FunctionSection = append(m.FunctionSection, 0)
	}
	for _, v := range results {
		m.CodeSection = append(m.CodeSection, &wasmbin.FunctionBody{Body: []byte{
			wasmbin.OpcodeI32Const, byte(v),
			wasmbin.OpcodeEnd,
		}})
	}
	return m
}

func i64Const(v int64) []byte {
	return append([]byte{wasmbin.OpcodeI64Const}, leb128.EncodeInt64(v)...)
}

// taskWaitModule builds a single nullary function that calls
// task.wait(setHandle, deadline), which pushes the status and then the
// ready index. The index (on top) is saved to local 0, the status is
// dropped, and the index is returned.
func taskWaitModule(setHandle uint64, deadline int64) *wasmbin.Module {
	i64 := api.ValueTypeI64
	var body []byte
	body = append(body, i64Const(int64(setHandle))...)
	body = append(body, i64Const(deadline)...)
	body = append(body, wasmbin.OpcodeTaskWait)
	body = append(body, wasmbin.OpcodeLocalSet, 0x00) // keep index
	body = append(body, wasmbin.OpcodeDrop)           // discard status
	body = append(body, wasmbin.OpcodeLocalGet, 0x00)
	body = append(body, wasmbin.OpcodeEnd)
	return &wasmbin.Module{
		TypeSection:     []*wasmbin.FuncType{{Results: []wasmbin.ValueType{i64}}},
		FunctionSection: []wasmbin.Index{0},
		CodeSection:     []*wasmbin.FunctionBody{{LocalTypes: []wasmbin.ValueType{i64}, Body: body}},
	}
}

func TestScheduler_SpawnAndRunUntilIdle(t *testing.T) {
	inst := newTestInstance(t, constModule([]int32{7, 9}))
	sched := NewScheduler()

	id0, err := sched.Spawn(inst, 0, nil)
	require.NoError(t, err)
	id1, err := sched.Spawn(inst, 1, nil)
	require.NoError(t, err)

	require.NoError(t, sched.RunUntilIdle(context.Background()))

	task0, err := sched.Task(id0)
	require.NoError(t, err)
	require.Equal(t, TaskCompleted, task0.State())
	vals, err := task0.Result()
	require.NoError(t, err)
	require.Equal(t, []uint64{7}, vals)

	task1, err := sched.Task(id1)
	require.NoError(t, err)
	vals1, err := task1.Result()
	require.NoError(t, err)
	require.Equal(t, []uint64{9}, vals1)
}

func TestScheduler_TickReturnsFalseWhenIdle(t *testing.T) {
	sched := NewScheduler()
	require.False(t, sched.Tick())
}

// TestScheduler_TaskWaitOnAnotherTasksDone covers the S6-style scenario:
// one task completes, and a second task's task.wait on the first task's
// DoneWaitable unblocks only after the scheduler marks it done.
func TestScheduler_TaskWaitOnAnotherTasksDone(t *testing.T) {
	sched := NewScheduler()

	targetInst := newTestInstance(t, constModule([]int32{42}))
	targetID, err := sched.Spawn(targetInst, 0, nil)
	require.NoError(t, err)
	target, err := sched.Task(targetID)
	require.NoError(t, err)

	setHandle, err := sched.NewWaitableSet(target.DoneWaitable())
	require.NoError(t, err)

	waiterInst := newTestInstance(t, taskWaitModule(packHandle(setHandle), noDeadline))
	waiterID, err := sched.Spawn(waiterInst, 0, nil)
	require.NoError(t, err)

	require.NoError(t, sched.RunUntilIdle(context.Background()))

	waiter, err := sched.Task(waiterID)
	require.NoError(t, err)
	require.Equal(t, TaskCompleted, waiter.State())
	vals, err := waiter.Result()
	require.NoError(t, err)
	require.Equal(t, []uint64{0}, vals, "the target was the only (and therefore first-ready) entry")
}

// TestScheduler_TaskWaitRejectsEmptySet exercises handleTaskWait directly
// (bypassing bytecode) for the empty-set validation spec.md §4.4 step 1
// requires.
func TestScheduler_TaskWaitRejectsEmptySet(t *testing.T) {
	sched := NewScheduler()
	setHandle, err := sched.waitSets.Allocate(&WaitableSet{})
	require.NoError(t, err)

	inst := newTestInstance(t, constModule([]int32{0}))
	_, err = sched.Spawn(inst, 0, nil)
	require.NoError(t, err)
	task, err := sched.tasks.Get(TaskId{Index: 0, Generation: 1})
	require.NoError(t, err)

	call := &exec.BuiltinCall{Name: "task.wait", Args: []uint64{packHandle(setHandle), uint64(noDeadline)}}
	err = handleTaskWait(sched, task, call)
	require.ErrorIs(t, err, ErrWaitableSetEmpty)
}

// TestScheduler_TaskWaitRejectsOversizedSet covers the |set| = 65
// boundary from spec.md §8.
func TestScheduler_TaskWaitRejectsOversizedSet(t *testing.T) {
	sched := NewScheduler()
	items := make([]Waitable, 0, maxWaitablesPerSet+1)
	for i := 0; i < maxWaitablesPerSet+1; i++ {
		h, err := sched.NewResource()
		require.NoError(t, err)
		items = append(items, Waitable{Kind: FutureReadable, Handle: h})
	}
	// Bypass NewWaitableSet's own cap check to exercise handleTaskWait's
	// runtime validation against a set already over the cap.
	setHandle, err := sched.waitSets.Allocate(&WaitableSet{Items: items})
	require.NoError(t, err)

	inst := newTestInstance(t, constModule([]int32{0}))
	_, err = sched.Spawn(inst, 0, nil)
	require.NoError(t, err)
	task, err := sched.tasks.Get(TaskId{Index: 0, Generation: 1})
	require.NoError(t, err)

	call := &exec.BuiltinCall{Name: "task.wait", Args: []uint64{packHandle(setHandle), uint64(noDeadline)}}
	err = handleTaskWait(sched, task, call)
	require.ErrorIs(t, err, ErrTooManyWaitables)
}

// TestScheduler_TaskPollDoesNotBlock exercises task.poll's non-suspending
// contract directly against a not-yet-ready resource, then again after
// MarkResourceReady.
func TestScheduler_TaskPollDoesNotBlock(t *testing.T) {
	sched := NewScheduler()
	h, err := sched.NewResource()
	require.NoError(t, err)
	setHandle, err := sched.NewWaitableSet(Waitable{Kind: FutureReadable, Handle: h})
	require.NoError(t, err)

	inst := newTestInstance(t, constModule([]int32{0}))
	_, err = sched.Spawn(inst, 0, nil)
	require.NoError(t, err)
	task, err := sched.tasks.Get(TaskId{Index: 0, Generation: 1})
	require.NoError(t, err)

	call := &exec.BuiltinCall{Name: "task.poll", Args: []uint64{packHandle(setHandle)}}
	require.NoError(t, handleTaskPoll(sched, task, call))
	require.Equal(t, []uint64{uint64(WaitStatusPending), 0}, task.ctx.Frames[len(task.ctx.Frames)-1].Operand)

	require.NoError(t, sched.MarkResourceReady(h))
	task.ctx.Frames[len(task.ctx.Frames)-1].Operand = nil
	require.NoError(t, handleTaskPoll(sched, task, call))
	require.Equal(t, []uint64{uint64(WaitStatusReady), 0}, task.ctx.Frames[len(task.ctx.Frames)-1].Operand)
}

// TestScheduler_TaskFuelBudgetCancelsTask covers testable property 4: a
// task whose total fuel_consumed reaches its fuel_budget is cancelled
// rather than merely re-queued.
func TestScheduler_TaskFuelBudgetCancelsTask(t *testing.T) {
	inst := newTestInstance(t, constModule([]int32{1}))
	sched := NewScheduler(WithFuelPerTick(1))
	id, err := sched.SpawnWithFuelBudget(inst, 0, nil, 1)
	require.NoError(t, err)

	require.NoError(t, sched.RunUntilIdle(context.Background()))

	task, err := sched.Task(id)
	require.NoError(t, err)
	require.Equal(t, TaskCancelled, task.State())
	_, taskErr := task.Result()
	require.ErrorIs(t, taskErr, ErrTaskFuelBudgetExceeded)
}

func TestHandleTable_ABASafety(t *testing.T) {
	ht := NewHandleTable[string]()
	h1, err := ht.Allocate("first")
	require.NoError(t, err)
	require.Equal(t, uint32(1), h1.Generation, "first-ever allocation gets generation 1")

	v, err := ht.Get(h1)
	require.NoError(t, err)
	require.Equal(t, "first", v)

	require.NoError(t, ht.Free(h1))
	_, err = ht.Get(h1)
	require.ErrorIs(t, err, ErrGenerationMismatch, "stale handle must not resolve after Free")

	h2, err := ht.Allocate("second")
	require.NoError(t, err)
	require.Equal(t, h1.Index, h2.Index, "freed slot is reused by index")
	require.NotEqual(t, h1.Generation, h2.Generation, "generation must bump on reuse")

	// The original (stale) handle still must not resolve to the new value.
	_, err = ht.Get(h1)
	require.ErrorIs(t, err, ErrGenerationMismatch)
	v2, err := ht.Get(h2)
	require.NoError(t, err)
	require.Equal(t, "second", v2)
}

func TestHandleTable_UnknownHandleIsDistinctFromStale(t *testing.T) {
	ht := NewHandleTable[int]()
	_, err := ht.Get(Handle{Index: 99, Generation: 1})
	require.ErrorIs(t, err, ErrHandleNotFound)
}

func TestHandleTable_SetAndDoubleFree(t *testing.T) {
	ht := NewHandleTable[int]()
	h, err := ht.Allocate(1)
	require.NoError(t, err)
	require.NoError(t, ht.Set(h, 2))
	v, err := ht.Get(h)
	require.NoError(t, err)
	require.Equal(t, 2, v)

	require.NoError(t, ht.Free(h))
	err = ht.Free(h)
	require.ErrorIs(t, err, ErrGenerationMismatch, "double free must report a distinct error, not panic")
}

func TestHandleTable_BoundedCapacityExhausted(t *testing.T) {
	ht := NewBoundedHandleTable[int](1, 0)
	_, err := ht.Allocate(1)
	require.NoError(t, err)
	_, err = ht.Allocate(2)
	require.ErrorIs(t, err, ErrHandleTableFull)
}
