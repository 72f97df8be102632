package async

import "github.com/pulseengine/wrt-go/internal/foundation"

// ErrHandleNotFound reports a Handle whose index was never allocated in
// the table (or is out of range), as distinct from a stale-generation
// use-after-drop, per spec.md §3.4 "use-after-drop returns a distinct
// error from unknown-handle."
var ErrHandleNotFound = foundation.NewError(foundation.CategoryResource, "handle_not_found", "no slot allocated at this index")

// ErrGenerationMismatch reports a Handle whose index is valid but whose
// generation is stale: the slot was freed (and possibly reallocated to a
// different resource) since this Handle was minted, per spec.md §4.4
// lookup's NotFound/GenerationMismatch split and testable property 3.
var ErrGenerationMismatch = foundation.NewError(foundation.CategoryResource, "generation_mismatch", "handle refers to a freed or reallocated slot")

// ErrHandleTableFull reports a bounded HandleTable with no free slot and
// no room to extend, per spec.md §8 "Handle table at capacity with no
// free slots: allocate returns ResourceLimitExceeded."
var ErrHandleTableFull = foundation.NewError(foundation.CategoryResourceLimit, "resource_limit_exceeded", "handle table is at capacity")

// ErrHandleTableFuelExhausted reports a HandleTable whose own fuel budget
// (independent of any task's fuel) has been spent, per spec.md §4.4
// "Tables also carry a fuel budget to bound total work against the table
// independently of task fuel."
var ErrHandleTableFuelExhausted = foundation.NewError(foundation.CategoryResourceLimit, "resource_limit_exceeded", "handle table fuel budget exhausted")

// ErrWaitableSetEmpty is task.wait's rejection of an empty set, per
// spec.md §4.4 step 1.
var ErrWaitableSetEmpty = foundation.NewError(foundation.CategoryInvalidState, "invalid_input", "task.wait requires a non-empty waitable set")

// ErrTooManyWaitables is task.wait's (and WaitableSet construction's)
// rejection of more than maxWaitablesPerSet entries, per spec.md §3.4
// "WaitableSet — bounded vector of waitables (cap ≤ 64)" and §8's
// |set| = 65 boundary case.
var ErrTooManyWaitables = foundation.NewError(foundation.CategoryResourceLimit, "resource_limit_exceeded", "waitable set exceeds the 64-entry cap")

// ErrTaskFuelBudgetExceeded reports a task whose fuel_consumed has
// reached its fuel_budget cap, per spec.md §4.4 "exceeding the cap
// cancels the task with ResourceLimitExceeded" and testable property 4.
var ErrTaskFuelBudgetExceeded = foundation.NewError(foundation.CategoryResourceLimit, "resource_limit_exceeded", "task exceeded its fuel budget")
