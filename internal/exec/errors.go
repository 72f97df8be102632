package exec

import "errors"

// ErrBuiltinOutsideScheduler is returned by Invoke when a function body
// hits a Component-Model async builtin (task.wait/yield/poll) while being
// driven directly rather than through internal/async's scheduler, which is
// the only caller equipped to interpret YieldBuiltin and call
// ExecutionContext.PushBuiltinResult. This is not a wasm trap: the
// function is well-formed, it simply cannot run to completion outside a
// task context.
var ErrBuiltinOutsideScheduler = errors.New("exec: async builtin reached outside a task scheduler")

// ErrCooperativeYieldOutsideScheduler mirrors ErrBuiltinOutsideScheduler
// for a YieldCooperative reported to a direct Invoke caller.
var ErrCooperativeYieldOutsideScheduler = errors.New("exec: cooperative yield requested outside a task scheduler")
