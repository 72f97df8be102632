package buildoptions

// CallStackCeiling is the maximum number of nested function activations
// internal/exec allows before trapping with a call-stack-overflow error,
// per spec.md §3.3's fixed depth limit.
const CallStackCeiling = 10000
