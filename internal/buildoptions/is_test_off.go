//go:build !wrtgo_testing

package buildoptions

// IsTest gates test-time-only assertions written in the main code as an
// `if buildoptions.IsTest { ... }` block. This file, built without the
// wrtgo_testing build tag, sets it to false, so such blocks are optimized
// out; the repository has no variant for the wrtgo_testing tag, so IsTest
// is false in every build, including `go test`.
const IsTest = false
