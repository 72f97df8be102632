// Command wrtgo is a thin smoke-runner over the public Runtime surface:
// compile a module, instantiate it, invoke one exported function, and
// print its results plus a SafetyReport snapshot. It is an embedder
// example, not the developer CLI / WAST driver spec.md §1 places out of
// scope (that tooling is not implemented here).
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	wrtgo "github.com/pulseengine/wrt-go"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("wrtgo", flag.ContinueOnError)
	fs.SetOutput(stderr)
	funcName := fs.String("func", "", "exported function to invoke")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 || *funcName == "" {
		fmt.Fprintln(stderr, "usage: wrtgo -func=<name> <module.wasm> [args...]")
		return 2
	}

	binary, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(stderr, "reading module:", err)
		return 1
	}

	callArgs := make([]uint64, 0, fs.NArg()-1)
	for _, a := range fs.Args()[1:] {
		v, err := strconv.ParseUint(a, 10, 64)
		if err != nil {
			fmt.Fprintln(stderr, "invalid argument", a, ":", err)
			return 2
		}
		callArgs = append(callArgs, v)
	}

	rt, err := wrtgo.NewRuntime(wrtgo.NewRuntimeConfig())
	if err != nil {
		fmt.Fprintln(stderr, "initializing runtime:", err)
		return 1
	}

	compiled, err := rt.CompileModule(binary)
	if err != nil {
		fmt.Fprintln(stderr, "compiling module:", err)
		return 1
	}
	defer compiled.Close()

	mod, err := rt.Instantiate(compiled)
	if err != nil {
		fmt.Fprintln(stderr, "instantiating module:", err)
		return 1
	}
	defer mod.Close()

	fn, ok := mod.ExportedFunction(*funcName)
	if !ok {
		fmt.Fprintf(stderr, "no such exported function %q\n", *funcName)
		return 1
	}

	results, err := fn.Call(callArgs...)
	if err != nil {
		fmt.Fprintln(stderr, "invoking", *funcName+":", err)
		return 1
	}
	fmt.Fprintln(stdout, results)

	report := rt.Monitor().Report()
	fmt.Fprintf(stdout, "allocations=%d current_bytes=%d health_score=%d\n",
		report.TotalAllocations, report.CurrentBytes, report.HealthScore)
	return 0
}
