package main

import (
	"fmt"
	"os"

	env "github.com/xyproto/env/v2"
)

// TraceSink is the engine's Tracer collaborator: a verbosity-gated writer
// to stderr, the same pattern the teacher's own elf_static.go and
// elf_complete.go use their VerboseMode bool for before every
// fmt.Fprintf(os.Stderr, ...) diagnostic.
type TraceSink struct {
	Verbose bool
}

// NewTraceSink reads LD67_VERBOSE as a fallback when -v wasn't passed on
// the command line, so scripted builds can turn on tracing without
// touching their invocation.
func NewTraceSink(verboseFlag bool) *TraceSink {
	return &TraceSink{Verbose: verboseFlag || env.Bool("LD67_VERBOSE")}
}

func (t *TraceSink) Tracef(format string, args ...any) {
	if !t.Verbose {
		return
	}
	fmt.Fprintf(os.Stderr, "ld67: "+format+"\n", args...)
}

func (t *TraceSink) Warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "ld67: warning: "+format+"\n", args...)
}
