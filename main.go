// Command ld67 links ELF-64/x86-64 relocatable objects and shared objects
// into an executable or shared object.
package main

import (
	"fmt"
	"os"

	"github.com/xyproto/ld67/internal/engine"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "ld67:", err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	verbose := false
	for _, a := range argv {
		if a == "-v" || a == "--verbose" {
			verbose = true
		}
	}
	tracer := NewTraceSink(verbose)

	resolver := &PathResolver{}
	parser := NewOptionParser(resolver)
	opts, err := parser.Parse(argv)
	if err != nil {
		return err
	}
	if opts.Output == "" {
		opts.Output = "a.out"
	}
	opts.Tracer = tracer

	fs := Filesystem{}
	for _, in := range opts.Inputs {
		data, err := fs.ReadFile(in.Name)
		if err != nil {
			return fmt.Errorf("reading %s: %w", in.Name, err)
		}
		in.Data = data
		tracer.Tracef("ingested %s (%d bytes)", in.Name, len(data))
	}

	image, err := engine.Link(opts)
	if err != nil {
		return err
	}

	if err := fs.WriteExecutable(opts.Output, image); err != nil {
		return fmt.Errorf("writing %s: %w", opts.Output, err)
	}
	tracer.Tracef("wrote %s (%d bytes)", opts.Output, len(image))
	return nil
}
