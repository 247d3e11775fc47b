package main

import (
	"os"

	"golang.org/x/sys/unix"
)

// Filesystem is the engine's I/O collaborator (spec.md §6): whole-file
// reads for every input, a single whole-file write for the linked output,
// and a chmod to make the result executable.
type Filesystem struct{}

func (Filesystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteExecutable writes data to path and marks it executable. The chmod
// goes through golang.org/x/sys/unix.Fchmod on the just-opened descriptor
// rather than os.Chmod, the same package the teacher already depends on
// for inotify watching in filewatcher_unix.go — reused here for the
// linker's own output step instead of a feature this rework dropped.
func (Filesystem) WriteExecutable(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return err
	}
	return unix.Fchmod(int(f.Fd()), 0o755)
}
