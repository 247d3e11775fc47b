package engine

import (
	"bytes"
	dbgelf "debug/elf"
	"path/filepath"
	"strings"
)

// ObjectFile is one input to the linker: a name, its raw bytes, and the
// --as-needed state it was read under (spec.md §3 "Input file").
type ObjectFile struct {
	Name     string
	Data     []byte
	AsNeeded bool
}

// InputKind classifies an ingested input (spec.md §4.1).
type InputKind int

const (
	InputRelocatable InputKind = iota
	InputArchive
	InputShared
)

// classify determines what an ObjectFile is without fully parsing it:
// the ".a" extension selects archive handling; everything else is opened
// as ELF64 and classified by its e_type. Reading ELF structure back with
// the standard library, rather than hand-rolling an ELF reader, mirrors
// the teacher's own elf_test.go, which parses generated binaries with
// "debug/elf" instead of writing a bespoke reader.
func classify(of *ObjectFile) (InputKind, *dbgelf.File, error) {
	if strings.EqualFold(filepath.Ext(of.Name), ".a") {
		return InputArchive, nil, nil
	}

	f, err := dbgelf.NewFile(bytes.NewReader(of.Data))
	if err != nil {
		return 0, nil, errf(KindMalformedInput, of.Name, "%v", err)
	}
	if f.Class != dbgelf.ELFCLASS64 || f.Data != dbgelf.ELFDATA2LSB {
		return 0, nil, errf(KindUnsupportedInput, of.Name, "not a little-endian ELF64 object")
	}
	if f.Machine != dbgelf.EM_X86_64 {
		return 0, nil, errf(KindUnsupportedInput, of.Name, "machine %s is not x86-64", f.Machine)
	}

	switch f.Type {
	case dbgelf.ET_REL:
		return InputRelocatable, f, nil
	case dbgelf.ET_DYN:
		return InputShared, f, nil
	default:
		return 0, nil, errf(KindUnsupportedInput, of.Name, "unsupported ELF type %s", f.Type)
	}
}
