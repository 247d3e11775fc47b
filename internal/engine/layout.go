package engine

import (
	"strings"

	"github.com/xyproto/ld67/internal/elfabi"
)

// executableLoadAddress is the base virtual address executables are linked at.
// Shared objects load at 0 and rely on position-independent addressing
// (spec.md §4.4).
const executableLoadAddress = 0x400000

// isMetadataSection reports whether name is one of the tables reserved at
// the tail of the file — after every loadable output section and its
// relocations — rather than a page-aligned output section in its own
// right (spec.md §4.4).
func isMetadataSection(name string) bool {
	switch name {
	case ".symtab", ".strtab", ".shstrtab", ".dynamic", ".dynsym", ".dynstr", ".hash", ".gnu_hash":
		return true
	default:
		return false
	}
}

// reserve is the Reserve/Layout stage (spec.md §4.4): every section, the
// program header table and the metadata tables are assigned a file offset
// and, where applicable, a virtual address, in one strict pass. A single
// base elfabi.PT_LOAD covers the whole reserved range, the shape the
// original linker's writer uses for simplicity.
func (e *Engine) reserve() error {
	if !e.opts.Shared {
		e.loadAddress = executableLoadAddress
	}

	hasInterp := e.sections[".interp"] != nil
	numPhdrs := 1 // one base PT_LOAD, always
	if e.dynamicLink {
		numPhdrs++ // PT_DYNAMIC
	}
	if hasInterp {
		numPhdrs++ // PT_INTERP
	}

	offset := uint64(elfabi.SizeEhdr)
	e.phdrOff = offset
	offset += uint64(numPhdrs) * elfabi.SizePhdr

	// Every output section is individually page-aligned — the first
	// loadable byte lands at 0x401000 for a default-based executable
	// (spec.md §4.4, §8 invariant 3).
	for _, name := range e.sectionOrder {
		if isMetadataSection(name) || strings.HasPrefix(name, ".rela") {
			continue
		}
		s := e.sections[name]
		offset = alignUp(offset, elfabi.PageSize)
		s.Offset = offset
		e.sectionAddress[name] = e.loadAddress + offset
		offset += s.Size()
	}

	// Relocation sections follow, aligned to 8 rather than a full page.
	for _, name := range e.sectionOrder {
		if !strings.HasPrefix(name, ".rela") {
			continue
		}
		s := e.sections[name]
		offset = alignUp(offset, 8)
		s.Offset = offset
		e.sectionAddress[name] = e.loadAddress + offset
		offset += s.Size()
	}

	// Section-index assignments: null, then every section in sectionOrder
	// (output sections, relocation sections, and the metadata tables
	// below all share the same namespace and numbering scheme).
	e.strtab = newStringTable()
	e.shstrtab = newStringTable()

	symtab := e.section(".symtab")
	strtabSec := e.section(".strtab")
	shstrtabSec := e.section(".shstrtab")

	idx := uint16(1)
	for _, name := range e.sectionOrder {
		e.sectionIndex[name] = idx
		e.sections[name].Index = idx
		idx++
	}

	e.shstrtab.Add("")
	for _, name := range e.sectionOrder {
		e.sections[name].NameStrID = e.shstrtab.Add(name)
	}
	e.shstrtab.Add(".shstrtab")
	shstrtabSec.NameStrID = e.shstrtab.offsets[".shstrtab"]

	// The section header table area is reserved right after the section
	// indices are fixed, ahead of the string/symbol table bytes (spec.md
	// §4.4).
	offset = alignUp(offset, 8)
	e.shdrOff = offset
	offset += uint64(1+len(e.sectionOrder)) * elfabi.SizeShdr

	// Static string table entries for every symbol name, captured before
	// .symtab itself is sized so each record's name offset is known.
	locals, globals := 0, 0
	for _, sym := range e.symtab.InOrder() {
		sym.StrTabID = e.strtab.Add(sym.Name)
		if sym.IsGlobal {
			globals++
		} else {
			locals++
		}
	}

	symtab.appendZero(elfabi.SizeSym * uint64(1+locals+globals))
	symtab.Offset = offset
	offset += symtab.Size()

	strtabSec.Content = e.strtab.Bytes()
	strtabSec.Offset = offset
	offset += strtabSec.Size()

	shstrtabSec.Content = e.shstrtab.Bytes()
	shstrtabSec.Offset = offset
	offset += shstrtabSec.Size()

	if e.dynamicLink {
		dynSec := e.sections[".dynamic"]
		offset = alignUp(offset, 8)
		dynSec.Offset = offset
		e.sectionAddress[".dynamic"] = e.loadAddress + offset
		offset += dynSec.Size()

		if dynsymSec, ok := e.sections[".dynsym"]; ok {
			dynsymSec.Offset = offset
			e.sectionAddress[".dynsym"] = e.loadAddress + offset
			offset += dynsymSec.Size()
		}

		e.dynstr = newStringTable()
		for _, row := range e.dynsymOrder {
			if row.Name != "" {
				id := e.dynstr.Add(row.Name)
				if sym, ok := e.symtab.Lookup(row.Name); ok {
					sym.DynstrID = id
				}
			}
		}
		if e.opts.Soname != "" {
			e.dynstr.Add(e.opts.Soname)
		}
		for _, need := range e.needed {
			need.DynstrID = e.dynstr.Add(need.Name)
		}

		dynstrSec := e.sections[".dynstr"]
		dynstrSec.Content = e.dynstr.Bytes()
		dynstrSec.Offset = offset
		e.sectionAddress[".dynstr"] = e.loadAddress + offset
		offset += dynstrSec.Size()

		if hashSec, ok := e.sections[".hash"]; ok {
			hashSec.Offset = offset
			e.sectionAddress[".hash"] = e.loadAddress + offset
			n := uint64(len(e.dynsymOrder))
			hashSec.appendZero(8 + 4*n + 4*n)
			offset += hashSec.Size()
		}
		if ghSec, ok := e.sections[".gnu_hash"]; ok {
			symoffset := 1 + len(e.pltDynamicSymbols)
			nExports := uint64(len(e.dynsymOrder) - symoffset)
			nbuckets := uint64(gnuHashBucketCount(int(nExports)))
			ghSec.Offset = offset
			e.sectionAddress[".gnu_hash"] = e.loadAddress + offset
			ghSec.appendZero(16 + 8 + 4*nbuckets + 4*nExports) // header + 1 bloom word + buckets + chain
			offset += ghSec.Size()
		}
	}

	e.fileSize = offset

	// Program headers: one base PT_LOAD spanning the entire file (spec.md
	// §4.7), plus PT_DYNAMIC and PT_INTERP when applicable. Written in
	// that order to match the original linker's program header table.
	var segs []programHeader
	segs = append(segs, programHeader{
		Type:   elfabi.PT_LOAD,
		Flags:  elfabi.PF_X | elfabi.PF_W | elfabi.PF_R,
		Offset: 0,
		Vaddr:  e.loadAddress,
		Filesz: e.fileSize,
		Memsz:  e.fileSize,
		Align:  elfabi.PageSize,
	})
	if e.dynamicLink {
		ds := e.sections[".dynamic"]
		segs = append(segs, programHeader{
			Type:   elfabi.PT_DYNAMIC,
			Flags:  elfabi.PF_W | elfabi.PF_R,
			Offset: ds.Offset,
			Vaddr:  e.sectionAddress[".dynamic"],
			Filesz: ds.Size(),
			Memsz:  ds.Size(),
			Align:  8,
		})
	}
	if hasInterp {
		is := e.sections[".interp"]
		segs = append(segs, programHeader{
			Type:   elfabi.PT_INTERP,
			Flags:  elfabi.PF_R,
			Offset: is.Offset,
			Vaddr:  e.sectionAddress[".interp"],
			Filesz: is.Size(),
			Memsz:  is.Size(),
			Align:  1,
		})
	}
	e.programHeaders = segs

	return nil
}

func alignUp(v, align uint64) uint64 {
	if align == 0 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}
