package engine

import "github.com/xyproto/ld67/internal/elfabi"

// emit is the final stage: it serializes the ELF header, program header
// table, every section's content at its reserved offset, and the section
// header table into one contiguous image (spec.md §4.7).
func (e *Engine) emit() ([]byte, error) {
	out := make([]byte, e.fileSize)

	eType := uint16(elfabi.ET_EXEC)
	if e.opts.Shared || e.opts.PIE {
		eType = elfabi.ET_DYN
	}

	var entry uint64
	sym, ok := e.symtab.Lookup("_start")
	if ok {
		entry = e.sectionAddress[sym.SectionName] + sym.Offset
	} else if !e.opts.Shared {
		return nil, errf(KindMissingEntry, e.opts.Output, "executable has no _start symbol")
	}

	ehdr := elfabi.Ehdr64{
		Type:      eType,
		Machine:   elfabi.EM_X86_64,
		Version:   elfabi.EV_CURRENT,
		Entry:     entry,
		Phoff:     e.phdrOff,
		Shoff:     e.shdrOff,
		Ehsize:    elfabi.SizeEhdr,
		Phentsize: elfabi.SizePhdr,
		Phnum:     uint16(len(e.programHeaders)),
		Shentsize: elfabi.SizeShdr,
		Shnum:     uint16(1 + len(e.sectionOrder)),
		Shstrndx:  e.sectionIndex[".shstrtab"],
	}
	ehdr.Ident[elfabi.EI_MAG0] = elfabi.ELFMAG0
	ehdr.Ident[1] = elfabi.ELFMAG1
	ehdr.Ident[2] = elfabi.ELFMAG2
	ehdr.Ident[3] = elfabi.ELFMAG3
	ehdr.Ident[elfabi.EI_CLASS] = elfabi.ELFCLASS64
	ehdr.Ident[elfabi.EI_DATA] = elfabi.ELFDATA2LSB
	ehdr.Ident[elfabi.EI_VERSION] = elfabi.EV_CURRENT
	ehdr.Ident[elfabi.EI_OSABI] = elfabi.ELFOSABI_NONE
	copy(out[0:], ehdr.Put())

	for i, ph := range e.programHeaders {
		p := elfabi.Phdr64{
			Type: ph.Type, Flags: ph.Flags, Offset: ph.Offset,
			Vaddr: ph.Vaddr, Paddr: ph.Vaddr,
			Filesz: ph.Filesz, Memsz: ph.Memsz, Align: ph.Align,
		}
		copy(out[e.phdrOff+uint64(i)*elfabi.SizePhdr:], p.Put())
	}

	if err := e.finalizeStaticSymtab(); err != nil {
		return nil, err
	}

	for _, name := range e.sectionOrder {
		sec := e.sections[name]
		copy(out[sec.Offset:], sec.Content)
	}

	e.writeSectionHeaders(out)

	return out, nil
}

// finalizeStaticSymtab writes .symtab in locals-before-globals order with
// sh_info carrying the index of the first global, per spec.md §8
// invariant 1.
func (e *Engine) finalizeStaticSymtab() error {
	symtab := e.sections[".symtab"]

	var locals, globals []*Symbol
	for _, sym := range e.symtab.InOrder() {
		if sym.IsGlobal {
			globals = append(globals, sym)
		} else {
			locals = append(locals, sym)
		}
	}
	ordered := append(locals, globals...)

	for i, sym := range ordered {
		off := (1 + i) * 24
		bind := byte(elfabi.STB_LOCAL)
		if sym.IsGlobal {
			bind = elfabi.STB_GLOBAL
		}
		rec := elfabi.Sym64{
			Name: sym.StrTabID,
			Info: elfabi.SymInfo(bind, elfabi.STT_NOTYPE),
		}
		if sym.IsPLT {
			// A PLT symbol's section field is SHN_UNDEF and its st_value
			// is zero even though internally its address is the stub
			// (spec.md §4.7).
			rec.Shndx = elfabi.SHN_UNDEF
		} else {
			rec.Shndx = e.sectionIndex[sym.SectionName]
			rec.Value = e.sectionAddress[sym.SectionName] + sym.Offset
		}
		copy(symtab.Content[off:], rec.Put())
	}

	e.symtabLocalCount = len(locals)
	return nil
}

// writeSectionHeaders serializes the null entry followed by one Shdr64
// per output section, in sectionOrder (spec.md §4.7).
func (e *Engine) writeSectionHeaders(out []byte) {
	write := func(idx int, sh elfabi.Shdr64) {
		copy(out[e.shdrOff+uint64(idx)*elfabi.SizeShdr:], sh.Put())
	}

	write(0, elfabi.Shdr64{})

	for i, name := range e.sectionOrder {
		sec := e.sections[name]
		sh := elfabi.Shdr64{
			Name:      sec.NameStrID,
			Type:      sectionType(name),
			Flags:     sectionFlags(sec),
			Addr:      e.sectionAddress[name],
			Offset:    sec.Offset,
			Size:      sec.Size(),
			Addralign: 1,
			Entsize:   sectionEntsize(name),
		}
		sh.Link, sh.Info = e.sectionLinkInfo(name)
		write(i+1, sh)
	}
}

func sectionType(name string) uint32 {
	switch name {
	case ".symtab":
		return elfabi.SHT_SYMTAB
	case ".strtab", ".shstrtab", ".dynstr":
		return elfabi.SHT_STRTAB
	case ".dynsym":
		return elfabi.SHT_DYNSYM
	case ".dynamic":
		return elfabi.SHT_DYNAMIC
	case ".rela.plt":
		return elfabi.SHT_RELA
	case ".hash":
		return elfabi.SHT_HASH
	case ".gnu_hash":
		return elfabi.SHT_GNU_HASH
	default:
		return elfabi.SHT_PROGBITS
	}
}

func sectionEntsize(name string) uint64 {
	switch name {
	case ".symtab", ".dynsym":
		return elfabi.SizeSym
	case ".rela.plt":
		return elfabi.SizeRela
	case ".dynamic":
		return elfabi.SizeDyn
	default:
		return 0
	}
}

func sectionFlags(sec *Section) uint64 {
	var f uint64
	if sec.Name == ".symtab" || sec.Name == ".strtab" || sec.Name == ".shstrtab" {
		return 0
	}
	f |= elfabi.SHF_ALLOC
	if sec.IsWritable {
		f |= elfabi.SHF_WRITE
	}
	if sec.IsExecutable {
		f |= elfabi.SHF_EXECINSTR
	}
	return f
}

func (e *Engine) sectionLinkInfo(name string) (link, info uint32) {
	switch name {
	case ".symtab":
		return uint32(e.sectionIndex[".strtab"]), uint32(1 + e.symtabLocalCount)
	case ".dynsym":
		return uint32(e.sectionIndex[".dynstr"]), 1
	case ".rela.plt":
		return uint32(e.sectionIndex[".dynsym"]), uint32(e.sectionIndex[".plt"])
	case ".hash", ".gnu_hash":
		return uint32(e.sectionIndex[".dynsym"]), 0
	default:
		return 0, 0
	}
}
