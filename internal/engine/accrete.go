package engine

import (
	dbgelf "debug/elf"
	"encoding/binary"
	"path/filepath"
)

// accreteOne folds a single ingested input into the engine's growing state
// (spec.md §4.2). Relocatable objects contribute sections, symbols and
// relocations; shared objects only register as dynamic-link dependencies
// and a pool of names later PLT relocations may draw on.
func (e *Engine) accreteOne(ing *ingested) error {
	if ing.kind == InputShared {
		return e.accreteShared(ing)
	}
	return e.accreteRelocatable(ing)
}

func (e *Engine) accreteShared(ing *ingested) error {
	e.dynamicLink = true

	name := ing.of.Name
	if sonames, err := ing.file.DynString(dbgelf.DT_SONAME); err == nil && len(sonames) > 0 {
		name = sonames[0]
	} else {
		name = filepath.Base(name)
	}
	e.needed = append(e.needed, &NeededEntry{Name: name})

	dynsyms, err := ing.file.DynamicSymbols()
	if err != nil {
		// A shared object with no dynamic symbol table simply exports
		// nothing; this is not malformed input.
		return nil
	}
	for _, s := range dynsyms {
		if s.Name == "" || s.Section == dbgelf.SHN_UNDEF {
			continue
		}
		e.sharedSymbols[s.Name] = true
	}
	return nil
}

// accreteRelocatable folds one ET_REL object's allocatable sections,
// symbols and relocations into the engine (spec.md §4.2).
func (e *Engine) accreteRelocatable(ing *ingested) error {
	f := ing.file

	// Pass 1: accrete section content, taking a base-offset snapshot for
	// every section this input touches before appending to it. The
	// snapshot is what later bakes correct, non-drifting offsets into
	// every symbol and relocation defined relative to that section
	// (spec.md §4.2 step 1, §8 invariant 2).
	base := make(map[int]uint64) // input section index -> output base offset

	for idx, sh := range f.Sections {
		if sh.Flags&dbgelf.SHF_ALLOC == 0 {
			continue
		}
		out := e.section(sh.Name)
		base[idx] = out.Size()

		out.IsExecutable = out.IsExecutable || sh.Flags&dbgelf.SHF_EXECINSTR != 0
		out.IsWritable = out.IsWritable || sh.Flags&dbgelf.SHF_WRITE != 0

		if sh.Type == dbgelf.SHT_NOBITS {
			out.IsBSS = true
			out.appendZero(sh.Size)
			continue
		}

		data, err := sh.Data()
		if err != nil {
			return errf(KindMalformedInput, ing.of.Name, "reading section %q: %v", sh.Name, err)
		}
		out.appendBytes(data)
	}

	// Pass 2: symbol table insertion. Null, section and file symbols are
	// never inserted; only symbols concretely defined in a section this
	// input just accreted participate (spec.md §4.2 step 3).
	syms, err := f.Symbols()
	if err != nil && len(syms) == 0 {
		// No .symtab is legal for a trivial object; nothing more to do.
		syms = nil
	}

	for _, s := range syms {
		if s.Name == "" {
			continue
		}
		typ := dbgelf.ST_TYPE(s.Info)
		if typ == dbgelf.STT_SECTION || typ == dbgelf.STT_FILE {
			continue
		}
		secIdx := int(s.Section)
		if secIdx <= 0 || secIdx >= len(f.Sections) {
			continue // SHN_UNDEF, SHN_ABS, SHN_COMMON: not a concrete definition here
		}
		b, ok := base[secIdx]
		if !ok {
			continue // defined in a non-allocatable section; not linker-visible
		}
		bind := dbgelf.ST_BIND(s.Info)
		e.symtab.Define(Symbol{
			Name:        s.Name,
			SectionName: f.Sections[secIdx].Name,
			Offset:      b + s.Value,
			IsGlobal:    bind == dbgelf.STB_GLOBAL || bind == dbgelf.STB_WEAK,
		})
	}

	// Pass 3: relocation translation. Every SHT_RELA section applies to
	// the section named by its sh_info; r_sym indexes the same symbol
	// table walked above (debug/elf numbers Symbols() from entry 1, so
	// index i there is r_sym-1 here).
	for _, sh := range f.Sections {
		if sh.Type != dbgelf.SHT_RELA {
			continue
		}
		targetIdx := int(sh.Info)
		if targetIdx <= 0 || targetIdx >= len(f.Sections) {
			continue
		}
		targetBase, ok := base[targetIdx]
		if !ok {
			continue // relocations against a non-allocatable section carry nothing forward
		}
		targetName := f.Sections[targetIdx].Name

		raw, err := sh.Data()
		if err != nil {
			return errf(KindMalformedInput, ing.of.Name, "reading %q: %v", sh.Name, err)
		}
		if len(raw)%24 != 0 {
			return errf(KindMalformedInput, ing.of.Name, "%q has a truncated entry", sh.Name)
		}

		for off := 0; off+24 <= len(raw); off += 24 {
			rOffset := binary.LittleEndian.Uint64(raw[off:])
			rInfo := binary.LittleEndian.Uint64(raw[off+8:])
			rAddend := int64(binary.LittleEndian.Uint64(raw[off+16:]))
			rSym := uint32(rInfo >> 32)
			rType := uint32(rInfo)

			kind, encoding, size, err := relocShape(rType)
			if err != nil {
				return &LinkError{Kind: KindUnsupportedRelocation, Origin: ing.of.Name, Reason: err.Error()}
			}

			rec := Relocation{
				Offset:   targetBase + rOffset,
				Kind:     kind,
				Encoding: encoding,
				Size:     size,
				Addend:   rAddend,
			}

			if rSym == 0 {
				return errf(KindMalformedInput, ing.of.Name, "relocation in %q has no symbol", sh.Name)
			}
			symIdx := int(rSym) - 1
			if symIdx < 0 || symIdx >= len(syms) {
				return errf(KindMalformedInput, ing.of.Name, "relocation in %q has an out-of-range symbol index", sh.Name)
			}
			target := syms[symIdx]

			if dbgelf.ST_TYPE(target.Info) == dbgelf.STT_SECTION {
				tIdx := int(target.Section)
				tBase, ok := base[tIdx]
				if !ok {
					return errf(KindMalformedInput, ing.of.Name, "relocation in %q targets a non-allocatable section", sh.Name)
				}
				rec.TargetKind = TargetSection
				rec.TargetSectionName = f.Sections[tIdx].Name
				rec.TargetOffset = tBase
			} else {
				if target.Name == "" {
					return errf(KindMalformedInput, ing.of.Name, "relocation in %q targets an unnamed symbol", sh.Name)
				}
				rec.TargetKind = TargetSymbol
				rec.TargetSymbolName = target.Name
			}

			out := e.section(targetName)
			out.Relocations = append(out.Relocations, rec)
		}
	}

	return nil
}

// relocShape maps a raw R_X86_64_* relocation type to the engine's
// (kind, encoding, size) triple (spec.md §4.6).
func relocShape(rType uint32) (kind, encoding, size int, err error) {
	switch dbgelf.R_X86_64(rType) {
	case dbgelf.R_X86_64_64:
		return RelAbsolute, EncGeneric, 64, nil
	case dbgelf.R_X86_64_32S:
		return RelAbsolute, EncX86Signed, 32, nil
	case dbgelf.R_X86_64_PC32:
		return RelRelative, EncX86Signed, 32, nil
	case dbgelf.R_X86_64_PLT32:
		return RelPltRelative, EncX86Signed, 32, nil
	default:
		return 0, 0, 0, errUnsupportedRelocType(rType)
	}
}

func errUnsupportedRelocType(rType uint32) error {
	return &unsupportedRelocType{rType: rType}
}

type unsupportedRelocType struct{ rType uint32 }

func (e *unsupportedRelocType) Error() string {
	return "unsupported relocation type " + dbgelf.R_X86_64(e.rType).String()
}

// finishAccretion runs once every input has been folded in, before
// synthesis begins. It exists as an explicit pipeline seam: later stages
// must never observe a partially-accreted section.
func (e *Engine) finishAccretion() {}
