package engine

import "encoding/binary"

// relocate evaluates every accreted relocation against the addresses
// Reserve/Layout assigned and patches the fixup bytes in place
// (spec.md §4.6). It must run after reserve/finalizeDynamic, once every
// section and PLT stub has a final virtual address.
func (e *Engine) relocate() error {
	for _, name := range e.sectionOrder {
		sec := e.sections[name]
		if len(sec.Relocations) == 0 {
			continue
		}
		place := e.sectionAddress[name]

		for _, rec := range sec.Relocations {
			s, err := e.resolveTarget(rec)
			if err != nil {
				return err
			}
			p := place + rec.Offset

			var value uint64
			switch {
			case rec.Kind == RelAbsolute:
				value = s + uint64(rec.Addend)
			default: // RelRelative, RelPltRelative
				value = s + uint64(rec.Addend) - p
			}

			if err := patch(sec.Content, rec.Offset, rec.Size, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveTarget computes S for a relocation: a section's own address for
// section-relative targets, a locally defined symbol's address, or — for
// PLT-relative relocations against an import — the address of that
// import's synthesized PLT stub (spec.md §4.6, §9 "PLT32 degrades to the
// PC32 formula" once a concrete address, stub or otherwise, exists).
func (e *Engine) resolveTarget(rec Relocation) (uint64, error) {
	if rec.TargetKind == TargetSection {
		return e.sectionAddress[rec.TargetSectionName] + rec.TargetOffset, nil
	}

	if rec.Kind == RelPltRelative {
		if idx, ok := e.pltIndex(rec.TargetSymbolName); ok {
			pltAddr := e.sectionAddress[".plt"]
			return pltAddr + 16 + 16*uint64(idx), nil
		}
	}

	sym, ok := e.symtab.Lookup(rec.TargetSymbolName)
	if !ok {
		return 0, errf(KindUnsupportedSymbol, rec.TargetSymbolName, "undefined reference")
	}
	return e.sectionAddress[sym.SectionName] + sym.Offset, nil
}

func (e *Engine) pltIndex(name string) (int, bool) {
	for i, imp := range e.pltDynamicSymbols {
		if imp.Name == name {
			return i, true
		}
	}
	return 0, false
}

// patch writes value's low `size` bits into buf at offset, little-endian,
// wrapping silently on overflow rather than rejecting it (spec.md §4.6).
func patch(buf []byte, offset uint64, size int, value uint64) error {
	switch size {
	case 64:
		binary.LittleEndian.PutUint64(buf[offset:], value)
	case 32:
		binary.LittleEndian.PutUint32(buf[offset:], uint32(value))
	default:
		return errf(KindBug, "", "unsupported relocation width %d", size)
	}
	return nil
}
