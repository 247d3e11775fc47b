package engine

import (
	"sort"

	"github.com/xyproto/ld67/internal/elfabi"
)

// dynsymEntry is one row of the final .dynsym ordering: STN_UNDEF, then
// PLT imports (SHN_UNDEF, value 0), then locally defined exports sorted by
// GNU hash bucket (spec.md §4.5, §9 supplemented feature).
type dynsymEntry struct {
	Name       string
	IsImport   bool
	Sym        *Symbol // non-nil for exports
	HashGNU    uint32
}

// synthesize builds everything spec.md §4.3 calls for: the PLT/GOT
// apparatus, .interp, the synthetic _DYNAMIC/_GLOBAL_OFFSET_TABLE_ symbols
// and the final dynamic symbol ordering. Byte CONTENT that depends on
// final virtual addresses (the PLT stubs themselves, .got.plt's header
// words, .rela.plt) is deferred to finalizeDynamic, which runs after
// Reserve/Layout has assigned every section an address.
func (e *Engine) synthesize() error {
	if err := e.collectPLTImports(); err != nil {
		return err
	}

	if !e.opts.Shared {
		e.buildInterp()
	}

	e.buildPLTGOTSkeleton()
	e.buildDynsymOrder()

	// Reserve placeholder content now so Reserve/Layout sees correct
	// sizes; finalizeDynamic overwrites these bytes in place once
	// addresses exist. Sizes fixed here must match exactly what
	// finalizeDynamic later writes.
	e.section(".dynamic").appendZero(16 * uint64(e.dynamicEntryCount()))
	if len(e.dynsymOrder) > 0 {
		e.section(".dynsym").appendZero(elfabi.SizeSym * uint64(len(e.dynsymOrder)))
		e.section(".dynstr")
	}
	if e.opts.HashStyle == HashSysV || e.opts.HashStyle == HashBoth {
		e.section(".hash")
	}
	if e.opts.HashStyle == HashGNU || e.opts.HashStyle == HashBoth {
		e.section(".gnu_hash")
	}

	e.symtab.Define(Symbol{Name: "_DYNAMIC", SectionName: ".dynamic", Offset: 0, IsGlobal: true})
	e.symtab.Define(Symbol{Name: "_GLOBAL_OFFSET_TABLE_", SectionName: ".got.plt", Offset: 0, IsGlobal: true})

	return nil
}

// dynamicEntryCount mirrors the exact set of entries buildDynamicSection
// writes, so the section's reserved size always matches what is later
// written into it (spec.md §4.5).
func (e *Engine) dynamicEntryCount() int {
	n := len(e.needed)
	if e.opts.Soname != "" {
		n++
	}
	if e.opts.HashStyle == HashSysV || e.opts.HashStyle == HashBoth {
		n++
	}
	if e.opts.HashStyle == HashGNU || e.opts.HashStyle == HashBoth {
		n++
	}
	n += 4 // DT_STRTAB, DT_SYMTAB, DT_STRSZ, DT_SYMENT
	if len(e.pltDynamicSymbols) > 0 {
		n += 4 // DT_PLTGOT, DT_PLTRELSZ, DT_PLTREL, DT_JMPREL
	}
	n++ // DT_NULL
	return n
}

// collectPLTImports walks every accreted relocation looking for
// RelPltRelative targets that are not defined locally: those must be
// satisfied by a consumed shared object and get a PLT/GOT stub
// (spec.md §4.2 "shared-object handling", §4.3).
func (e *Engine) collectPLTImports() error {
	seen := make(map[string]bool)
	for _, name := range e.sectionOrder {
		sec := e.sections[name]
		for _, rec := range sec.Relocations {
			if rec.Kind != RelPltRelative || rec.TargetKind != TargetSymbol {
				continue
			}
			if _, ok := e.symtab.Lookup(rec.TargetSymbolName); ok {
				continue // resolved locally; no stub needed
			}
			if seen[rec.TargetSymbolName] {
				continue
			}
			if !e.sharedSymbols[rec.TargetSymbolName] {
				return errf(KindUnsupportedSymbol, rec.TargetSymbolName, "undefined reference, not provided by any consumed shared object")
			}
			seen[rec.TargetSymbolName] = true
			e.pltDynamicSymbols = append(e.pltDynamicSymbols, DynamicSymbol{Name: rec.TargetSymbolName})
		}
	}
	return nil
}

func (e *Engine) buildInterp() {
	if e.opts.DynamicLinker == "" {
		return
	}
	s := e.section(".interp")
	s.appendBytes(append([]byte(e.opts.DynamicLinker), 0))
}

// buildPLTGOTSkeleton reserves the fixed-size, address-independent shape
// of .plt / .got.plt / .rela.plt: a 16-byte PLT header plus one 16-byte
// stub per import, a 3-word GOT header plus one GOT slot per import, and
// one Rela64 record per import (spec.md §4.3).
func (e *Engine) buildPLTGOTSkeleton() {
	n := len(e.pltDynamicSymbols)
	if n == 0 {
		return
	}

	plt := e.section(".plt")
	plt.IsExecutable = true
	plt.appendZero(16 + 16*uint64(n))

	got := e.section(".got.plt")
	got.IsWritable = true
	got.appendZero(24 + 8*uint64(n))

	rela := e.section(".rela.plt")
	rela.appendZero(24 * uint64(n))

	// Symbol table fix-up: each imported name gets a static .symtab entry
	// pointing at its stub offset, even though the written record carries
	// SHN_UNDEF/st_value 0 (spec.md §4.3).
	for i, imp := range e.pltDynamicSymbols {
		e.symtab.Define(Symbol{
			Name:        imp.Name,
			SectionName: ".plt",
			Offset:      uint64(16 + 16*i),
			IsGlobal:    true,
			IsPLT:       true,
		})
	}
}

// buildDynsymOrder fixes the final .dynsym row ordering: null, then PLT
// imports in discovery order, then local exports sorted by ascending GNU
// hash bucket, stable within a bucket (spec.md §4.5, §9 supplemented feature — computed once here so
// layout, relocate and emit all agree on indices).
func (e *Engine) buildDynsymOrder() {
	if len(e.pltDynamicSymbols) == 0 && !e.opts.Shared {
		return
	}

	order := []dynsymEntry{{Name: ""}}
	for _, imp := range e.pltDynamicSymbols {
		order = append(order, dynsymEntry{Name: imp.Name, IsImport: true})
	}

	if e.opts.Shared {
		var exports []dynsymEntry
		for _, sym := range e.symtab.InOrder() {
			if !sym.IsGlobal || sym.IsPLT {
				continue
			}
			s := sym
			exports = append(exports, dynsymEntry{Name: sym.Name, Sym: s, HashGNU: gnuHash(sym.Name)})
		}
		bucketCount := gnuHashBucketCount(len(exports))
		sort.SliceStable(exports, func(i, j int) bool {
			return exports[i].HashGNU%bucketCount < exports[j].HashGNU%bucketCount
		})
		order = append(order, exports...)
	}

	e.dynsymOrder = order
}
