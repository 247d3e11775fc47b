package engine

import (
	"encoding/binary"

	"github.com/xyproto/ld67/internal/elfabi"
)

// finalizeDynamic writes the byte content that could only be computed
// once Reserve/Layout fixed every section's virtual address: the PLT
// stubs, the GOT slots, .rela.plt, .dynsym and .dynamic (spec.md §4.3,
// §4.5). The sizes of all these sections were already fixed in synthesize
// and reserve; this only overwrites their placeholder zero bytes.
func (e *Engine) finalizeDynamic() error {
	if n := len(e.pltDynamicSymbols); n > 0 {
		e.buildPLT(n)
		e.buildGOTPLT(n)
		e.buildRelaPLT(n)
	}
	if len(e.dynsymOrder) > 0 {
		e.buildDynsym()
	}
	if hashSec, ok := e.sections[".hash"]; ok {
		e.buildSysVHashSection(hashSec)
	}
	if ghSec, ok := e.sections[".gnu_hash"]; ok {
		e.buildGNUHashSection(ghSec)
	}
	e.buildDynamicSection()
	return nil
}

// buildPLT writes the 16-byte PLT0 header and one 16-byte stub per
// import, in the classic x86-64 lazy-binding shape (spec.md §4.3).
func (e *Engine) buildPLT(n int) {
	plt := e.sections[".plt"]
	pltAddr := e.sectionAddress[".plt"]
	gotAddr := e.sectionAddress[".got.plt"]

	put32 := func(off int, v int32) { binary.LittleEndian.PutUint32(plt.Content[off:], uint32(v)) }

	// PLT0: push *GOT[1]; jmp *GOT[2]; nop padding.
	plt.Content[0], plt.Content[1] = 0xff, 0x35
	put32(2, int32(int64(gotAddr+8)-int64(pltAddr+6)))
	plt.Content[6], plt.Content[7] = 0xff, 0x25
	put32(8, int32(int64(gotAddr+16)-int64(pltAddr+12)))
	copy(plt.Content[12:16], []byte{0x0f, 0x1f, 0x40, 0x00})

	for i := 0; i < n; i++ {
		stubOff := 16 + 16*i
		stubAddr := pltAddr + uint64(stubOff)
		gotSlotAddr := gotAddr + 24 + 8*uint64(i)

		plt.Content[stubOff], plt.Content[stubOff+1] = 0xff, 0x25
		put32(stubOff+2, int32(int64(gotSlotAddr)-int64(stubAddr+6)))

		plt.Content[stubOff+6] = 0x68
		put32(stubOff+7, int32(i))

		plt.Content[stubOff+11] = 0xe9
		put32(stubOff+12, int32(int64(pltAddr)-int64(stubAddr+16)))
	}
}

// buildGOTPLT writes the 3-word header (GOT[0] = &_DYNAMIC, GOT[1..2]
// reserved for the dynamic linker) and seeds every import's slot with the
// address of its PLT stub's lazy-resolution fallthrough (spec.md §4.3).
func (e *Engine) buildGOTPLT(n int) {
	got := e.sections[".got.plt"]
	pltAddr := e.sectionAddress[".plt"]

	binary.LittleEndian.PutUint64(got.Content[0:], e.sectionAddress[".dynamic"])
	binary.LittleEndian.PutUint64(got.Content[8:], 0)
	binary.LittleEndian.PutUint64(got.Content[16:], 0)

	for i := 0; i < n; i++ {
		stubAddr := pltAddr + 16 + 16*uint64(i)
		binary.LittleEndian.PutUint64(got.Content[24+8*i:], stubAddr+6)
	}
}

func (e *Engine) buildRelaPLT(n int) {
	rela := e.sections[".rela.plt"]
	gotAddr := e.sectionAddress[".got.plt"]

	for i := 0; i < n; i++ {
		off := i * 24
		binary.LittleEndian.PutUint64(rela.Content[off:], gotAddr+24+8*uint64(i))
		info := (uint64(1+i) << 32) | uint64(elfabi.R_X86_64_JUMP_SLOT)
		binary.LittleEndian.PutUint64(rela.Content[off+8:], info)
		binary.LittleEndian.PutUint64(rela.Content[off+16:], 0)
	}
}

// buildDynsym writes .dynsym in the order synth fixed: null, PLT imports
// (SHN_UNDEF, value 0), then sorted exports (spec.md §4.3 "PLT symbol
// table fix-ups", §4.5).
func (e *Engine) buildDynsym() {
	dynsym := e.sections[".dynsym"]

	for i, row := range e.dynsymOrder {
		off := i * 24
		nameID := uint32(0)
		if row.Name != "" {
			nameID = e.dynstr.Add(row.Name)
		}
		binary.LittleEndian.PutUint32(dynsym.Content[off:], nameID)

		switch {
		case i == 0:
			// STN_UNDEF: all zero.
		case row.IsImport:
			dynsym.Content[off+4] = elfabi.SymInfo(elfabi.STB_GLOBAL, elfabi.STT_FUNC)
			binary.LittleEndian.PutUint16(dynsym.Content[off+6:], elfabi.SHN_UNDEF)
		default:
			sym := row.Sym
			dynsym.Content[off+4] = elfabi.SymInfo(elfabi.STB_GLOBAL, elfabi.STT_NOTYPE)
			shndx := e.sectionIndex[sym.SectionName]
			binary.LittleEndian.PutUint16(dynsym.Content[off+6:], shndx)
			binary.LittleEndian.PutUint64(dynsym.Content[off+8:], e.sectionAddress[sym.SectionName]+sym.Offset)
		}
	}
}

// buildDynamicSection writes the DT_* array: DT_NEEDED per consumed
// shared object, the hash/symbol/string table descriptors, the PLT
// relocation block if present, and the terminating DT_NULL
// (spec.md §4.5).
func (e *Engine) buildDynamicSection() {
	var entries [][2]uint64

	for _, need := range e.needed {
		entries = append(entries, [2]uint64{elfabi.DT_NEEDED, uint64(need.DynstrID)})
	}
	if e.opts.Soname != "" {
		entries = append(entries, [2]uint64{elfabi.DT_SONAME, uint64(e.dynstr.Add(e.opts.Soname))})
	}

	if hashAddr, ok := e.sectionAddress[".hash"]; ok {
		entries = append(entries, [2]uint64{elfabi.DT_HASH, hashAddr})
	}
	if ghAddr, ok := e.sectionAddress[".gnu_hash"]; ok {
		entries = append(entries, [2]uint64{elfabi.DT_GNU_HASH, ghAddr})
	}

	entries = append(entries,
		[2]uint64{elfabi.DT_STRTAB, e.sectionAddress[".dynstr"]},
		[2]uint64{elfabi.DT_SYMTAB, e.sectionAddress[".dynsym"]},
		[2]uint64{elfabi.DT_STRSZ, e.dynstr.Size()},
		[2]uint64{elfabi.DT_SYMENT, elfabi.SizeSym},
	)

	if n := len(e.pltDynamicSymbols); n > 0 {
		entries = append(entries,
			[2]uint64{elfabi.DT_PLTGOT, e.sectionAddress[".got.plt"]},
			[2]uint64{elfabi.DT_PLTRELSZ, uint64(n) * elfabi.SizeRela},
			[2]uint64{elfabi.DT_PLTREL, elfabi.DT_RELA}, // value is itself a tag constant: DT_RELA
			[2]uint64{elfabi.DT_JMPREL, e.sectionAddress[".rela.plt"]},
		)
	}

	entries = append(entries, [2]uint64{elfabi.DT_NULL, 0})

	dyn := e.sections[".dynamic"]
	for i, ent := range entries {
		binary.LittleEndian.PutUint64(dyn.Content[16*i:], ent[0])
		binary.LittleEndian.PutUint64(dyn.Content[16*i+8:], ent[1])
	}
}
