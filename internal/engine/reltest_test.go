package engine

import (
	"encoding/binary"

	"github.com/xyproto/ld67/internal/elfabi"
)

// This file hand-assembles minimal ET_REL ELF64/x86-64 objects the same way
// the teacher's own elf_test.go exercises its *output* by reading it back
// with debug/elf: here the direction is reversed, building byte-exact
// *input* objects so the engine's accretion and relocation logic can be
// driven end to end without needing an external assembler or compiler on
// the test machine.

// testSym describes one entry to place in a test object's .symtab. A
// symbol with Defined == false is an external reference (SHN_UNDEF),
// the shape a relocation against a symbol from another input takes.
type testSym struct {
	Name    string
	Value   uint64
	Defined bool
}

// testReloc describes one .rela.text entry, indexing into the same syms
// slice passed to buildRelObject (1-based, matching ELF's own convention
// that symbol table index 0 is always the null entry).
type testReloc struct {
	Offset uint64
	Sym    int // index into the syms slice passed to buildRelObject
	Type   uint32
	Addend int64
}

// buildRelObject serializes a single-section (".text") ET_REL object: code
// bytes, a symbol table (null entry, then one entry per sym, all global),
// and optionally a .rela.text relocation section.
func buildRelObject(text []byte, syms []testSym, relocs []testReloc) []byte {
	strtab := []byte{0}
	nameOff := make([]uint32, len(syms))
	for i, s := range syms {
		nameOff[i] = uint32(len(strtab))
		strtab = append(strtab, append([]byte(s.Name), 0)...)
	}

	shstrtab := []byte{0}
	addName := func(s string) uint32 {
		off := uint32(len(shstrtab))
		shstrtab = append(shstrtab, append([]byte(s), 0)...)
		return off
	}
	nameText := addName(".text")
	var nameRela uint32
	hasRela := len(relocs) > 0
	if hasRela {
		nameRela = addName(".rela.text")
	}
	nameSymtab := addName(".symtab")
	nameStrtab := addName(".strtab")
	nameShstrtab := addName(".shstrtab")

	symtabBytes := make([]byte, elfabi.SizeSym) // null entry
	for i, s := range syms {
		shndx := uint16(elfabi.SHN_UNDEF)
		if s.Defined {
			shndx = 1 // .text is always section index 1 here
		}
		rec := elfabi.Sym64{
			Name:  nameOff[i],
			Info:  elfabi.SymInfo(elfabi.STB_GLOBAL, elfabi.STT_NOTYPE),
			Shndx: shndx,
			Value: s.Value,
		}
		symtabBytes = append(symtabBytes, rec.Put()...)
	}

	var relaBytes []byte
	for _, r := range relocs {
		rec := elfabi.Rela64{Offset: r.Offset, Sym: uint32(r.Sym), Type: r.Type, Addend: r.Addend}
		relaBytes = append(relaBytes, rec.Put()...)
	}

	// Section index assignment: 0=null, 1=.text, [2=.rela.text], next=.symtab, next=.strtab, next=.shstrtab.
	textIdx := uint16(1)
	symtabIdx := uint16(2)
	if hasRela {
		symtabIdx = 3
	}
	strtabIdx := symtabIdx + 1
	shstrtabIdx := strtabIdx + 1

	var sections []elfabi.Shdr64
	var bodies [][]byte
	sections = append(sections, elfabi.Shdr64{}) // null
	bodies = append(bodies, nil)

	sections = append(sections, elfabi.Shdr64{
		Name: nameText, Type: elfabi.SHT_PROGBITS,
		Flags: elfabi.SHF_ALLOC | elfabi.SHF_EXECINSTR, Size: uint64(len(text)), Addralign: 1,
	})
	bodies = append(bodies, text)

	if hasRela {
		sections = append(sections, elfabi.Shdr64{
			Name: nameRela, Type: elfabi.SHT_RELA,
			Link: uint32(symtabIdx), Info: uint32(textIdx),
			Size: uint64(len(relaBytes)), Entsize: elfabi.SizeRela, Addralign: 8,
		})
		bodies = append(bodies, relaBytes)
	}

	sections = append(sections, elfabi.Shdr64{
		Name: nameSymtab, Type: elfabi.SHT_SYMTAB,
		Link: uint32(strtabIdx), Info: 1,
		Size: uint64(len(symtabBytes)), Entsize: elfabi.SizeSym, Addralign: 8,
	})
	bodies = append(bodies, symtabBytes)

	sections = append(sections, elfabi.Shdr64{
		Name: nameStrtab, Type: elfabi.SHT_STRTAB, Size: uint64(len(strtab)), Addralign: 1,
	})
	bodies = append(bodies, strtab)

	sections = append(sections, elfabi.Shdr64{
		Name: nameShstrtab, Type: elfabi.SHT_STRTAB, Size: uint64(len(shstrtab)), Addralign: 1,
	})
	bodies = append(bodies, shstrtab)

	// Lay out: Ehdr, then every section's body back-to-back (each aligned
	// to its own sh_addralign), then the 8-byte-aligned section header table.
	offset := uint64(elfabi.SizeEhdr)
	for i := range sections {
		if i == 0 {
			continue
		}
		if sections[i].Addralign > 1 {
			offset = (offset + sections[i].Addralign - 1) &^ (sections[i].Addralign - 1)
		}
		sections[i].Offset = offset
		offset += sections[i].Size
	}
	offset = (offset + 7) &^ 7
	shoff := offset
	offset += uint64(len(sections)) * elfabi.SizeShdr

	buf := make([]byte, offset)
	ehdr := elfabi.Ehdr64{
		Type: elfabi.ET_REL, Machine: elfabi.EM_X86_64, Version: elfabi.EV_CURRENT,
		Shoff: shoff, Ehsize: elfabi.SizeEhdr, Shentsize: elfabi.SizeShdr,
		Shnum: uint16(len(sections)), Shstrndx: shstrtabIdx,
	}
	ehdr.Ident[elfabi.EI_MAG0] = elfabi.ELFMAG0
	ehdr.Ident[1] = elfabi.ELFMAG1
	ehdr.Ident[2] = elfabi.ELFMAG2
	ehdr.Ident[3] = elfabi.ELFMAG3
	ehdr.Ident[elfabi.EI_CLASS] = elfabi.ELFCLASS64
	ehdr.Ident[elfabi.EI_DATA] = elfabi.ELFDATA2LSB
	ehdr.Ident[elfabi.EI_VERSION] = elfabi.EV_CURRENT
	copy(buf[0:], ehdr.Put())

	for i, sh := range sections {
		if i == 0 {
			continue
		}
		copy(buf[sh.Offset:], bodies[i])
	}
	for i, sh := range sections {
		copy(buf[shoff+uint64(i)*elfabi.SizeShdr:], sh.Put())
	}

	return buf
}

func le32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
