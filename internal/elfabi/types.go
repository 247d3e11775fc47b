package elfabi

import "encoding/binary"

// Ehdr64 is the ELF64 file header. Ident is the 16-byte e_ident array,
// which the caller fills in; Put copies it as-is ahead of the fixed fields.
type Ehdr64 struct {
	Ident     [EI_NIDENT]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint64
	Phoff     uint64
	Shoff     uint64
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

// Put encodes h into a SizeEhdr-byte little-endian buffer.
func (h *Ehdr64) Put() []byte {
	buf := make([]byte, SizeEhdr)
	copy(buf[0:16], h.Ident[:])
	le := binary.LittleEndian
	le.PutUint16(buf[16:18], h.Type)
	le.PutUint16(buf[18:20], h.Machine)
	le.PutUint32(buf[20:24], h.Version)
	le.PutUint64(buf[24:32], h.Entry)
	le.PutUint64(buf[32:40], h.Phoff)
	le.PutUint64(buf[40:48], h.Shoff)
	le.PutUint32(buf[48:52], h.Flags)
	le.PutUint16(buf[52:54], h.Ehsize)
	le.PutUint16(buf[54:56], h.Phentsize)
	le.PutUint16(buf[56:58], h.Phnum)
	le.PutUint16(buf[58:60], h.Shentsize)
	le.PutUint16(buf[60:62], h.Shnum)
	le.PutUint16(buf[62:64], h.Shstrndx)
	return buf
}

// Phdr64 is an ELF64 program header.
type Phdr64 struct {
	Type   uint32
	Flags  uint32
	Offset uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

func (p *Phdr64) Put() []byte {
	buf := make([]byte, SizePhdr)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], p.Type)
	le.PutUint32(buf[4:8], p.Flags)
	le.PutUint64(buf[8:16], p.Offset)
	le.PutUint64(buf[16:24], p.Vaddr)
	le.PutUint64(buf[24:32], p.Paddr)
	le.PutUint64(buf[32:40], p.Filesz)
	le.PutUint64(buf[40:48], p.Memsz)
	le.PutUint64(buf[48:56], p.Align)
	return buf
}

// Shdr64 is an ELF64 section header.
type Shdr64 struct {
	Name      uint32
	Type      uint32
	Flags     uint64
	Addr      uint64
	Offset    uint64
	Size      uint64
	Link      uint32
	Info      uint32
	Addralign uint64
	Entsize   uint64
}

func (s *Shdr64) Put() []byte {
	buf := make([]byte, SizeShdr)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], s.Name)
	le.PutUint32(buf[4:8], s.Type)
	le.PutUint64(buf[8:16], s.Flags)
	le.PutUint64(buf[16:24], s.Addr)
	le.PutUint64(buf[24:32], s.Offset)
	le.PutUint64(buf[32:40], s.Size)
	le.PutUint32(buf[40:44], s.Link)
	le.PutUint32(buf[44:48], s.Info)
	le.PutUint64(buf[48:56], s.Addralign)
	le.PutUint64(buf[56:64], s.Entsize)
	return buf
}

// Sym64 is an ELF64 symbol table entry.
type Sym64 struct {
	Name  uint32
	Info  byte
	Other byte
	Shndx uint16
	Value uint64
	Size  uint64
}

func (s *Sym64) Put() []byte {
	buf := make([]byte, SizeSym)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], s.Name)
	buf[4] = s.Info
	buf[5] = s.Other
	le.PutUint16(buf[6:8], s.Shndx)
	le.PutUint64(buf[8:16], s.Value)
	le.PutUint64(buf[16:24], s.Size)
	return buf
}

// SymInfo packs a binding/type pair into the st_info byte.
func SymInfo(binding, typ byte) byte {
	return (binding << 4) | (typ & 0xf)
}

// Rela64 is an ELF64 relocation-with-addend entry.
type Rela64 struct {
	Offset uint64
	Sym    uint32
	Type   uint32
	Addend int64
}

func (r *Rela64) Put() []byte {
	buf := make([]byte, SizeRela)
	le := binary.LittleEndian
	le.PutUint64(buf[0:8], r.Offset)
	info := (uint64(r.Sym) << 32) | uint64(r.Type)
	le.PutUint64(buf[8:16], info)
	le.PutUint64(buf[16:24], uint64(r.Addend))
	return buf
}

// Dyn64 is one entry of the .dynamic section.
type Dyn64 struct {
	Tag int64
	Val uint64
}

func (d *Dyn64) Put() []byte {
	buf := make([]byte, SizeDyn)
	le := binary.LittleEndian
	le.PutUint64(buf[0:8], uint64(d.Tag))
	le.PutUint64(buf[8:16], d.Val)
	return buf
}
