package engine

import "encoding/binary"

// buildSysVHashSection writes the classic .hash / DT_HASH table: a flat
// bucket-then-chain index over every row of the final dynsym order. Index
// 0 (null) and every PLT import (indices 1…plt_imports) are omitted from
// hashing — they resolve at bucket 0 via the zero chain entry — only
// exports are hashed by name (spec.md §4.8).
func (e *Engine) buildSysVHashSection(sec *Section) {
	n := uint32(len(e.dynsymOrder))
	nbucket, nchain := n, n
	pltImports := uint32(len(e.pltDynamicSymbols))

	buf := sec.Content
	binary.LittleEndian.PutUint32(buf[0:], nbucket)
	binary.LittleEndian.PutUint32(buf[4:], nchain)

	bucketOff := 8
	chainOff := 8 + int(nbucket)*4

	for i := 1 + pltImports; i < n; i++ {
		h := elfHash(e.dynsymOrder[i].Name) % nbucket
		bOff := bucketOff + int(h)*4
		head := binary.LittleEndian.Uint32(buf[bOff:])
		binary.LittleEndian.PutUint32(buf[chainOff+int(i)*4:], head)
		binary.LittleEndian.PutUint32(buf[bOff:], i)
	}
}

// gnuHashBucketCount is the bucket count the spec mandates: one bucket per
// export (spec.md §4.8), with a floor of 1 so the table stays well-formed
// when there are no exports to hash.
func gnuHashBucketCount(nExports int) uint32 {
	if nExports <= 0 {
		return 1
	}
	return uint32(nExports)
}

// buildGNUHashSection writes .gnu_hash / DT_GNU_HASH: bucket count equals
// the export count, with exports bucketed by gnu_hash(name) mod
// bucket_count (spec.md §4.8). buildDynsymOrder has already sorted
// dynsymOrder's export tail by that same bucket key, so each bucket's
// members are contiguous here.
func (e *Engine) buildGNUHashSection(sec *Section) {
	symoffset := 1 + len(e.pltDynamicSymbols)
	exports := e.dynsymOrder[symoffset:]

	const maskwords, shift2 = 1, 1
	nbuckets := gnuHashBucketCount(len(exports))

	hashes := make([]uint32, len(exports))
	buckets := make([]uint32, len(exports))
	for i, row := range exports {
		h := gnuHash(row.Name)
		hashes[i] = h
		buckets[i] = h % nbuckets
	}

	buf := sec.Content
	binary.LittleEndian.PutUint32(buf[0:], nbuckets)
	binary.LittleEndian.PutUint32(buf[4:], uint32(symoffset))
	binary.LittleEndian.PutUint32(buf[8:], maskwords)
	binary.LittleEndian.PutUint32(buf[12:], shift2)

	var bloom uint64
	for _, h := range hashes {
		bloom |= 1 << (h % 64)
		bloom |= 1 << ((h >> shift2) % 64)
	}
	binary.LittleEndian.PutUint64(buf[16:], bloom)

	bucketOff := 24
	chainOff := bucketOff + int(nbuckets)*4

	for i := range exports {
		b := buckets[i]
		if i == 0 || buckets[i-1] != b {
			binary.LittleEndian.PutUint32(buf[bucketOff+int(b)*4:], uint32(symoffset+i))
		}
		v := hashes[i] &^ 1
		if i == len(exports)-1 || buckets[i+1] != b {
			v |= 1
		}
		binary.LittleEndian.PutUint32(buf[chainOff+i*4:], v)
	}
}

// elfHash is the classic SysV ELF string hash (used by .hash / DT_HASH),
// the same bit-shuffling accumulator shape the teacher's own hashStringKey
// helper uses for its FNV variant, specialized here to the fixed algorithm
// the ELF gABI mandates.
func elfHash(name string) uint32 {
	var h, g uint32
	for i := 0; i < len(name); i++ {
		h = (h << 4) + uint32(name[i])
		g = h & 0xf0000000
		if g != 0 {
			h ^= g >> 24
		}
		h &^= g
	}
	return h
}

// gnuHash is the GNU-style hash used by .gnu_hash / DT_GNU_HASH.
func gnuHash(name string) uint32 {
	h := uint32(5381)
	for i := 0; i < len(name); i++ {
		h = h*33 + uint32(name[i])
	}
	return h
}
