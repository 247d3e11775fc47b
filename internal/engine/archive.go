package engine

import (
	"strconv"
	"strings"
)

const arMagic = "!<arch>\n"

// parseArchive enumerates the members of a Unix "ar" archive as individual
// ObjectFiles. Members are currently parsed but not selectively pulled in —
// every member is treated as a contributing object (spec.md §4.1, §9 open
// question). No ar-format reader exists anywhere in the example pack, so
// this is a small hand-written reader of the common format: a fixed global
// header, then one 60-byte member header per entry, each immediately
// followed by the member's (even-padded) data.
func parseArchive(of *ObjectFile) ([]*ObjectFile, error) {
	data := of.Data
	if len(data) < len(arMagic) || string(data[:len(arMagic)]) != arMagic {
		return nil, errf(KindMalformedInput, of.Name, "not an ar archive")
	}

	var members []*ObjectFile
	pos := len(arMagic)
	for pos+60 <= len(data) {
		hdr := data[pos : pos+60]
		name := strings.TrimRight(string(hdr[0:16]), " ")
		sizeField := strings.TrimSpace(string(hdr[48:58]))
		size, err := strconv.Atoi(sizeField)
		if err != nil {
			return nil, errf(KindMalformedInput, of.Name, "bad member size field %q", sizeField)
		}
		if hdr[58] != '`' || hdr[59] != '\n' {
			return nil, errf(KindMalformedInput, of.Name, "bad member header terminator")
		}

		dataStart := pos + 60
		dataEnd := dataStart + size
		if dataEnd > len(data) {
			return nil, errf(KindMalformedInput, of.Name, "member %q truncated", name)
		}

		// Skip the linker-generated symbol index and long-name table
		// members; neither is consulted since archive member selection
		// is not symbol-driven here (spec.md §9).
		if name != "/" && name != "//" && name != "" {
			members = append(members, &ObjectFile{
				Name:     of.Name + "(" + strings.TrimSuffix(name, "/") + ")",
				Data:     data[dataStart:dataEnd],
				AsNeeded: of.AsNeeded,
			})
		}

		pos = dataEnd
		if pos%2 == 1 {
			pos++ // members are padded to an even offset
		}
	}

	return members, nil
}
