package engine

import (
	"fmt"
	"testing"
)

// buildArMember serializes one ar member (60-byte header + even-padded data).
func buildArMember(name string, data []byte) []byte {
	hdr := make([]byte, 60)
	copy(hdr[0:16], []byte(fmt.Sprintf("%-16s", name)))
	copy(hdr[16:28], []byte(fmt.Sprintf("%-12d", 0)))  // mtime
	copy(hdr[28:34], []byte(fmt.Sprintf("%-6d", 0)))   // uid
	copy(hdr[34:40], []byte(fmt.Sprintf("%-6d", 0)))   // gid
	copy(hdr[40:48], []byte(fmt.Sprintf("%-8s", "644"))) // mode
	copy(hdr[48:58], []byte(fmt.Sprintf("%-10d", len(data))))
	hdr[58], hdr[59] = '`', '\n'

	out := append([]byte{}, hdr...)
	out = append(out, data...)
	if len(data)%2 == 1 {
		out = append(out, '\n')
	}
	return out
}

func buildArArchive(members map[string][]byte, order []string) []byte {
	out := []byte(arMagic)
	for _, name := range order {
		out = append(out, buildArMember(name, members[name])...)
	}
	return out
}

func TestParseArchiveSkipsSymbolIndexAndLongNameTable(t *testing.T) {
	order := []string{"/", "//", "a.o", "b.o"}
	members := map[string][]byte{
		"/":   {0, 0, 0, 0}, // symbol index, not a real object
		"//":  []byte("longname.o\n"),
		"a.o": []byte("AAA"),
		"b.o": []byte("BBBB"),
	}
	data := buildArArchive(members, order)

	of := &ObjectFile{Name: "lib.a", Data: data}
	got, err := parseArchive(of)
	if err != nil {
		t.Fatalf("parseArchive: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d members, want 2 (symbol index and long-name table skipped)", len(got))
	}
	if got[0].Name != "lib.a(a.o)" || string(got[0].Data) != "AAA" {
		t.Errorf("member 0 = %+v", got[0])
	}
	if got[1].Name != "lib.a(b.o)" || string(got[1].Data) != "BBBB" {
		t.Errorf("member 1 = %+v", got[1])
	}
}

func TestParseArchiveRejectsBadMagic(t *testing.T) {
	_, err := parseArchive(&ObjectFile{Name: "bad.a", Data: []byte("not an archive")})
	if err == nil {
		t.Fatal("expected an error for a missing ar magic header")
	}
}

func TestParseArchiveOddLengthMemberIsPadded(t *testing.T) {
	order := []string{"odd.o"}
	members := map[string][]byte{"odd.o": []byte("XYZ")} // length 3, odd
	data := buildArArchive(members, order)
	// A well-formed archive pads odd-length members to an even offset;
	// appending a second member after the pad byte must still parse.
	data = append(data, buildArMember("even.o", []byte("WXYZ"))...)

	of := &ObjectFile{Name: "lib.a", Data: data}
	got, err := parseArchive(of)
	if err != nil {
		t.Fatalf("parseArchive: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d members, want 2", len(got))
	}
	if string(got[1].Data) != "WXYZ" {
		t.Errorf("second member data = %q, want %q (pad byte must be skipped)", got[1].Data, "WXYZ")
	}
}
