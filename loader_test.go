package crust

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func gotoDict() *OpcodeDictionary {
	return newTestDict(&CommandDefinition{
		ID:    0x0002,
		Name:  "goto",
		Input: []Param{{Name: "dest", Type: TypeLabel}},
		Attrs: Attrs{IsSegment: true},
	})
}

func putHeader(b []byte, at int, dest int32) {
	binary.LittleEndian.PutUint16(b[at:], 0x0002)
	b[at+2] = 0x01 // NUM32 tag
	binary.LittleEndian.PutUint32(b[at+3:], uint32(dest))
}

func putMissionsTable(b []byte, at int, mainSize, largestMission uint32, offsets []uint32) {
	b[at] = 0x00 // tag byte, unused
	binary.LittleEndian.PutUint32(b[at+1:], mainSize)
	binary.LittleEndian.PutUint32(b[at+5:], largestMission)
	binary.LittleEndian.PutUint16(b[at+9:], uint16(len(offsets)))
	binary.LittleEndian.PutUint16(b[at+11:], 0) // num_exclusive_missions, ignored
	pos := at + 13
	for _, o := range offsets {
		binary.LittleEndian.PutUint32(b[pos:], o)
		pos += 4
	}
}

// TestLoadThreeSegmentFile builds a minimal three-header .scm file (no
// externals segment) and checks the recovered chunk layout: one MAIN
// script and two non-empty missions.
func TestLoadThreeSegmentFile(t *testing.T) {
	const (
		header0 = 0
		header1 = 7
		header2 = 14
		table   = 21
		tableSz = 21 // 13-byte header + 2 offsets * 4 bytes
		mainEnd = 42 + 18
		gap     = 10
		m0Start = mainEnd + gap
		m0End   = m0Start + 20
		m1End   = m0End + 20
	)

	chunk := make([]byte, m1End)
	putHeader(chunk, header0, 7)  // header1 sits at 7
	putHeader(chunk, header1, 14) // header2 sits at 14
	putHeader(chunk, header2, 42) // mainStart = 42
	putMissionsTable(chunk, table, uint32(mainEnd), 0, []uint32{uint32(m0Start), uint32(m0End)})

	scripts, err := Load(chunk, gotoDict(), GTA3Dialect)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(scripts) != 3 {
		t.Fatalf("got %d scripts, want 3", len(scripts))
	}

	main := scripts[0]
	if main.Kind != Main || main.BaseOffset != 42 || len(main.Bytes) != 18 {
		t.Errorf("main = %+v (len %d), want Kind=Main BaseOffset=42 len=18", main, len(main.Bytes))
	}

	for i, want := range []struct{ start, end int }{{m0Start, m0End}, {m0End, m1End}} {
		m := scripts[i+1]
		if m.Kind != Mission || m.BaseOffset != 0 || len(m.Bytes) != want.end-want.start {
			t.Errorf("mission %d = %+v (len %d), want len %d", i, m, len(m.Bytes), want.end-want.start)
		}
	}
}

func TestLoadNoSegmentsIsExternal(t *testing.T) {
	chunk := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	scripts, err := Load(chunk, gotoDict(), GTA3Dialect)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(scripts) != 1 || scripts[0].Kind != External {
		t.Errorf("got %+v, want single External script", scripts)
	}
}

func TestLoadOneOrTwoSegmentsIsError(t *testing.T) {
	chunk := make([]byte, 7)
	putHeader(chunk, 0, 7) // single header, no further valid goto after it
	if _, err := Load(chunk, gotoDict(), GTA3Dialect); err == nil {
		t.Error("Load() error = nil, want error for a missing missions segment")
	}
}

func TestLoadFileEmptyInputIsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.scm")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := LoadFile(path, gotoDict(), GTA3Dialect); err == nil {
		t.Error("LoadFile() error = nil, want error for an empty input file")
	}
}
