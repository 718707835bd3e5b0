package crust

import "testing"

// FuzzParseChunk exercises the rollback/forward-progress invariant: no
// matter the input bytes, decoding a chunk must terminate and every
// instruction offset must strictly increase.
func FuzzParseChunk(f *testing.F) {
	dict := newTestDict(
		&CommandDefinition{ID: 0x0002, Name: "goto", Input: []Param{{Type: TypeLabel}}, Attrs: Attrs{IsBranch: true}},
		&CommandDefinition{ID: 0x03A4, Name: "SCRIPT_NAME", Input: []Param{{Type: TypeString}}},
		&CommandDefinition{ID: 0x0010, Name: "print_args", Input: []Param{{Type: TypeArguments}}},
	)

	f.Add([]byte{0x02, 0x00, 0x01, 0x51, 0x00, 0x00, 0x00})
	f.Add([]byte{0xFE, 0xFE})
	f.Add([]byte{0xA4, 0x03, 'm', 'a', 'i', 'n', 0x00, 0x00, 0x00, 0x00})
	f.Add([]byte{0x10, 0x00, 0x04, 0x2A, 0x05, 0x01, 0x00, 0x00})
	f.Add([]byte{0x02, 0x80, 0x01, 0x05, 0x00, 0x00, 0x00})
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		p := NewParser(data, dict, GTA3Dialect, 0)
		var lastOffset uint32
		first := true
		for i := 0; !p.Done(); i++ {
			if i > len(data) {
				t.Fatalf("decoding did not terminate within %d steps", len(data))
			}
			before := p.Position()
			inst := p.Next()
			if p.Position() <= before {
				t.Fatalf("cursor did not advance: before=%d after=%d", before, p.Position())
			}
			if !first && inst.Offset <= lastOffset {
				t.Fatalf("offsets did not strictly increase: %d then %d", lastOffset, inst.Offset)
			}
			lastOffset = inst.Offset
			first = false
		}
	})
}
