package crust

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSlugify(t *testing.T) {
	tests := []struct{ in, want string }{
		{"main", "main"},
		{"MAIN", "main"},
		{"Mission #3!", "mission_3"},
		{"  leading and trailing  ", "leading_and_trailing"},
		{"", "noname"},
		{"###", "noname"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Slugify(tt.in)
			if got != tt.want {
				t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
			}
			for _, r := range got {
				if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_') {
					t.Errorf("Slugify(%q) = %q contains disallowed rune %q", tt.in, got, r)
				}
			}
			if got == "" {
				t.Errorf("Slugify(%q) returned empty string", tt.in)
			}
		})
	}
}

func TestScriptNameResolution(t *testing.T) {
	dict := newTestDict(&CommandDefinition{
		ID:    0x03A4,
		Name:  "SCRIPT_NAME",
		Input: []Param{{Type: TypeString}},
	})

	t.Run("found", func(t *testing.T) {
		instructions := []*Instruction{
			{Opcode: 0x03A4, Params: []InstructionParam{{Kind: ParamStr, Str: "main"}}},
		}
		if got := ScriptName(dict, instructions); got != "main" {
			t.Errorf("got %q, want %q", got, "main")
		}
	})

	t.Run("absent falls back to noname", func(t *testing.T) {
		instructions := []*Instruction{
			{Opcode: 0x0001, Params: []InstructionParam{{Kind: ParamNum32, I32: 1}}},
		}
		if got := ScriptName(dict, instructions); got != "noname" {
			t.Errorf("got %q, want %q", got, "noname")
		}
	})
}

func TestRenderIRLinesAndLabels(t *testing.T) {
	ir := &IR{
		Name: "main",
		Kind: Main,
		Instructions: []*Instruction{
			{Opcode: 0x0002, Name: "goto", Offset: 0, Params: []InstructionParam{{Kind: ParamOffset, I32: 81}}},
			{Opcode: 0x0001, Name: "nop", Offset: 7},
			{Opcode: InvalidOpcode, Name: InvalidName, Offset: 81, Params: []InstructionParam{{Kind: ParamRaw, Raw: 0xFE}}},
		},
	}
	global := NewGlobalContext()
	global.Extend(map[int32]struct{}{81: {}})

	text, warn := renderIR(ir, global)
	if warn {
		t.Error("MAIN script with no local targets should not warn")
	}
	if !strings.Contains(text, "{000000} goto 81") {
		t.Errorf("missing goto line, got:\n%s", text)
	}
	if !strings.Contains(text, "\n:81\n") {
		t.Errorf("missing label line for offset 81, got:\n%s", text)
	}
	if !strings.Contains(text, "{000081} invalid FE") {
		t.Errorf("missing invalid-opcode line, got:\n%s", text)
	}
}

func TestRenderIRMainWithLocalTargetsWarns(t *testing.T) {
	ir := &IR{
		Kind:         Main,
		Instructions: []*Instruction{{Opcode: 0x0001, Name: "nop", Offset: 0}},
		Local:        LocalContext{Targets: map[int32]struct{}{-5: {}}},
	}
	_, warn := renderIR(ir, NewGlobalContext())
	if !warn {
		t.Error("MAIN script with non-empty local targets should warn")
	}
}

func TestNameAllocatorResolvesCollisions(t *testing.T) {
	a := newNameAllocator()
	names := []string{a.allocate("main"), a.allocate("main"), a.allocate("main")}
	want := []string{"main", "main_1", "main_2"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

// TestDisassemblerEndToEnd runs the full Pass1/Pass2 pipeline over a
// two-chunk input (one MAIN script with a forward goto, one MISSION with
// a local, negative-offset branch) and checks the written listings.
func TestDisassemblerEndToEnd(t *testing.T) {
	dict := newTestDict(
		&CommandDefinition{ID: 0x0002, Name: "goto", Input: []Param{{Type: TypeLabel}}, Attrs: Attrs{IsBranch: true}},
		&CommandDefinition{ID: 0x0003, Name: "nop"},
	)

	mainBytes := []byte{
		0x02, 0x00, 0x01, 0x0E, 0x00, 0x00, 0x00, // goto 14 (forward, absolute)
		0x03, 0x00, // nop
	}
	missionBytes := []byte{
		0x03, 0x00, // nop, local offset 0
		0x02, 0x00, 0x01, 0xFB, 0xFF, 0xFF, 0xFF, // goto -5 (local branch to mission offset 5)
	}

	scripts := []Script{
		{Bytes: mainBytes, Kind: Main, BaseOffset: 0},
		{Bytes: missionBytes, Kind: Mission, BaseOffset: 0},
	}

	d := NewDisassembler(dict, GTA3Dialect, 2)
	outDir := t.TempDir()
	warnings, err := d.Run(scripts, outDir)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("got warnings %v, want none", warnings)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d output files, want 2", len(entries))
	}

	noname, err := os.ReadFile(filepath.Join(outDir, "noname.txt"))
	if err != nil {
		t.Fatalf("expected a noname.txt listing: %v", err)
	}
	if !strings.Contains(string(noname), "goto") {
		t.Errorf("noname.txt missing goto instruction:\n%s", noname)
	}
}
