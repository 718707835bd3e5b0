// Package crust disassembles GTA3-era .scm scripts (GTA III, Vice City, and
// by extension San Andreas) given an external JSON opcode library.
package crust

import (
	"fmt"
	"sync"
)

// Opcode identifies a command. The top bit is the game's boolean
// "negation" flag (IF NOT ...) and must be masked off before any
// dictionary lookup; the raw value, flag included, is preserved on the
// decoded Instruction so a round trip reproduces the original bytes.
type Opcode uint16

// NegationMask is the top bit of an Opcode used to encode "IF NOT ...".
const NegationMask Opcode = 0x8000

// Masked strips the negation flag, yielding the value used for dictionary
// lookup.
func (o Opcode) Masked() Opcode { return o & 0x7FFF }

// Negated reports whether the negation flag is set.
func (o Opcode) Negated() bool { return o&NegationMask != 0 }

// ScriptKind distinguishes the three chunk kinds the segmented loader
// produces.
type ScriptKind int

const (
	Main ScriptKind = iota
	Mission
	External
)

func (k ScriptKind) String() string {
	switch k {
	case Main:
		return "MAIN"
	case Mission:
		return "MISSION"
	case External:
		return "EXTERNAL"
	default:
		return "UNKNOWN"
	}
}

// Script is a contiguous byte slice carved out of the input file along
// with the base offset added to its instructions' chunk-local positions:
// the absolute start of the chunk for MAIN, 0 for MISSION and EXTERNAL
// chunks (whose instruction offsets stay chunk-local).
// Script is owned by the loader and read-only thereafter.
type Script struct {
	Bytes      []byte
	Kind       ScriptKind
	BaseOffset uint32
}

// ParamKind discriminates the InstructionParam tagged union. Values map
// 1:1 to the decoded operand shapes; widened NUM8/NUM16 values are folded
// into ParamNum32 at decode time and no longer distinguished.
type ParamKind int

const (
	ParamEOL ParamKind = iota
	ParamRaw
	ParamNum32
	ParamFloat
	ParamStr
	ParamGVar
	ParamLVar
	ParamOffset
)

// InstructionParam is a decoded operand. Exactly one of the fields below
// is meaningful, selected by Kind - a closed, small variant set is
// represented as a flat struct rather than an interface, since there is
// no dynamic extensibility and every consumer (render/to-offset/to-string)
// is a pure function of Kind.
type InstructionParam struct {
	Kind ParamKind
	I32  int32  // ParamNum32, ParamOffset (signed)
	F32  float32 // ParamFloat
	Str  string  // ParamStr (up to 8 chars)
	U16  uint16  // ParamGVar, ParamLVar
	Raw  byte    // ParamRaw
}

// ToOffset returns the decoded value when Kind is ParamOffset, and ok=false
// otherwise. Used by the branch scanner to find label targets.
func (p InstructionParam) ToOffset() (int32, bool) {
	if p.Kind != ParamOffset {
		return 0, false
	}
	return p.I32, true
}

// ToString returns the decoded value when Kind is ParamStr, and ok=false
// otherwise. Used to resolve a script's declared SCRIPT_NAME.
func (p InstructionParam) ToString() (string, bool) {
	if p.Kind != ParamStr {
		return "", false
	}
	return p.Str, true
}

// Render renders the parameter the way it appears in a disassembly
// listing. EOL renders as the empty string and is elided by the caller.
func (p InstructionParam) Render() string {
	switch p.Kind {
	case ParamEOL:
		return ""
	case ParamNum32:
		return fmt.Sprintf("%d", p.I32)
	case ParamFloat:
		return fmt.Sprintf("%g", p.F32)
	case ParamOffset:
		v := p.I32
		if v < 0 {
			v = -v
		}
		return fmt.Sprintf("%d", v)
	case ParamStr:
		return fmt.Sprintf("%q", p.Str)
	case ParamGVar:
		return fmt.Sprintf("gvar_%d", p.U16)
	case ParamLVar:
		return fmt.Sprintf("lvar_%d", p.U16)
	case ParamRaw:
		return fmt.Sprintf("%02X", p.Raw)
	default:
		return ""
	}
}

// InvalidOpcode is the sentinel opcode used for the one-byte recovery
// instruction emitted whenever decode fails.
const InvalidOpcode Opcode = 0xFFFF

// InvalidName is the command name rendered for an InvalidOpcode
// instruction.
const InvalidName = "invalid"

// Instruction is one decoded opcode and its operands, tagged with its
// chunk-local position plus the chunk's BaseOffset (an absolute file
// offset for MAIN, a chunk-local one for MISSION and EXTERNAL).
type Instruction struct {
	Opcode Opcode
	Name   string
	Offset uint32
	Params []InstructionParam
}

// IsInvalid reports whether this is a one-byte RAW recovery sentinel.
func (i *Instruction) IsInvalid() bool { return i.Opcode == InvalidOpcode }

// GlobalContext accumulates the set of non-negative offsets referenced
// anywhere across all chunks by a branch parameter - absolute addresses
// in the MAIN script's address space. Appended to by worker goroutines
// under Mu.
type GlobalContext struct {
	Mu      sync.Mutex // guards Targets
	Targets map[int32]struct{}
}

// NewGlobalContext builds an empty GlobalContext ready for concurrent use.
func NewGlobalContext() *GlobalContext {
	return &GlobalContext{Targets: make(map[int32]struct{})}
}

// Extend adds offsets to the target set under lock. Safe for concurrent
// use by multiple pass-1 workers.
func (c *GlobalContext) Extend(offsets map[int32]struct{}) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	for o := range offsets {
		c.Targets[o] = struct{}{}
	}
}

// Has reports whether offset is a known global branch target. Only
// meaningful once pass 1 has completed for every chunk.
func (c *GlobalContext) Has(offset int32) bool {
	_, ok := c.Targets[offset]
	return ok
}

// LocalContext is the per-chunk set of negative (chunk-relative) offsets
// referenced by a branch parameter.
type LocalContext struct {
	Targets map[int32]struct{}
}

// Has reports whether offset is a known local branch target.
func (c LocalContext) Has(offset int32) bool {
	_, ok := c.Targets[offset]
	return ok
}
