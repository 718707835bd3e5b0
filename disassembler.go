package crust

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// IR ("intermediate representation") is one chunk's decoded instruction
// stream plus everything pass 2 needs to render it: its resolved name,
// kind, and local (chunk-relative) branch targets. Grounded on
// original_source/src/disassembler/mod.rs's IR struct.
type IR struct {
	Name         string
	Instructions []*Instruction
	Kind         ScriptKind
	Local        LocalContext
}

// Disassembler drives the two-pass decode/render pipeline across a
// fixed-width worker pool. Grounded on bbcdisasm's
// disassemble.go/Disassemble (two-pass: findBranchTargets then print) and
// original_source/src/main.rs's scoped_threadpool usage, translated to
// goroutines bounded by a semaphore channel - the idiomatic Go shape for
// a fixed-width worker pool when no available library offers one (see
// DESIGN.md).
type Disassembler struct {
	dict    *OpcodeDictionary
	dialect Dialect
	scanner *Scanner
	workers int
}

// NewDisassembler builds a Disassembler. workers <= 0 is treated as 1.
func NewDisassembler(dict *OpcodeDictionary, dialect Dialect, workers int) *Disassembler {
	if workers < 1 {
		workers = 1
	}
	return &Disassembler{dict: dict, dialect: dialect, scanner: NewScanner(dict), workers: workers}
}

// Pass1 decodes every chunk in parallel, returning the aggregated global
// branch-target set and one IR per chunk (order unspecified - label
// aggregation is set-union and therefore commutative).
func (d *Disassembler) Pass1(scripts []Script) (*GlobalContext, []*IR) {
	global := NewGlobalContext()
	irs := make([]*IR, len(scripts))

	sem := make(chan struct{}, d.workers)
	var wg sync.WaitGroup
	for i, scr := range scripts {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, scr Script) {
			defer wg.Done()
			defer func() { <-sem }()
			irs[i] = d.decodeChunk(scr, global)
		}(i, scr)
	}
	wg.Wait()
	return global, irs
}

func (d *Disassembler) decodeChunk(scr Script, global *GlobalContext) *IR {
	parser := NewParser(scr.Bytes, d.dict, d.dialect, scr.BaseOffset)
	var instructions []*Instruction
	for !parser.Done() {
		instructions = append(instructions, parser.Next())
	}

	global.Extend(d.scanner.CollectGlobalAddresses(instructions))
	local := d.scanner.CollectRelativeAddresses(instructions)

	return &IR{
		Name:         Slugify(ScriptName(d.dict, instructions)),
		Instructions: instructions,
		Kind:         scr.Kind,
		Local:        LocalContext{Targets: local},
	}
}

// ScriptName resolves a chunk's declared name: the first string parameter
// of the first instruction whose opcode is SCRIPT_NAME, or "noname" when
// no such instruction appears.
func ScriptName(dict *OpcodeDictionary, instructions []*Instruction) string {
	nameOp, ok := dict.LookupName("SCRIPT_NAME")
	if ok {
		for _, inst := range instructions {
			if inst.Opcode.Masked() != nameOp || len(inst.Params) == 0 {
				continue
			}
			if s, ok := inst.Params[0].ToString(); ok {
				return s
			}
		}
	}
	return "noname"
}

// Slugify renders name as a filesystem-safe, lowercased,
// underscore-separated slug: lowercase, non-alphanumerics collapsed to a
// single underscore, and never empty.
func Slugify(name string) string {
	var sb strings.Builder
	prevUnderscore := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			prevUnderscore = false
		case !prevUnderscore:
			sb.WriteByte('_')
			prevUnderscore = true
		}
	}
	out := strings.Trim(sb.String(), "_")
	if out == "" {
		return "noname"
	}
	return out
}

// renderInstructionLine renders one instruction as `{oooooo} name p1 p2
// … pN`, EOL parameters elided.
func renderInstructionLine(inst *Instruction) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "{%06d} %s", inst.Offset, inst.Name)
	for _, p := range inst.Params {
		if p.Kind == ParamEOL {
			continue
		}
		sb.WriteByte(' ')
		sb.WriteString(p.Render())
	}
	return sb.String()
}

// isLabelTarget reports whether a label line should precede inst in a
// non-MAIN chunk: true when the negation of its (base_offset==0, so
// effectively local) offset is a known local target - mirroring the
// game's convention that negative operands denote intra-script
// addresses. MAIN chunks are resolved against GlobalContext instead, by
// renderIR directly.
func isLabelTarget(ir *IR, inst *Instruction) bool {
	return ir.Local.Has(-int32(inst.Offset))
}

// renderIR renders ir's full text listing. Returns the rendered text and
// whether the MAIN-script relative-offset warning applies.
func renderIR(ir *IR, global *GlobalContext) (string, bool) {
	var sb strings.Builder
	for _, inst := range ir.Instructions {
		var label bool
		if ir.Kind == Main {
			label = global.Has(int32(inst.Offset))
		} else {
			label = isLabelTarget(ir, inst)
		}
		if label {
			fmt.Fprintf(&sb, "\n:%d\n", inst.Offset)
		}
		sb.WriteString(renderInstructionLine(inst))
		sb.WriteByte('\n')
	}
	warn := ir.Kind == Main && len(ir.Local.Targets) > 0
	return sb.String(), warn
}

// nameAllocator hands out collision-free output filenames, guarded by a
// mutex since pass 2 runs across a worker pool. Collisions are resolved
// by appending _1, _2, … Grounded on
// original_source/src/disassembler/mod.rs's get_out_file_name, adapted
// from a filesystem stat-based check (race-prone once pass 2 is
// parallel) to an in-memory guarded set.
type nameAllocator struct {
	mu   sync.Mutex
	used map[string]bool
}

func newNameAllocator() *nameAllocator {
	return &nameAllocator{used: make(map[string]bool)}
}

func (a *nameAllocator) allocate(base string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	name := base
	for n := 1; a.used[name]; n++ {
		name = fmt.Sprintf("%s_%d", base, n)
	}
	a.used[name] = true
	return name
}

// Pass2 renders and writes one listing file per IR under outDir, running
// across the same worker-pool width as Pass1. Returns any MAIN-script
// relative-offset warnings in chunk order.
func (d *Disassembler) Pass2(outDir string, irs []*IR, global *GlobalContext) ([]string, error) {
	alloc := newNameAllocator()
	warnings := make([]string, len(irs))

	sem := make(chan struct{}, d.workers)
	var wg sync.WaitGroup
	errs := make([]error, len(irs))
	for i, ir := range irs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, ir *IR) {
			defer wg.Done()
			defer func() { <-sem }()

			text, warn := renderIR(ir, global)
			if warn {
				warnings[i] = fmt.Sprintf("Relative offsets found in the MAIN script (%s)", ir.Name)
			}

			name := alloc.allocate(ir.Name)
			path := filepath.Join(outDir, name+".txt")
			if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
				errs[i] = fmt.Errorf("writing %s: %w", path, err)
			}
		}(i, ir)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err // I/O during output is fatal
		}
	}

	out := warnings[:0]
	for _, w := range warnings {
		if w != "" {
			out = append(out, w)
		}
	}
	return out, nil
}

// Run executes both passes: decode every chunk, then render and write one
// listing per chunk under outDir. Returns any diagnostic warnings
// collected along the way.
func (d *Disassembler) Run(scripts []Script, outDir string) ([]string, error) {
	global, irs := d.Pass1(scripts)
	return d.Pass2(outDir, irs, global)
}
