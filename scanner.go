package crust

// Scanner walks a decoded instruction stream once and partitions the
// offsets referenced by branch-kind parameters into global (>=0) and
// local (<0) target sets. Grounded on
// original_source/src/disassembler/scanner.rs's Scanner, corrected to
// look branch opcodes up by their *masked* value - the original's
// branch_ops.contains(&i.opcode) compares a dictionary-keyed (masked) id
// against the raw instruction opcode and so silently misses negated
// branch opcodes (IF NOT ...); every dictionary lookup must mask the
// negation flag first, so this scanner does too.
type Scanner struct {
	dict *OpcodeDictionary
}

// NewScanner builds a Scanner over dict. Branch-ness is decided per
// instruction at scan time via dict.Lookup, not precomputed, since it's
// a cheap O(1) map lookup and keeps the scanner correct even if dict is
// mutated between uses (it never is, but there's no reason to assume it
// won't be).
func NewScanner(dict *OpcodeDictionary) *Scanner {
	return &Scanner{dict: dict}
}

// isBranch reports whether inst's opcode has the is_branch attribute -
// equivalently, whose first schema parameter is typed Label.
func (s *Scanner) isBranch(inst *Instruction) bool {
	def, ok := s.dict.Lookup(inst.Opcode)
	if !ok {
		return false
	}
	return def.Attrs.IsBranch
}

// CollectGlobalAddresses returns the set of non-negative offsets
// referenced by a branch parameter anywhere in instructions.
func (s *Scanner) CollectGlobalAddresses(instructions []*Instruction) map[int32]struct{} {
	res := make(map[int32]struct{})
	for _, inst := range instructions {
		if !s.isBranch(inst) || len(inst.Params) == 0 {
			continue
		}
		if off, ok := inst.Params[0].ToOffset(); ok && off >= 0 {
			res[off] = struct{}{}
		}
	}
	return res
}

// CollectRelativeAddresses returns the set of negative (chunk-local)
// offsets referenced by a branch parameter anywhere in instructions.
func (s *Scanner) CollectRelativeAddresses(instructions []*Instruction) map[int32]struct{} {
	res := make(map[int32]struct{})
	for _, inst := range instructions {
		if !s.isBranch(inst) || len(inst.Params) == 0 {
			continue
		}
		if off, ok := inst.Params[0].ToOffset(); ok && off < 0 {
			res[off] = struct{}{}
		}
	}
	return res
}
