package crust

import "encoding/binary"

// Parser decodes one Script chunk into a stream of Instructions, sharing
// one algorithm across game dialects: only FLOAT decoding varies,
// supplied via Dialect. Grounded on bbcdisasm's plain uint cursor
// ("for cursor < offset+maxBytes") rather than a bufio/io.Reader
// abstraction - the chunk is a fully-owned in-memory slice, so a bounds-
// checked integer cursor is all the algorithm needs.
type Parser struct {
	chunk      []byte
	dict       *OpcodeDictionary
	dialect    Dialect
	baseOffset uint32
	pos        uint32
}

// NewParser returns a Parser positioned at the start of chunk. baseOffset
// is added to every decoded Instruction's local position; the loader
// passes the chunk's absolute start for MAIN and 0 for other chunks.
func NewParser(chunk []byte, dict *OpcodeDictionary, dialect Dialect, baseOffset uint32) *Parser {
	return &Parser{chunk: chunk, dict: dict, dialect: dialect, baseOffset: baseOffset}
}

// Position returns the parser's current cursor, relative to the start of
// its chunk.
func (p *Parser) Position() uint32 { return p.pos }

// SetPosition moves the cursor to an arbitrary chunk-relative offset.
// Used by the segmented loader to follow segment-goto chains.
func (p *Parser) SetPosition(pos uint32) { p.pos = pos }

// Done reports whether the chunk is exhausted (cursor == len(chunk)).
func (p *Parser) Done() bool { return p.pos >= uint32(len(p.chunk)) }

// Next decodes and returns the instruction at the current cursor,
// advancing it past the instruction's on-wire bytes. Must not be called
// when Done() is true. On any decode failure the cursor rewinds to where
// it started and a one-byte RAW sentinel is returned instead - this
// guarantees forward progress so iteration over a chunk always
// terminates.
func (p *Parser) Next() *Instruction {
	start := p.pos
	inst, ok := p.tryNext(start)
	if ok {
		return inst
	}
	return p.rollback(start)
}

func (p *Parser) rollback(start uint32) *Instruction {
	p.pos = start
	b, ok := p.readU8()
	if !ok {
		// Done() guarantees at least one byte was available; this is
		// unreachable in practice but kept total rather than panicking.
		b = 0
	}
	return &Instruction{
		Opcode: InvalidOpcode,
		Name:   InvalidName,
		Offset: start + p.baseOffset,
		Params: []InstructionParam{{Kind: ParamRaw, Raw: b}},
	}
}

func (p *Parser) tryNext(start uint32) (*Instruction, bool) {
	rawOp, ok := p.readU16LE()
	if !ok {
		return nil, false
	}
	opcode := Opcode(rawOp)

	def, ok := p.dict.Lookup(opcode)
	if !ok {
		return nil, false
	}

	var params []InstructionParam
	slots := def.Params()
	for i := 0; i < len(slots); i++ {
		slot := slots[i]
		for {
			tagOffset := p.pos
			tagByte, ok := p.readU8()
			if !ok {
				return nil, false
			}

			dt := decodeDataType(tagByte)
			if dt == DataStr8 {
				p.pos = tagOffset // the tag byte is the first character
			}

			if dt == DataEOL {
				if slot.Type != TypeArguments {
					return nil, false
				}
				// Variadic group closed; stop iterating the whole
				// parameter list.
				goto assembled
			}

			param, ok := p.toParam(dt, slot.Type)
			if !ok {
				return nil, false
			}
			params = append(params, param)

			if slot.Type != TypeArguments {
				break // advance to next schema slot
			}
			// Arguments: keep reading operands at this same slot.
		}
	}

assembled:
	return &Instruction{
		Opcode: opcode,
		Name:   def.Name,
		Offset: start + p.baseOffset,
		Params: params,
	}, true
}

// toParam decodes one operand given its on-wire DataType and the schema
// slot's semantic type, applying label retagging.
func (p *Parser) toParam(dt DataType, semantic ParamType) (InstructionParam, bool) {
	switch dt {
	case DataNum8:
		v, ok := p.readI8()
		if !ok {
			return InstructionParam{}, false
		}
		return InstructionParam{Kind: ParamNum32, I32: int32(v)}, true
	case DataNum16:
		v, ok := p.readI16LE()
		if !ok {
			return InstructionParam{}, false
		}
		return InstructionParam{Kind: ParamNum32, I32: int32(v)}, true
	case DataNum32:
		v, ok := p.readI32LE()
		if !ok {
			return InstructionParam{}, false
		}
		if semantic == TypeLabel {
			return InstructionParam{Kind: ParamOffset, I32: v}, true
		}
		return InstructionParam{Kind: ParamNum32, I32: v}, true
	case DataGVar:
		v, ok := p.readU16LE()
		if !ok {
			return InstructionParam{}, false
		}
		return InstructionParam{Kind: ParamGVar, U16: v}, true
	case DataLVar:
		v, ok := p.readU16LE()
		if !ok {
			return InstructionParam{}, false
		}
		return InstructionParam{Kind: ParamLVar, U16: v}, true
	case DataFloat:
		b, ok := p.readBytes(p.dialect.FloatSize)
		if !ok {
			return InstructionParam{}, false
		}
		return InstructionParam{Kind: ParamFloat, F32: p.dialect.DecodeFloat(b)}, true
	case DataStr8:
		b, ok := p.readBytes(8)
		if !ok {
			return InstructionParam{}, false
		}
		return InstructionParam{Kind: ParamStr, Str: str8(b)}, true
	default:
		return InstructionParam{}, false
	}
}

// str8 decodes an 8-byte NUL-padded string field as the prefix before the
// first NUL, without UTF-8 validation - Go's string(bytes) conversion
// never rejects or replaces invalid sequences, matching the original's
// unchecked decode.
func str8(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// --- bounds-checked little-endian reads --------------------------------

func (p *Parser) readU8() (byte, bool) {
	if p.pos+1 > uint32(len(p.chunk)) {
		return 0, false
	}
	b := p.chunk[p.pos]
	p.pos++
	return b, true
}

func (p *Parser) readI8() (int8, bool) {
	b, ok := p.readU8()
	return int8(b), ok
}

func (p *Parser) readBytes(n int) ([]byte, bool) {
	if p.pos+uint32(n) > uint32(len(p.chunk)) {
		return nil, false
	}
	b := p.chunk[p.pos : p.pos+uint32(n)]
	p.pos += uint32(n)
	return b, true
}

func (p *Parser) readU16LE() (uint16, bool) {
	b, ok := p.readBytes(2)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint16(b), true
}

func (p *Parser) readI16LE() (int16, bool) {
	v, ok := p.readU16LE()
	return int16(v), ok
}

func (p *Parser) readI32LE() (int32, bool) {
	b, ok := p.readBytes(4)
	if !ok {
		return 0, false
	}
	return int32(binary.LittleEndian.Uint32(b)), true
}
