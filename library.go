package crust

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// ParamType is a parameter's semantic type.
type ParamType int

const (
	TypeInt ParamType = iota
	TypeFloat
	TypeString
	TypeBoolean
	TypeLabel
	TypeArguments
	TypeVector
	TypeAny
)

// ParamSource is where an operand's value originates.
type ParamSource int

const (
	SourceAny ParamSource = iota
	SourceAnyVar
	SourceAnyVarGlobal
	SourceAnyVarLocal
	SourceLiteral
	SourcePointer
)

// Param is one schema slot of a CommandDefinition: a semantic type plus a
// source. VectorSize is only meaningful when Type == TypeVector.
// AnyClass is only meaningful when Type == TypeAny.
type Param struct {
	Name       string
	Type       ParamType
	Source     ParamSource
	VectorSize int
	AnyClass   string
}

// Attrs is the closed set of boolean command attributes.
type Attrs struct {
	IsBranch      bool
	IsSegment     bool
	IsCondition   bool
	IsConstructor bool
	IsDestructor  bool
	IsKeyword     bool
	IsNop         bool
	IsOverload    bool
	IsStatic      bool
	IsUnsupported bool
}

// Platform is a closed enum of target platforms a command may be
// restricted to. Unknown platform strings are a hard load error since,
// unlike versions, the library format makes no forward-compatibility
// promise about platform names.
type Platform int

const (
	PlatformAny Platform = iota
	PlatformPC
	PlatformConsole
	PlatformMobile
)

// Version is a closed enum of library schema versions a command may be
// restricted to. Unrecognized version strings are silently dropped for
// forward-compatibility, unlike unknown platforms.
type Version int

const (
	VersionAny Version = iota
	Version10
	Version10DE
)

// CommandDefinition associates an Opcode with a name, ordered parameter
// schema (inputs then outputs) and attribute set.
type CommandDefinition struct {
	ID        Opcode
	Name      string
	Input     []Param
	Output    []Param
	Attrs     Attrs
	Platforms []Platform
	Versions  []Version
}

// Params returns the command's input parameters followed by its output
// parameters, the order the wire decoder walks them in.
func (c *CommandDefinition) Params() []Param {
	all := make([]Param, 0, len(c.Input)+len(c.Output))
	all = append(all, c.Input...)
	all = append(all, c.Output...)
	return all
}

// OpcodeDictionary is the in-memory opcode library: O(1) lookup by
// opcode, plus multi-valued indices by attribute and by name.
type OpcodeDictionary struct {
	byOpcode   map[Opcode]*CommandDefinition
	byName     map[string]Opcode
	byAttr     map[string][]Opcode
	segmentOp  Opcode
	hasSegment bool
}

// NewOpcodeDictionary builds an empty dictionary; used for the loader's
// stub one-command dictionary and as the zero value when the library
// file is missing.
func NewOpcodeDictionary() *OpcodeDictionary {
	return &OpcodeDictionary{
		byOpcode: make(map[Opcode]*CommandDefinition),
		byName:   make(map[string]Opcode),
		byAttr:   make(map[string][]Opcode),
	}
}

// Lookup returns the command definition for opcode, masking the negation
// flag first.
func (d *OpcodeDictionary) Lookup(opcode Opcode) (*CommandDefinition, bool) {
	c, ok := d.byOpcode[opcode.Masked()]
	return c, ok
}

// LookupName returns the opcode registered under name, if any.
func (d *OpcodeDictionary) LookupName(name string) (Opcode, bool) {
	op, ok := d.byName[name]
	return op, ok
}

// ByAttr returns every opcode whose command definition has the named
// attribute set (e.g. "is_branch", "is_segment").
func (d *OpcodeDictionary) ByAttr(attr string) []Opcode {
	return d.byAttr[attr]
}

// All returns every command definition in the dictionary, in no
// particular order. Used by the dump-opcodes diagnostic command.
func (d *OpcodeDictionary) All() []*CommandDefinition {
	out := make([]*CommandDefinition, 0, len(d.byOpcode))
	for _, c := range d.byOpcode {
		out = append(out, c)
	}
	return out
}

func (d *OpcodeDictionary) add(c *CommandDefinition) {
	cp := *c
	d.byOpcode[c.ID] = &cp
	d.byName[c.Name] = c.ID
	for attr, set := range map[string]bool{
		"is_branch":      c.Attrs.IsBranch,
		"is_segment":     c.Attrs.IsSegment,
		"is_condition":   c.Attrs.IsCondition,
		"is_constructor": c.Attrs.IsConstructor,
		"is_destructor":  c.Attrs.IsDestructor,
		"is_keyword":     c.Attrs.IsKeyword,
		"is_nop":         c.Attrs.IsNop,
		"is_overload":    c.Attrs.IsOverload,
		"is_static":      c.Attrs.IsStatic,
		"is_unsupported": c.Attrs.IsUnsupported,
	} {
		if set {
			d.byAttr[attr] = append(d.byAttr[attr], c.ID)
		}
	}
}

// --- JSON wire shapes -------------------------------------------------
//
// These mirror the library file's actual JSON shape:
// {meta, extensions: [{name, commands: [...]}], classes: [...]}. Unknown
// extra fields at any level are tolerated because encoding/json simply
// ignores struct fields it has no tag for.

type jsonLibrary struct {
	Meta       jsonMeta        `json:"meta"`
	Extensions []jsonExtension `json:"extensions"`
	Classes    []jsonClassMeta `json:"classes"`
}

type jsonMeta struct {
	LastUpdate uint64 `json:"last_update"`
	URL        string `json:"url"`
	Version    string `json:"version"`
}

type jsonClassMeta struct {
	Name         string `json:"name"`
	Desc         string `json:"desc"`
	Extends      string `json:"extends"`
	Constructable bool  `json:"constructable"`
}

type jsonExtension struct {
	Name     string        `json:"name"`
	Commands []jsonCommand `json:"commands"`
}

type jsonCommand struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	NumParams int          `json:"num_params"`
	ShortDesc string       `json:"short_desc"`
	Class     string       `json:"class"`
	Member    string       `json:"member"`
	Attrs     jsonAttrs    `json:"attrs"`
	Input     []jsonParam  `json:"input"`
	Output    []jsonParam  `json:"output"`
	Platforms []string     `json:"platforms"`
	Versions  []string     `json:"versions"`
}

type jsonAttrs struct {
	IsBranch      bool `json:"is_branch"`
	IsCondition   bool `json:"is_condition"`
	IsConstructor bool `json:"is_constructor"`
	IsDestructor  bool `json:"is_destructor"`
	IsKeyword     bool `json:"is_keyword"`
	IsNop         bool `json:"is_nop"`
	IsOverload    bool `json:"is_overload"`
	IsSegment     bool `json:"is_segment"`
	IsStatic      bool `json:"is_static"`
	IsUnsupported bool `json:"is_unsupported"`
}

type jsonParam struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Type   string `json:"type"`
}

// LoadLibrary reads and parses the JSON opcode library at path, returning
// an OpcodeDictionary. A missing file yields an empty dictionary rather
// than an error — a disassembler with no library can still run, decoding
// everything as one big stream of invalid instructions, which is useful
// when bringing up a new game's library file. Malformed JSON is a fatal
// startup error.
func LoadLibrary(path string) (*OpcodeDictionary, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return NewOpcodeDictionary(), nil
	}

	var lib jsonLibrary
	if err := json.Unmarshal(content, &lib); err != nil {
		return nil, fmt.Errorf("malformed library JSON %s: %w", path, err)
	}

	dict := NewOpcodeDictionary()
	for _, ext := range lib.Extensions {
		for _, jc := range ext.Commands {
			if jc.ID == "" {
				continue // pseudo-command with no opcode; filtered out
			}
			id, err := strconv.ParseUint(jc.ID, 16, 16)
			if err != nil {
				return nil, fmt.Errorf("command %q has unparseable id %q: %w", jc.Name, jc.ID, err)
			}

			platforms, err := convertPlatforms(jc.Platforms)
			if err != nil {
				return nil, err
			}

			def := &CommandDefinition{
				ID:        Opcode(id),
				Name:      jc.Name,
				Input:     convertParams(jc.Input),
				Output:    convertParams(jc.Output),
				Attrs:     convertAttrs(jc.Attrs),
				Platforms: platforms,
				Versions:  convertVersions(jc.Versions),
			}
			dict.add(def)
		}
	}
	return dict, nil
}

func convertAttrs(a jsonAttrs) Attrs {
	return Attrs{
		IsBranch:      a.IsBranch,
		IsSegment:     a.IsSegment,
		IsCondition:   a.IsCondition,
		IsConstructor: a.IsConstructor,
		IsDestructor:  a.IsDestructor,
		IsKeyword:     a.IsKeyword,
		IsNop:         a.IsNop,
		IsOverload:    a.IsOverload,
		IsStatic:      a.IsStatic,
		IsUnsupported: a.IsUnsupported,
	}
}

func convertParams(in []jsonParam) []Param {
	out := make([]Param, 0, len(in))
	for _, p := range in {
		out = append(out, convertParam(p))
	}
	return out
}

// convertParam maps a wire type string to a closed ParamType, falling
// back to TypeAny(name) for anything unrecognized rather than failing
// the load.
func convertParam(p jsonParam) Param {
	out := Param{Name: p.Name, Source: convertSource(p.Source)}
	switch p.Type {
	case "float":
		out.Type = TypeFloat
	case "int", "model_any", "model_char", "model_object", "model_vehicle":
		out.Type = TypeInt
	case "label":
		out.Type = TypeLabel
	case "string", "gxt_key", "zone_key":
		out.Type = TypeString
	case "bool", "boolean":
		out.Type = TypeBoolean
	case "arguments":
		out.Type = TypeArguments
	case "Object":
		out.Type = TypeAny
		out.AnyClass = "ScriptObject"
	case "Vector3":
		out.Type = TypeVector
		out.VectorSize = 3
	case "":
		out.Type = TypeInt
	default:
		out.Type = TypeAny
		out.AnyClass = p.Type
	}
	return out
}

func convertSource(s string) ParamSource {
	switch s {
	case "any":
		return SourceAny
	case "var_any":
		return SourceAnyVar
	case "var_global":
		return SourceAnyVarGlobal
	case "var_local":
		return SourceAnyVarLocal
	case "literal":
		return SourceLiteral
	case "pointer":
		return SourcePointer
	default:
		return SourceAny
	}
}

// convertPlatforms maps platform strings to the closed Platform enum. An
// unrecognized platform name is a hard load error, unlike an unrecognized
// version.
func convertPlatforms(in []string) ([]Platform, error) {
	out := make([]Platform, 0, len(in))
	for _, p := range in {
		switch p {
		case "any":
			out = append(out, PlatformAny)
		case "pc":
			out = append(out, PlatformPC)
		case "console":
			out = append(out, PlatformConsole)
		case "mobile":
			out = append(out, PlatformMobile)
		default:
			return nil, fmt.Errorf("unknown platform name %q", p)
		}
	}
	return out, nil
}

// convertVersions maps version strings to the closed Version enum.
// Unrecognized versions are silently dropped for forward-compatibility
// rather than erroring.
func convertVersions(in []string) []Version {
	out := make([]Version, 0, len(in))
	for _, v := range in {
		switch v {
		case "any":
			out = append(out, VersionAny)
		case "1.0":
			out = append(out, Version10)
		case "1.0 [DE]":
			out = append(out, Version10DE)
		}
	}
	return out
}
