package schema

import (
	"crypto/sha256"
	"embed"
	"encoding/json"
	"fmt"
)

//go:embed idl/*.json
var idlFiles embed.FS

// Discriminator is the 8-byte type tag prefixing every known event or
// instruction payload.
type Discriminator [8]byte

// EventDiscriminator derives the anchor event discriminator:
// sha256("event:<Name>")[:8].
func EventDiscriminator(name string) Discriminator {
	var d Discriminator
	sum := sha256.Sum256([]byte("event:" + name))
	copy(d[:], sum[:8])
	return d
}

// InstructionDiscriminator derives the anchor instruction discriminator:
// sha256("global:<name>")[:8].
func InstructionDiscriminator(name string) Discriminator {
	var d Discriminator
	sum := sha256.Sum256([]byte("global:" + name))
	copy(d[:], sum[:8])
	return d
}

// Field is one named field in an event, argument list or struct type.
type Field struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
}

// FieldType describes a borsh-encoded value. Exactly one of the members
// is set: Primitive for scalar kinds, or one of the composites.
type FieldType struct {
	Primitive string       // u8..u128, i8..i128, f32, f64, bool, pubkey, string, bytes
	Option    *FieldType   // option<T>
	Vec       *FieldType   // vec<T>, u32 length prefix
	Array     *FieldType   // [T; ArrayLen]
	ArrayLen  int
	Defined   string       // named struct or enum from the schema's types
}

// UnmarshalJSON accepts either a primitive string ("u64") or an object
// with one of the keys option/vec/array/defined, matching the trimmed
// anchor IDL type encoding used by the embedded schema files.
func (t *FieldType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t.Primitive = s
		return nil
	}
	var obj struct {
		Option  *FieldType        `json:"option"`
		Vec     *FieldType        `json:"vec"`
		Array   []json.RawMessage `json:"array"`
		Defined string            `json:"defined"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("invalid field type %s: %w", string(data), err)
	}
	switch {
	case obj.Option != nil:
		t.Option = obj.Option
	case obj.Vec != nil:
		t.Vec = obj.Vec
	case len(obj.Array) == 2:
		var elem FieldType
		if err := json.Unmarshal(obj.Array[0], &elem); err != nil {
			return err
		}
		var n int
		if err := json.Unmarshal(obj.Array[1], &n); err != nil {
			return err
		}
		t.Array = &elem
		t.ArrayLen = n
	case obj.Defined != "":
		t.Defined = obj.Defined
	default:
		return fmt.Errorf("unrecognized field type: %s", string(data))
	}
	return nil
}

// EventDef describes one event the program can emit.
type EventDef struct {
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`

	Disc Discriminator `json:"-"`
}

// InstructionDef describes one instruction: its account-role order and
// argument layout. Accounts are role names in account-index order.
type InstructionDef struct {
	Name     string   `json:"name"`
	Accounts []string `json:"accounts"`
	Args     []Field  `json:"args"`

	Disc Discriminator `json:"-"`
}

// TypeDef is a composite type referenced via {"defined": name}. Kind is
// "struct" (Fields) or "enum" (Variants, u8 tag in declaration order).
type TypeDef struct {
	Name     string        `json:"name"`
	Kind     string        `json:"kind"`
	Fields   []Field       `json:"fields,omitempty"`
	Variants []EnumVariant `json:"variants,omitempty"`
}

// EnumVariant is one tagged-union arm. Unit variants have no fields and
// decode to the variant name.
type EnumVariant struct {
	Name   string  `json:"name"`
	Fields []Field `json:"fields,omitempty"`
}

// Schema is one program's full decoding description, immutable after load.
type Schema struct {
	Name         string            `json:"name"`
	Address      string            `json:"address"`
	Events       []*EventDef       `json:"events"`
	Instructions []*InstructionDef `json:"instructions"`
	Types        []*TypeDef        `json:"types"`

	eventsByDisc map[Discriminator]*EventDef
	insByDisc    map[Discriminator]*InstructionDef
	insByName    map[string]*InstructionDef
	typesByName  map[string]*TypeDef
}

// Load parses and indexes all embedded schemas, keyed by program id.
func Load() (map[string]*Schema, error) {
	entries, err := idlFiles.ReadDir("idl")
	if err != nil {
		return nil, fmt.Errorf("read embedded idl dir: %w", err)
	}
	out := make(map[string]*Schema, len(entries))
	for _, e := range entries {
		raw, err := idlFiles.ReadFile("idl/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", e.Name(), err)
		}
		s, err := Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse schema %s: %w", e.Name(), err)
		}
		out[s.Name] = s
	}
	return out, nil
}

// Parse decodes a single schema file and builds its discriminator indexes.
func Parse(raw []byte) (*Schema, error) {
	var s Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	s.eventsByDisc = make(map[Discriminator]*EventDef, len(s.Events))
	for _, ev := range s.Events {
		ev.Disc = EventDiscriminator(ev.Name)
		s.eventsByDisc[ev.Disc] = ev
	}
	s.insByDisc = make(map[Discriminator]*InstructionDef, len(s.Instructions))
	s.insByName = make(map[string]*InstructionDef, len(s.Instructions))
	for _, ins := range s.Instructions {
		ins.Disc = InstructionDiscriminator(ins.Name)
		s.insByDisc[ins.Disc] = ins
		s.insByName[ins.Name] = ins
	}
	s.typesByName = make(map[string]*TypeDef, len(s.Types))
	for _, td := range s.Types {
		s.typesByName[td.Name] = td
	}
	return &s, nil
}

// EventByDisc returns the event definition for an 8-byte discriminator.
func (s *Schema) EventByDisc(d Discriminator) (*EventDef, bool) {
	ev, ok := s.eventsByDisc[d]
	return ev, ok
}

// InstructionByDisc returns the instruction definition for a discriminator.
func (s *Schema) InstructionByDisc(d Discriminator) (*InstructionDef, bool) {
	ins, ok := s.insByDisc[d]
	return ins, ok
}

// Instruction returns an instruction definition by name.
func (s *Schema) Instruction(name string) (*InstructionDef, bool) {
	ins, ok := s.insByName[name]
	return ins, ok
}

// TypeByName resolves a {"defined": name} reference.
func (s *Schema) TypeByName(name string) (*TypeDef, bool) {
	td, ok := s.typesByName[name]
	return td, ok
}

// DiscFrom copies the first 8 bytes of data into a Discriminator.
// Callers must ensure len(data) >= 8.
func DiscFrom(data []byte) Discriminator {
	var d Discriminator
	copy(d[:], data[:8])
	return d
}
