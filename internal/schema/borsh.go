package schema

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/mr-tron/base58"
)

// DecodeEvent deserializes an event payload (discriminator already
// stripped) into a field map using the event's declared layout. The
// payload must be fully consumed; trailing bytes indicate a layout
// mismatch and fail the decode.
func (s *Schema) DecodeEvent(ev *EventDef, payload []byte) (map[string]interface{}, error) {
	dec := bin.NewBorshDecoder(payload)
	data, err := s.decodeFields(dec, ev.Fields)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", ev.Name, err)
	}
	if dec.Remaining() > 0 {
		return nil, fmt.Errorf("decode %s: %d trailing bytes", ev.Name, dec.Remaining())
	}
	return data, nil
}

// DecodeArgs deserializes an instruction argument payload (discriminator
// already stripped). Unlike events, trailing bytes are tolerated: some
// programs append padding or versioned extensions to instruction data.
func (s *Schema) DecodeArgs(ins *InstructionDef, payload []byte) (map[string]interface{}, error) {
	dec := bin.NewBorshDecoder(payload)
	data, err := s.decodeFields(dec, ins.Args)
	if err != nil {
		return nil, fmt.Errorf("decode %s args: %w", ins.Name, err)
	}
	return data, nil
}

func (s *Schema) decodeFields(dec *bin.Decoder, fields []Field) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		v, err := s.decodeValue(dec, f.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		out[f.Name] = v
	}
	return out, nil
}

// decodeValue reads one borsh value. Integers up to 32 bits become
// float64; 64- and 128-bit integers become decimal strings; pubkeys and
// byte blobs become base58 strings.
func (s *Schema) decodeValue(dec *bin.Decoder, t FieldType) (interface{}, error) {
	switch {
	case t.Primitive != "":
		return s.decodePrimitive(dec, t.Primitive)

	case t.Option != nil:
		tag, err := dec.ReadUint8()
		if err != nil {
			return nil, err
		}
		if tag == 0 {
			return nil, nil
		}
		return s.decodeValue(dec, *t.Option)

	case t.Vec != nil:
		n, err := dec.ReadUint32(bin.LE)
		if err != nil {
			return nil, err
		}
		if t.Vec.Primitive == "u8" {
			raw, err := dec.ReadNBytes(int(n))
			if err != nil {
				return nil, err
			}
			return base58.Encode(raw), nil
		}
		items := make([]interface{}, 0, n)
		for i := uint32(0); i < n; i++ {
			v, err := s.decodeValue(dec, *t.Vec)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return items, nil

	case t.Array != nil:
		if t.Array.Primitive == "u8" {
			raw, err := dec.ReadNBytes(t.ArrayLen)
			if err != nil {
				return nil, err
			}
			return base58.Encode(raw), nil
		}
		items := make([]interface{}, 0, t.ArrayLen)
		for i := 0; i < t.ArrayLen; i++ {
			v, err := s.decodeValue(dec, *t.Array)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return items, nil

	case t.Defined != "":
		td, ok := s.TypeByName(t.Defined)
		if !ok {
			return nil, fmt.Errorf("unknown type %q", t.Defined)
		}
		return s.decodeDefined(dec, td)
	}
	return nil, fmt.Errorf("empty field type")
}

func (s *Schema) decodeDefined(dec *bin.Decoder, td *TypeDef) (interface{}, error) {
	switch td.Kind {
	case "struct":
		return s.decodeFields(dec, td.Fields)
	case "enum":
		tag, err := dec.ReadUint8()
		if err != nil {
			return nil, err
		}
		if int(tag) >= len(td.Variants) {
			return nil, fmt.Errorf("enum %s: tag %d out of range", td.Name, tag)
		}
		variant := td.Variants[tag]
		if len(variant.Fields) == 0 {
			return variant.Name, nil
		}
		fields, err := s.decodeFields(dec, variant.Fields)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{variant.Name: fields}, nil
	}
	return nil, fmt.Errorf("type %s: unknown kind %q", td.Name, td.Kind)
}

func (s *Schema) decodePrimitive(dec *bin.Decoder, kind string) (interface{}, error) {
	switch kind {
	case "u8":
		v, err := dec.ReadUint8()
		return float64(v), err
	case "i8":
		v, err := dec.ReadInt8()
		return float64(v), err
	case "u16":
		v, err := dec.ReadUint16(bin.LE)
		return float64(v), err
	case "i16":
		v, err := dec.ReadInt16(bin.LE)
		return float64(v), err
	case "u32":
		v, err := dec.ReadUint32(bin.LE)
		return float64(v), err
	case "i32":
		v, err := dec.ReadInt32(bin.LE)
		return float64(v), err
	case "u64":
		v, err := dec.ReadUint64(bin.LE)
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("%d", v), nil
	case "i64":
		v, err := dec.ReadInt64(bin.LE)
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("%d", v), nil
	case "u128":
		v, err := dec.ReadUint128(bin.LE)
		if err != nil {
			return nil, err
		}
		return v.String(), nil
	case "i128":
		v, err := dec.ReadInt128(bin.LE)
		if err != nil {
			return nil, err
		}
		return v.String(), nil
	case "f32":
		v, err := dec.ReadFloat32(bin.LE)
		return float64(v), err
	case "f64":
		return dec.ReadFloat64(bin.LE)
	case "bool":
		return dec.ReadBool()
	case "pubkey":
		raw, err := dec.ReadNBytes(32)
		if err != nil {
			return nil, err
		}
		return base58.Encode(raw), nil
	case "string":
		return dec.ReadRustString()
	case "bytes":
		n, err := dec.ReadUint32(bin.LE)
		if err != nil {
			return nil, err
		}
		raw, err := dec.ReadNBytes(int(n))
		if err != nil {
			return nil, err
		}
		return base58.Encode(raw), nil
	}
	return nil, fmt.Errorf("unknown primitive %q", kind)
}
