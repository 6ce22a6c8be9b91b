package decoder

import (
	"log"

	"tada-core/internal/models"
	"tada-core/internal/schema"
)

// anchorEventIxDisc is the fixed instruction tag carried by anchor-style
// self-CPI event emission; the event discriminator and payload follow it.
var anchorEventIxDisc = schema.Discriminator{0xe4, 0x45, 0xa5, 0x2e, 0x51, 0xcb, 0x9a, 0x1d}

// CPIDecoder decodes programs that emit events as inner instructions
// self-invoking the program with [discriminator(8)][payload] data,
// possibly behind an 8-byte CPI wrapper prefix (meteora-dbc,
// meteora-damm-v2, raydium-launchlab, raydium-cpmm).
//
// The inner instruction's declared program index is deliberately not
// checked: the self-invocation can arrive under a different account
// index, so the discriminator match is authoritative.
type CPIDecoder struct {
	programID string
	address   string
	schema    *schema.Schema

	// checkWrapperDisc gates stripping on the known anchor wrapper tag
	// instead of blindly retrying at offset 8 (meteora-dbc).
	checkWrapperDisc bool

	// synthesizeInstructions enables the bonding-curve fallback that
	// infers pool-initialization and migration activity from instruction
	// discriminators when no event was decoded (meteora-dbc).
	synthesizeInstructions bool
}

func NewCPIDecoder(programID, address string, s *schema.Schema) *CPIDecoder {
	return &CPIDecoder{programID: programID, address: address, schema: s}
}

// NewBondingCurveDecoder is the meteora-dbc variant: explicit wrapper
// discriminator check plus instruction-type fallback synthesis.
func NewBondingCurveDecoder(programID, address string, s *schema.Schema) *CPIDecoder {
	return &CPIDecoder{
		programID:              programID,
		address:                address,
		schema:                 s,
		checkWrapperDisc:       true,
		synthesizeInstructions: true,
	}
}

func (d *CPIDecoder) ProgramID() string      { return d.programID }
func (d *CPIDecoder) ProgramAddress() string { return d.address }

func (d *CPIDecoder) Parse(env *TransactionEnvelope) []models.Event {
	if !env.HasAccount(d.address) {
		return nil
	}

	var events []models.Event
	seq := 0
	for _, group := range env.InnerInstructions {
		for _, ix := range group.Instructions {
			if len(ix.Data) < 16 {
				continue
			}
			ev, ok := d.decodeInner(env, ix.Data, seq)
			if !ok {
				continue
			}
			events = append(events, ev)
			seq++
		}
	}

	if len(events) == 0 && d.synthesizeInstructions {
		if ev, ok := d.synthesize(env); ok {
			events = append(events, ev)
		}
	}
	return events
}

// decodeInner tries the raw [disc][payload] interpretation first, then
// the wrapper-stripped one. A stripped retry only matches if the
// discriminator is in the program's event table.
func (d *CPIDecoder) decodeInner(env *TransactionEnvelope, data []byte, seq int) (models.Event, bool) {
	if def, ok := d.schema.EventByDisc(schema.DiscFrom(data)); ok {
		return d.buildEvent(env, def, data[8:], seq)
	}
	if d.checkWrapperDisc && schema.DiscFrom(data) != anchorEventIxDisc {
		return models.Event{}, false
	}
	stripped := data[8:]
	if len(stripped) < 8 {
		return models.Event{}, false
	}
	if def, ok := d.schema.EventByDisc(schema.DiscFrom(stripped)); ok {
		return d.buildEvent(env, def, stripped[8:], seq)
	}
	return models.Event{}, false
}

func (d *CPIDecoder) buildEvent(env *TransactionEnvelope, def *schema.EventDef, payload []byte, seq int) (models.Event, bool) {
	data, err := d.schema.DecodeEvent(def, payload)
	if err != nil {
		log.Printf("[decoder] %s: %v (sig=%s)", d.programID, err, env.Signature)
		return models.Event{}, false
	}
	enrich(env, d.schema, d.address, def.Name, data)
	return newEvent(env, d.programID, d.address, def.Name, seq, data), true
}
