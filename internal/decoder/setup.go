package decoder

import (
	"fmt"

	"tada-core/internal/programs"
	"tada-core/internal/schema"
)

// NewDefaultRegistry wires the decoder for every cataloged program using
// the loaded schemas. pump and pumpswap emit through the transaction
// log; the rest emit through self-CPI inner instructions, with
// meteora-dbc additionally synthesizing events from instruction types.
func NewDefaultRegistry(schemas map[string]*schema.Schema) (*Registry, error) {
	r := NewRegistry()
	for _, p := range programs.Catalog {
		s, ok := schemas[p.ID]
		if !ok {
			return nil, fmt.Errorf("no schema for program %s", p.ID)
		}
		switch p.ID {
		case "pump", "pumpswap":
			r.Register(NewLogDecoder(p.ID, p.Address, s))
		case "meteora-dbc":
			r.Register(NewBondingCurveDecoder(p.ID, p.Address, s))
		default:
			r.Register(NewCPIDecoder(p.ID, p.Address, s))
		}
	}
	return r, nil
}
