package decoder

import (
	"encoding/base64"
	"log"
	"strings"

	"tada-core/internal/models"
	"tada-core/internal/schema"
)

const programDataPrefix = "Program data: "

// LogDecoder decodes programs that emit their events as base64
// "Program data:" lines in the transaction log (pump, pumpswap). The
// owning program of each data line is tracked through the surrounding
// "Program <addr> invoke" / "Program <addr> success" markers.
type LogDecoder struct {
	programID string
	address   string
	schema    *schema.Schema
}

func NewLogDecoder(programID, address string, s *schema.Schema) *LogDecoder {
	return &LogDecoder{programID: programID, address: address, schema: s}
}

func (d *LogDecoder) ProgramID() string      { return d.programID }
func (d *LogDecoder) ProgramAddress() string { return d.address }

func (d *LogDecoder) Parse(env *TransactionEnvelope) []models.Event {
	if !env.HasAccount(d.address) {
		return nil
	}

	var events []models.Event
	seq := 0

	// Invocation stack: a program owns the data lines between its invoke
	// marker and its matching success marker.
	var stack []string
	for _, line := range env.LogMessages {
		switch {
		case strings.HasPrefix(line, "Program ") && strings.Contains(line, " invoke ["):
			parts := strings.Fields(line)
			if len(parts) >= 2 {
				stack = append(stack, parts[1])
			}

		case strings.HasPrefix(line, "Program ") && strings.HasSuffix(line, " success"):
			parts := strings.Fields(line)
			if len(parts) >= 2 && len(stack) > 0 && stack[len(stack)-1] == parts[1] {
				stack = stack[:len(stack)-1]
			}

		case strings.HasPrefix(line, programDataPrefix):
			if len(stack) == 0 || stack[len(stack)-1] != d.address {
				continue
			}
			ev, ok := d.decodeDataLine(env, line, seq)
			if !ok {
				continue
			}
			events = append(events, ev)
			seq++
		}
	}
	return events
}

// decodeDataLine base64-decodes one "Program data:" line and matches the
// leading 8-byte discriminator against the program's event table. Bad
// lines are logged and skipped; they never fail the transaction.
func (d *LogDecoder) decodeDataLine(env *TransactionEnvelope, line string, seq int) (models.Event, bool) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(line, programDataPrefix))
	if err != nil || len(raw) < 8 {
		return models.Event{}, false
	}

	def, ok := d.schema.EventByDisc(schema.DiscFrom(raw))
	if !ok {
		return models.Event{}, false
	}

	data, err := d.schema.DecodeEvent(def, raw[8:])
	if err != nil {
		log.Printf("[decoder] %s: %v (sig=%s)", d.programID, err, env.Signature)
		return models.Event{}, false
	}

	enrich(env, d.schema, d.address, def.Name, data)
	return newEvent(env, d.programID, d.address, def.Name, seq, data), true
}
