package decoder

import (
	"fmt"
	"log"

	"tada-core/internal/models"
	"tada-core/internal/programs"
)

// Decoder turns a transaction envelope into zero or more normalized
// events for one program. Decoders are stateless after construction and
// safe for concurrent Parse calls.
type Decoder interface {
	ProgramID() string
	ProgramAddress() string
	Parse(env *TransactionEnvelope) []models.Event
}

// Registry dispatches an envelope to every decoder whose program is
// involved in the transaction, concatenating results in registration
// order. A panicking decoder contributes an empty list; it never aborts
// the transaction.
type Registry struct {
	decoders []Decoder
	byAddr   map[string]Decoder
}

func NewRegistry() *Registry {
	return &Registry{byAddr: make(map[string]Decoder)}
}

// Register adds a decoder. Registration order is dispatch order.
func (r *Registry) Register(d Decoder) {
	r.decoders = append(r.decoders, d)
	r.byAddr[d.ProgramAddress()] = d
}

// ByAddress returns the decoder registered for a program address.
func (r *Registry) ByAddress(addr string) (Decoder, bool) {
	d, ok := r.byAddr[addr]
	return d, ok
}

// Parse runs every registered decoder against the envelope. Decoder
// failures are isolated: a panic is recovered, logged and yields no
// events for that decoder only.
func (r *Registry) Parse(env *TransactionEnvelope) []models.Event {
	var events []models.Event
	for _, d := range r.decoders {
		events = append(events, r.parseOne(d, env)...)
	}
	return events
}

func (r *Registry) parseOne(d Decoder, env *TransactionEnvelope) (events []models.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[decoder] %s panicked on %s: %v", d.ProgramID(), env.Signature, rec)
			events = nil
		}
	}()
	return d.Parse(env)
}

// eventID builds the deterministic per-transaction event id:
// "{signature}:{programAddress}:{sequenceWithinTx}".
func eventID(signature, programAddress string, seq int) string {
	return fmt.Sprintf("%s:%s:%d", signature, programAddress, seq)
}

// newEvent fills the envelope-derived parts of an event. Sequence
// numbering and data are the caller's.
func newEvent(env *TransactionEnvelope, programID, programAddress, name string, seq int, data map[string]interface{}) models.Event {
	return models.Event{
		ID:             eventID(env.Signature, programAddress, seq),
		Program:        programID,
		ProgramAddress: programAddress,
		Name:           name,
		Signature:      env.Signature,
		Slot:           env.Slot,
		BlockTime:      env.BlockTime,
		Signer:         env.Signer(),
		Source:         programs.AttributeSource(env.AccountKeys),
		Data:           data,
	}
}
