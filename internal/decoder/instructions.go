package decoder

import (
	"encoding/binary"
	"unicode/utf8"

	"tada-core/internal/models"
	"tada-core/internal/schema"
)

// Upper bounds for the UTF-8 length-prefixed metadata strings embedded
// in pool-initialization instruction payloads.
const (
	maxTokenNameLen   = 200
	maxTokenSymbolLen = 50
	maxTokenURILen    = 500
)

// synthesize infers observable activity from instruction discriminators
// when the bonding-curve program emitted no event: pool initialization
// (standard or extension token format) and migration to the AMM.
func (d *CPIDecoder) synthesize(env *TransactionEnvelope) (models.Event, bool) {
	for _, ix := range env.Instructions {
		if env.ProgramOf(ix) != d.address || len(ix.Data) < 8 {
			continue
		}
		def, ok := d.schema.InstructionByDisc(schema.DiscFrom(ix.Data))
		if !ok {
			continue
		}

		switch def.Name {
		case "initialize_virtual_pool_with_spl_token", "initialize_virtual_pool_with_token2022":
			data := d.roleAccountsFor(env, ix, def)
			if def.Name == "initialize_virtual_pool_with_token2022" {
				data["token_format"] = "token2022"
			} else {
				data["token_format"] = "spl"
			}
			parseTokenMetadata(ix.Data[8:], data)
			return newEvent(env, d.programID, d.address, "EvtInitializePool", 0, data), true

		case "migration_damm_v2":
			data := d.roleAccountsFor(env, ix, def)
			return newEvent(env, d.programID, d.address, "EvtMigrationDAMMV2", 0, data), true
		}
	}
	return models.Event{}, false
}

// roleAccountsFor binds an instruction's accounts to the schema's role
// names. Out-of-range indices are omitted.
func (d *CPIDecoder) roleAccountsFor(env *TransactionEnvelope, ix CompiledInstruction, def *schema.InstructionDef) map[string]interface{} {
	data := make(map[string]interface{}, len(def.Accounts))
	for i, role := range def.Accounts {
		if i >= len(ix.Accounts) {
			break
		}
		if addr := env.AccountAt(ix.Accounts[i]); addr != "" {
			data[role] = addr
		}
	}
	return data
}

// parseTokenMetadata attempts to read the length-prefixed name, symbol
// and uri strings from an initialization payload. Any bad length or
// invalid UTF-8 abandons the parse silently; already-extracted fields
// are discarded so a truncated payload never produces partial garbage.
func parseTokenMetadata(payload []byte, data map[string]interface{}) {
	name, rest, ok := readBoundedString(payload, maxTokenNameLen)
	if !ok {
		return
	}
	symbol, rest, ok := readBoundedString(rest, maxTokenSymbolLen)
	if !ok {
		return
	}
	uri, _, ok := readBoundedString(rest, maxTokenURILen)
	if !ok {
		return
	}
	data["name"] = name
	data["symbol"] = symbol
	data["uri"] = uri
}

func readBoundedString(buf []byte, maxLen int) (string, []byte, bool) {
	if len(buf) < 4 {
		return "", nil, false
	}
	n := int(binary.LittleEndian.Uint32(buf))
	if n < 0 || n > maxLen || len(buf) < 4+n {
		return "", nil, false
	}
	s := string(buf[4 : 4+n])
	if !utf8.ValidString(s) {
		return "", nil, false
	}
	return s, buf[4+n:], true
}
