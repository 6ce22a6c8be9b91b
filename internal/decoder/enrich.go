package decoder

import (
	"tada-core/internal/programs"
	"tada-core/internal/schema"
)

// enrich augments decoded event data in place: flattens the first-level
// swap_result struct, infers token identity from post-transaction token
// balances, and binds role-named accounts from the instruction the
// eventRoles table names for the event. Decoded fields are never
// overwritten.
func enrich(env *TransactionEnvelope, s *schema.Schema, programAddress, eventName string, data map[string]interface{}) {
	flattenSwapResult(data)
	inferTokenMints(env, data)
	bindRoleAccounts(env, s, programAddress, eventName, data)
}

// eventRoles maps program id -> event name -> the instructions whose
// account layout carries that event's role accounts. The first listed
// instruction present in the transaction wins. Events without an entry
// bind from the primary outer instruction instead.
var eventRoles = map[string]map[string][]string{
	"meteora-dbc": {
		"EvtSwap2":           {"swap2"},
		"EvtCurveComplete":   {"swap2"},
		"EvtInitializePool":  {"initialize_virtual_pool_with_spl_token", "initialize_virtual_pool_with_token2022"},
		"EvtMigrationDAMMV2": {"migration_damm_v2"},
	},
	"meteora-damm-v2": {
		"EvtSwap": {"swap"},
	},
	"raydium-launchlab": {
		"TradeEvent": {"buy_exact_in", "sell_exact_in"},
	},
	"raydium-cpmm": {
		"SwapEvent": {"swap_base_input", "swap_base_output"},
	},
}

// flattenSwapResult lifts swap_result.* fields to top-level keys while
// keeping the nested map, so templates can dereference either form.
func flattenSwapResult(data map[string]interface{}) {
	nested, ok := data["swap_result"].(map[string]interface{})
	if !ok {
		return
	}
	for k, v := range nested {
		if _, exists := data[k]; !exists {
			data[k] = v
		}
	}
}

// inferTokenMints scans post-transaction token balances: the first
// non-native mint becomes token_mint; WSOL becomes quote_mint when
// present, otherwise the second non-native mint does.
func inferTokenMints(env *TransactionEnvelope, data map[string]interface{}) {
	var nonNative []string
	sawWSOL := false
	seen := make(map[string]bool)
	for _, tb := range env.PostTokenBalances {
		if tb.Mint == "" || seen[tb.Mint] {
			continue
		}
		seen[tb.Mint] = true
		if tb.Mint == programs.WSOLMint {
			sawWSOL = true
			continue
		}
		nonNative = append(nonNative, tb.Mint)
	}

	if _, exists := data["token_mint"]; !exists && len(nonNative) > 0 {
		data["token_mint"] = nonNative[0]
	}
	if _, exists := data["quote_mint"]; !exists {
		switch {
		case sawWSOL:
			data["quote_mint"] = programs.WSOLMint
		case len(nonNative) > 1:
			data["quote_mint"] = nonNative[1]
		}
	}
}

// bindRoleAccounts maps instruction accounts to the role names declared
// in the schema. The eventRoles table names which instruction carries a
// given event's roles (searched in outer and inner instructions, so
// aggregator-routed swaps still bind); events without an entry fall
// back to the primary outer instruction. Out-of-range indices are
// omitted silently.
func bindRoleAccounts(env *TransactionEnvelope, s *schema.Schema, programAddress, eventName string, data map[string]interface{}) {
	if def, ix, ok := roleInstruction(env, s, programAddress, eventName); ok {
		bindRoles(env, ix, def, data)
		return
	}
	ix, ok := primaryInstruction(env, programAddress)
	if !ok || len(ix.Data) < 8 {
		return
	}
	def, ok := s.InstructionByDisc(schema.DiscFrom(ix.Data))
	if !ok {
		return
	}
	bindRoles(env, ix, def, data)
}

// roleInstruction resolves the eventRoles entry for (program, event) to
// a concrete instruction present in the transaction.
func roleInstruction(env *TransactionEnvelope, s *schema.Schema, programAddress, eventName string) (*schema.InstructionDef, CompiledInstruction, bool) {
	prog, ok := programs.ByAddress(programAddress)
	if !ok {
		return nil, CompiledInstruction{}, false
	}
	for _, name := range eventRoles[prog.ID][eventName] {
		def, ok := s.Instruction(name)
		if !ok {
			continue
		}
		if ix, ok := findInstruction(env, programAddress, def.Disc); ok {
			return def, ix, true
		}
	}
	return nil, CompiledInstruction{}, false
}

// findInstruction scans outer then inner instructions for one invoking
// the program with the given discriminator.
func findInstruction(env *TransactionEnvelope, programAddress string, disc schema.Discriminator) (CompiledInstruction, bool) {
	match := func(ix CompiledInstruction) bool {
		return env.ProgramOf(ix) == programAddress && len(ix.Data) >= 8 && schema.DiscFrom(ix.Data) == disc
	}
	for _, ix := range env.Instructions {
		if match(ix) {
			return ix, true
		}
	}
	for _, group := range env.InnerInstructions {
		for _, ix := range group.Instructions {
			if match(ix) {
				return ix, true
			}
		}
	}
	return CompiledInstruction{}, false
}

func bindRoles(env *TransactionEnvelope, ix CompiledInstruction, def *schema.InstructionDef, data map[string]interface{}) {
	for i, role := range def.Accounts {
		if i >= len(ix.Accounts) {
			break
		}
		addr := env.AccountAt(ix.Accounts[i])
		if addr == "" {
			continue
		}
		if _, exists := data[role]; !exists {
			data[role] = addr
		}
	}
}

// primaryInstruction returns the first top-level instruction invoking
// the given program.
func primaryInstruction(env *TransactionEnvelope, programAddress string) (CompiledInstruction, bool) {
	for _, ix := range env.Instructions {
		if env.ProgramOf(ix) == programAddress {
			return ix, true
		}
	}
	return CompiledInstruction{}, false
}
