package decoder

// TransactionEnvelope is the opaque carrier handed in by the upstream
// stream. The decoders only read it; nothing here is ever mutated.
type TransactionEnvelope struct {
	Signature string `json:"signature"` // base58
	Slot      uint64 `json:"slot"`
	BlockTime int64  `json:"block_time"` // unix seconds

	// AccountKeys is fee-payer-first and includes addresses resolved from
	// address lookup tables (static keys, then loaded writable, then
	// loaded readonly), all base58.
	AccountKeys []string `json:"account_keys"`

	Instructions      []CompiledInstruction   `json:"instructions"`
	InnerInstructions []InnerInstructionGroup `json:"inner_instructions"`

	PreTokenBalances  []TokenBalance `json:"pre_token_balances"`
	PostTokenBalances []TokenBalance `json:"post_token_balances"`

	LogMessages []string `json:"log_messages"`
}

// CompiledInstruction references accounts by index into AccountKeys.
type CompiledInstruction struct {
	ProgramIDIndex int    `json:"program_id_index"`
	Accounts       []int  `json:"accounts"`
	Data           []byte `json:"data"`
}

// InnerInstructionGroup holds the inner instructions executed under one
// top-level instruction.
type InnerInstructionGroup struct {
	Index        int                   `json:"index"`
	Instructions []CompiledInstruction `json:"instructions"`
}

// TokenBalance is one pre/post token account balance from the tx meta.
type TokenBalance struct {
	AccountIndex int    `json:"account_index"`
	Mint         string `json:"mint"`
	Owner        string `json:"owner"`
	Amount       string `json:"amount"` // raw integer amount
	Decimals     int    `json:"decimals"`
}

// HasAccount reports whether addr appears anywhere in the full account
// key set, lookup-table loaded addresses included.
func (e *TransactionEnvelope) HasAccount(addr string) bool {
	for _, key := range e.AccountKeys {
		if key == addr {
			return true
		}
	}
	return false
}

// AccountAt returns the base58 key at idx, or "" if out of range.
func (e *TransactionEnvelope) AccountAt(idx int) string {
	if idx < 0 || idx >= len(e.AccountKeys) {
		return ""
	}
	return e.AccountKeys[idx]
}

// ProgramOf returns the program address invoked by ix.
func (e *TransactionEnvelope) ProgramOf(ix CompiledInstruction) string {
	return e.AccountAt(ix.ProgramIDIndex)
}

// Signer returns the fee payer (first account key), or "".
func (e *TransactionEnvelope) Signer() string {
	return e.AccountAt(0)
}
