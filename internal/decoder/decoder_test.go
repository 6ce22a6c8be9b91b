package decoder

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/mr-tron/base58"

	"tada-core/internal/models"
	"tada-core/internal/programs"
	"tada-core/internal/schema"
)

func mustSchemas(t *testing.T) map[string]*schema.Schema {
	t.Helper()
	schemas, err := schema.Load()
	if err != nil {
		t.Fatalf("load schemas: %v", err)
	}
	return schemas
}

func u64le(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func pk(seed byte) string {
	return base58.Encode(bytes.Repeat([]byte{seed}, 32))
}

func pumpAddr() string {
	p, _ := programs.ByID("pump")
	return p.Address
}

// tradeEventData is a borsh TradeEvent with its 8-byte discriminator.
func tradeEventData(solAmount, tokenAmount uint64, isBuy bool) []byte {
	var buf bytes.Buffer
	disc := schema.EventDiscriminator("TradeEvent")
	buf.Write(disc[:])
	buf.Write(bytes.Repeat([]byte{0xAA}, 32)) // mint
	buf.Write(u64le(solAmount))
	buf.Write(u64le(tokenAmount))
	if isBuy {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	buf.Write(bytes.Repeat([]byte{0xBB}, 32)) // user
	buf.Write(u64le(1700000000))              // timestamp
	buf.Write(u64le(30000000000))             // virtual_sol_reserves
	buf.Write(u64le(1073000000000000))        // virtual_token_reserves
	buf.Write(u64le(5000000000))              // real_sol_reserves
	buf.Write(u64le(900000000000))            // real_token_reserves
	return buf.Bytes()
}

func TestLogDecoderTradeEvent(t *testing.T) {
	schemas := mustSchemas(t)
	d := NewLogDecoder("pump", pumpAddr(), schemas["pump"])

	signer := pk(0x11)
	env := &TransactionEnvelope{
		Signature:   "sigTrade",
		Slot:        250000000,
		BlockTime:   1700000000,
		AccountKeys: []string{signer, pumpAddr()},
		LogMessages: []string{
			"Program " + pumpAddr() + " invoke [1]",
			"Program log: Instruction: Buy",
			"Program data: " + base64.StdEncoding.EncodeToString(tradeEventData(1000000000, 500000, true)),
			"Program " + pumpAddr() + " success",
		},
	}

	events := d.Parse(env)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.ID != "sigTrade:"+pumpAddr()+":0" {
		t.Errorf("id = %s", ev.ID)
	}
	if ev.Name != "TradeEvent" || ev.Program != "pump" {
		t.Errorf("identity wrong: %s / %s", ev.Name, ev.Program)
	}
	if ev.Signer != signer {
		t.Errorf("signer = %s", ev.Signer)
	}
	if ev.Source.Type != models.SourceDirect {
		t.Errorf("source = %v, want direct", ev.Source.Type)
	}
	if ev.Data["sol_amount"] != "1000000000" {
		t.Errorf("sol_amount = %v", ev.Data["sol_amount"])
	}
	if ev.Data["is_buy"] != true {
		t.Errorf("is_buy = %v", ev.Data["is_buy"])
	}
}

func TestLogDecoderIgnoresForeignProgramData(t *testing.T) {
	schemas := mustSchemas(t)
	d := NewLogDecoder("pump", pumpAddr(), schemas["pump"])

	other := pk(0x99)
	env := &TransactionEnvelope{
		Signature:   "sig2",
		AccountKeys: []string{pk(0x11), pumpAddr(), other},
		LogMessages: []string{
			// Data emitted while another program owns the stack.
			"Program " + other + " invoke [1]",
			"Program data: " + base64.StdEncoding.EncodeToString(tradeEventData(1, 1, true)),
			"Program " + other + " success",
		},
	}
	if events := d.Parse(env); len(events) != 0 {
		t.Errorf("got %d events from a foreign program's data line", len(events))
	}
}

func TestLogDecoderSequenceNumbering(t *testing.T) {
	schemas := mustSchemas(t)
	d := NewLogDecoder("pump", pumpAddr(), schemas["pump"])

	env := &TransactionEnvelope{
		Signature:   "sigSeq",
		AccountKeys: []string{pk(0x11), pumpAddr()},
		LogMessages: []string{
			"Program " + pumpAddr() + " invoke [1]",
			"Program data: " + base64.StdEncoding.EncodeToString(tradeEventData(1, 1, true)),
			"Program data: " + base64.StdEncoding.EncodeToString(tradeEventData(2, 2, false)),
			"Program " + pumpAddr() + " success",
		},
	}
	events := d.Parse(env)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].ID != "sigSeq:"+pumpAddr()+":0" || events[1].ID != "sigSeq:"+pumpAddr()+":1" {
		t.Errorf("sequence ids wrong: %s, %s", events[0].ID, events[1].ID)
	}
}

func TestLogDecoderSkipsUndecodableLines(t *testing.T) {
	schemas := mustSchemas(t)
	d := NewLogDecoder("pump", pumpAddr(), schemas["pump"])

	truncated := tradeEventData(1, 1, true)[:20]
	env := &TransactionEnvelope{
		Signature:   "sigBad",
		AccountKeys: []string{pk(0x11), pumpAddr()},
		LogMessages: []string{
			"Program " + pumpAddr() + " invoke [1]",
			"Program data: not-base64!!!",
			"Program data: " + base64.StdEncoding.EncodeToString(truncated),
			"Program data: " + base64.StdEncoding.EncodeToString(tradeEventData(3, 3, true)),
			"Program " + pumpAddr() + " success",
		},
	}
	events := d.Parse(env)
	if len(events) != 1 {
		t.Fatalf("bad lines must be skipped, good one kept: got %d", len(events))
	}
	if events[0].ID != "sigBad:"+pumpAddr()+":0" {
		t.Errorf("surviving event should take sequence 0, got %s", events[0].ID)
	}
}

func TestLogDecoderRequiresProgramInAccountKeys(t *testing.T) {
	schemas := mustSchemas(t)
	d := NewLogDecoder("pump", pumpAddr(), schemas["pump"])
	env := &TransactionEnvelope{
		Signature:   "sig",
		AccountKeys: []string{pk(0x11)},
		LogMessages: []string{
			"Program " + pumpAddr() + " invoke [1]",
			"Program data: " + base64.StdEncoding.EncodeToString(tradeEventData(1, 1, true)),
			"Program " + pumpAddr() + " success",
		},
	}
	if events := d.Parse(env); len(events) != 0 {
		t.Error("decoder must skip transactions not mentioning its program")
	}
}

func dbcAddr() string {
	p, _ := programs.ByID("meteora-dbc")
	return p.Address
}

func cpmmAddr() string {
	p, _ := programs.ByID("raydium-cpmm")
	return p.Address
}

// curveCompleteData is a borsh EvtCurveComplete with discriminator.
func curveCompleteData() []byte {
	var buf bytes.Buffer
	disc := schema.EventDiscriminator("EvtCurveComplete")
	buf.Write(disc[:])
	buf.Write(bytes.Repeat([]byte{0x01}, 32)) // pool
	buf.Write(bytes.Repeat([]byte{0x02}, 32)) // config
	buf.Write(bytes.Repeat([]byte{0x03}, 32)) // base_mint
	buf.Write(u64le(100))                     // base_reserve
	buf.Write(u64le(85000000000))             // quote_reserve
	return buf.Bytes()
}

func TestCPIDecoderWrapperStripped(t *testing.T) {
	schemas := mustSchemas(t)
	d := NewBondingCurveDecoder("meteora-dbc", dbcAddr(), schemas["meteora-dbc"])

	wrapped := append(append([]byte{}, anchorEventIxDisc[:]...), curveCompleteData()...)
	env := &TransactionEnvelope{
		Signature:   "sigCpi",
		AccountKeys: []string{pk(0x11), dbcAddr()},
		InnerInstructions: []InnerInstructionGroup{
			{Index: 0, Instructions: []CompiledInstruction{{ProgramIDIndex: 1, Data: wrapped}}},
		},
	}

	events := d.Parse(env)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Name != "EvtCurveComplete" {
		t.Errorf("name = %s", events[0].Name)
	}
	if events[0].Data["base_mint"] != pk(0x03) {
		t.Errorf("base_mint = %v", events[0].Data["base_mint"])
	}
}

func TestCPIDecoderRejectsUnknownWrapper(t *testing.T) {
	schemas := mustSchemas(t)
	d := NewBondingCurveDecoder("meteora-dbc", dbcAddr(), schemas["meteora-dbc"])

	// Unknown 8-byte prefix: the strict variant must not strip blindly.
	bogus := append(bytes.Repeat([]byte{0xDE}, 8), curveCompleteData()...)
	env := &TransactionEnvelope{
		Signature:   "sig",
		AccountKeys: []string{pk(0x11), dbcAddr()},
		InnerInstructions: []InnerInstructionGroup{
			{Instructions: []CompiledInstruction{{ProgramIDIndex: 1, Data: bogus}}},
		},
	}
	if events := d.Parse(env); len(events) != 0 {
		t.Errorf("unknown wrapper should not decode, got %d events", len(events))
	}
}

func TestCPIDecoderRawDiscriminator(t *testing.T) {
	schemas := mustSchemas(t)
	d := NewCPIDecoder("raydium-cpmm", cpmmAddr(), schemas["raydium-cpmm"])

	var buf bytes.Buffer
	disc := schema.EventDiscriminator("SwapEvent")
	buf.Write(disc[:])
	buf.Write(bytes.Repeat([]byte{0x01}, 32)) // pool_id
	buf.Write(u64le(10))                      // input_vault_before
	buf.Write(u64le(20))                      // output_vault_before
	buf.Write(u64le(1000))                    // input_amount
	buf.Write(u64le(900))                     // output_amount
	buf.Write(u64le(0))                       // input_transfer_fee
	buf.Write(u64le(0))                       // output_transfer_fee
	buf.WriteByte(1)                          // base_input
	buf.Write(bytes.Repeat([]byte{0x04}, 32)) // input_mint
	buf.Write(bytes.Repeat([]byte{0x05}, 32)) // output_mint
	buf.Write(u64le(3))                       // trade_fee

	env := &TransactionEnvelope{
		Signature:   "sigRaw",
		AccountKeys: []string{pk(0x11), cpmmAddr()},
		InnerInstructions: []InnerInstructionGroup{
			{Instructions: []CompiledInstruction{{ProgramIDIndex: 1, Data: buf.Bytes()}}},
		},
	}
	events := d.Parse(env)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Name != "SwapEvent" {
		t.Errorf("name = %s", events[0].Name)
	}
	if events[0].Data["input_amount"] != "1000" {
		t.Errorf("input_amount = %v", events[0].Data["input_amount"])
	}
}

func TestCPIDecoderSynthesizesMigration(t *testing.T) {
	schemas := mustSchemas(t)
	d := NewBondingCurveDecoder("meteora-dbc", dbcAddr(), schemas["meteora-dbc"])

	disc := schema.InstructionDiscriminator("migration_damm_v2")
	// Accounts in role order: virtual_pool, migration_metadata, config, ...
	keys := []string{pk(0x11), dbcAddr(), pk(0x21), pk(0x22), pk(0x23)}
	env := &TransactionEnvelope{
		Signature:   "sigMig",
		AccountKeys: keys,
		Instructions: []CompiledInstruction{
			{ProgramIDIndex: 1, Accounts: []int{2, 3, 4}, Data: disc[:]},
		},
	}

	events := d.Parse(env)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Name != "EvtMigrationDAMMV2" {
		t.Errorf("name = %s", ev.Name)
	}
	if ev.Data["virtual_pool"] != pk(0x21) || ev.Data["migration_metadata"] != pk(0x22) || ev.Data["config"] != pk(0x23) {
		t.Errorf("role accounts wrong: %v", ev.Data)
	}
	// Roles past the provided account list are omitted, not errors.
	if _, present := ev.Data["pool_authority"]; present {
		t.Error("out-of-range role should be omitted")
	}
}

func TestCPIDecoderSynthesizesPoolInitWithMetadata(t *testing.T) {
	schemas := mustSchemas(t)
	d := NewBondingCurveDecoder("meteora-dbc", dbcAddr(), schemas["meteora-dbc"])

	disc := schema.InstructionDiscriminator("initialize_virtual_pool_with_spl_token")
	payload := disc[:]
	for _, s := range []string{"My Token", "MTK", "https://example.com/meta.json"} {
		l := make([]byte, 4)
		binary.LittleEndian.PutUint32(l, uint32(len(s)))
		payload = append(payload, l...)
		payload = append(payload, s...)
	}

	env := &TransactionEnvelope{
		Signature:    "sigInit",
		AccountKeys:  []string{pk(0x11), dbcAddr(), pk(0x31)},
		Instructions: []CompiledInstruction{{ProgramIDIndex: 1, Accounts: []int{2}, Data: payload}},
	}

	events := d.Parse(env)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Name != "EvtInitializePool" {
		t.Errorf("name = %s", ev.Name)
	}
	if ev.Data["token_format"] != "spl" {
		t.Errorf("token_format = %v", ev.Data["token_format"])
	}
	if ev.Data["name"] != "My Token" || ev.Data["symbol"] != "MTK" {
		t.Errorf("metadata wrong: %v", ev.Data)
	}
	if ev.Data["config"] != pk(0x31) {
		t.Errorf("config role = %v", ev.Data["config"])
	}
}

func TestParseTokenMetadataAllOrNothing(t *testing.T) {
	// name parses, symbol length is out of bounds: nothing may land.
	payload := []byte{4, 0, 0, 0, 'a', 'b', 'c', 'd', 0xFF, 0xFF, 0xFF, 0xFF}
	data := map[string]interface{}{}
	parseTokenMetadata(payload, data)
	if len(data) != 0 {
		t.Errorf("partial metadata must be discarded, got %v", data)
	}
}

func TestSourceAttribution(t *testing.T) {
	schemas := mustSchemas(t)
	d := NewLogDecoder("pump", pumpAddr(), schemas["pump"])

	const jupiter = "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"
	env := &TransactionEnvelope{
		Signature:   "sigJup",
		AccountKeys: []string{pk(0x11), jupiter, pumpAddr()},
		LogMessages: []string{
			"Program " + pumpAddr() + " invoke [2]",
			"Program data: " + base64.StdEncoding.EncodeToString(tradeEventData(1, 1, true)),
			"Program " + pumpAddr() + " success",
		},
	}
	events := d.Parse(env)
	if len(events) != 1 {
		t.Fatalf("got %d events", len(events))
	}
	if events[0].Source.Type != models.SourceJupiter {
		t.Errorf("source = %v, want jupiter", events[0].Source.Type)
	}
	if events[0].Source.OuterProgram != jupiter {
		t.Errorf("outerProgram = %s", events[0].Source.OuterProgram)
	}
}

func TestEnrichInferTokenMints(t *testing.T) {
	env := &TransactionEnvelope{
		PostTokenBalances: []TokenBalance{
			{Mint: programs.WSOLMint},
			{Mint: pk(0x41)},
			{Mint: pk(0x41)}, // duplicate ignored
		},
	}
	data := map[string]interface{}{}
	inferTokenMints(env, data)
	if data["token_mint"] != pk(0x41) {
		t.Errorf("token_mint = %v", data["token_mint"])
	}
	if data["quote_mint"] != programs.WSOLMint {
		t.Errorf("quote_mint = %v", data["quote_mint"])
	}

	// Existing fields are never overwritten.
	data2 := map[string]interface{}{"token_mint": "keep"}
	inferTokenMints(env, data2)
	if data2["token_mint"] != "keep" {
		t.Error("inference must not overwrite decoded fields")
	}
}

func TestFlattenSwapResult(t *testing.T) {
	data := map[string]interface{}{
		"amount_in": "5",
		"swap_result": map[string]interface{}{
			"output_amount": "9",
			"amount_in":     "shadowed",
		},
	}
	flattenSwapResult(data)
	if data["output_amount"] != "9" {
		t.Errorf("output_amount not lifted: %v", data["output_amount"])
	}
	if data["amount_in"] != "5" {
		t.Errorf("existing key must win: %v", data["amount_in"])
	}
	if _, ok := data["swap_result"]; !ok {
		t.Error("nested map must be kept")
	}
}

func TestRegistryIsolatesPanics(t *testing.T) {
	r := NewRegistry()
	r.Register(panicDecoder{})
	schemas := mustSchemas(t)
	r.Register(NewLogDecoder("pump", pumpAddr(), schemas["pump"]))

	env := &TransactionEnvelope{
		Signature:   "sigPanic",
		AccountKeys: []string{pk(0x11), pumpAddr()},
		LogMessages: []string{
			"Program " + pumpAddr() + " invoke [1]",
			"Program data: " + base64.StdEncoding.EncodeToString(tradeEventData(1, 1, true)),
			"Program " + pumpAddr() + " success",
		},
	}
	events := r.Parse(env)
	if len(events) != 1 {
		t.Fatalf("panicking decoder must not affect others: got %d events", len(events))
	}
}

type panicDecoder struct{}

func (panicDecoder) ProgramID() string                          { return "boom" }
func (panicDecoder) ProgramAddress() string                     { return "boomAddr" }
func (panicDecoder) Parse(*TransactionEnvelope) []models.Event  { panic("boom") }

// swap2EventData is a borsh EvtSwap2 with discriminator. pool and
// config come from the payload; the remaining roles come from the
// instruction's accounts.
func swap2EventData() []byte {
	u128le := func(lo uint64) []byte {
		b := make([]byte, 16)
		binary.LittleEndian.PutUint64(b, lo)
		return b
	}
	var buf bytes.Buffer
	disc := schema.EventDiscriminator("EvtSwap2")
	buf.Write(disc[:])
	buf.Write(bytes.Repeat([]byte{0x01}, 32)) // pool
	buf.Write(bytes.Repeat([]byte{0x02}, 32)) // config
	buf.WriteByte(0)                          // trade_direction
	buf.WriteByte(0)                          // has_referral
	buf.Write(u64le(1000))                    // amount_in
	buf.Write(u64le(900))                     // minimum_amount_out
	buf.Write(u64le(1000))                    // swap_result.actual_input_amount
	buf.Write(u64le(950))                     // swap_result.output_amount
	buf.Write(u128le(42))                     // swap_result.next_sqrt_price
	buf.Write(u64le(3))                       // swap_result.trading_fee
	buf.Write(u64le(1))                       // swap_result.protocol_fee
	buf.Write(u64le(0))                       // swap_result.referral_fee
	buf.Write(u64le(85000000000))             // quote_reserve_amount
	buf.Write(u64le(85000000001))             // migration_threshold
	buf.Write(u64le(1700000000))              // current_timestamp
	return buf.Bytes()
}

func TestRoleBindingFollowsEventTableThroughAggregator(t *testing.T) {
	schemas := mustSchemas(t)
	d := NewBondingCurveDecoder("meteora-dbc", dbcAddr(), schemas["meteora-dbc"])

	swap2Disc := schema.InstructionDiscriminator("swap2")
	jup := "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"
	// 0 signer, 1 jupiter, 2 dbc, 3.. swap2 accounts in role order.
	keys := []string{pk(0x11), jup, dbcAddr(), pk(0x41), pk(0x42), pk(0x43), pk(0x44)}

	wrapped := append(append([]byte{}, anchorEventIxDisc[:]...), swap2EventData()...)
	env := &TransactionEnvelope{
		Signature:   "sigAgg",
		AccountKeys: keys,
		Instructions: []CompiledInstruction{
			// Outer instruction invokes the aggregator, not the program.
			{ProgramIDIndex: 1, Accounts: []int{0, 2}, Data: bytes.Repeat([]byte{0x5A}, 8)},
		},
		InnerInstructions: []InnerInstructionGroup{
			{Index: 0, Instructions: []CompiledInstruction{
				{ProgramIDIndex: 2, Accounts: []int{3, 4, 5, 6}, Data: swap2Disc[:]},
				{ProgramIDIndex: 2, Data: wrapped},
			}},
		},
	}

	events := d.Parse(env)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Name != "EvtSwap2" {
		t.Fatalf("name = %s", ev.Name)
	}
	if ev.Source.Type != models.SourceJupiter {
		t.Errorf("source = %v, want jupiter", ev.Source.Type)
	}
	// Roles bind from the inner swap2 instruction even with no
	// top-level instruction invoking the program.
	if ev.Data["pool_authority"] != pk(0x41) {
		t.Errorf("pool_authority = %v", ev.Data["pool_authority"])
	}
	if ev.Data["input_token_account"] != pk(0x44) {
		t.Errorf("input_token_account = %v", ev.Data["input_token_account"])
	}
	// Decoded payload fields always win over account binding.
	if ev.Data["pool"] != pk(0x01) || ev.Data["config"] != pk(0x02) {
		t.Errorf("decoded fields overwritten: pool=%v config=%v", ev.Data["pool"], ev.Data["config"])
	}
}
