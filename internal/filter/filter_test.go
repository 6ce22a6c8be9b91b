package filter

import (
	"testing"

	"tada-core/internal/models"
)

func tradeEvent() *models.Event {
	return &models.Event{
		ID:             "sig1:6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P:0",
		Program:        "pump",
		ProgramAddress: "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P",
		Name:           "TradeEvent",
		Signature:      "sig1",
		Slot:           100,
		BlockTime:      1700000000,
		Signer:         "7xKqR3mPj9WcN5vL2dT8fB4hYgA6sE1uZ9iO0pQrStUv",
		Source:         models.EventSource{Type: models.SourceDirect},
		Data: map[string]interface{}{
			"mint":         "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
			"sol_amount":   "2500000000",
			"token_amount": "1000000",
			"is_buy":       true,
			"user":         "7xKqR3mPj9WcN5vL2dT8fB4hYgA6sE1uZ9iO0pQrStUv",
		},
	}
}

func boolPtr(b bool) *bool       { return &b }
func f64Ptr(f float64) *float64  { return &f }

func TestEmptyFilterMatchesEverything(t *testing.T) {
	if !Evaluate(&models.Filter{}, tradeEvent()) {
		t.Fatal("empty filter should match")
	}
}

func TestInstructionsFilter(t *testing.T) {
	e := tradeEvent()
	if !Evaluate(&models.Filter{Instructions: []string{"TradeEvent", "CreateEvent"}}, e) {
		t.Error("should match listed event name")
	}
	if Evaluate(&models.Filter{Instructions: []string{"CreateEvent"}}, e) {
		t.Error("should reject unlisted event name")
	}
}

func TestMintsFilter(t *testing.T) {
	e := tradeEvent()
	if !Evaluate(&models.Filter{Mints: []string{"9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"}}, e) {
		t.Error("should match mint field")
	}
	if Evaluate(&models.Filter{Mints: []string{"otherMint11111111111111111111111111111111111"}}, e) {
		t.Error("should reject unknown mint")
	}
}

func TestWalletsFilterIncludesSigner(t *testing.T) {
	e := tradeEvent()
	e.Data = map[string]interface{}{} // no wallet-like fields in data
	if !Evaluate(&models.Filter{Wallets: []string{e.Signer}}, e) {
		t.Error("signer should count as a wallet candidate")
	}
	if Evaluate(&models.Filter{Wallets: []string{"someoneElse111111111111111111111111111111111"}}, e) {
		t.Error("should reject unknown wallet")
	}
}

func TestIsBuyFilter(t *testing.T) {
	e := tradeEvent()
	if !Evaluate(&models.Filter{IsBuy: boolPtr(true)}, e) {
		t.Error("buy event should pass isBuy=true")
	}
	if Evaluate(&models.Filter{IsBuy: boolPtr(false)}, e) {
		t.Error("buy event should fail isBuy=false")
	}

	// Underivable direction: the predicate is skipped, not failed.
	e2 := tradeEvent()
	e2.Name = "EvtInitializePool"
	delete(e2.Data, "is_buy")
	if !Evaluate(&models.Filter{IsBuy: boolPtr(false)}, e2) {
		t.Error("underivable direction should skip the isBuy predicate")
	}
}

func TestDeriveDirection(t *testing.T) {
	cases := []struct {
		name   string
		data   map[string]interface{}
		evName string
		isBuy  bool
		ok     bool
	}{
		{"explicit bool", map[string]interface{}{"is_buy": true}, "X", true, true},
		{"explicit string", map[string]interface{}{"is_buy": "false"}, "X", false, true},
		{"trade_direction zero", map[string]interface{}{"trade_direction": float64(0)}, "X", true, true},
		{"trade_direction one", map[string]interface{}{"trade_direction": float64(1)}, "X", false, true},
		{"trade_direction variant", map[string]interface{}{"trade_direction": "Sell"}, "X", false, true},
		{"name buy", map[string]interface{}{}, "BuyEvent", true, true},
		{"name sell", map[string]interface{}{}, "SellEvent", false, true},
		{"underivable", map[string]interface{}{}, "EvtSwap2", false, false},
	}
	for _, tc := range cases {
		e := &models.Event{Name: tc.evName, Data: tc.data}
		isBuy, ok := DeriveDirection(e)
		if ok != tc.ok || (ok && isBuy != tc.isBuy) {
			t.Errorf("%s: got (%v,%v), want (%v,%v)", tc.name, isBuy, ok, tc.isBuy, tc.ok)
		}
	}
}

func TestSolAmountRange(t *testing.T) {
	e := tradeEvent() // sol_amount = 2.5 SOL
	if !Evaluate(&models.Filter{SolAmount: &models.AmountRange{Min: f64Ptr(1)}}, e) {
		t.Error("2.5 SOL should pass min=1")
	}
	if Evaluate(&models.Filter{SolAmount: &models.AmountRange{Min: f64Ptr(3)}}, e) {
		t.Error("2.5 SOL should fail min=3")
	}
	if Evaluate(&models.Filter{SolAmount: &models.AmountRange{Max: f64Ptr(2)}}, e) {
		t.Error("2.5 SOL should fail max=2")
	}

	// No derivable amount: predicate skipped.
	e2 := tradeEvent()
	delete(e2.Data, "sol_amount")
	if !Evaluate(&models.Filter{SolAmount: &models.AmountRange{Min: f64Ptr(100)}}, e2) {
		t.Error("missing sol amount should skip the range predicate")
	}
}

func TestTokenAmountRange(t *testing.T) {
	e := tradeEvent() // token_amount = 1000000 raw
	if !Evaluate(&models.Filter{TokenAmount: &models.AmountRange{Min: f64Ptr(500000)}}, e) {
		t.Error("raw token amount should compare without scaling")
	}
	if Evaluate(&models.Filter{TokenAmount: &models.AmountRange{Max: f64Ptr(500000)}}, e) {
		t.Error("1000000 should fail max=500000")
	}
}

func TestAccountsFilter(t *testing.T) {
	e := tradeEvent()
	mint := "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	if !Evaluate(&models.Filter{Accounts: &models.AccountFilter{Include: []string{mint}}}, e) {
		t.Error("include should match collected mint account")
	}
	if Evaluate(&models.Filter{Accounts: &models.AccountFilter{Exclude: []string{e.Signer}}}, e) {
		t.Error("exclude should reject on signer")
	}
	if Evaluate(&models.Filter{Accounts: &models.AccountFilter{Include: []string{"absent111111111111111111111111111111111111111"}}}, e) {
		t.Error("include with no overlap should reject")
	}
}

func TestCollectAccountsRecursesNestedObjects(t *testing.T) {
	e := tradeEvent()
	e.Data["swap_result"] = map[string]interface{}{
		"pool": "PooLaddr1111111111111111111111111111111111111",
	}
	accounts := CollectAccounts(e)
	found := false
	for _, a := range accounts {
		if a == "PooLaddr1111111111111111111111111111111111111" {
			found = true
		}
	}
	if !found {
		t.Error("nested role-named account should be collected")
	}
}

func TestOrComposition(t *testing.T) {
	e := tradeEvent()
	f := &models.Filter{
		Or: []*models.Filter{
			{Instructions: []string{"CreateEvent"}},
			{Mints: []string{"9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"}},
		},
	}
	if !Evaluate(f, e) {
		t.Error("$or should match when second branch matches")
	}

	f2 := &models.Filter{
		Or: []*models.Filter{
			{Instructions: []string{"CreateEvent"}},
			{Instructions: []string{"CompleteEvent"}},
		},
	}
	if Evaluate(f2, e) {
		t.Error("$or should reject when no branch matches")
	}
}

func TestAndComposition(t *testing.T) {
	e := tradeEvent()
	f := &models.Filter{
		And: []*models.Filter{
			{Instructions: []string{"TradeEvent"}},
			{IsBuy: boolPtr(true)},
		},
	}
	if !Evaluate(f, e) {
		t.Error("$and should match when all branches match")
	}
	f.And = append(f.And, &models.Filter{Instructions: []string{"CreateEvent"}})
	if Evaluate(f, e) {
		t.Error("$and should reject when one branch fails")
	}
}

func TestConditions(t *testing.T) {
	e := tradeEvent()
	cases := []struct {
		name string
		cond models.Condition
		want bool
	}{
		{"eq string", models.Condition{Field: "program", Op: "eq", Value: "pump"}, true},
		{"eq numeric coercion", models.Condition{Field: "sol_amount", Op: "eq", Value: float64(2500000000)}, true},
		{"neq", models.Condition{Field: "name", Op: "neq", Value: "CreateEvent"}, true},
		{"gt coerced string", models.Condition{Field: "sol_amount", Op: "gt", Value: float64(1000000000)}, true},
		{"lt fails", models.Condition{Field: "sol_amount", Op: "lt", Value: float64(1000000000)}, false},
		{"in", models.Condition{Field: "program", Op: "in", Value: []interface{}{"pump", "pumpswap"}}, true},
		{"nin", models.Condition{Field: "program", Op: "nin", Value: []interface{}{"raydium-cpmm"}}, true},
		{"contains", models.Condition{Field: "name", Op: "contains", Value: "trade"}, true},
		{"dotted data path", models.Condition{Field: "data.mint", Op: "eq", Value: "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"}, true},
		{"source path", models.Condition{Field: "source.type", Op: "eq", Value: "direct"}, true},
		{"missing field eq nil", models.Condition{Field: "data.absent", Op: "eq", Value: nil}, true},
		{"missing field gt", models.Condition{Field: "data.absent", Op: "gt", Value: float64(1)}, false},
		{"unknown op", models.Condition{Field: "program", Op: "matches", Value: "pump"}, false},
	}
	for _, tc := range cases {
		got := Evaluate(&models.Filter{Conditions: []models.Condition{tc.cond}}, e)
		if got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestLookupPathHeadFallsThroughToData(t *testing.T) {
	e := tradeEvent()
	if got := LookupPath(e, "mint"); got != "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM" {
		t.Errorf("bare data key lookup failed, got %v", got)
	}
	if got := LookupPath(e, "slot"); got != float64(100) {
		t.Errorf("slot should resolve as float64, got %v", got)
	}
	if got := LookupPath(e, "data.is_buy"); got != true {
		t.Errorf("data.is_buy lookup failed, got %v", got)
	}
}
