package filter

import (
	"log"
	"strconv"
	"strings"

	"tada-core/internal/models"
)

// mintFieldNames are the data keys probed for mint values, snake-case
// and camel-case variants both recognized.
var mintFieldNames = []string{
	"mint", "token_mint", "tokenMint", "base_mint", "baseMint",
	"quote_mint", "quoteMint", "input_mint", "inputMint",
	"output_mint", "outputMint", "token_a_mint", "token_b_mint",
}

// walletFieldNames are the actor-role keys probed for wallet matching,
// in addition to the event signer.
var walletFieldNames = []string{"user", "creator", "trader", "owner", "authority", "from"}

// solAmountFields and tokenAmountFields are the ordered probe lists for
// the numeric range predicates. SOL values are raw lamports and divided
// by 1e9 before comparison; token values compare raw.
var solAmountFields = []string{"sol_amount", "quote_amount_in", "quote_amount_out", "quote_amount", "sol_raised"}
var tokenAmountFields = []string{"token_amount", "base_amount_out", "base_amount_in", "base_amount", "amount_out", "output_amount", "amount"}

// accountRoleNames are the field names collected (recursively) when
// gathering account-like strings for accounts.include/exclude.
var accountRoleNames = map[string]bool{
	"user": true, "creator": true, "trader": true, "owner": true,
	"authority": true, "from": true, "to": true, "payer": true,
	"mint": true, "token_mint": true, "quote_mint": true, "base_mint": true,
	"input_mint": true, "output_mint": true, "token_a_mint": true, "token_b_mint": true,
	"pool": true, "pool_state": true, "pool_id": true, "virtual_pool": true,
	"bonding_curve": true, "config": true, "global": true, "fee_recipient": true,
}

const lamportsPerSol = 1e9

// Evaluate applies a declarative filter to one event. Pure and
// side-effect-free; an empty filter matches everything.
func Evaluate(f *models.Filter, e *models.Event) bool {
	if f.IsEmpty() {
		return true
	}

	// Logical composition takes priority over everything else.
	if len(f.And) > 0 {
		for _, child := range f.And {
			if !Evaluate(child, e) {
				return false
			}
		}
		return true
	}
	if len(f.Or) > 0 {
		for _, child := range f.Or {
			if Evaluate(child, e) {
				return true
			}
		}
		return false
	}

	if len(f.Instructions) > 0 && !containsString(f.Instructions, e.Name) {
		return false
	}

	if len(f.Mints) > 0 && !matchAnyField(e.Data, mintFieldNames, f.Mints) {
		return false
	}

	if len(f.Wallets) > 0 {
		candidates := collectFields(e.Data, walletFieldNames)
		if e.Signer != "" {
			candidates = append(candidates, e.Signer)
		}
		if !anyOverlap(candidates, f.Wallets) {
			return false
		}
	}

	if f.IsBuy != nil {
		if isBuy, ok := DeriveDirection(e); ok && isBuy != *f.IsBuy {
			return false
		}
	}

	if f.SolAmount != nil {
		if v, ok := probeNumber(e.Data, solAmountFields); ok {
			if !inRange(v/lamportsPerSol, f.SolAmount) {
				return false
			}
		}
	}
	if f.TokenAmount != nil {
		if v, ok := probeNumber(e.Data, tokenAmountFields); ok {
			if !inRange(v, f.TokenAmount) {
				return false
			}
		}
	}

	if f.Accounts != nil && (len(f.Accounts.Include) > 0 || len(f.Accounts.Exclude) > 0) {
		accounts := CollectAccounts(e)
		if len(f.Accounts.Include) > 0 && !anyOverlap(accounts, f.Accounts.Include) {
			return false
		}
		if len(f.Accounts.Exclude) > 0 && anyOverlap(accounts, f.Accounts.Exclude) {
			return false
		}
	}

	for _, cond := range f.Conditions {
		actual := LookupPath(e, cond.Field)
		if !evalOp(cond.Op, actual, cond.Value) {
			return false
		}
	}
	return true
}

// DeriveDirection derives the trade direction: explicit is_buy first,
// then trade_direction (0 or "Buy" = buy), then a "buy"/"sell"
// substring of the event name. The second return is false when no
// direction can be derived; such events are never rejected by isBuy.
func DeriveDirection(e *models.Event) (isBuy bool, ok bool) {
	if v, present := e.Data["is_buy"]; present {
		if b, isBool := v.(bool); isBool {
			return b, true
		}
		if s, isStr := v.(string); isStr {
			return strings.EqualFold(s, "true"), true
		}
	}
	if v, present := e.Data["trade_direction"]; present {
		switch tv := v.(type) {
		case float64:
			return tv == 0, true
		case string:
			if n, err := strconv.ParseFloat(tv, 64); err == nil {
				return n == 0, true
			}
			low := strings.ToLower(tv)
			if strings.Contains(low, "buy") {
				return true, true
			}
			if strings.Contains(low, "sell") {
				return false, true
			}
		}
	}
	lowName := strings.ToLower(e.Name)
	if strings.Contains(lowName, "buy") {
		return true, true
	}
	if strings.Contains(lowName, "sell") {
		return false, true
	}
	return false, false
}

// CollectAccounts gathers all account-like strings from an event: the
// signer plus any role-named field, recursively through nested objects.
// Only strings of plausible address length (>= 32) are kept.
func CollectAccounts(e *models.Event) []string {
	var out []string
	if len(e.Signer) >= 32 {
		out = append(out, e.Signer)
	}
	var walk func(m map[string]interface{})
	walk = func(m map[string]interface{}) {
		for k, v := range m {
			switch tv := v.(type) {
			case string:
				if accountRoleNames[k] && len(tv) >= 32 {
					out = append(out, tv)
				}
			case map[string]interface{}:
				walk(tv)
			}
		}
	}
	walk(e.Data)
	return out
}

// LookupPath resolves a dotted path against the event object. The root
// exposes the event's own fields plus the data sub-tree; a head segment
// that is not an event field falls through to data directly.
func LookupPath(e *models.Event, path string) interface{} {
	segments := strings.Split(path, ".")
	head, rest := segments[0], segments[1:]

	var cur interface{}
	switch head {
	case "id":
		cur = e.ID
	case "program":
		cur = e.Program
	case "programAddress":
		cur = e.ProgramAddress
	case "name":
		cur = e.Name
	case "signature":
		cur = e.Signature
	case "slot":
		cur = float64(e.Slot)
	case "blockTime":
		cur = float64(e.BlockTime)
	case "signer":
		cur = e.Signer
	case "source":
		cur = map[string]interface{}{
			"type":         string(e.Source.Type),
			"outerProgram": e.Source.OuterProgram,
		}
	case "data":
		cur = e.Data
	default:
		v, ok := e.Data[head]
		if !ok {
			return nil
		}
		cur = v
	}

	for _, seg := range rest {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return cur
}

// --- operators ---

// evalOp compares an actual value against an expected one. Numeric
// comparisons coerce strings that parse as numbers; equality also
// compares stringified forms. Against a missing value only eq/neq are
// meaningful; every other operator returns false.
func evalOp(op string, actual, expected interface{}) bool {
	if actual == nil {
		switch op {
		case "eq":
			return expected == nil
		case "neq":
			return expected != nil
		default:
			return false
		}
	}

	switch op {
	case "eq":
		return looseEqual(actual, expected)
	case "neq":
		return !looseEqual(actual, expected)
	case "gt", "gte", "lt", "lte":
		a, okA := toFloat(actual)
		b, okB := toFloat(expected)
		if !okA || !okB {
			return false
		}
		switch op {
		case "gt":
			return a > b
		case "gte":
			return a >= b
		case "lt":
			return a < b
		default:
			return a <= b
		}
	case "in":
		list, ok := expected.([]interface{})
		if !ok {
			return false
		}
		for _, item := range list {
			if looseEqual(actual, item) {
				return true
			}
		}
		return false
	case "nin":
		list, ok := expected.([]interface{})
		if !ok {
			return false
		}
		for _, item := range list {
			if looseEqual(actual, item) {
				return false
			}
		}
		return true
	case "contains":
		return strings.Contains(strings.ToLower(stringify(actual)), strings.ToLower(stringify(expected)))
	default:
		log.Printf("[filter] unknown operator %q", op)
		return false
	}
}

// looseEqual compares numerically when both sides parse as numbers, and
// falls back to stringified equality so "5" equals 5.
func looseEqual(a, b interface{}) bool {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		return fa == fb
	}
	return stringify(a) == stringify(b)
}

func toFloat(v interface{}) (float64, bool) {
	switch tv := v.(type) {
	case float64:
		return tv, true
	case int:
		return float64(tv), true
	case int64:
		return float64(tv), true
	case string:
		f, err := strconv.ParseFloat(tv, 64)
		return f, err == nil
	}
	return 0, false
}

func stringify(v interface{}) string {
	switch tv := v.(type) {
	case string:
		return tv
	case bool:
		if tv {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64)
	case nil:
		return ""
	}
	return ""
}

// --- helpers ---

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func matchAnyField(data map[string]interface{}, fields, wanted []string) bool {
	return anyOverlap(collectFields(data, fields), wanted)
}

func collectFields(data map[string]interface{}, fields []string) []string {
	var out []string
	for _, f := range fields {
		if s, ok := data[f].(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func anyOverlap(values, wanted []string) bool {
	for _, v := range values {
		for _, w := range wanted {
			if v == w {
				return true
			}
		}
	}
	return false
}

// probeNumber returns the first derivable numeric among the ordered
// field names. String values that parse as numbers count.
func probeNumber(data map[string]interface{}, fields []string) (float64, bool) {
	for _, f := range fields {
		if v, ok := data[f]; ok {
			if n, okN := toFloat(v); okN {
				return n, true
			}
		}
	}
	return 0, false
}

func inRange(v float64, r *models.AmountRange) bool {
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}
