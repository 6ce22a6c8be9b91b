package transform

import (
	"log"
	"strconv"

	"tada-core/internal/filter"
	"tada-core/internal/models"
)

const lamportsPerSol = 1e9

// Field probe order shared by the trade and migration templates.
var tokenFields = []string{"mint", "token_mint", "base_mint", "input_mint", "pool"}
var solAmountFields = []string{"sol_amount", "quote_amount_in", "quote_amount_out", "quote_amount", "sol_raised"}
var tokenAmountFields = []string{"token_amount", "base_amount_out", "base_amount_in", "base_amount", "amount_out", "output_amount", "amount"}
var poolFields = []string{"pool", "pool_state", "pool_id", "virtual_pool", "bonding_curve"}

// Apply reshapes a matched event into an output record per the
// pipeline's transform spec. The base output fields are always present;
// only data varies by mode.
func Apply(t *models.Transform, e *models.Event, pipelineID string) *models.OutputRecord {
	out := &models.OutputRecord{
		ID:         e.ID,
		PipelineID: pipelineID,
		Program:    e.Program,
		Signature:  e.Signature,
		Timestamp:  e.BlockTime * 1000,
	}

	switch {
	case t == nil:
		out.Data = rawData(e)
	case t.Type == models.TransformFields && len(t.Fields) > 0:
		out.Data = fieldsData(t.Fields, e)
	case t.Type == models.TransformCode:
		// Sandboxed code execution is reserved; pass through as raw.
		log.Printf("[transform] code transform not supported, falling back to raw (pipeline=%s)", pipelineID)
		out.Data = rawData(e)
	default:
		out.Data = templateData(t.Template, e)
	}
	return out
}

func templateData(template string, e *models.Event) map[string]interface{} {
	switch template {
	case "trade":
		return tradeData(e)
	case "transfer":
		return transferData(e)
	case "migration":
		return migrationData(e)
	default:
		return rawData(e)
	}
}

// rawData is the default shape: the event's own data plus identity keys.
func rawData(e *models.Event) map[string]interface{} {
	data := make(map[string]interface{}, len(e.Data)+3)
	for k, v := range e.Data {
		data[k] = v
	}
	data["name"] = e.Name
	data["program"] = e.Program
	data["signer"] = e.Signer
	return data
}

// tradeData builds the canonical trade record.
func tradeData(e *models.Event) map[string]interface{} {
	data := map[string]interface{}{
		"type":      "trade",
		"eventName": e.Name,
		"trader":    e.Signer,
		"direction": direction(e),
		"token":     firstString(e.Data, tokenFields),
		"pool":      firstString(e.Data, poolFields),
	}

	if v, ok := probeNumber(e.Data, solAmountFields); ok {
		data["solAmount"] = v / lamportsPerSol
	}
	if v, ok := probeNumber(e.Data, tokenAmountFields); ok {
		data["tokenAmount"] = v
	}

	swapResult, _ := e.Data["swap_result"].(map[string]interface{})

	if v, ok := probeNumber(e.Data, []string{"amount_in", "input_amount", "actual_amount_in"}); ok {
		data["inputAmount"] = v
	} else if swapResult != nil {
		if v, ok := probeNumber(swapResult, []string{"actual_input_amount"}); ok {
			data["inputAmount"] = v
		}
	}
	if v, ok := probeNumber(e.Data, []string{"amount_out", "output_amount"}); ok {
		data["outputAmount"] = v
	} else if swapResult != nil {
		if v, ok := probeNumber(swapResult, []string{"output_amount"}); ok {
			data["outputAmount"] = v
		}
	}
	if swapResult != nil {
		if v, ok := probeNumber(swapResult, []string{"trading_fee"}); ok {
			data["tradingFee"] = v
		}
	}

	solReserves, okSol := probeNumber(e.Data, []string{"virtual_sol_reserves"})
	tokenReserves, okToken := probeNumber(e.Data, []string{"virtual_token_reserves"})
	if okSol && okToken && tokenReserves > 0 {
		data["price"] = solReserves / tokenReserves
	}
	return data
}

func transferData(e *models.Event) map[string]interface{} {
	from := firstString(e.Data, []string{"from", "sender", "source_owner"})
	if from == nil {
		from = e.Signer
	}
	data := map[string]interface{}{
		"type":      "transfer",
		"eventName": e.Name,
		"from":      from,
		"to":        firstString(e.Data, []string{"to", "recipient", "destination_owner"}),
		"mint":      firstString(e.Data, []string{"mint", "token_mint"}),
	}
	if v, ok := probeNumber(e.Data, []string{"amount", "token_amount"}); ok {
		data["amount"] = v
	}
	return data
}

func migrationData(e *models.Event) map[string]interface{} {
	data := map[string]interface{}{
		"type":      "migration",
		"eventName": e.Name,
		"token":     firstString(e.Data, []string{"base_mint", "mint", "token_mint"}),
		"pool":      firstString(e.Data, poolFields),
		"creator":   firstString(e.Data, []string{"creator", "user"}),
		"timestamp": e.BlockTime * 1000,
	}
	if v, ok := probeNumber(e.Data, []string{"virtual_sol_reserves", "sol_raised"}); ok {
		data["solRaised"] = v / lamportsPerSol
	}
	return data
}

// fieldsData resolves each declared mapping. Missing source paths yield
// nil targets; that is a legitimate result, not an error.
func fieldsData(mappings []models.FieldMapping, e *models.Event) map[string]interface{} {
	data := make(map[string]interface{}, len(mappings))
	for _, m := range mappings {
		v := filter.LookupPath(e, m.Source)
		if m.Pipe != "" {
			v = applyPipe(m.Pipe, v)
		}
		data[m.Target] = v
	}
	return data
}

func direction(e *models.Event) string {
	if isBuy, ok := filter.DeriveDirection(e); ok {
		if isBuy {
			return "buy"
		}
		return "sell"
	}
	return "swap"
}

// firstString returns the first non-empty string among the ordered
// fields, or nil.
func firstString(data map[string]interface{}, fields []string) interface{} {
	for _, f := range fields {
		if s, ok := data[f].(string); ok && s != "" {
			return s
		}
	}
	return nil
}

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

func toFloat(v interface{}) (float64, bool) {
	switch tv := v.(type) {
	case float64:
		return tv, true
	case string:
		f, err := strconv.ParseFloat(tv, 64)
		return f, err == nil
	}
	return 0, false
}
