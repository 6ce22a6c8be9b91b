package transform

import (
	"log"
	"math"
	"strconv"
	"time"
)

// InitialVirtualTokenReserves is the bonding-curve starting supply used
// by the bondingCurveProgress pipe (pump schema constant).
const InitialVirtualTokenReserves = 1_073_000_000_000_000

// applyPipe runs the named unary pipe. An unknown pipe name is treated
// as identity and logged.
func applyPipe(name string, v interface{}) interface{} {
	switch name {
	case "lamportsToSol":
		if n, ok := toFloat(v); ok {
			return n / lamportsPerSol
		}
		return v
	case "base58":
		// Values are already base58-encoded upstream; coerce to string.
		if v == nil {
			return nil
		}
		return stringifyValue(v)
	case "timestamp":
		if n, ok := toFloat(v); ok {
			return time.Unix(int64(n), 0).UTC().Format(time.RFC3339)
		}
		return v
	case "shorten":
		if s, ok := v.(string); ok {
			return Shorten(s)
		}
		return v
	case "bondingCurveProgress":
		if n, ok := toFloat(v); ok {
			return BondingCurveProgress(n)
		}
		return v
	default:
		log.Printf("[transform] unknown pipe %q, passing value through", name)
		return v
	}
}

// Shorten renders an address as "first4…last4" when longer than 12
// characters, otherwise unchanged.
func Shorten(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:4] + "…" + s[len(s)-4:]
}

// BondingCurveProgress converts current virtual token reserves into a
// completion percentage, clamped to [0,100] and rounded to two decimals.
func BondingCurveProgress(current float64) float64 {
	progress := (InitialVirtualTokenReserves - current) / InitialVirtualTokenReserves * 100
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	return math.Round(progress*100) / 100
}

func stringifyValue(v interface{}) string {
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
	}
	return ""
}
