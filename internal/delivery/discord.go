package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tada-core/internal/models"
)

// sendDiscord builds an embed (or plain text) message from the output
// data and POSTs it to the chat webhook. Success = 2xx; no retry.
func (d *Dispatcher) sendDiscord(ctx context.Context, out *models.OutputRecord, cfg *models.DiscordDestination) error {
	var payload map[string]interface{}
	if cfg.Format == "text" {
		payload = map[string]interface{}{
			"content": fmt.Sprintf("**%s**\n%s", discordTitle(out), discordDescription(out)),
		}
	} else {
		payload = map[string]interface{}{
			"embeds": []interface{}{discordEmbed(out)},
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("POST discord webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook returned %d", resp.StatusCode)
	}
	return nil
}

func discordEmbed(out *models.OutputRecord) map[string]interface{} {
	embed := map[string]interface{}{
		"title":       discordTitle(out),
		"description": discordDescription(out),
		"color":       0x9B59B6,
		"timestamp":   time.UnixMilli(out.Timestamp).UTC().Format(time.RFC3339),
		"footer": map[string]interface{}{
			"text": "Tada Pipeline",
		},
	}

	var fields []map[string]interface{}
	addField := func(name string, value interface{}, inline bool) {
		if value == nil || value == "" {
			return
		}
		fields = append(fields, map[string]interface{}{
			"name":   name,
			"value":  fmt.Sprintf("`%v`", value),
			"inline": inline,
		})
	}

	switch out.Data["type"] {
	case "trade":
		addField("Trader", shortenAddr(strField(out.Data, "trader")), true)
		addField("Token", shortenAddr(strField(out.Data, "token")), true)
		if v, ok := out.Data["solAmount"]; ok {
			addField("SOL", v, true)
		}
		if v, ok := out.Data["tokenAmount"]; ok {
			addField("Tokens", v, true)
		}
	case "migration":
		addField("Token", shortenAddr(strField(out.Data, "token")), true)
		addField("Pool", shortenAddr(strField(out.Data, "pool")), true)
		if v, ok := out.Data["solRaised"]; ok {
			addField("SOL Raised", v, true)
		}
	}
	addField("Program", out.Program, true)
	addField("Signature", shortenAddr(out.Signature), false)
	if len(fields) > 0 {
		embed["fields"] = fields
	}
	return embed
}

func discordTitle(out *models.OutputRecord) string {
	switch out.Data["type"] {
	case "trade":
		switch out.Data["direction"] {
		case "buy":
			return "🟢 Buy"
		case "sell":
			return "🔴 Sell"
		}
		return "🔄 Swap"
	case "migration":
		return "🎓 Migration"
	case "transfer":
		return "💸 Transfer"
	}
	if name, ok := out.Data["name"].(string); ok && name != "" {
		return "📡 " + name
	}
	return "📡 Event"
}

func discordDescription(out *models.OutputRecord) string {
	switch out.Data["type"] {
	case "trade":
		return fmt.Sprintf("%v %s on `%s`", out.Data["direction"], strField(out.Data, "eventName"), out.Program)
	case "migration":
		return fmt.Sprintf("%s graduated on `%s`", strField(out.Data, "eventName"), out.Program)
	}
	j, _ := json.Marshal(out.Data)
	s := string(j)
	if len(s) > 300 {
		s = s[:297] + "..."
	}
	return s
}

func strField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func shortenAddr(s string) string {
	if len(s) <= 16 {
		return s
	}
	return s[:8] + "..." + s[len(s)-6:]
}
