package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"tada-core/internal/models"
)

// telegramAPIBase is overridable in tests.
var telegramAPIBase = "https://api.telegram.org"

// sendTelegram formats a text message in the requested style and POSTs
// it to the bot API's sendMessage endpoint. Success = 2xx; no retry.
// Sends are paced by a per-chat limiter to stay under the bot API
// ceiling; the wait is bounded by the request context.
func (d *Dispatcher) sendTelegram(ctx context.Context, out *models.OutputRecord, cfg *models.TelegramDestination) error {
	if err := d.telegramLimiter(cfg.ChatID).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	payload := map[string]interface{}{
		"chat_id":                  cfg.ChatID,
		"text":                     telegramText(out, cfg.ParseMode),
		"disable_web_page_preview": true,
	}
	if cfg.ParseMode != "" {
		payload["parse_mode"] = cfg.ParseMode
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", telegramAPIBase, cfg.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("POST telegram sendMessage: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram sendMessage returned %d", resp.StatusCode)
	}
	return nil
}

func telegramText(out *models.OutputRecord, parseMode string) string {
	var b strings.Builder
	bold := func(s string) string {
		switch parseMode {
		case "HTML":
			return "<b>" + s + "</b>"
		case "Markdown", "MarkdownV2":
			return "*" + s + "*"
		}
		return s
	}
	code := func(s string) string {
		switch parseMode {
		case "HTML":
			return "<code>" + s + "</code>"
		case "Markdown", "MarkdownV2":
			return "`" + s + "`"
		}
		return s
	}

	switch out.Data["type"] {
	case "trade":
		dir := strField(out.Data, "direction")
		emoji := "🔄"
		if dir == "buy" {
			emoji = "🟢"
		} else if dir == "sell" {
			emoji = "🔴"
		}
		fmt.Fprintf(&b, "%s %s on %s\n", emoji, bold(strings.ToUpper(dir)), out.Program)
		if token := strField(out.Data, "token"); token != "" {
			fmt.Fprintf(&b, "Token: %s\n", code(shortenAddr(token)))
		}
		if v, ok := out.Data["solAmount"]; ok {
			fmt.Fprintf(&b, "SOL: %v\n", v)
		}
		if v, ok := out.Data["tokenAmount"]; ok {
			fmt.Fprintf(&b, "Tokens: %v\n", v)
		}
	case "migration":
		fmt.Fprintf(&b, "🎓 %s on %s\n", bold("Migration"), out.Program)
		if token := strField(out.Data, "token"); token != "" {
			fmt.Fprintf(&b, "Token: %s\n", code(shortenAddr(token)))
		}
		if v, ok := out.Data["solRaised"]; ok {
			fmt.Fprintf(&b, "SOL raised: %v\n", v)
		}
	default:
		name := strField(out.Data, "name")
		if name == "" {
			name = strField(out.Data, "eventName")
		}
		fmt.Fprintf(&b, "📡 %s on %s\n", bold(name), out.Program)
	}
	fmt.Fprintf(&b, "Sig: %s", code(shortenAddr(out.Signature)))
	return b.String()
}
