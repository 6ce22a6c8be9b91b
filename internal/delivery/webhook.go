package delivery

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"tada-core/internal/models"
)

const defaultSignatureHeader = "X-Tada-Signature"
const defaultRetryAttempts = 3

// sendWebhook POSTs the output to a generic HTTP endpoint with optional
// HMAC signing and a bounded retry budget. 4xx responses are not
// retryable; 5xx and transport errors retry with linear or exponential
// backoff until the attempt budget is exhausted.
func (d *Dispatcher) sendWebhook(ctx context.Context, out *models.OutputRecord, cfg *models.WebhookDestination) error {
	body, err := webhookBody(out)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		retryable, err := d.postWebhook(ctx, out, cfg, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
		if attempt == attempts {
			break
		}

		delay := backoffDelay(cfg.RetryBackoff, attempt, d.retryBaseDelay)
		log.Printf("[delivery] webhook attempt %d/%d failed, retrying in %v: %v", attempt, attempts, delay, err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("webhook failed after %d attempts: %w", attempts, lastErr)
}

// postWebhook performs one attempt. The bool reports retryability.
func (d *Dispatcher) postWebhook(ctx context.Context, out *models.OutputRecord, cfg *models.WebhookDestination, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Tada-Pipeline-Id", out.PipelineID)
	req.Header.Set("X-Tada-Event-Id", out.ID)
	req.Header.Set("X-Tada-Timestamp", strconv.FormatInt(out.Timestamp, 10))
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	if cfg.Secret != "" {
		header := cfg.SignatureHeader
		if header == "" {
			header = defaultSignatureHeader
		}
		req.Header.Set(header, SignPayload(body, cfg.Secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return true, fmt.Errorf("POST %s: %w", cfg.URL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return false, fmt.Errorf("POST %s returned %d", cfg.URL, resp.StatusCode)
	default:
		return true, fmt.Errorf("POST %s returned %d", cfg.URL, resp.StatusCode)
	}
}

// webhookBody serializes the output data plus the _meta envelope.
func webhookBody(out *models.OutputRecord) ([]byte, error) {
	payload := make(map[string]interface{}, len(out.Data)+1)
	for k, v := range out.Data {
		payload[k] = v
	}
	payload["_meta"] = map[string]interface{}{
		"pipelineId": out.PipelineID,
		"eventId":    out.ID,
		"timestamp":  out.Timestamp,
	}
	return json.Marshal(payload)
}

// SignPayload computes the signature header value for a body and
// secret: "sha256=" followed by the lowercase hex HMAC-SHA256.
func SignPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// backoffDelay computes the sleep before the next attempt: linear is
// attempt*base, exponential is 2^(attempt-1)*base.
func backoffDelay(policy string, attempt int, base time.Duration) time.Duration {
	if policy == "exponential" {
		return time.Duration(1<<(attempt-1)) * base
	}
	return time.Duration(attempt) * base
}
