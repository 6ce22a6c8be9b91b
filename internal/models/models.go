package models

import (
	"encoding/json"
	"time"
)

// --- Events ---

// SourceType attributes an event to the program that routed it.
type SourceType string

const (
	SourceDirect  SourceType = "direct"
	SourceJupiter SourceType = "jupiter"
	SourceRaydium SourceType = "raydium"
	SourceUnknown SourceType = "unknown"
)

// EventSource describes how the transaction reached the AMM program:
// directly, or through a known aggregator whose address appeared in the
// transaction's account keys.
type EventSource struct {
	Type         SourceType `json:"type"`
	OuterProgram string     `json:"outerProgram,omitempty"`
}

// Event is the normalized output of decoding. Data values are strings,
// bools, finite float64s, []interface{} or nested map[string]interface{};
// large integers and byte blobs are stringified at decode time (decimal
// and base58 respectively).
type Event struct {
	ID             string                 `json:"id"`
	Program        string                 `json:"program"`
	ProgramAddress string                 `json:"programAddress"`
	Name           string                 `json:"name"`
	Signature      string                 `json:"signature"`
	Slot           uint64                 `json:"slot"`
	BlockTime      int64                  `json:"blockTime"`
	Signer         string                 `json:"signer"`
	Source         EventSource            `json:"source"`
	Data           map[string]interface{} `json:"data"`
}

// --- Pipelines ---

type PipelineStatus string

const (
	StatusActive PipelineStatus = "active"
	StatusPaused PipelineStatus = "paused"
	StatusError  PipelineStatus = "error"
)

// Pipeline is a user-defined (programs, filter, transform, destinations)
// tuple. Programs must be non-empty and at least one destination must be
// enabled; the store and the API reject upserts that violate either.
type Pipeline struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	APIKey       string         `json:"api_key,omitempty"`
	Programs     []string       `json:"programs"`
	Filter       *Filter        `json:"filter,omitempty"`
	Transform    *Transform     `json:"transform,omitempty"`
	Destinations Destinations   `json:"destinations"`
	Status       PipelineStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// --- Filters ---

// AmountRange bounds a derived numeric value. Nil bound = unbounded.
type AmountRange struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// AccountFilter constrains the set of account-like strings collected from
// an event: at least one of Include must appear, none of Exclude may.
type AccountFilter struct {
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// Condition is a single {field, op, value} predicate. Field is a dotted
// path into the event object (root = full event, including data).
type Condition struct {
	Field string      `json:"field"`
	Op    string      `json:"op"`
	Value interface{} `json:"value"`
}

// Filter is the recursive declarative predicate evaluated against one
// event. All set convenience fields AND-compose; $and/$or take priority
// over everything else; an empty filter matches everything.
type Filter struct {
	Instructions []string       `json:"instructions,omitempty"`
	Mints        []string       `json:"mints,omitempty"`
	Wallets      []string       `json:"wallets,omitempty"`
	IsBuy        *bool          `json:"isBuy,omitempty"`
	SolAmount    *AmountRange   `json:"solAmount,omitempty"`
	TokenAmount  *AmountRange   `json:"tokenAmount,omitempty"`
	Accounts     *AccountFilter `json:"accounts,omitempty"`
	Conditions   []Condition    `json:"conditions,omitempty"`
	And          []*Filter      `json:"$and,omitempty"`
	Or           []*Filter      `json:"$or,omitempty"`
}

// IsEmpty reports whether no predicate at all is set.
func (f *Filter) IsEmpty() bool {
	if f == nil {
		return true
	}
	return len(f.Instructions) == 0 &&
		len(f.Mints) == 0 &&
		len(f.Wallets) == 0 &&
		f.IsBuy == nil &&
		f.SolAmount == nil &&
		f.TokenAmount == nil &&
		(f.Accounts == nil || (len(f.Accounts.Include) == 0 && len(f.Accounts.Exclude) == 0)) &&
		len(f.Conditions) == 0 &&
		len(f.And) == 0 &&
		len(f.Or) == 0
}

// --- Transforms ---

type TransformType string

const (
	TransformTemplate TransformType = "template"
	TransformFields   TransformType = "fields"
	TransformCode     TransformType = "code"
)

// FieldMapping copies one dotted source path into one target data key,
// optionally through a named pipe function.
type FieldMapping struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Pipe   string `json:"pipe,omitempty"`
}

// Transform selects how a matched event becomes an OutputRecord's data.
// A nil Transform or an unset type means template=raw.
type Transform struct {
	Type     TransformType  `json:"type,omitempty"`
	Template string         `json:"template,omitempty"` // trade | transfer | migration | raw
	Fields   []FieldMapping `json:"fields,omitempty"`
	Code     string         `json:"code,omitempty"` // reserved; treated as raw
}

// --- Outputs ---

// OutputRecord is the per-pipeline, per-event unit destinations consume.
// Timestamp is the event block time in milliseconds.
type OutputRecord struct {
	ID         string                 `json:"id"`
	PipelineID string                 `json:"pipelineId"`
	Program    string                 `json:"program"`
	Signature  string                 `json:"signature"`
	Timestamp  int64                  `json:"timestamp"`
	Data       map[string]interface{} `json:"data"`
}

// --- Destinations ---

// DiscordDestination posts a chat webhook message (embed or plain text).
type DiscordDestination struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
	Format     string `json:"format,omitempty"` // "embed" (default) or "text"
}

// TelegramDestination pushes through the bot API sendMessage endpoint.
type TelegramDestination struct {
	Enabled   bool   `json:"enabled"`
	BotToken  string `json:"bot_token"`
	ChatID    string `json:"chat_id"`
	ParseMode string `json:"parse_mode,omitempty"` // Markdown | HTML | "" (plain)
}

// WebhookDestination is the generic signed HTTP sink with retry.
type WebhookDestination struct {
	Enabled         bool              `json:"enabled"`
	URL             string            `json:"url"`
	Headers         map[string]string `json:"headers,omitempty"`
	Secret          string            `json:"secret,omitempty"`
	SignatureHeader string            `json:"signature_header,omitempty"` // default X-Tada-Signature
	RetryAttempts   int               `json:"retry_attempts,omitempty"`   // default 3
	RetryBackoff    string            `json:"retry_backoff,omitempty"`    // linear | exponential
}

// RealtimeDestination broadcasts on the in-process bus room pipeline:{id}.
type RealtimeDestination struct {
	Enabled bool `json:"enabled"`
}

// Destinations bundles all configured sinks for a pipeline.
type Destinations struct {
	Discord  *DiscordDestination  `json:"discord,omitempty"`
	Telegram *TelegramDestination `json:"telegram,omitempty"`
	Webhook  *WebhookDestination  `json:"webhook,omitempty"`
	Realtime *RealtimeDestination `json:"realtime,omitempty"`
}

// EnabledCount returns how many sinks are enabled.
func (d Destinations) EnabledCount() int {
	n := 0
	if d.Discord != nil && d.Discord.Enabled {
		n++
	}
	if d.Telegram != nil && d.Telegram.Enabled {
		n++
	}
	if d.Webhook != nil && d.Webhook.Enabled {
		n++
	}
	if d.Realtime != nil && d.Realtime.Enabled {
		n++
	}
	return n
}

// DeliveryResult reports the outcome for a single destination.
type DeliveryResult struct {
	Destination string `json:"destination"` // discord | telegram | webhook | realtime
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
}

// DeliveryLog is the persisted record of one delivery attempt outcome.
type DeliveryLog struct {
	ID          int64           `json:"id"`
	PipelineID  string          `json:"pipeline_id"`
	EventID     string          `json:"event_id"`
	Destination string          `json:"destination"`
	Success     bool            `json:"success"`
	Error       string          `json:"error,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
