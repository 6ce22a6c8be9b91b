package delivery

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tada-core/internal/eventbus"
	"tada-core/internal/models"
)

// userAgent identifies outbound webhook traffic.
const userAgent = "tada-pipeline/1.0"

// Dispatcher fans an output record out to every enabled destination in
// parallel. Per-destination failures never block the others; the full
// result list is always returned.
type Dispatcher struct {
	client *http.Client
	bus    *eventbus.Bus

	// retryBaseDelay scales webhook retry backoff; 1s in production,
	// shrunk in tests.
	retryBaseDelay time.Duration

	mu         sync.Mutex
	tgLimiters map[string]*rate.Limiter
}

// NewDispatcher creates a Dispatcher. bus may be nil, in which case the
// realtime destination reports failure.
func NewDispatcher(bus *eventbus.Bus) *Dispatcher {
	return &Dispatcher{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		bus:            bus,
		retryBaseDelay: time.Second,
		tgLimiters:     make(map[string]*rate.Limiter),
	}
}

// Deliver sends the output to all enabled destinations concurrently and
// returns one result per enabled destination.
func (d *Dispatcher) Deliver(ctx context.Context, out *models.OutputRecord, dest models.Destinations) []models.DeliveryResult {
	type task struct {
		tag string
		run func(context.Context) error
	}
	var tasks []task

	if dest.Discord != nil && dest.Discord.Enabled {
		cfg := dest.Discord
		tasks = append(tasks, task{"discord", func(ctx context.Context) error {
			return d.sendDiscord(ctx, out, cfg)
		}})
	}
	if dest.Telegram != nil && dest.Telegram.Enabled {
		cfg := dest.Telegram
		tasks = append(tasks, task{"telegram", func(ctx context.Context) error {
			return d.sendTelegram(ctx, out, cfg)
		}})
	}
	if dest.Webhook != nil && dest.Webhook.Enabled {
		cfg := dest.Webhook
		tasks = append(tasks, task{"webhook", func(ctx context.Context) error {
			return d.sendWebhook(ctx, out, cfg)
		}})
	}
	if dest.Realtime != nil && dest.Realtime.Enabled {
		tasks = append(tasks, task{"realtime", func(ctx context.Context) error {
			return d.sendRealtime(out)
		}})
	}

	results := make([]models.DeliveryResult, len(tasks))
	var wg sync.WaitGroup
	for i, t := range tasks {
		wg.Add(1)
		go func(i int, t task) {
			defer wg.Done()
			res := models.DeliveryResult{Destination: t.tag, Success: true}
			if err := t.run(ctx); err != nil {
				res.Success = false
				res.Error = err.Error()
			}
			results[i] = res
		}(i, t)
	}
	wg.Wait()
	return results
}

// telegramLimiter returns the per-chat limiter (20 messages/minute,
// the bot API's per-chat ceiling).
func (d *Dispatcher) telegramLimiter(chatID string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.tgLimiters[chatID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(20.0/60.0), 3)
		d.tgLimiters[chatID] = l
	}
	return l
}
