package engine

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"tada-core/internal/decoder"
	"tada-core/internal/delivery"
	"tada-core/internal/filter"
	"tada-core/internal/models"
	"tada-core/internal/pipeline"
	"tada-core/internal/transform"
)

// DeliveryLogger persists delivery outcomes. Optional; a nil logger
// disables persistence without affecting the pipeline.
type DeliveryLogger interface {
	InsertDeliveryLog(ctx context.Context, dl *models.DeliveryLog) error
}

// Engine connects the decoder registry, pipeline index, filter,
// transform and dispatcher into the per-transaction flow:
//
//	envelope -> events -> matched pipelines -> filter -> transform -> deliver
//
// Distinct transactions are processed concurrently (bounded); pipelines
// for one event fan out concurrently as well. No single pipeline's
// failure affects another.
type Engine struct {
	registry   *decoder.Registry
	index      *pipeline.Index
	dispatcher *delivery.Dispatcher
	logs       DeliveryLogger
	stats      *Stats

	sem chan struct{}
	wg  sync.WaitGroup
}

func New(registry *decoder.Registry, index *pipeline.Index, dispatcher *delivery.Dispatcher, logs DeliveryLogger) *Engine {
	return &Engine{
		registry:   registry,
		index:      index,
		dispatcher: dispatcher,
		logs:       logs,
		stats:      NewStats(),
		sem:        make(chan struct{}, 64),
	}
}

func (e *Engine) Stats() *Stats { return e.stats }

// Index exposes the pipeline index for the control plane.
func (e *Engine) Index() *pipeline.Index { return e.index }

// HandleTransaction decodes and fully processes one envelope.
func (e *Engine) HandleTransaction(ctx context.Context, env *decoder.TransactionEnvelope) {
	events := e.registry.Parse(env)
	for i := range events {
		e.processEvent(ctx, &events[i])
	}
}

// HandleTransactionAsync schedules processing on the bounded worker
// pool. Used by the stream source so slow deliveries do not stall the
// subscription read loop.
func (e *Engine) HandleTransactionAsync(ctx context.Context, env *decoder.TransactionEnvelope) {
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	e.wg.Add(1)
	go func() {
		defer func() {
			<-e.sem
			e.wg.Done()
		}()
		e.HandleTransaction(ctx, env)
	}()
}

// Wait blocks until all scheduled transactions finish.
func (e *Engine) Wait() { e.wg.Wait() }

func (e *Engine) processEvent(ctx context.Context, ev *models.Event) {
	e.stats.EventsProcessed.Add(1)

	pipelines := e.index.PipelinesFor(ev.Program)
	if len(pipelines) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, p := range pipelines {
		wg.Add(1)
		go func(p *models.Pipeline) {
			defer wg.Done()
			e.runPipeline(ctx, p, ev)
		}(p)
	}
	wg.Wait()
}

// runPipeline applies one pipeline to one event. Errors (including
// panics out of filter or transform evaluation) are caught, counted and
// logged; they never propagate to other pipelines.
func (e *Engine) runPipeline(ctx context.Context, p *models.Pipeline, ev *models.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			e.stats.Errors.Add(1)
			log.Printf("[engine] pipeline %s panicked on event %s: %v", p.ID, ev.ID, rec)
		}
	}()

	f := p.Filter
	if f == nil {
		f = &models.Filter{}
	}
	if !filter.Evaluate(f, ev) {
		e.stats.EventsFiltered.Add(1)
		return
	}
	e.stats.EventsMatched.Add(1)

	out := transform.Apply(p.Transform, ev, p.ID)
	results := e.dispatcher.Deliver(ctx, out, p.Destinations)
	for _, res := range results {
		e.stats.RecordDelivery(res.Destination, res.Success)
		if !res.Success {
			log.Printf("[engine] delivery failed: pipeline=%s dest=%s err=%s", p.ID, res.Destination, res.Error)
		}
		e.logDelivery(ctx, p, out, res)
	}
}

func (e *Engine) logDelivery(ctx context.Context, p *models.Pipeline, out *models.OutputRecord, res models.DeliveryResult) {
	if e.logs == nil {
		return
	}
	payload, _ := json.Marshal(out.Data)
	dl := &models.DeliveryLog{
		PipelineID:  p.ID,
		EventID:     out.ID,
		Destination: res.Destination,
		Success:     res.Success,
		Error:       res.Error,
		Payload:     payload,
	}
	if err := e.logs.InsertDeliveryLog(ctx, dl); err != nil {
		log.Printf("[engine] failed to log delivery: pipeline=%s err=%v", p.ID, err)
	}
}
