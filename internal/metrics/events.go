package metrics

import (
	"context"

	"github.com/asmuvera/muvera-eval/internal/bus"
)

// EventSubscriber subscribes to evaluation events and updates metrics.
type EventSubscriber struct {
	metrics *Metrics
	bus     bus.Bus
}

// NewEventSubscriber creates a new event subscriber.
func NewEventSubscriber(metrics *Metrics, eventBus bus.Bus) *EventSubscriber {
	return &EventSubscriber{
		metrics: metrics,
		bus:     eventBus,
	}
}

// SubscribeToEvents subscribes to all evaluation topics.
func (es *EventSubscriber) SubscribeToEvents(ctx context.Context) error {
	if err := es.bus.Subscribe(ctx, bus.TopicQueryCompleted, es.handleQueryCompleted); err != nil {
		return err
	}
	if err := es.bus.Subscribe(ctx, bus.TopicRunCompleted, es.handleRunCompleted); err != nil {
		return err
	}
	return nil
}

func (es *EventSubscriber) handleQueryCompleted(ctx context.Context, event bus.Event) error {
	if _, err := bus.DecodePayload[bus.QueryCompletedPayload](event); err != nil {
		return err
	}
	es.metrics.RecordQueryEvaluated()
	return nil
}

func (es *EventSubscriber) handleRunCompleted(ctx context.Context, event bus.Event) error {
	p, err := bus.DecodePayload[bus.RunPayload](event)
	if err != nil {
		return err
	}
	if p.Failures > 0 {
		es.metrics.RunFailures.Add(int64(p.Failures))
	}
	return nil
}
