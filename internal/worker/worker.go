package worker

import (
	"context"
	"log"

	"purchase-agent/internal/broker"
	"purchase-agent/internal/service"
)

// PipelineWorker consumes stage events and drives the purchase pipeline.
type PipelineWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
}

// NewPipelineWorker creates a worker wired to the pipeline's stage handlers.
func NewPipelineWorker(consumer *broker.Consumer, pipeline *service.Pipeline) *PipelineWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnPurchaseRequested(pipeline.HandlePurchaseRequested)
	eventHandler.OnMerchantSelected(pipeline.HandleMerchantSelected)

	return &PipelineWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
	}
}

// Start consumes stage events until the context is cancelled.
func (w *PipelineWorker) Start(ctx context.Context) error {
	log.Println("Starting pipeline worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop closes the underlying consumer.
func (w *PipelineWorker) Stop() error {
	log.Println("Stopping pipeline worker...")
	return w.consumer.Close()
}
