// Package worker provides async transaction processing off the event bus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/monitor"
)

// Worker consumes ingested transactions from the EventBus and runs
// them through the detection pipeline.
type Worker struct {
	bus       domain.EventBus
	processor *monitor.Processor

	subscriptions []domain.Subscription
	sem           chan struct{}
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// Concurrency bounds transactions processed at once.
	Concurrency int
}

// NewWorker creates an async worker.
func NewWorker(bus domain.EventBus, processor *monitor.Processor, cfg Config) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		processor: processor,
		sem:       make(chan struct{}, cfg.Concurrency),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to the ingestion topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicTransactionIngested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("worker started", "topic", domain.TopicTransactionIngested)
	return nil
}

// handleMessage decodes and processes a single ingested transaction.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var tx domain.Transaction
	if err := json.Unmarshal(msg.Payload, &tx); err != nil {
		slog.Error("failed to parse transaction message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if tx.ID == "" {
		slog.Error("transaction message has no ID", "message_id", msg.ID)
		return nil
	}

	w.sem <- struct{}{}        // Acquire
	defer func() { <-w.sem }() // Release

	w.wg.Add(1)
	defer w.wg.Done()

	if _, err := w.processor.ProcessTransaction(ctx, &tx); err != nil {
		// Persisted but unprocessed; the next batch run retries it.
		slog.Error("async processing faulted",
			"tx_id", tx.ID,
			"error", err,
		)
		return err
	}
	return nil
}

// Stop gracefully stops the worker, draining in-flight transactions.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
