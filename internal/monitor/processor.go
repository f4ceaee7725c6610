package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/harrier/internal/alerting"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/rules"
)

// Metrics receives pipeline-level signals for metrics export.
// A nil Metrics is valid and records nothing.
type Metrics interface {
	TransactionProcessed(d time.Duration, score int, flagged bool)
	TransactionFaulted()
	AlertRaised(ruleID string)
}

// Processor runs transactions through the full detection pipeline:
// persist, build context, evaluate, alert, mark processed.
type Processor struct {
	repo     domain.Repository
	engine   *rules.Engine
	alerts   *alerting.Generator
	contexts *ContextBuilder
	bus      domain.EventBus
	cache    domain.Cache
	metrics  Metrics
	cfg      domain.MonitorConfig
}

// NewProcessor creates a transaction processor.
func NewProcessor(repo domain.Repository, engine *rules.Engine, alerts *alerting.Generator, bus domain.EventBus, cache domain.Cache, metrics Metrics, cfg domain.MonitorConfig) *Processor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.FaultPolicy == "" {
		cfg.FaultPolicy = domain.FaultPolicyMark
	}
	return &Processor{
		repo:     repo,
		engine:   engine,
		alerts:   alerts,
		contexts: NewContextBuilder(repo, cfg.HistoryDays),
		bus:      bus,
		cache:    cache,
		metrics:  metrics,
		cfg:      cfg,
	}
}

// ProcessTransaction persists and evaluates a single transaction.
// Replays are detected through the processed flag and return a nil
// evaluation without re-alerting. A returned error means the
// transaction was NOT marked processed and is safe to retry.
func (p *Processor) ProcessTransaction(ctx context.Context, tx *domain.Transaction) (*domain.Evaluation, error) {
	start := time.Now()

	if err := p.repo.SaveTransaction(ctx, tx); err != nil {
		p.fault()
		return nil, fmt.Errorf("failed to save transaction: %w", err)
	}

	// The insert is first-write-wins; reload to pick up the stored
	// record and its processed state for replays.
	stored, err := p.repo.GetTransaction(ctx, tx.ID)
	if err != nil {
		p.fault()
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	if stored.Processed {
		slog.Debug("transaction already processed, skipping", "tx_id", tx.ID)
		return nil, nil
	}
	tx = stored

	if p.cache != nil {
		// Rolling ingestion rate, surfaced through the stats endpoint.
		if _, err := p.cache.IncrementCounter(ctx, "monitor:processed", time.Minute); err != nil {
			slog.Debug("failed to bump processing counter", "error", err)
		}
	}

	ec, err := p.contexts.Build(ctx, tx)
	if err != nil {
		p.fault()
		return nil, err
	}

	eval, err := p.engine.EvaluateTransaction(ctx, tx, ec)
	if err != nil {
		p.fault()
		return nil, fmt.Errorf("evaluation failed: %w", err)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		eval.Metadata.TraceID = sc.TraceID().String()
	}

	for i := range eval.Hits {
		hit := &eval.Hits[i]
		alert, created, err := p.alerts.GenerateAlert(ctx, tx, ec, hit)
		if err != nil {
			p.fault()
			return nil, fmt.Errorf("failed to raise alert for rule %s: %w", hit.RuleID, err)
		}
		eval.AlertIDs = append(eval.AlertIDs, alert.ID)
		if created && p.metrics != nil {
			p.metrics.AlertRaised(hit.RuleID)
		}
	}

	if err := p.repo.MarkProcessed(ctx, tx.ID); err != nil {
		p.fault()
		return eval, fmt.Errorf("failed to mark transaction processed: %w", err)
	}

	if eval.Flagged {
		p.publish(ctx, domain.TopicTransactionFlagged, eval)
	}

	if p.metrics != nil {
		p.metrics.TransactionProcessed(time.Since(start), eval.Score, eval.Flagged)
	}

	slog.Info("transaction processed",
		"tx_id", tx.ID,
		"account", tx.AccountNumber,
		"flagged", eval.Flagged,
		"score", eval.Score,
		"hits", len(eval.Hits),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return eval, nil
}

// BatchStats summarizes a batch run.
type BatchStats struct {
	Processed int     `json:"processed"`
	Flagged   int     `json:"flagged"`
	Faulted   int     `json:"faulted"`
	FlagRate  float64 `json:"flagRate"`
}

// ProcessBatch claims up to BatchSize unprocessed transactions and
// runs each through the pipeline. A single transaction fault never
// fails the batch; the fault policy decides whether the transaction is
// marked processed or left for retry.
func (p *Processor) ProcessBatch(ctx context.Context) (BatchStats, error) {
	var stats BatchStats

	batch, err := p.repo.ListUnprocessed(ctx, p.cfg.BatchSize)
	if err != nil {
		return stats, fmt.Errorf("failed to list unprocessed transactions: %w", err)
	}

	for _, tx := range batch {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		eval, err := p.ProcessTransaction(ctx, tx)
		if err != nil {
			stats.Faulted++
			slog.Error("transaction faulted during batch run",
				"tx_id", tx.ID, "fault_policy", p.cfg.FaultPolicy, "error", err)
			if p.cfg.FaultPolicy == domain.FaultPolicyMark {
				if merr := p.repo.MarkProcessed(ctx, tx.ID); merr != nil {
					slog.Error("failed to mark faulted transaction", "tx_id", tx.ID, "error", merr)
				}
			}
			continue
		}

		stats.Processed++
		if eval != nil && eval.Flagged {
			stats.Flagged++
		}
	}

	if stats.Processed > 0 {
		stats.FlagRate = float64(stats.Flagged) / float64(stats.Processed)
	}

	slog.Info("batch run complete",
		"processed", stats.Processed,
		"flagged", stats.Flagged,
		"faulted", stats.Faulted,
	)
	return stats, nil
}

func (p *Processor) fault() {
	if p.metrics != nil {
		p.metrics.TransactionFaulted()
	}
}

func (p *Processor) publish(ctx context.Context, topic string, payload interface{}) {
	if p.bus == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := p.bus.Publish(ctx, topic, raw); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "error", err)
	}
}
