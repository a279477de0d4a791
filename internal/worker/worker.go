// Package worker scores statements submitted over the event bus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/underwriter/internal/domain"
)

// Evaluator scores a tenant's statement.
type Evaluator interface {
	Evaluate(ctx context.Context, tenantID string, txs []domain.Transaction) (*domain.Evaluation, error)
}

// Worker subscribes to submitted statements, scores them and publishes the
// outcome.
type Worker struct {
	bus       domain.EventBus
	evaluator Evaluator

	mu            sync.Mutex
	subscriptions []domain.Subscription
	tenants       map[string]bool
	sem           chan struct{}
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Int64
	failed    atomic.Int64
	declined  atomic.Int64
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs to subscribe for. Empty subscribes every tenant.
	TenantIDs []string

	// WorkerCount bounds concurrent evaluations across all tenants.
	WorkerCount int
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, evaluator Evaluator) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		evaluator: evaluator,
		tenants:   make(map[string]bool),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to TopicStatementSubmitted for each configured tenant.
// A tenant that fails to subscribe is logged and skipped.
func (w *Worker) Start(cfg Config) error {
	n := cfg.WorkerCount
	if n <= 0 {
		n = 1
	}
	w.sem = make(chan struct{}, n)

	tenants := cfg.TenantIDs
	if len(tenants) == 0 {
		tenants = []string{domain.AllTenants}
	}

	started := 0
	for _, tenantID := range tenants {
		if err := w.subscribe(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		started++
	}
	if started == 0 {
		return fmt.Errorf("no tenant subscriptions started")
	}

	slog.Info("workers started",
		"tenant_count", started,
		"worker_count", n,
	)
	return nil
}

func (w *Worker) subscribe(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicStatementSubmitted, w.handle)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.tenants[tenantID] = true
	w.mu.Unlock()

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicStatementSubmitted,
	)
	return nil
}

// Serves reports whether statements submitted by tenantID are consumed.
func (w *Worker) Serves(tenantID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tenants[domain.AllTenants] || w.tenants[tenantID]
}

func (w *Worker) handle(ctx context.Context, msg *domain.Message) error {
	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-w.sem }()

	w.wg.Add(1)
	defer w.wg.Done()

	w.process(ctx, msg)
	return nil
}

// process scores one submitted statement. Failures are reported on the
// completed topic rather than returned, so a bad statement is never
// redelivered.
func (w *Worker) process(ctx context.Context, msg *domain.Message) {
	start := time.Now()
	tenantID := msg.TenantID

	var req domain.StatementSubmitted
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse statement message",
			"message_id", msg.ID,
			"error", err,
		)
		w.failed.Add(1)
		w.publish(ctx, tenantID, msg, domain.ScorecardCompleted{
			RequestID: msg.ID,
			Error:     fmt.Sprintf("invalid statement message: %v", err),
		}, false)
		return
	}
	if req.RequestID == "" {
		req.RequestID = msg.ID
	}

	eval, err := w.evaluator.Evaluate(ctx, tenantID, req.Transactions)
	if err != nil {
		slog.Error("statement evaluation failed",
			"request_id", req.RequestID,
			"tenant_id", tenantID,
			"error", err,
		)
		w.failed.Add(1)
		w.publish(ctx, tenantID, msg, domain.ScorecardCompleted{
			RequestID: req.RequestID,
			Error:     err.Error(),
		}, false)
		return
	}

	result := domain.ScorecardCompleted{
		RequestID:      req.RequestID,
		EvaluationID:   eval.ID,
		Score:          eval.Scorecard.Score,
		Recommendation: eval.Scorecard.Recommendation,
	}
	declined := result.Recommendation.IsDecline()
	w.processed.Add(1)
	if declined {
		w.declined.Add(1)
	}
	w.publish(ctx, tenantID, msg, result, declined)

	slog.Info("statement processed",
		"request_id", req.RequestID,
		"evaluation_id", eval.ID,
		"tenant_id", tenantID,
		"score", result.Score,
		"recommendation", result.Recommendation,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// publish announces a result on the completed topic, on the declined topic
// when declined, and as a reply when msg came from a request.
func (w *Worker) publish(ctx context.Context, tenantID string, msg *domain.Message, result domain.ScorecardCompleted, declined bool) {
	payload, err := json.Marshal(result)
	if err != nil {
		slog.Error("failed to encode result", "request_id", result.RequestID, "error", err)
		return
	}

	if err := w.bus.Publish(ctx, tenantID, domain.TopicScorecardCompleted, payload); err != nil {
		slog.Error("failed to publish completion",
			"request_id", result.RequestID,
			"error", err,
		)
	}

	if declined {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicScorecardDeclined, payload); err != nil {
			slog.Error("failed to publish decline",
				"request_id", result.RequestID,
				"error", err,
			)
		}
	}

	if msg.Metadata[domain.MetadataReplyTo] != "" {
		if err := w.bus.Reply(ctx, msg, payload); err != nil {
			slog.Error("failed to reply", "request_id", result.RequestID, "error", err)
		}
	}
}

// Stop unsubscribes and waits for in-flight evaluations.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil
	clear(w.tenants)
	w.mu.Unlock()

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Failed            int64    `json:"failed"`
	Declined          int64    `json:"declined"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Failed:            w.failed.Load(),
		Declined:          w.declined.Load(),
	}
}
