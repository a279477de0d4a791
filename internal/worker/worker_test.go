package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/underwriter/internal/bus"
	"github.com/opensource-finance/underwriter/internal/domain"
	"github.com/opensource-finance/underwriter/internal/underwrite"
)

// stubEvaluator returns a fixed recommendation, or err when set.
type stubEvaluator struct {
	rec   domain.Recommendation
	score int
	err   error
	calls atomic.Int32
}

func (s *stubEvaluator) Evaluate(ctx context.Context, tenantID string, txs []domain.Transaction) (*domain.Evaluation, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Evaluation{
		ID:       "eval-" + tenantID,
		TenantID: tenantID,
		Scorecard: &domain.OverallScorecard{
			Score:          s.score,
			Rating:         domain.RatingFor(s.score),
			Recommendation: s.rec,
		},
	}, nil
}

// collect subscribes to topic and forwards decoded results.
func collect(t *testing.T, b domain.EventBus, tenantID, topic string) <-chan domain.ScorecardCompleted {
	t.Helper()
	out := make(chan domain.ScorecardCompleted, 10)
	_, err := b.Subscribe(context.Background(), tenantID, topic, func(ctx context.Context, msg *domain.Message) error {
		var r domain.ScorecardCompleted
		if err := json.Unmarshal(msg.Payload, &r); err != nil {
			return err
		}
		out <- r
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe %s failed: %v", topic, err)
	}
	return out
}

func submit(t *testing.T, b domain.EventBus, tenantID string, req domain.StatementSubmitted) {
	t.Helper()
	payload, _ := json.Marshal(req)
	if err := b.Publish(context.Background(), tenantID, domain.TopicStatementSubmitted, payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
}

func receive(t *testing.T, ch <-chan domain.ScorecardCompleted) domain.ScorecardCompleted {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for result")
		return domain.ScorecardCompleted{}
	}
}

func TestWorkerStartAndStop(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	w := NewWorker(eventBus, &stubEvaluator{rec: domain.RecommendApprove, score: 90})
	if err := w.Start(Config{TenantIDs: []string{"tenant-001", "tenant-002"}, WorkerCount: 2}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	stats := w.GetStats()
	if stats.SubscriptionCount != 2 {
		t.Errorf("expected 2 subscriptions, got %d", stats.SubscriptionCount)
	}
	for _, topic := range stats.Topics {
		if topic != domain.TopicStatementSubmitted {
			t.Errorf("unexpected topic %s", topic)
		}
	}

	if err := w.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if got := w.GetStats().SubscriptionCount; got != 0 {
		t.Errorf("expected 0 subscriptions after stop, got %d", got)
	}
}

func TestWorkerServesAllTenantsByDefault(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	w := NewWorker(eventBus, &stubEvaluator{rec: domain.RecommendApprove, score: 81})
	if w.Serves("acme") {
		t.Error("worker must not serve before Start")
	}
	if err := w.Start(Config{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if !w.Serves("acme") || !w.Serves("globex") {
		t.Error("worker without tenants should serve every tenant")
	}

	completed := collect(t, eventBus, "acme", domain.TopicScorecardCompleted)
	submit(t, eventBus, "acme", domain.StatementSubmitted{RequestID: "req-acme"})

	r := receive(t, completed)
	if r.RequestID != "req-acme" || r.EvaluationID != "eval-acme" {
		t.Errorf("unexpected result %+v", r)
	}
	if got := w.GetStats().Processed; got != 1 {
		t.Errorf("expected 1 processed, got %d", got)
	}
}

func TestWorkerServesListedTenants(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	w := NewWorker(eventBus, &stubEvaluator{})
	if err := w.Start(Config{TenantIDs: []string{"acme"}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !w.Serves("acme") {
		t.Error("expected acme to be served")
	}
	if w.Serves("globex") {
		t.Error("globex is not configured")
	}

	w.Stop()
	if w.Serves("acme") {
		t.Error("stopped worker must not serve")
	}
}

func TestWorkerStartFailsWithoutSubscriptions(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	eventBus.Close()

	w := NewWorker(eventBus, &stubEvaluator{})
	if err := w.Start(Config{TenantIDs: []string{"tenant-001"}}); err == nil {
		t.Error("expected error when no subscription starts")
	}
}

func TestWorkerPublishesCompletion(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	eval := &stubEvaluator{rec: domain.RecommendApprove, score: 88}
	w := NewWorker(eventBus, eval)
	if err := w.Start(Config{TenantIDs: []string{"tenant-test"}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	completed := collect(t, eventBus, "tenant-test", domain.TopicScorecardCompleted)
	declined := collect(t, eventBus, "tenant-test", domain.TopicScorecardDeclined)

	submit(t, eventBus, "tenant-test", domain.StatementSubmitted{RequestID: "req-001"})

	r := receive(t, completed)
	if r.RequestID != "req-001" {
		t.Errorf("expected request req-001, got %s", r.RequestID)
	}
	if r.EvaluationID != "eval-tenant-test" {
		t.Errorf("unexpected evaluation id %s", r.EvaluationID)
	}
	if r.Score != 88 || r.Recommendation != domain.RecommendApprove {
		t.Errorf("unexpected result %+v", r)
	}

	select {
	case d := <-declined:
		t.Errorf("approved statement must not be declined: %+v", d)
	case <-time.After(50 * time.Millisecond):
	}

	if got := w.GetStats().Processed; got != 1 {
		t.Errorf("expected 1 processed, got %d", got)
	}
}

func TestWorkerPublishesDecline(t *testing.T) {
	for _, rec := range []domain.Recommendation{domain.RecommendDecline, domain.RecommendDeclineSoft} {
		t.Run(string(rec), func(t *testing.T) {
			eventBus := bus.NewChannelBus(100)
			defer eventBus.Close()

			w := NewWorker(eventBus, &stubEvaluator{rec: rec, score: 30})
			if err := w.Start(Config{TenantIDs: []string{"tenant-test"}}); err != nil {
				t.Fatalf("Start failed: %v", err)
			}
			defer w.Stop()

			completed := collect(t, eventBus, "tenant-test", domain.TopicScorecardCompleted)
			declined := collect(t, eventBus, "tenant-test", domain.TopicScorecardDeclined)

			submit(t, eventBus, "tenant-test", domain.StatementSubmitted{RequestID: "req-002"})

			if r := receive(t, completed); r.Recommendation != rec {
				t.Errorf("expected %s, got %s", rec, r.Recommendation)
			}
			if r := receive(t, declined); r.RequestID != "req-002" {
				t.Errorf("expected request req-002, got %s", r.RequestID)
			}
			if got := w.GetStats().Declined; got != 1 {
				t.Errorf("expected 1 declined, got %d", got)
			}
		})
	}
}

func TestWorkerReportsFailures(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	eval := &stubEvaluator{err: errors.New("no usable transactions")}
	w := NewWorker(eventBus, eval)
	if err := w.Start(Config{TenantIDs: []string{"tenant-test"}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	completed := collect(t, eventBus, "tenant-test", domain.TopicScorecardCompleted)

	t.Run("EvaluationError", func(t *testing.T) {
		submit(t, eventBus, "tenant-test", domain.StatementSubmitted{RequestID: "req-003"})
		r := receive(t, completed)
		if r.RequestID != "req-003" || r.Error != "no usable transactions" {
			t.Errorf("unexpected result %+v", r)
		}
	})

	t.Run("MalformedPayload", func(t *testing.T) {
		if err := eventBus.Publish(context.Background(), "tenant-test", domain.TopicStatementSubmitted, []byte("{")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
		r := receive(t, completed)
		if r.Error == "" {
			t.Error("expected error for malformed payload")
		}
		if r.RequestID == "" {
			t.Error("expected message id as request id")
		}
	})

	if got := w.GetStats().Failed; got != 2 {
		t.Errorf("expected 2 failures, got %d", got)
	}
	if got := eval.calls.Load(); got != 1 {
		t.Errorf("malformed payload must not reach the evaluator, got %d calls", got)
	}
}

func TestWorkerRepliesToRequests(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	w := NewWorker(eventBus, &stubEvaluator{rec: domain.RecommendManualReview, score: 55})
	if err := w.Start(Config{TenantIDs: []string{"tenant-test"}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	payload, _ := json.Marshal(domain.StatementSubmitted{RequestID: "req-004"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	reply, err := eventBus.Request(ctx, "tenant-test", domain.TopicStatementSubmitted, payload)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	var r domain.ScorecardCompleted
	if err := json.Unmarshal(reply, &r); err != nil {
		t.Fatalf("failed to parse reply: %v", err)
	}
	if r.RequestID != "req-004" || r.Recommendation != domain.RecommendManualReview {
		t.Errorf("unexpected reply %+v", r)
	}
}

func TestWorkerWithService(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	svc, err := underwrite.NewService(underwrite.Options{})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	w := NewWorker(eventBus, svc)
	if err := w.Start(Config{TenantIDs: []string{"tenant-svc"}, WorkerCount: 2}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	completed := collect(t, eventBus, "tenant-svc", domain.TopicScorecardCompleted)

	var txs []domain.Transaction
	for d := 1; d <= 28; d++ {
		day := time.Date(2025, time.March, d, 0, 0, 0, 0, time.UTC)
		txs = append(txs, domain.Transaction{Date: day, Description: "SQUARE INC DEPOSIT", Amount: 1000, Direction: domain.Credit})
		if d%7 == 0 {
			txs = append(txs, domain.Transaction{Date: day, Description: "GUSTO PAYROLL", Amount: 3000, Direction: domain.Debit})
		}
	}
	submit(t, eventBus, "tenant-svc", domain.StatementSubmitted{RequestID: "req-svc", Transactions: txs})

	r := receive(t, completed)
	if r.Error != "" {
		t.Fatalf("unexpected error: %s", r.Error)
	}
	if r.EvaluationID == "" {
		t.Error("expected an evaluation id")
	}
	if r.Score < 0 || r.Score > 100 {
		t.Errorf("score %d out of range", r.Score)
	}
	if r.Recommendation == "" {
		t.Error("expected a recommendation")
	}
}
