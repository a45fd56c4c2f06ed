// Package worker processes assessment requests asynchronously from the
// event bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/finguard/internal/domain"
	"github.com/opensource-finance/finguard/internal/service"
)

// Assessor is the part of the service the worker drives.
type Assessor interface {
	AssessStored(ctx context.Context, customerID string, signal *domain.ExternalSignal) (*service.Assessment, error)
	DetectStoredNetworks(ctx context.Context) (*service.NetworkResult, error)
}

// Worker consumes assessment and network scan requests.
type Worker struct {
	bus      domain.EventBus
	assessor Assessor

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// AssessmentRequest is the payload of TopicAssessmentRequested.
type AssessmentRequest struct {
	CustomerID string                 `json:"customerId"`
	Signal     *domain.ExternalSignal `json:"signal,omitempty"`
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, assessor Assessor) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		assessor: assessor,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to the request topics.
func (w *Worker) Start() error {
	handlers := map[string]domain.MessageHandler{
		domain.TopicAssessmentRequested:  w.handleAssessment,
		domain.TopicNetworkScanRequested: w.handleNetworkScan,
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, topic := range []string{domain.TopicAssessmentRequested, domain.TopicNetworkScanRequested} {
		sub, err := w.bus.Subscribe(w.ctx, topic, handlers[topic])
		if err != nil {
			for _, s := range w.subscriptions {
				_ = s.Unsubscribe()
			}
			w.subscriptions = nil
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	slog.Info("worker started", "topics", len(w.subscriptions))
	return nil
}

func (w *Worker) handleAssessment(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var req AssessmentRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse assessment request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if req.CustomerID == "" {
		return errors.New("assessment request without customer id")
	}

	slog.Debug("processing assessment request",
		"customer_id", req.CustomerID,
		"message_id", msg.ID,
	)

	out, err := w.assessor.AssessStored(ctx, req.CustomerID, req.Signal)
	if err != nil {
		slog.Error("assessment failed",
			"customer_id", req.CustomerID,
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	slog.Info("assessment request processed",
		"customer_id", req.CustomerID,
		"report_id", out.Report.ID,
		"score", out.Report.RiskScore,
		"cached", out.Cached,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (w *Worker) handleNetworkScan(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	res, err := w.assessor.DetectStoredNetworks(ctx)
	if err != nil {
		slog.Error("network scan failed",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	slog.Info("network scan processed",
		"networks", len(res.Networks),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

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
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
