// Package service runs the FinGuard assessment pipeline against the stored
// population: assess, persist, cache, alert and publish. The HTTP API and
// the async worker both drive it.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/finguard/internal/alerting"
	"github.com/opensource-finance/finguard/internal/cache"
	"github.com/opensource-finance/finguard/internal/domain"
	"github.com/opensource-finance/finguard/internal/ingest"
	"github.com/opensource-finance/finguard/internal/metrics"
	"github.com/opensource-finance/finguard/internal/network"
	"github.com/opensource-finance/finguard/internal/report"
	"github.com/opensource-finance/finguard/internal/repository"
	"github.com/opensource-finance/finguard/internal/txset"
)

// ErrNoRepository is returned by operations that need stored data when the
// service runs without a repository.
var ErrNoRepository = errors.New("repository not available")

// Options are the optional collaborators of a Service. Nil members disable
// the matching stage.
type Options struct {
	Repo    domain.Repository
	Cache   domain.Cache
	Bus     domain.EventBus
	Metrics *metrics.Metrics
}

// Service wires the detection engine to storage, cache and bus.
type Service struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	metrics *metrics.Metrics

	assembler *report.Assembler
	detector  *network.Detector
	alerter   *alerting.Alerter
	reportTTL time.Duration
}

// New builds the engine components from cfg.
func New(cfg *domain.Config, opts Options) (*Service, error) {
	loc, err := cfg.Detection.TimeLocation()
	if err != nil {
		return nil, err
	}

	alerter, err := alerting.NewAlerter(cfg.AlertPolicy, cfg.Detection)
	if err != nil {
		return nil, err
	}

	ttl := cfg.Cache.ReportTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return &Service{
		repo:      opts.Repo,
		cache:     opts.Cache,
		bus:       opts.Bus,
		metrics:   opts.Metrics,
		assembler: report.NewAssembler(cfg.Detection, loc),
		detector:  network.NewDetector(cfg.Detection, loc),
		alerter:   alerter,
		reportTTL: ttl,
	}, nil
}

// Assembler returns the report assembler.
func (s *Service) Assembler() *report.Assembler { return s.assembler }

// Detector returns the network detector.
func (s *Service) Detector() *network.Detector { return s.detector }

// Alerter returns the alerter.
func (s *Service) Alerter() *alerting.Alerter { return s.alerter }

// Assessment is the outcome of assessing one customer.
type Assessment struct {
	Report     *domain.RiskReport `json:"report"`
	Alert      *domain.Alert      `json:"alert,omitempty"`
	Rejections []ingest.Rejection `json:"rejections,omitempty"`
	Cached     bool               `json:"cached"`
}

// Assess scores a customer against the supplied transactions. Records that
// fail validation are reported back and left out of the score; a malformed
// customer is an error.
func (s *Service) Assess(ctx context.Context, c *domain.Customer, txs []*domain.Transaction, signal *domain.ExternalSignal) (*Assessment, error) {
	if err := ingest.CheckCustomer(c); err != nil {
		s.metrics.Rejected(ingest.KindCustomer)
		return nil, err
	}

	valid := ingest.Validate([]*domain.Customer{c}, txs)
	for _, rej := range valid.Rejections {
		s.metrics.Rejected(rej.Kind)
	}

	out, err := s.assess(ctx, c, valid.Transactions, signal)
	if err != nil {
		return nil, err
	}
	out.Rejections = valid.Rejections
	return out, nil
}

// AssessStored scores a stored customer against their stored history.
// Signal-free results are cached under a fingerprint of the inputs.
func (s *Service) AssessStored(ctx context.Context, customerID string, signal *domain.ExternalSignal) (*Assessment, error) {
	if s.repo == nil {
		return nil, ErrNoRepository
	}

	c, err := s.repo.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	txs, err := s.repo.GetTransactionsByCustomer(ctx, customerID, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	useCache := s.cache != nil && signal == nil
	key := ""
	if useCache {
		key = cache.ReportKey(c, txs, s.now())
		cached, err := s.cache.GetReport(ctx, key)
		if err != nil {
			slog.Warn("report cache read failed", "customer_id", customerID, "error", err)
		}
		s.metrics.CacheLookup(cached != nil)
		if cached != nil {
			return &Assessment{Report: cached, Cached: true}, nil
		}
	}

	out, err := s.assess(ctx, c, txs, signal)
	if err != nil {
		return nil, err
	}

	if useCache {
		if err := s.cache.SetReport(ctx, key, out.Report, s.reportTTL); err != nil {
			slog.Warn("report cache write failed", "customer_id", customerID, "error", err)
		}
	}
	return out, nil
}

func (s *Service) assess(ctx context.Context, c *domain.Customer, txs []*domain.Transaction, signal *domain.ExternalSignal) (*Assessment, error) {
	start := time.Now()

	rpt, err := s.assembler.Generate(ctx, c, txset.SortByTime(txs), signal)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveReport(rpt, time.Since(start))

	if s.repo != nil {
		if err := s.repo.SaveReport(ctx, rpt); err != nil {
			slog.Error("failed to save report", "report_id", rpt.ID, "error", err)
		}
		if err := s.repo.UpdateCustomerRiskScore(ctx, c.ID, rpt.RiskScore); err != nil && !isNotFound(err) {
			slog.Error("failed to update customer risk score", "customer_id", c.ID, "error", err)
		}
	}
	s.publish(ctx, domain.TopicReportGenerated, rpt)

	out := &Assessment{Report: rpt}

	alert, err := s.alerter.FromReport(rpt)
	if err != nil {
		slog.Warn("alert policy failed", "customer_id", c.ID, "error", err)
	}
	if alert != nil {
		s.raise(ctx, alert)
		out.Alert = alert
	}

	slog.Info("customer assessed",
		"customer_id", c.ID,
		"report_id", rpt.ID,
		"score", rpt.RiskScore,
		"level", rpt.RiskLevel,
		"transactions", rpt.TotalTransactions,
		"alert", alert != nil,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// NetworkResult is the outcome of a network detection run.
type NetworkResult struct {
	Networks   []*domain.SmurfNetwork `json:"networks"`
	Alerts     []*domain.Alert        `json:"alerts"`
	Rejections []ingest.Rejection     `json:"rejections,omitempty"`
}

// DetectNetworks runs network detection over the supplied population and
// raises one alert per network.
func (s *Service) DetectNetworks(ctx context.Context, customers []*domain.Customer, txs []*domain.Transaction) (*NetworkResult, error) {
	valid := ingest.Validate(customers, txs)
	for _, rej := range valid.Rejections {
		s.metrics.Rejected(rej.Kind)
	}

	out, err := s.detect(ctx, valid.Customers, valid.Transactions)
	if err != nil {
		return nil, err
	}
	out.Rejections = valid.Rejections
	return out, nil
}

// DetectStoredNetworks runs network detection over every stored customer
// and transaction.
func (s *Service) DetectStoredNetworks(ctx context.Context) (*NetworkResult, error) {
	if s.repo == nil {
		return nil, ErrNoRepository
	}

	customers, err := s.repo.ListCustomers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load customers: %w", err)
	}
	txs, err := s.repo.ListTransactions(ctx, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	return s.detect(ctx, customers, txs)
}

func (s *Service) detect(ctx context.Context, customers []*domain.Customer, txs []*domain.Transaction) (*NetworkResult, error) {
	networks, err := s.detector.Detect(ctx, customers, txs)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveNetworks(len(networks))

	out := &NetworkResult{Networks: networks, Alerts: []*domain.Alert{}}
	for _, n := range networks {
		if s.repo != nil {
			if err := s.repo.SaveNetwork(ctx, n); err != nil {
				slog.Error("failed to save network", "network_id", n.ID, "error", err)
			}
		}
		s.publish(ctx, domain.TopicNetworkDetected, n)

		alert := s.alerter.FromNetwork(n)
		s.raise(ctx, alert)
		out.Alerts = append(out.Alerts, alert)
	}
	return out, nil
}

// IngestResult reports which records were stored.
type IngestResult struct {
	Accepted   int                `json:"accepted"`
	Rejections []ingest.Rejection `json:"rejections"`
}

// IngestCustomers validates and stores customer profiles.
func (s *Service) IngestCustomers(ctx context.Context, customers []*domain.Customer) (*IngestResult, error) {
	if s.repo == nil {
		return nil, ErrNoRepository
	}

	valid := ingest.Validate(customers, nil)
	out := &IngestResult{Rejections: valid.Rejections}

	for _, c := range valid.Customers {
		if err := s.repo.SaveCustomer(ctx, c); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			out.Rejections = append(out.Rejections, storeRejection(ingest.KindCustomer, c.ID, err))
			continue
		}
		out.Accepted++
	}
	s.countRejections(out.Rejections)
	return out, nil
}

// IngestTransactions validates transactions against the stored customers
// and stores them.
func (s *Service) IngestTransactions(ctx context.Context, txs []*domain.Transaction) (*IngestResult, error) {
	if s.repo == nil {
		return nil, ErrNoRepository
	}

	var known []*domain.Customer
	seen := make(map[string]bool)
	for _, tx := range txs {
		if tx == nil || seen[tx.CustomerID] {
			continue
		}
		seen[tx.CustomerID] = true
		c, err := s.repo.GetCustomer(ctx, tx.CustomerID)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("failed to load customer %s: %w", tx.CustomerID, err)
		}
		known = append(known, c)
	}

	valid := ingest.Validate(known, txs)
	out := &IngestResult{Rejections: valid.Rejections}

	for _, tx := range valid.Transactions {
		if err := s.repo.SaveTransaction(ctx, tx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			out.Rejections = append(out.Rejections, storeRejection(ingest.KindTransaction, tx.ID, err))
			continue
		}
		out.Accepted++
	}
	s.countRejections(out.Rejections)
	return out, nil
}

// UpdateAlert applies an analyst's status change to a stored alert.
func (s *Service) UpdateAlert(ctx context.Context, alertID string, u alerting.Update) (*domain.Alert, error) {
	if s.repo == nil {
		return nil, ErrNoRepository
	}

	alert, err := s.repo.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if err := alerting.Transition(alert, u, time.Now()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to update alert: %w", err)
	}

	slog.Info("alert updated", "alert_id", alert.ID, "status", alert.Status, "assigned_to", alert.AssignedTo)
	return alert, nil
}

func (s *Service) raise(ctx context.Context, alert *domain.Alert) {
	if s.repo != nil {
		if err := s.repo.SaveAlert(ctx, alert); err != nil {
			slog.Error("failed to save alert", "alert_id", alert.ID, "error", err)
		}
	}
	s.metrics.AlertCreated(alert.AlertType)
	s.publish(ctx, domain.TopicAlert, alert)
}

func (s *Service) publish(ctx context.Context, topic string, v any) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode event", "topic", topic, "error", err)
		return
	}
	if err := s.bus.Publish(ctx, topic, payload); err != nil {
		slog.Error("failed to publish event", "topic", topic, "error", err)
	}
}

func (s *Service) countRejections(rejs []ingest.Rejection) {
	for _, rej := range rejs {
		s.metrics.Rejected(rej.Kind)
	}
}

func storeRejection(kind, id string, err error) ingest.Rejection {
	slog.Warn("failed to store record", "kind", kind, "id", id, "error", err)
	return ingest.Rejection{Kind: kind, ID: id, Reason: err.Error(), Err: err}
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}

func (s *Service) now() time.Time {
	if s.assembler.Now != nil {
		return s.assembler.Now()
	}
	return time.Now()
}
