// Package network finds smurfing-network candidates across a customer
// population.
package network

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/finguard/internal/domain"
	"github.com/opensource-finance/finguard/internal/graph"
	"github.com/opensource-finance/finguard/internal/patterns"
	"github.com/opensource-finance/finguard/internal/txset"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("finguard-network")

// networkNamespace derives stable network IDs from membership.
var networkNamespace = uuid.MustParse("6f1c1c36-8a0e-4d0a-9a57-3f1f4bde2a10")

// minGraphNodes is the smallest population worth searching.
const minGraphNodes = 3

// Detector classifies connected components of the shared-beneficiary graph.
type Detector struct {
	cfg       domain.DetectionConfig
	detectors *patterns.Detectors

	// Concurrency bounds parallel component classification.
	Concurrency int

	// Now stamps DetectedAt.
	Now func() time.Time
}

// NewDetector creates a network detector.
func NewDetector(cfg domain.DetectionConfig, loc *time.Location) *Detector {
	return &Detector{
		cfg:         cfg,
		detectors:   patterns.New(cfg, loc),
		Concurrency: runtime.GOMAXPROCS(0),
		Now:         time.Now,
	}
}

// Detect returns the smurf network candidates in txs, ordered by first
// member. When customers is non-empty, transactions of customers outside
// that set are ignored.
func (d *Detector) Detect(ctx context.Context, customers []*domain.Customer, txs []*domain.Transaction) ([]*domain.SmurfNetwork, error) {
	ctx, span := tracer.Start(ctx, "network.Detect")
	defer span.End()

	if len(customers) > 0 {
		known := make(map[string]struct{}, len(customers))
		for _, c := range customers {
			known[c.ID] = struct{}{}
		}
		kept := txset.ForCustomers(txs, known)
		if dropped := len(txs) - len(kept); dropped > 0 {
			slog.Warn("ignoring transactions of unknown customers", "dropped", dropped)
		}
		txs = kept
	}

	g, err := graph.Build(ctx, txs)
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction graph: %w", err)
	}
	span.SetAttributes(
		attribute.Int("graph.nodes", g.NodeCount()),
		attribute.Int("graph.edges", g.EdgeCount()),
	)
	if g.NodeCount() < minGraphNodes {
		return nil, nil
	}

	components, err := g.Components(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute components: %w", err)
	}

	var candidates [][]string
	for _, c := range components {
		if len(c) >= d.cfg.MinClusterSize {
			candidates = append(candidates, c)
		}
	}

	byCustomer := txset.GroupByCustomer(txs)
	results := make([]*domain.SmurfNetwork, len(candidates))

	eg, egCtx := errgroup.WithContext(ctx)
	if d.Concurrency > 0 {
		eg.SetLimit(d.Concurrency)
	}
	for i, members := range candidates {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			results[i] = d.classify(members, byCustomer)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	networks := make([]*domain.SmurfNetwork, 0, len(results))
	for _, n := range results {
		if n != nil {
			networks = append(networks, n)
		}
	}
	span.SetAttributes(
		attribute.Int("network.components", len(candidates)),
		attribute.Int("network.detected", len(networks)),
	)
	return networks, nil
}

// classify returns a network for the component, or nil when it is not a
// candidate.
func (d *Detector) classify(members []string, byCustomer map[string][]*domain.Transaction) *domain.SmurfNetwork {
	var componentTxs []*domain.Transaction
	for _, id := range members {
		componentTxs = append(componentTxs, byCustomer[id]...)
	}

	common := CommonBeneficiaries(members, componentTxs)
	hasStructuring := d.detectors.NetworkStructuring(componentTxs)
	if len(common) < d.cfg.MinCommonBeneficiaries && !hasStructuring {
		return nil
	}

	return &domain.SmurfNetwork{
		ID:                  NetworkID(members),
		Accounts:            members,
		CommonBeneficiaries: common,
		TotalVolume:         txset.TotalVolume(componentTxs),
		TransactionCount:    len(componentTxs),
		RiskScore:           RiskScore(componentTxs, d.cfg, d.detectors.Location()),
		HasStructuring:      hasStructuring,
		DetectedAt:          d.now(),
	}
}

func (d *Detector) now() time.Time {
	if d.Now == nil {
		return time.Now().UTC()
	}
	return d.Now().UTC()
}

// NetworkID derives a stable identifier from the sorted member list.
func NetworkID(members []string) string {
	sorted := append([]string(nil), members...)
	sort.Strings(sorted)
	return uuid.NewSHA1(networkNamespace, []byte(strings.Join(sorted, "\x00"))).String()
}

// CommonBeneficiaries intersects the real beneficiaries paid by each member.
// Members that paid no real beneficiary are left out of the intersection;
// fewer than two remaining members yields no common beneficiaries.
func CommonBeneficiaries(members []string, txs []*domain.Transaction) []string {
	inComponent := make(map[string]struct{}, len(members))
	for _, id := range members {
		inComponent[id] = struct{}{}
	}

	paid := make(map[string]map[string]struct{})
	for _, tx := range txs {
		if _, ok := inComponent[tx.CustomerID]; !ok || !tx.HasRealBeneficiary() {
			continue
		}
		set, ok := paid[tx.CustomerID]
		if !ok {
			set = make(map[string]struct{})
			paid[tx.CustomerID] = set
		}
		set[tx.Beneficiary] = struct{}{}
	}
	if len(paid) < 2 {
		return []string{}
	}

	var common map[string]struct{}
	for _, set := range paid {
		if common == nil {
			common = make(map[string]struct{}, len(set))
			for b := range set {
				common[b] = struct{}{}
			}
			continue
		}
		for b := range common {
			if _, ok := set[b]; !ok {
				delete(common, b)
			}
		}
	}

	out := make([]string, 0, len(common))
	for b := range common {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}
