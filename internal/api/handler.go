package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/finguard/internal/alerting"
	"github.com/opensource-finance/finguard/internal/domain"
	"github.com/opensource-finance/finguard/internal/ingest"
	"github.com/opensource-finance/finguard/internal/repository"
	"github.com/opensource-finance/finguard/internal/service"
	"github.com/opensource-finance/finguard/internal/worker"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 32 << 20

// Handler holds dependencies for API handlers.
type Handler struct {
	svc     *service.Service
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	version string
}

// NewHandler creates a new API handler.
func NewHandler(svc *service.Service, deps Deps, version string) *Handler {
	return &Handler{
		svc:     svc,
		repo:    deps.Repo,
		cache:   deps.Cache,
		bus:     deps.Bus,
		version: version,
	}
}

// AssessRequest is the request body for POST /assess.
type AssessRequest struct {
	Customer     *domain.Customer       `json:"customer"`
	Transactions []*domain.Transaction  `json:"transactions"`
	Signal       *domain.ExternalSignal `json:"signal,omitempty"`
}

// AssessResponse is the response for assessment endpoints.
type AssessResponse struct {
	*service.Assessment
	Metadata struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// Assess handles POST /assess: score an inline customer and history.
func (h *Handler) Assess(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req AssessRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Customer == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "customer is required",
		})
		return
	}

	out, err := h.svc.Assess(r.Context(), req.Customer, req.Transactions, req.Signal)
	if err != nil {
		writeError(w, "assessment failed", err)
		return
	}

	h.respondAssessment(w, r, out, start)
}

// CustomerReport handles GET /customers/{id}/report: score a stored
// customer, served from cache when the stored data is unchanged.
func (h *Handler) CustomerReport(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	customerID := chi.URLParam(r, "id")

	out, err := h.svc.AssessStored(r.Context(), customerID, nil)
	if err != nil {
		writeError(w, "assessment failed", err)
		return
	}

	h.respondAssessment(w, r, out, start)
}

func (h *Handler) respondAssessment(w http.ResponseWriter, r *http.Request, out *service.Assessment, start time.Time) {
	resp := AssessResponse{Assessment: out}
	resp.Metadata.TraceID = GetTraceID(r.Context())
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version
	writeJSON(w, http.StatusOK, resp)
}

// RequestAssessment handles POST /customers/{id}/assess by queueing the
// assessment for the worker. The body may carry a model signal.
func (h *Handler) RequestAssessment(w http.ResponseWriter, r *http.Request) {
	req := worker.AssessmentRequest{CustomerID: chi.URLParam(r, "id")}

	var signal domain.ExternalSignal
	if ok, empty := decodeOptional(w, r, &signal); !ok {
		return
	} else if !empty {
		req.Signal = &signal
	}

	payload, _ := json.Marshal(req)
	h.enqueue(w, r, domain.TopicAssessmentRequested, payload)
}

// RequestNetworkScan handles POST /networks/scan by queueing a network
// scan over the stored population.
func (h *Handler) RequestNetworkScan(w http.ResponseWriter, r *http.Request) {
	h.enqueue(w, r, domain.TopicNetworkScanRequested, []byte("{}"))
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request, topic string, payload []byte) {
	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	if err := h.bus.Publish(r.Context(), topic, payload); err != nil {
		slog.Error("failed to enqueue request", "topic", topic, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "failed to enqueue request",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "queued",
		"topic":   topic,
		"traceId": GetTraceID(r.Context()),
	})
}

// GetReport retrieves a stored report by ID.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	report, err := h.repo.GetReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "failed to get report", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// CustomersRequest is the request body for POST /customers.
type CustomersRequest struct {
	Customers []*domain.Customer `json:"customers"`
}

// CreateCustomers stores customer profiles.
func (h *Handler) CreateCustomers(w http.ResponseWriter, r *http.Request) {
	var req CustomersRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.svc.IngestCustomers(r.Context(), req.Customers)
	if err != nil {
		writeError(w, "failed to store customers", err)
		return
	}
	writeIngest(w, res)
}

// GetCustomer retrieves a stored customer by ID.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	c, err := h.repo.GetCustomer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "failed to get customer", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// TransactionsRequest is the request body for POST /transactions.
type TransactionsRequest struct {
	Transactions []*domain.Transaction `json:"transactions"`
}

// CreateTransactions stores transactions of known customers.
func (h *Handler) CreateTransactions(w http.ResponseWriter, r *http.Request) {
	var req TransactionsRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.svc.IngestTransactions(r.Context(), req.Transactions)
	if err != nil {
		writeError(w, "failed to store transactions", err)
		return
	}
	writeIngest(w, res)
}

// GetTransaction retrieves a stored transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	tx, err := h.repo.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "failed to get transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// NetworksRequest is the optional body of POST /networks/detect.
type NetworksRequest struct {
	Customers    []*domain.Customer    `json:"customers"`
	Transactions []*domain.Transaction `json:"transactions"`
}

// DetectNetworks runs network detection over the posted population, or over
// the stored population when the body is empty.
func (h *Handler) DetectNetworks(w http.ResponseWriter, r *http.Request) {
	var req NetworksRequest
	ok, empty := decodeOptional(w, r, &req)
	if !ok {
		return
	}

	var res *service.NetworkResult
	var err error
	if empty {
		res, err = h.svc.DetectStoredNetworks(r.Context())
	} else {
		res, err = h.svc.DetectNetworks(r.Context(), req.Customers, req.Transactions)
	}
	if err != nil {
		writeError(w, "network detection failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetNetwork retrieves a stored network by ID.
func (h *Handler) GetNetwork(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	n, err := h.repo.GetNetwork(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "failed to get network", err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// ListAlerts handles GET /alerts?status=OPEN.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}

	status := domain.AlertStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "unknown alert status: " + string(status),
		})
		return
	}

	alerts, err := h.repo.ListAlerts(r.Context(), status)
	if err != nil {
		writeError(w, "failed to list alerts", err)
		return
	}
	if alerts == nil {
		alerts = []*domain.Alert{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// GetAlert retrieves a stored alert by ID.
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	alert, err := h.repo.GetAlert(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "failed to get alert", err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// UpdateAlert handles PATCH /alerts/{id}: move an alert along its
// lifecycle.
func (h *Handler) UpdateAlert(w http.ResponseWriter, r *http.Request) {
	var u alerting.Update
	if !decode(w, r, &u) {
		return
	}

	alert, err := h.svc.UpdateAlert(r.Context(), chi.URLParam(r, "id"), u)
	if err != nil {
		writeError(w, "failed to update alert", err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"ready": "false",
				"error": "repository unavailable",
			})
			return
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"ready": "false",
				"error": "event bus unavailable",
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func (h *Handler) requireRepo(w http.ResponseWriter) bool {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return false
	}
	return true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return false
	}
	return true
}

// decodeOptional decodes a body that may be absent. empty reports whether
// it was.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) (ok, empty bool) {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return true, true
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return false, false
	}
	return true, false
}

func writeIngest(w http.ResponseWriter, res *service.IngestResult) {
	if res.Rejections == nil {
		res.Rejections = []ingest.Rejection{}
	}
	status := http.StatusCreated
	if res.Accepted == 0 && len(res.Rejections) > 0 {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

// writeError maps service errors to HTTP statuses.
func writeError(w http.ResponseWriter, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ingest.ErrMalformed), errors.Is(err, repository.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, alerting.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, service.ErrNoRepository):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		slog.Error(msg, "error", err)
	}

	writeJSON(w, status, map[string]string{
		"error": msg + ": " + err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
