/*
handlers.go - HTTP API handlers for the stock sync engine

PURPOSE:
  Exposes the sync engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the inventory.Engine.

ENDPOINTS:
  Listings:
    GET    /api/listings                      List all open listings
    GET    /api/listings/{sku}                Snapshot of one listing
    POST   /api/listings/{sku}/adjustments    Record a local count change
    GET    /api/listings/{sku}/adjustments    Journal (?book=local|shadow|outbox)

  Operations:
    POST   /api/listings/{sku}/sync           Push the outstanding delta
    POST   /api/listings/{sku}/pull           Ingest remote orders
    POST   /api/listings/{sku}/reconcile      Run one monitor check
    GET    /api/listings/{sku}/runs           Reconciliation history (?limit=)

  Remote simulation:
    POST   /api/remote/{sku}/orders           Place an order on the remote

  Scenarios (scenarios.go):
    GET    /api/scenarios                     List demo scenarios
    POST   /api/scenarios/load                Play one on a fresh SKU

  Health:
    GET    /healthz                           Liveness and store ping
    GET    /metrics                           Prometheus metrics

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Listing not found
  - 409: Idempotency key reused
  - 502: Remote platform did not confirm (safe to retry)
  - 500: Internal errors

  A reconciliation check that ends in manual review is an outcome, not a
  failure: it returns 200 with state "manual_review" and the divergence in
  the error field.

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/warp/stock-sync/inventory"
	"go.uber.org/zap"
)

const defaultRunsLimit = 50

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *inventory.Engine
	Logger *zap.Logger

	// Health is checked by /healthz when set.
	Health Pinger
}

// NewHandler creates a new handler for engine.
func NewHandler(engine *inventory.Engine, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{Engine: engine, Logger: logger}
	if p, ok := engine.Store.(Pinger); ok {
		h.Health = p
	}
	return h
}

// =============================================================================
// LISTING HANDLERS
// =============================================================================

// ListListings returns a snapshot of every open listing.
// GET /api/listings
func (h *Handler) ListListings(w http.ResponseWriter, r *http.Request) {
	skus := h.Engine.SKUs()
	dtos := make([]ListingDTO, 0, len(skus))
	for _, sku := range skus {
		l, err := h.Engine.Lookup(sku)
		if err != nil {
			continue
		}
		dtos = append(dtos, toListingDTO(l.Snapshot()))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetListing returns one listing's snapshot.
// GET /api/listings/{sku}
func (h *Handler) GetListing(w http.ResponseWriter, r *http.Request) {
	l, err := h.Engine.Lookup(skuParam(r))
	if err != nil {
		writeError(w, errorStatus(err), "Listing not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toListingDTO(l.Snapshot()))
}

// RecordAdjustment appends a local count change. Opens the listing if the
// SKU is new.
// POST /api/listings/{sku}/adjustments
func (h *Handler) RecordAdjustment(w http.ResponseWriter, r *http.Request) {
	var req RecordAdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	adj, err := h.Engine.Record(r.Context(), skuParam(r), inventory.CountChange{
		Quantity:       req.Quantity,
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeError(w, errorStatus(err), "Failed to record adjustment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAdjustmentDTO(adj))
}

// ListAdjustments returns one book of the journal, oldest first.
// GET /api/listings/{sku}/adjustments?book=local
func (h *Handler) ListAdjustments(w http.ResponseWriter, r *http.Request) {
	book := inventory.Book(r.URL.Query().Get("book"))
	if book == "" {
		book = inventory.BookLocal
	}
	if !book.Valid() {
		writeError(w, http.StatusBadRequest, "book must be local, shadow or outbox", nil)
		return
	}

	l, err := h.Engine.Lookup(skuParam(r))
	if err != nil {
		writeError(w, errorStatus(err), "Listing not found", err)
		return
	}

	entries := l.Entries(book)
	dtos := make([]AdjustmentDTO, len(entries))
	for i, a := range entries {
		dtos[i] = toAdjustmentDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// OPERATION HANDLERS
// =============================================================================

// Sync pushes the outstanding delta to the remote.
// POST /api/listings/{sku}/sync
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	sku := skuParam(r)
	if _, err := h.Engine.Lookup(sku); err != nil {
		writeError(w, errorStatus(err), "Listing not found", err)
		return
	}

	applied, err := h.Engine.Sync(r.Context(), sku)
	if err != nil {
		writeError(w, errorStatus(err), "Sync failed", err)
		return
	}
	l, _ := h.Engine.Lookup(sku)
	writeJSON(w, http.StatusOK, SyncResponse{
		SKU:     string(sku),
		Applied: applied,
		Listing: toListingDTO(l.Snapshot()),
	})
}

// PullOrders ingests the remote's pending orders.
// POST /api/listings/{sku}/pull
func (h *Handler) PullOrders(w http.ResponseWriter, r *http.Request) {
	sku := skuParam(r)
	if _, err := h.Engine.Lookup(sku); err != nil {
		writeError(w, errorStatus(err), "Listing not found", err)
		return
	}

	res, err := h.Engine.PullOrders(r.Context(), sku)
	if err != nil {
		writeError(w, errorStatus(err), "Order pull failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toIngestResultDTO(sku, res))
}

// Reconcile runs one monitor check.
// POST /api/listings/{sku}/reconcile
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	sku := skuParam(r)
	if _, err := h.Engine.Lookup(sku); err != nil {
		writeError(w, errorStatus(err), "Listing not found", err)
		return
	}

	rep, err := h.Engine.Reconcile(r.Context(), sku)
	switch {
	case err == nil, rep.State == inventory.StateManualReview:
		writeJSON(w, http.StatusOK, toReconciliationDTO(rep, err))
	case rep.State == inventory.StateCorrectionPending:
		writeJSON(w, http.StatusBadGateway, toReconciliationDTO(rep, err))
	default:
		writeError(w, errorStatus(err), "Reconciliation failed", err)
	}
}

// ListReconciliationRuns returns the newest checks first.
// GET /api/listings/{sku}/runs?limit=50
func (h *Handler) ListReconciliationRuns(w http.ResponseWriter, r *http.Request) {
	runs := h.Engine.Monitor.Runs
	if runs == nil {
		writeJSON(w, http.StatusOK, []ReconciliationRunDTO{})
		return
	}

	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer", err)
			return
		}
		limit = n
	}

	records, err := runs.ReconciliationRuns(r.Context(), skuParam(r), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list reconciliation runs", err)
		return
	}
	dtos := make([]ReconciliationRunDTO, len(records))
	for i, run := range records {
		dtos[i] = toReconciliationRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// REMOTE SIMULATION
// =============================================================================

// PlaceOrder simulates a sale accepted by the remote platform.
// POST /api/remote/{sku}/orders
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	placer, ok := h.Engine.Remote.(inventory.OrderPlacer)
	if !ok {
		writeError(w, http.StatusNotImplemented, "Remote platform does not accept simulated orders", nil)
		return
	}

	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	sku := skuParam(r)
	if sku == "" {
		writeError(w, http.StatusBadRequest, "sku is required", inventory.ErrInvalidSKU)
		return
	}
	id, err := placer.PlaceOrder(r.Context(), sku, req.Quantity)
	if err != nil {
		writeError(w, errorStatus(err), "Failed to place order", err)
		return
	}
	writeJSON(w, http.StatusCreated, PlaceOrderResponse{
		OrderID:  string(id),
		SKU:      string(sku),
		Quantity: req.Quantity,
	})
}

// =============================================================================
// HEALTH
// =============================================================================

// Healthz reports liveness and, when available, store connectivity.
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if h.Health != nil {
		if err := h.Health.Ping(r.Context()); err != nil {
			resp.Status, resp.Store = "degraded", err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp.Store = "ok"
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

func skuParam(r *http.Request) inventory.SKU {
	return inventory.SKU(chi.URLParam(r, "sku"))
}

// errorStatus maps engine errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, inventory.ErrDuplicateIdempotencyKey):
		return http.StatusConflict
	case inventory.IsClientError(err):
		return http.StatusBadRequest
	case inventory.IsNotFound(err):
		return http.StatusNotFound
	case inventory.IsRetryable(err):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
