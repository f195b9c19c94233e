/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Listings:
    ListingDTO, PushAttemptDTO, AdjustmentDTO, RecordAdjustmentRequest

  Operations:
    SyncResponse, IngestResultDTO, ReconciliationDTO, ReconciliationRunDTO

  Remote simulation:
    PlaceOrderRequest, PlaceOrderResponse

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/stock-sync/inventory"
)

// =============================================================================
// LISTINGS
// =============================================================================

// ListingDTO is a snapshot of one SKU.
type ListingDTO struct {
	SKU            string          `json:"sku"`
	Local          int64           `json:"local"`
	Shadow         int64           `json:"shadow"`
	Outstanding    int64           `json:"outstanding"`
	OrdersIngested int             `json:"orders_ingested"`
	PendingPush    *PushAttemptDTO `json:"pending_push,omitempty"`
	CautionSince   *time.Time      `json:"caution_since,omitempty"`
	AsOf           time.Time       `json:"as_of"`
}

type PushAttemptDTO struct {
	ID             string    `json:"id"`
	Delta          int64     `json:"delta"`
	IdempotencyKey string    `json:"idempotency_key"`
	CreatedAt      time.Time `json:"created_at"`
}

// AdjustmentDTO is one journal entry.
type AdjustmentDTO struct {
	ID             string    `json:"id"`
	Book           string    `json:"book"`
	Kind           string    `json:"kind"`
	Quantity       int64     `json:"quantity"`
	Status         string    `json:"status"`
	ReferenceID    string    `json:"reference_id,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// RecordAdjustmentRequest is a local count change. Quantity is signed.
type RecordAdjustmentRequest struct {
	Quantity       int64  `json:"quantity"`
	Reason         string `json:"reason,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// =============================================================================
// OPERATIONS
// =============================================================================

type SyncResponse struct {
	SKU     string     `json:"sku"`
	Applied int64      `json:"applied"`
	Listing ListingDTO `json:"listing"`
}

type IngestResultDTO struct {
	SKU        string   `json:"sku"`
	Ingested   int      `json:"ingested"`
	Duplicates int      `json:"duplicates"`
	Rejected   int      `json:"rejected"`
	Consumed   int64    `json:"consumed"`
	OrderIDs   []string `json:"order_ids"`
}

// ReconciliationDTO is the outcome of one monitor check. A manual-review
// outcome carries the divergence in Error.
type ReconciliationDTO struct {
	SKU          string          `json:"sku"`
	State        string          `json:"state"`
	Local        int64           `json:"local"`
	Remote       int64           `json:"remote"`
	Drift        int64           `json:"drift"`
	Correction   int64           `json:"correction"`
	CautionSince *time.Time      `json:"caution_since,omitempty"`
	Ingested     IngestResultDTO `json:"ingested"`
	Pushed       int64           `json:"pushed"`
	Anomalies    []string        `json:"anomalies,omitempty"`
	Error        string          `json:"error,omitempty"`
	CheckedAt    time.Time       `json:"checked_at"`
}

type ReconciliationRunDTO struct {
	ID           string     `json:"id"`
	SKU          string     `json:"sku"`
	State        string     `json:"state"`
	Local        int64      `json:"local"`
	Remote       int64      `json:"remote"`
	Drift        int64      `json:"drift"`
	Correction   int64      `json:"correction"`
	CautionSince *time.Time `json:"caution_since,omitempty"`
	Error        string     `json:"error,omitempty"`
	CheckedAt    time.Time  `json:"checked_at"`
}

// =============================================================================
// REMOTE SIMULATION
// =============================================================================

type PlaceOrderRequest struct {
	Quantity int64 `json:"quantity"`
}

type PlaceOrderResponse struct {
	OrderID  string `json:"order_id"`
	SKU      string `json:"sku"`
	Quantity int64  `json:"quantity"`
}

// =============================================================================
// COMMON
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toListingDTO(s inventory.Snapshot) ListingDTO {
	dto := ListingDTO{
		SKU:            string(s.SKU),
		Local:          s.Local,
		Shadow:         s.Shadow,
		Outstanding:    s.Outstanding,
		OrdersIngested: s.OrdersIngested,
		CautionSince:   timePtr(s.CautionSince),
		AsOf:           s.AsOf,
	}
	if p := s.PendingPush; p != nil {
		dto.PendingPush = &PushAttemptDTO{
			ID:             string(p.ID),
			Delta:          p.Delta,
			IdempotencyKey: p.IdempotencyKey,
			CreatedAt:      p.CreatedAt,
		}
	}
	return dto
}

func toAdjustmentDTO(a inventory.Adjustment) AdjustmentDTO {
	return AdjustmentDTO{
		ID:             string(a.ID),
		Book:           string(a.Book),
		Kind:           string(a.Kind),
		Quantity:       a.Quantity,
		Status:         string(a.Status),
		ReferenceID:    a.ReferenceID,
		Reason:         a.Reason,
		IdempotencyKey: a.IdempotencyKey,
		OccurredAt:     a.OccurredAt,
		CreatedAt:      a.CreatedAt,
	}
}

func toIngestResultDTO(sku inventory.SKU, r inventory.IngestResult) IngestResultDTO {
	ids := make([]string, len(r.OrderIDs))
	for i, id := range r.OrderIDs {
		ids[i] = string(id)
	}
	return IngestResultDTO{
		SKU:        string(sku),
		Ingested:   r.Ingested,
		Duplicates: r.Duplicates,
		Rejected:   r.Rejected,
		Consumed:   r.Consumed,
		OrderIDs:   ids,
	}
}

func toReconciliationDTO(rep inventory.Reconciliation, err error) ReconciliationDTO {
	dto := ReconciliationDTO{
		SKU:          string(rep.SKU),
		State:        string(rep.State),
		Local:        rep.Local,
		Remote:       rep.Remote,
		Drift:        rep.Drift,
		Correction:   rep.Correction,
		CautionSince: timePtr(rep.CautionSince),
		Ingested:     toIngestResultDTO(rep.SKU, rep.Ingested),
		Pushed:       rep.Pushed,
		CheckedAt:    rep.CheckedAt,
	}
	for _, a := range rep.Anomalies {
		dto.Anomalies = append(dto.Anomalies, a.Error())
	}
	if err != nil {
		dto.Error = err.Error()
	}
	return dto
}

func toReconciliationRunDTO(r inventory.ReconciliationRun) ReconciliationRunDTO {
	return ReconciliationRunDTO{
		ID:           r.ID,
		SKU:          string(r.SKU),
		State:        string(r.State),
		Local:        r.Local,
		Remote:       r.Remote,
		Drift:        r.Drift,
		Correction:   r.Correction,
		CautionSince: timePtr(r.CautionSince),
		Error:        r.Error,
		CheckedAt:    r.CheckedAt,
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
