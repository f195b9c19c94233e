/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that drive a fresh SKU into a specific
	state through the same engine calls a real integration would make.
	Useful for demos and as end-to-end checks of the engine.

AVAILABLE SCENARIOS:

	steady-sync:       Receipt, push, remote sale, pull. Ends converged.
	remote-overstates: Remote count edited upwards out of band. The next
	                   reconciliation corrects it immediately.
	in-flight-orders:  Remote sales not yet pulled make local look high.
	                   Reconciliation waits in caution.
	backorder:         Local count driven below zero. Reported as an
	                   anomaly, never repaired.

HOW SCENARIOS WORK:
 1. Pick a new SKU: <scenario-id>-<random suffix>
 2. Record local count changes
 3. Sync, place remote orders, pull, as the scenario needs
 4. Return the SKU so the caller can inspect it

  Scenarios never reset anything; every load gets its own SKU.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "remote-overstates"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, sku)
 3. Add it to the loaders map

SEE ALSO:
  - handlers.go: Listing endpoints to inspect the result
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/warp/stock-sync/inventory"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type LoadScenarioResponse struct {
	Scenario ScenarioDTO `json:"scenario"`
	Listing  ListingDTO  `json:"listing"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "steady-sync",
		Name:        "Steady Sync",
		Description: "Receipt of 10, push, one remote sale of 2, pull. Local, shadow and remote agree at 8.",
	},
	{
		ID:          "remote-overstates",
		Name:        "Remote Overstates",
		Description: "Remote edited from 10 to 13 outside the engine. Reconciliation corrects it at once.",
	},
	{
		ID:          "in-flight-orders",
		Name:        "In-Flight Orders",
		Description: "Two remote sales not yet pulled. Local reads high and reconciliation starts the caution timer.",
	},
	{
		ID:          "backorder",
		Name:        "Backorder",
		Description: "Local count goes to -2. Reconciliation reports negative availability and leaves it.",
	},
}

type scenarioLoader func(h *Handler, ctx context.Context, sku inventory.SKU) error

var loaders = map[string]scenarioLoader{
	"steady-sync":       (*Handler).loadSteadySyncScenario,
	"remote-overstates": (*Handler).loadRemoteOverstatesScenario,
	"in-flight-orders":  (*Handler).loadInFlightOrdersScenario,
	"backorder":         (*Handler).loadBackorderScenario,
}

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario runs a scenario against a new SKU.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	scenario, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	ctx := r.Context()
	sku := inventory.SKU(fmt.Sprintf("%s-%s", scenario.ID, uuid.NewString()[:8]))
	if err := loaders[scenario.ID](h, ctx, sku); err != nil {
		writeError(w, errorStatus(err), "Failed to load scenario", err)
		return
	}

	l, err := h.Engine.Lookup(sku)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Scenario listing missing", err)
		return
	}
	writeJSON(w, http.StatusCreated, LoadScenarioResponse{
		Scenario: scenario,
		Listing:  toListingDTO(l.Snapshot()),
	})
}

func findScenario(id string) (ScenarioDTO, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return ScenarioDTO{}, false
}

// =============================================================================
// LOADERS
// =============================================================================

func (h *Handler) loadSteadySyncScenario(ctx context.Context, sku inventory.SKU) error {
	if err := h.receiveAndPush(ctx, sku, 10); err != nil {
		return err
	}
	if err := h.placeOrders(ctx, sku, 2); err != nil {
		return err
	}
	_, err := h.Engine.PullOrders(ctx, sku)
	return err
}

func (h *Handler) loadRemoteOverstatesScenario(ctx context.Context, sku inventory.SKU) error {
	if err := h.receiveAndPush(ctx, sku, 10); err != nil {
		return err
	}
	// A merchant edit in the remote admin: no idempotency key, no local trace.
	if err := h.Engine.Remote.ApplyAdjustment(ctx, sku, 3, ""); err != nil {
		return fmt.Errorf("%w: %w", inventory.ErrRemoteUnavailable, err)
	}
	_, err := h.Engine.Reconcile(ctx, sku)
	return err
}

func (h *Handler) loadInFlightOrdersScenario(ctx context.Context, sku inventory.SKU) error {
	if err := h.receiveAndPush(ctx, sku, 10); err != nil {
		return err
	}
	return h.placeOrders(ctx, sku, 1, 2)
}

func (h *Handler) loadBackorderScenario(ctx context.Context, sku inventory.SKU) error {
	if err := h.receiveAndPush(ctx, sku, 3); err != nil {
		return err
	}
	if _, err := h.Engine.Record(ctx, sku, inventory.CountChange{
		Quantity: -5,
		Reason:   "shipped against stock not yet received",
	}); err != nil {
		return err
	}
	_, err := h.Engine.Reconcile(ctx, sku)
	return err
}

func (h *Handler) receiveAndPush(ctx context.Context, sku inventory.SKU, quantity int64) error {
	if _, err := h.Engine.Record(ctx, sku, inventory.CountChange{
		Quantity: quantity,
		Reason:   "receipt",
	}); err != nil {
		return err
	}
	_, err := h.Engine.Sync(ctx, sku)
	return err
}

func (h *Handler) placeOrders(ctx context.Context, sku inventory.SKU, quantities ...int64) error {
	placer, ok := h.Engine.Remote.(inventory.OrderPlacer)
	if !ok {
		return fmt.Errorf("remote platform cannot place orders")
	}
	for _, q := range quantities {
		if _, err := placer.PlaceOrder(ctx, sku, q); err != nil {
			return err
		}
	}
	return nil
}
