package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stockflow-io/stockflow/internal/events"
	"github.com/stockflow-io/stockflow/internal/inventory/application"
	"github.com/stockflow-io/stockflow/internal/inventory/domain"
	"github.com/stockflow-io/stockflow/pkg/fault"
)

// Inventory is the slice of the application service the HTTP layer uses.
type Inventory interface {
	ReserveStock(ctx context.Context, in application.ReserveStockInput) (*application.ReserveStockResult, error)
	CommitReservation(ctx context.Context, orderID string) error
	ReleaseReservation(ctx context.Context, orderID string) error
	ReservationsByOrder(ctx context.Context, orderID string) ([]domain.Reservation, error)
	CreateRecord(ctx context.Context, in application.CreateRecordInput) (*domain.InventoryRecord, error)
	RecordByID(ctx context.Context, id string) (*domain.InventoryRecord, error)
	DeleteRecord(ctx context.Context, id string) error
	AdjustStock(ctx context.Context, in application.AdjustStockInput) (*domain.InventoryRecord, error)
	UpdateStockLevels(ctx context.Context, in application.UpdateLevelsInput) (*domain.InventoryRecord, error)
	TransferStock(ctx context.Context, in application.TransferStockInput) error
	LowStockRecords(ctx context.Context) ([]domain.InventoryRecord, error)
	TransactionsByProduct(ctx context.Context, productID string, from, to time.Time) ([]domain.InventoryTransaction, error)
}

type Handler struct {
	log *slog.Logger
	svc Inventory
}

func NewHandler(log *slog.Logger, svc Inventory) *Handler {
	return &Handler{log: log, svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Route("/v1/inventory", func(r chi.Router) {
		r.Post("/reserve", h.reserve)
		r.Post("/commit-reservation/{orderId}", h.commitReservation)
		r.Post("/release-reservation/{orderId}", h.releaseReservation)
		r.Get("/reservations/{orderId}", h.reservationsByOrder)

		r.Post("/records", h.createRecord)
		r.Get("/records/{id}", h.recordByID)
		r.Delete("/records/{id}", h.deleteRecord)
		r.Post("/records/{id}/adjust", h.adjustStock)
		r.Put("/records/{id}/levels", h.updateLevels)
		r.Post("/transfer", h.transferStock)
		r.Get("/low-stock", h.lowStock)
		r.Get("/transactions/{productId}", h.transactionsByProduct)
	})
}

type reserveRequest struct {
	OrderID string `json:"orderId"`
	Items   []struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
	DurationSeconds int `json:"durationSeconds"`
}

type reserveResponse struct {
	Success          bool                      `json:"success"`
	ReservedItems    []events.ReservedItem     `json:"reservedItems"`
	UnavailableItems []events.InsufficientItem `json:"unavailableItems"`
}

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, fault.Validationf("invalid request body: %v", err))
		return
	}

	in := application.ReserveStockInput{
		OrderID:  req.OrderID,
		Duration: time.Duration(req.DurationSeconds) * time.Second,
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, application.ReserveLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	result, err := h.svc.ReserveStock(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := reserveResponse{
		Success:          result.Success(),
		ReservedItems:    result.ReservedItems,
		UnavailableItems: result.Unavailable,
	}
	if resp.ReservedItems == nil {
		resp.ReservedItems = []events.ReservedItem{}
	}
	if resp.UnavailableItems == nil {
		resp.UnavailableItems = []events.InsufficientItem{}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) commitReservation(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.CommitReservation(r.Context(), chi.URLParam(r, "orderId")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) releaseReservation(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ReleaseReservation(r.Context(), chi.URLParam(r, "orderId")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) reservationsByOrder(w http.ResponseWriter, r *http.Request) {
	reservations, err := h.svc.ReservationsByOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if reservations == nil {
		reservations = []domain.Reservation{}
	}
	h.writeJSON(w, http.StatusOK, reservations)
}

type createRecordRequest struct {
	ProductID        string `json:"productId"`
	WarehouseID      string `json:"warehouseId"`
	LocationCode     string `json:"locationCode"`
	Quantity         int    `json:"quantity"`
	ReorderThreshold int    `json:"reorderThreshold"`
	TargetStockLevel int    `json:"targetStockLevel"`
}

func (h *Handler) createRecord(w http.ResponseWriter, r *http.Request) {
	var req createRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, fault.Validationf("invalid request body: %v", err))
		return
	}

	rec, err := h.svc.CreateRecord(r.Context(), application.CreateRecordInput{
		ProductID:        req.ProductID,
		WarehouseID:      req.WarehouseID,
		LocationCode:     req.LocationCode,
		Quantity:         req.Quantity,
		ReorderThreshold: req.ReorderThreshold,
		TargetStockLevel: req.TargetStockLevel,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) recordByID(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.RecordByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) deleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteRecord(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type adjustStockRequest struct {
	Quantity int    `json:"quantity"`
	Addition bool   `json:"addition"`
	Notes    string `json:"notes"`
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	var req adjustStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, fault.Validationf("invalid request body: %v", err))
		return
	}

	rec, err := h.svc.AdjustStock(r.Context(), application.AdjustStockInput{
		RecordID: chi.URLParam(r, "id"),
		Quantity: req.Quantity,
		Addition: req.Addition,
		Notes:    req.Notes,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

type updateLevelsRequest struct {
	ReorderThreshold int `json:"reorderThreshold"`
	TargetStockLevel int `json:"targetStockLevel"`
}

func (h *Handler) updateLevels(w http.ResponseWriter, r *http.Request) {
	var req updateLevelsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, fault.Validationf("invalid request body: %v", err))
		return
	}

	rec, err := h.svc.UpdateStockLevels(r.Context(), application.UpdateLevelsInput{
		RecordID:         chi.URLParam(r, "id"),
		ReorderThreshold: req.ReorderThreshold,
		TargetStockLevel: req.TargetStockLevel,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

type transferStockRequest struct {
	ProductID       string `json:"productId"`
	SourceWarehouse string `json:"sourceWarehouse"`
	SourceLocation  string `json:"sourceLocation"`
	DestWarehouse   string `json:"destWarehouse"`
	DestLocation    string `json:"destLocation"`
	Quantity        int    `json:"quantity"`
	Notes           string `json:"notes"`
}

func (h *Handler) transferStock(w http.ResponseWriter, r *http.Request) {
	var req transferStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, fault.Validationf("invalid request body: %v", err))
		return
	}

	err := h.svc.TransferStock(r.Context(), application.TransferStockInput{
		ProductID:       req.ProductID,
		SourceWarehouse: req.SourceWarehouse,
		SourceLocation:  req.SourceLocation,
		DestWarehouse:   req.DestWarehouse,
		DestLocation:    req.DestLocation,
		Quantity:        req.Quantity,
		Notes:           req.Notes,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.LowStockRecords(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []domain.InventoryRecord{}
	}
	h.writeJSON(w, http.StatusOK, records)
}

func (h *Handler) transactionsByProduct(w http.ResponseWriter, r *http.Request) {
	var from, to time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.writeError(w, r, fault.Validationf("invalid from timestamp: %v", err))
			return
		}
		from = parsed
	}
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.writeError(w, r, fault.Validationf("invalid to timestamp: %v", err))
			return
		}
		to = parsed
	}

	txs, err := h.svc.TransactionsByProduct(r.Context(), chi.URLParam(r, "productId"), from, to)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if txs == nil {
		txs = []domain.InventoryTransaction{}
	}
	h.writeJSON(w, http.StatusOK, txs)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("write response failed", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch fault.KindOf(err) {
	case fault.KindValidation:
		status = http.StatusBadRequest
	case fault.KindNotFound:
		status = http.StatusNotFound
	case fault.KindConflict:
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
