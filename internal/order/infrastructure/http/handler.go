package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/stockflow-io/stockflow/internal/order/application"
	"github.com/stockflow-io/stockflow/internal/order/domain"
	"github.com/stockflow-io/stockflow/pkg/fault"
)

// Orders is the slice of the application service the HTTP layer uses.
type Orders interface {
	CreateOrder(ctx context.Context, in application.CreateOrderInput) (*domain.Order, error)
	OrderByID(ctx context.Context, id string) (*domain.Order, error)
	Orders(ctx context.Context, filter application.OrderFilter) ([]domain.Order, error)
	StatusHistory(ctx context.Context, id string) ([]domain.StatusChange, error)
	UpdateOrderItems(ctx context.Context, in application.UpdateItemsInput) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, next domain.Status, notes string) error
	CancelOrder(ctx context.Context, orderID string, reason string) error
}

type Handler struct {
	log *slog.Logger
	svc Orders
}

func NewHandler(log *slog.Logger, svc Orders) *Handler {
	return &Handler{log: log, svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Route("/v1/orders", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Get("/", h.listOrders)
		r.Get("/{id}", h.orderByID)
		r.Get("/{id}/history", h.statusHistory)
		r.Put("/{id}/items", h.updateItems)
		r.Post("/{id}/status", h.updateStatus)
		r.Post("/{id}/cancel", h.cancelOrder)
	})
}

type orderItemRequest struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

type createOrderRequest struct {
	CustomerName    string             `json:"customerName"`
	CustomerEmail   string             `json:"customerEmail"`
	ShippingAddress string             `json:"shippingAddress"`
	Notes           string             `json:"notes"`
	Items           []orderItemRequest `json:"items"`
}

func toCreateItems(items []orderItemRequest) []application.CreateOrderItem {
	out := make([]application.CreateOrderItem, 0, len(items))
	for _, it := range items {
		out = append(out, application.CreateOrderItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}
	return out
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, fault.Validationf("invalid request body: %v", err))
		return
	}

	order, err := h.svc.CreateOrder(r.Context(), application.CreateOrderInput{
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		ShippingAddress: req.ShippingAddress,
		Notes:           req.Notes,
		Items:           toCreateItems(req.Items),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := application.OrderFilter{
		Status:        q.Get("status"),
		CustomerEmail: q.Get("customerEmail"),
	}
	orders, err := h.svc.Orders(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) orderByID(w http.ResponseWriter, r *http.Request) {
	order, err := h.svc.OrderByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) statusHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.svc.StatusHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if history == nil {
		history = []domain.StatusChange{}
	}
	h.writeJSON(w, http.StatusOK, history)
}

type updateItemsRequest struct {
	Items []orderItemRequest `json:"items"`
}

func (h *Handler) updateItems(w http.ResponseWriter, r *http.Request) {
	var req updateItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, fault.Validationf("invalid request body: %v", err))
		return
	}

	order, err := h.svc.UpdateOrderItems(r.Context(), application.UpdateItemsInput{
		OrderID: chi.URLParam(r, "id"),
		Items:   toCreateItems(req.Items),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, order)
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, fault.Validationf("invalid request body: %v", err))
		return
	}
	status, err := domain.ParseStatus(req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.svc.UpdateOrderStatus(r.Context(), chi.URLParam(r, "id"), status, req.Notes); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, r, fault.Validationf("invalid request body: %v", err))
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "cancelled by customer"
	}

	if err := h.svc.CancelOrder(r.Context(), chi.URLParam(r, "id"), req.Reason); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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
