package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/stockflow-io/stockflow/internal/events"
	"github.com/stockflow-io/stockflow/internal/order/application"
	"github.com/stockflow-io/stockflow/pkg/fault"
)

// InventoryClient calls the inventory service over HTTP.
//
// Reserve flattens every failure into Success=false: an unreachable
// peer and an unfulfillable demand look the same to the saga, which
// leaves the order pending either way. Commit and Release keep their
// errors because the caller branches on not-found.
type InventoryClient struct {
	log     *slog.Logger
	baseURL string
	client  *http.Client
}

func NewInventoryClient(log *slog.Logger, baseURL string) *InventoryClient {
	return &InventoryClient{
		log:     log,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type reserveRequest struct {
	OrderID string             `json:"orderId"`
	Items   []reserveLineEntry `json:"items"`
}

type reserveLineEntry struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type reserveResponse struct {
	Success          bool                      `json:"success"`
	ReservedItems    []events.ReservedItem     `json:"reservedItems"`
	UnavailableItems []events.InsufficientItem `json:"unavailableItems"`
}

func (c *InventoryClient) Reserve(ctx context.Context, orderID string, items []events.OrderCreatedItem) application.ReserveOutcome {
	req := reserveRequest{OrderID: orderID}
	for _, it := range items {
		req.Items = append(req.Items, reserveLineEntry{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	body, err := json.Marshal(req)
	if err != nil {
		c.log.Error("marshal reserve request", "order_id", orderID, "err", err)
		return application.ReserveOutcome{}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/inventory/reserve", bytes.NewReader(body))
	if err != nil {
		c.log.Error("build reserve request", "order_id", orderID, "err", err)
		return application.ReserveOutcome{}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.log.Warn("inventory service unreachable", "order_id", orderID, "err", err)
		return application.ReserveOutcome{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Warn("reserve call rejected",
			"order_id", orderID, "status", resp.StatusCode, "body", readBody(resp.Body))
		return application.ReserveOutcome{}
	}

	var parsed reserveResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.log.Error("decode reserve response", "order_id", orderID, "err", err)
		return application.ReserveOutcome{}
	}
	return application.ReserveOutcome{
		Success:          parsed.Success,
		ReservedItems:    parsed.ReservedItems,
		UnavailableItems: parsed.UnavailableItems,
	}
}

func (c *InventoryClient) Commit(ctx context.Context, orderID string) error {
	return c.post(ctx, "/v1/inventory/commit-reservation/"+orderID, "commit reservation", orderID)
}

func (c *InventoryClient) Release(ctx context.Context, orderID string) error {
	return c.post(ctx, "/v1/inventory/release-reservation/"+orderID, "release reservation", orderID)
}

func (c *InventoryClient) post(ctx context.Context, path, op, orderID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return fault.Infra(op+" request", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fault.Infra(op+": inventory service unreachable", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusNotFound:
		return fault.NotFoundf("no active reservations found for order %s", orderID)
	default:
		return fault.Infra(op, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, readBody(resp.Body)))
	}
}

func readBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return string(b)
}
