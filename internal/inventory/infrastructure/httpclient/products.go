package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/stockflow-io/stockflow/internal/inventory/application"
)

// ProductClient resolves product details from the catalog service. Ids
// are fetched in parallel; a missing product is skipped rather than
// failing the batch, since callers use the data for enrichment only.
type ProductClient struct {
	log     *slog.Logger
	baseURL string
	client  *http.Client
}

func NewProductClient(log *slog.Logger, baseURL string) *ProductClient {
	return &ProductClient{
		log:     log,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type productResponse struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	SKU   string          `json:"sku"`
	Price decimal.Decimal `json:"price"`
}

func (c *ProductClient) Products(ctx context.Context, ids []string) (map[string]application.Product, error) {
	out := make(map[string]application.Product, len(ids))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, id := range ids {
		g.Go(func() error {
			p, err := c.product(ctx, id)
			if err != nil {
				return err
			}
			if p == nil {
				c.log.Warn("product not found in catalog", "product_id", id)
				return nil
			}
			mu.Lock()
			out[id] = *p
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ProductClient) product(ctx context.Context, id string) (*application.Product, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/products/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("build product request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch product %s: %w", id, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("fetch product %s: unexpected status %d", id, resp.StatusCode)
	}

	var parsed productResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode product %s: %w", id, err)
	}
	return &application.Product{
		ID:    parsed.ID,
		Name:  parsed.Name,
		SKU:   parsed.SKU,
		Price: parsed.Price,
	}, nil
}
