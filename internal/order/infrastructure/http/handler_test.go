package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockflow-io/stockflow/internal/order/application"
	"github.com/stockflow-io/stockflow/internal/order/domain"
	"github.com/stockflow-io/stockflow/pkg/fault"
	"github.com/stockflow-io/stockflow/pkg/logging"
)

type stubOrders struct {
	createIn  application.CreateOrderInput
	order     *domain.Order
	err       error
	statusIn  domain.Status
	cancelIn  string
	cancelErr error
}

func (s *stubOrders) CreateOrder(_ context.Context, in application.CreateOrderInput) (*domain.Order, error) {
	s.createIn = in
	return s.order, s.err
}

func (s *stubOrders) OrderByID(_ context.Context, _ string) (*domain.Order, error) {
	return s.order, s.err
}

func (s *stubOrders) Orders(_ context.Context, _ application.OrderFilter) ([]domain.Order, error) {
	return nil, s.err
}

func (s *stubOrders) StatusHistory(_ context.Context, _ string) ([]domain.StatusChange, error) {
	if s.order == nil {
		return nil, s.err
	}
	return s.order.StatusHistory, s.err
}

func (s *stubOrders) UpdateOrderItems(_ context.Context, _ application.UpdateItemsInput) (*domain.Order, error) {
	return s.order, s.err
}

func (s *stubOrders) UpdateOrderStatus(_ context.Context, _ string, next domain.Status, _ string) error {
	s.statusIn = next
	return s.err
}

func (s *stubOrders) CancelOrder(_ context.Context, _ string, reason string) error {
	s.cancelIn = reason
	return s.cancelErr
}

func newTestServer(stub *stubOrders) *httptest.Server {
	r := chi.NewRouter()
	NewHandler(logging.New("test"), stub).Routes(r)
	return httptest.NewServer(r)
}

func TestCreateOrderEndpoint(t *testing.T) {
	stub := &stubOrders{order: &domain.Order{ID: "o-1", Status: domain.StatusReserved}}
	srv := newTestServer(stub)
	defer srv.Close()

	body := `{
		"customerName": "Ada Lovelace",
		"customerEmail": "ada@example.com",
		"shippingAddress": "12 Analytical Way",
		"items": [{"productId": "P1", "quantity": 2, "unitPrice": "19.99"}]
	}`
	resp, err := http.Post(srv.URL+"/v1/orders/", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Ada Lovelace", stub.createIn.CustomerName)
	require.Len(t, stub.createIn.Items, 1)
	assert.True(t, stub.createIn.Items[0].UnitPrice.Equal(decimal.RequireFromString("19.99")))

	var got domain.Order
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "o-1", got.ID)
	assert.Equal(t, domain.StatusReserved, got.Status)
}

func TestCreateOrderValidationMapsTo400(t *testing.T) {
	stub := &stubOrders{err: fault.Validationf("order must contain at least one item")}
	srv := newTestServer(stub)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/orders/", "application/json", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateStatusEndpoint(t *testing.T) {
	stub := &stubOrders{}
	srv := newTestServer(stub)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/orders/o-2/status", "application/json",
		bytes.NewBufferString(`{"status":"Processing","notes":"picking"}`))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, domain.StatusProcessing, stub.statusIn)
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	srv := newTestServer(&stubOrders{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/orders/o-2/status", "application/json",
		bytes.NewBufferString(`{"status":"Teleported"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCancelEndpointDefaultsReason(t *testing.T) {
	stub := &stubOrders{}
	srv := newTestServer(stub)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/orders/o-3/cancel", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "cancelled by customer", stub.cancelIn)
}

func TestCancelConflictMapsTo409(t *testing.T) {
	stub := &stubOrders{cancelErr: fault.Conflictf("order o-4 cannot be cancelled in status Shipped")}
	srv := newTestServer(stub)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/orders/o-4/cancel", "application/json",
		bytes.NewBufferString(`{"reason":"too late"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body["error"], "cannot be cancelled")
}

func TestOrderNotFoundMapsTo404(t *testing.T) {
	stub := &stubOrders{err: fault.NotFoundf("order o-5 not found")}
	srv := newTestServer(stub)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/orders/o-5")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
