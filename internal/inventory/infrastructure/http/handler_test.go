package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockflow-io/stockflow/internal/events"
	"github.com/stockflow-io/stockflow/internal/inventory/application"
	"github.com/stockflow-io/stockflow/internal/inventory/domain"
	"github.com/stockflow-io/stockflow/pkg/fault"
	"github.com/stockflow-io/stockflow/pkg/logging"
)

type stubInventory struct {
	reserveIn     application.ReserveStockInput
	reserveResult *application.ReserveStockResult
	reserveErr    error
	commitErr     error
	releaseErr    error
	reservations  []domain.Reservation
	record        *domain.InventoryRecord
	recordErr     error
}

func (s *stubInventory) ReserveStock(_ context.Context, in application.ReserveStockInput) (*application.ReserveStockResult, error) {
	s.reserveIn = in
	return s.reserveResult, s.reserveErr
}

func (s *stubInventory) CommitReservation(_ context.Context, _ string) error  { return s.commitErr }
func (s *stubInventory) ReleaseReservation(_ context.Context, _ string) error { return s.releaseErr }

func (s *stubInventory) ReservationsByOrder(_ context.Context, _ string) ([]domain.Reservation, error) {
	return s.reservations, nil
}

func (s *stubInventory) CreateRecord(_ context.Context, _ application.CreateRecordInput) (*domain.InventoryRecord, error) {
	return s.record, s.recordErr
}

func (s *stubInventory) RecordByID(_ context.Context, _ string) (*domain.InventoryRecord, error) {
	return s.record, s.recordErr
}

func (s *stubInventory) DeleteRecord(_ context.Context, _ string) error { return s.recordErr }

func (s *stubInventory) AdjustStock(_ context.Context, _ application.AdjustStockInput) (*domain.InventoryRecord, error) {
	return s.record, s.recordErr
}

func (s *stubInventory) UpdateStockLevels(_ context.Context, _ application.UpdateLevelsInput) (*domain.InventoryRecord, error) {
	return s.record, s.recordErr
}

func (s *stubInventory) TransferStock(_ context.Context, _ application.TransferStockInput) error {
	return s.recordErr
}

func (s *stubInventory) LowStockRecords(_ context.Context) ([]domain.InventoryRecord, error) {
	return nil, nil
}

func (s *stubInventory) TransactionsByProduct(_ context.Context, _ string, _, _ time.Time) ([]domain.InventoryTransaction, error) {
	return nil, nil
}

func newTestServer(stub *stubInventory) *httptest.Server {
	r := chi.NewRouter()
	NewHandler(logging.New("test"), stub).Routes(r)
	return httptest.NewServer(r)
}

func TestReserveEndpoint(t *testing.T) {
	stub := &stubInventory{
		reserveResult: &application.ReserveStockResult{
			Reserved: []domain.Reservation{{ID: "res-1", ProductID: "P1", Quantity: 2}},
			ReservedItems: []events.ReservedItem{
				{ProductID: "P1", ProductName: "Widget", Quantity: 2, WarehouseID: "W1"},
			},
		},
	}
	srv := newTestServer(stub)
	defer srv.Close()

	body := `{"orderId":"o-1","items":[{"productId":"P1","quantity":2}],"durationSeconds":172800}`
	resp, err := http.Post(srv.URL+"/v1/inventory/reserve", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "o-1", stub.reserveIn.OrderID)
	assert.Equal(t, 48*time.Hour, stub.reserveIn.Duration)

	var got reserveResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.True(t, got.Success)
	require.Len(t, got.ReservedItems, 1)
	assert.Equal(t, "Widget", got.ReservedItems[0].ProductName)
	assert.NotNil(t, got.UnavailableItems)
	assert.Empty(t, got.UnavailableItems)
}

func TestReserveEndpointPartialFailure(t *testing.T) {
	stub := &stubInventory{
		reserveResult: &application.ReserveStockResult{
			Unavailable: []events.InsufficientItem{
				{ProductID: "P1", RequestedQuantity: 10, AvailableQuantity: 3},
			},
		},
	}
	srv := newTestServer(stub)
	defer srv.Close()

	body := `{"orderId":"o-2","items":[{"productId":"P1","quantity":10}]}`
	resp, err := http.Post(srv.URL+"/v1/inventory/reserve", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	// an unfulfillable reservation is a domain outcome, not an HTTP error
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got reserveResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.False(t, got.Success)
	require.Len(t, got.UnavailableItems, 1)
	assert.Equal(t, 3, got.UnavailableItems[0].AvailableQuantity)
}

func TestReserveEndpointBadJSON(t *testing.T) {
	srv := newTestServer(&stubInventory{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/inventory/reserve", "application/json", bytes.NewBufferString("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFaultStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", fault.Validationf("bad input"), http.StatusBadRequest},
		{"not found", fault.NotFoundf("no active reservations found for order o-3"), http.StatusNotFound},
		{"conflict", fault.Conflictf("stock already committed"), http.StatusConflict},
		{"infrastructure", fault.Infra("db down", assert.AnError), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(&stubInventory{commitErr: tc.err})
			defer srv.Close()

			resp, err := http.Post(srv.URL+"/v1/inventory/commit-reservation/o-3", "application/json", nil)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tc.want, resp.StatusCode)

			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestCommitAndReleaseReturnNoContent(t *testing.T) {
	srv := newTestServer(&stubInventory{})
	defer srv.Close()

	for _, path := range []string{
		"/v1/inventory/commit-reservation/o-4",
		"/v1/inventory/release-reservation/o-4",
	} {
		resp, err := http.Post(srv.URL+path, "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode, path)
	}
}

func TestReservationsByOrderEmptyIsJSONArray(t *testing.T) {
	srv := newTestServer(&stubInventory{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/inventory/reservations/o-5")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var got []domain.Reservation
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Empty(t, got)
}
