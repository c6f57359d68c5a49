package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockflow-io/stockflow/internal/events"
	"github.com/stockflow-io/stockflow/pkg/fault"
	"github.com/stockflow-io/stockflow/pkg/logging"
)

func newClient(t *testing.T, handler http.HandlerFunc) (*InventoryClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewInventoryClient(logging.New("test"), srv.URL), srv
}

func TestReserveSuccess(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/inventory/reserve", r.URL.Path)
		var req reserveRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "o-1", req.OrderID)
		require.Len(t, req.Items, 1)
		assert.Equal(t, 2, req.Items[0].Quantity)

		json.NewEncoder(w).Encode(reserveResponse{
			Success:       true,
			ReservedItems: []events.ReservedItem{{ProductID: "P1", Quantity: 2}},
		})
	})

	outcome := client.Reserve(context.Background(), "o-1",
		[]events.OrderCreatedItem{{ProductID: "P1", Quantity: 2}})
	assert.True(t, outcome.Success)
	require.Len(t, outcome.ReservedItems, 1)
}

func TestReserveInsufficient(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(reserveResponse{
			Success:          false,
			UnavailableItems: []events.InsufficientItem{{ProductID: "P1", RequestedQuantity: 5, AvailableQuantity: 1}},
		})
	})

	outcome := client.Reserve(context.Background(), "o-2",
		[]events.OrderCreatedItem{{ProductID: "P1", Quantity: 5}})
	assert.False(t, outcome.Success)
	require.Len(t, outcome.UnavailableItems, 1)
	assert.Equal(t, 1, outcome.UnavailableItems[0].AvailableQuantity)
}

func TestReserveFlattensTransportFailure(t *testing.T) {
	client, srv := newClient(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	outcome := client.Reserve(context.Background(), "o-3",
		[]events.OrderCreatedItem{{ProductID: "P1", Quantity: 1}})
	assert.False(t, outcome.Success)
	assert.Empty(t, outcome.UnavailableItems)
}

func TestReserveFlattensServerError(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	outcome := client.Reserve(context.Background(), "o-4",
		[]events.OrderCreatedItem{{ProductID: "P1", Quantity: 1}})
	assert.False(t, outcome.Success)
}

func TestCommitStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{"no content", http.StatusNoContent, func(t *testing.T, err error) { assert.NoError(t, err) }},
		{"not found", http.StatusNotFound, func(t *testing.T, err error) { assert.True(t, fault.IsNotFound(err)) }},
		{"server error", http.StatusInternalServerError, func(t *testing.T, err error) {
			assert.Equal(t, fault.KindInfrastructure, fault.KindOf(err))
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/inventory/commit-reservation/o-5", r.URL.Path)
				w.WriteHeader(tc.status)
			})
			tc.check(t, client.Commit(context.Background(), "o-5"))
		})
	}
}

func TestReleaseUnreachableIsInfra(t *testing.T) {
	client, srv := newClient(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	err := client.Release(context.Background(), "o-6")
	assert.Equal(t, fault.KindInfrastructure, fault.KindOf(err))
	assert.False(t, fault.IsNotFound(err))
}
