package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductsByIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/products", r.URL.Path)
		assert.Equal(t, "1,2", r.URL.Query().Get("ids"))
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": 1, "sellerId": 10, "price": "12000"},
			{"id": 2, "sellerId": 20, "price": "5500"},
		})
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL, 2*time.Second)
	products, err := client.ProductsByIDs(context.Background(), []int64{1, 2})
	require.NoError(t, err)

	require.Len(t, products, 2)
	assert.Equal(t, int64(1), products[0].ID)
	assert.Equal(t, int64(10), products[0].SellerID)
	assert.True(t, decimal.RequireFromString("12000").Equal(products[0].Price))
}

func TestProductsByIDs_CatalogError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL, 2*time.Second)
	_, err := client.ProductsByIDs(context.Background(), []int64{1})
	require.Error(t, err)
}
