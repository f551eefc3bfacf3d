package supabase

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gervais-amoah/finance-pipeline/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecords(t *testing.T) []domain.ExchangeRate {
	t.Helper()
	date, err := time.Parse(domain.DateFormat, "2025-06-10")
	require.NoError(t, err)

	return []domain.ExchangeRate{
		{Date: date, Base: "EUR", Quote: "USD", Rate: 1.08, Source: domain.SourceAPI},
	}
}

func TestInsertBatch(t *testing.T) {
	var gotPath, gotKey, gotAuth, gotPrefer string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("apikey")
		gotAuth = r.Header.Get("Authorization")
		gotPrefer = r.Header.Get("Prefer")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(server.URL, "service-key", "forex_rates", 2*time.Second, zerolog.Nop())

	err := client.InsertBatch(context.Background(), "run-123", testRecords(t))
	require.NoError(t, err)

	assert.Equal(t, "/rest/v1/forex_rates", gotPath)
	assert.Equal(t, "service-key", gotKey)
	assert.Equal(t, "Bearer service-key", gotAuth)
	assert.Equal(t, "resolution=merge-duplicates", gotPrefer)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "2025-06-10", rows[0]["date"])
	assert.Equal(t, "EUR", rows[0]["base_currency"])
	assert.Equal(t, "USD", rows[0]["quote_currency"])
	assert.Equal(t, 1.08, rows[0]["rate"])
	assert.Equal(t, "api", rows[0]["source"])
	assert.Equal(t, "run-123", rows[0]["run_id"])
}

func TestInsertBatchRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"permission denied"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(server.URL, "bad-key", "forex_rates", 2*time.Second, zerolog.Nop())

	err := client.InsertBatch(context.Background(), "run-123", testRecords(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestInsertBatchEmpty(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", "forex_rates", 2*time.Second, zerolog.Nop())

	require.NoError(t, client.InsertBatch(context.Background(), "run-123", nil))
	assert.False(t, called)
}
