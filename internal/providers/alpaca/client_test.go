package alpaca

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/signalmesh/internal/models"
)

func TestGetQuotes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("APCA-API-KEY-ID"))
		assert.Equal(t, "test-secret", r.Header.Get("APCA-API-SECRET-KEY"))

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v2/stocks/quotes/latest":
			w.Write([]byte(`{"quotes":{"AAPL":{"bp":150.00,"bs":100,"ap":150.10,"as":200,"t":"2026-08-28T14:30:00Z"}}}`))
		case "/v2/stocks/trades/latest":
			w.Write([]byte(`{"trades":{"AAPL":{"p":150.05,"s":50}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewClient("test-key", "test-secret", WithBaseURL(server.URL))

	quotes, err := client.GetQuotes(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "AAPL", quotes[0].Symbol)
	assert.Equal(t, 150.00, quotes[0].BidPrice)
	assert.Equal(t, 150.10, quotes[0].AskPrice)
	assert.Equal(t, 150.05, quotes[0].LastPrice)
	assert.Equal(t, "alpaca", quotes[0].Provider)
}

func TestGetBars(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/stocks/bars", r.URL.Path)
		assert.Equal(t, "1Min", r.URL.Query().Get("timeframe"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"bars":{"AAPL":[{"t":"2026-08-28T14:30:00Z","o":150,"h":151,"l":149,"c":150.5,"v":10000,"vw":150.2}]}}`))
	}))
	defer server.Close()

	client := NewClient("test-key", "test-secret", WithBaseURL(server.URL))

	bars, err := client.GetBars(context.Background(), models.BarRequest{Symbols: []string{"AAPL"}, Timeframe: "1m"})
	require.NoError(t, err)
	require.Len(t, bars["AAPL"], 1)
	assert.Equal(t, 150.5, bars["AAPL"][0].Close)
	assert.Equal(t, int64(10000), bars["AAPL"][0].Volume)
}

func TestAPIErrorOnNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"forbidden"}`))
	}))
	defer server.Close()

	client := NewClient("bad-key", "bad-secret", WithBaseURL(server.URL))

	_, err := client.GetQuotes(context.Background(), []string{"AAPL"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
}
