package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nitinkhare/cryptopaper/internal/market"
)

func makeMockCandleServer(t *testing.T, resp candleResponse) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestRestProvider_FetchCandles_SingleChunk(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 5)

	resp := candleResponse{
		Open: []float64{100, 101}, High: []float64{102, 103}, Low: []float64{99, 100},
		Close: []float64{101, 102}, Volume: []float64{10, 12},
		Timestamp: []int64{from.Unix(), from.Add(time.Hour).Unix()},
	}
	srv := makeMockCandleServer(t, resp)
	defer srv.Close()

	p := NewRestProvider(RestConfig{BaseURL: srv.URL, APIKey: "test-key"})
	bars, err := p.FetchCandles(context.Background(), "BTC", market.Timeframe1h, from, to)
	if err != nil {
		t.Fatalf("FetchCandles: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if bars[0].Symbol != "BTC" || bars[0].Timeframe != market.Timeframe1h {
		t.Errorf("unexpected bar fields: %+v", bars[0])
	}
}

func TestRestProvider_FetchCandles_ChunksLongRange(t *testing.T) {
	var requests int
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 75) // spans 3 chunks of maxChunkDays=30

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(candleResponse{
			Open: []float64{1}, High: []float64{1}, Low: []float64{1}, Close: []float64{1}, Volume: []float64{1},
			Timestamp: []int64{time.Now().Unix()},
		})
	}))
	defer srv.Close()

	p := NewRestProvider(RestConfig{BaseURL: srv.URL})
	bars, err := p.FetchCandles(context.Background(), "ETH", market.Timeframe1d, from, to)
	if err != nil {
		t.Fatalf("FetchCandles: %v", err)
	}
	if requests < 3 {
		t.Errorf("expected at least 3 chunked requests for a 75 day range, got %d", requests)
	}
	if len(bars) != requests {
		t.Errorf("expected one bar per request, got %d bars for %d requests", len(bars), requests)
	}
}

func TestRestProvider_FetchCandles_RateLimitedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewRestProvider(RestConfig{BaseURL: srv.URL})
	from := time.Now()
	_, err := p.FetchCandles(context.Background(), "BTC", market.Timeframe1m, from, from.Add(time.Hour))
	if err == nil {
		t.Fatal("expected an error on 429")
	}
}

type fakeBarStore struct {
	inserted []market.OhlcBar
}

func (f *fakeBarStore) InsertBars(ctx context.Context, bars []market.OhlcBar) error {
	f.inserted = append(f.inserted, bars...)
	return nil
}

func TestBackfill_WritesFetchedBars(t *testing.T) {
	from := time.Now()
	resp := candleResponse{
		Open: []float64{1, 2}, High: []float64{1, 2}, Low: []float64{1, 2}, Close: []float64{1, 2}, Volume: []float64{1, 2},
		Timestamp: []int64{from.Unix(), from.Add(time.Minute).Unix()},
	}
	srv := makeMockCandleServer(t, resp)
	defer srv.Close()

	provider := NewRestProvider(RestConfig{BaseURL: srv.URL, APIKey: "test-key"})
	store := &fakeBarStore{}

	n, err := Backfill(context.Background(), provider, store, "BTC", market.Timeframe1m, from, from.Add(time.Hour))
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if n != 2 || len(store.inserted) != 2 {
		t.Errorf("expected 2 bars written, got n=%d inserted=%d", n, len(store.inserted))
	}
}
