// Package ingest is a generic, rate-limited, day-chunked REST OHLC
// backfill client. The live market-data feed is an external
// collaborator's responsibility (spec §1); this package exists so the
// engine's own backfill subcommand isn't a bare stub, and so swapping
// exchange REST APIs means writing a new DataProvider rather than a new
// subcommand.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/nitinkhare/cryptopaper/internal/market"
)

// maxChunkDays bounds a single request's date range; providers that
// allow a wider window still get chunked requests so a timeout only
// loses one chunk's worth of data, not the whole backfill.
const maxChunkDays = 30

// DataProvider fetches historical OHLC candles for one symbol and
// timeframe over [from, to]. Implementations own their own auth,
// pagination, and rate limiting beyond the day-chunking this package
// already does.
type DataProvider interface {
	FetchCandles(ctx context.Context, symbol string, tf market.Timeframe, from, to time.Time) ([]market.OhlcBar, error)
}

// Store persists backfilled bars. A narrow write-only surface so this
// package never depends on internal/storage.
type Store interface {
	InsertBars(ctx context.Context, bars []market.OhlcBar) error
}

// RestConfig configures a RestProvider against a generic JSON REST
// candle endpoint.
type RestConfig struct {
	BaseURL    string
	APIKey     string
	RateLimit  time.Duration // minimum interval between requests
	HTTPClient *http.Client
}

// RestProvider implements DataProvider against a REST endpoint that
// returns parallel OHLCV arrays, the common shape for exchange
// historical-candle APIs.
type RestProvider struct {
	cfg         RestConfig
	client      *http.Client
	rateMu      sync.Mutex
	lastRequest time.Time
}

// NewRestProvider builds a RestProvider. A zero RateLimit disables
// throttling (useful for tests against an httptest.Server).
func NewRestProvider(cfg RestConfig) *RestProvider {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &RestProvider{cfg: cfg, client: client}
}

type candleResponse struct {
	Open      []float64 `json:"open"`
	High      []float64 `json:"high"`
	Low       []float64 `json:"low"`
	Close     []float64 `json:"close"`
	Volume    []float64 `json:"volume"`
	Timestamp []int64   `json:"timestamp"`
}

// FetchCandles implements DataProvider, chunking [from, to] into
// maxChunkDays windows and rate-limiting between chunk requests.
func (r *RestProvider) FetchCandles(ctx context.Context, symbol string, tf market.Timeframe, from, to time.Time) ([]market.OhlcBar, error) {
	var all []market.OhlcBar

	chunkStart := from
	for chunkStart.Before(to) {
		chunkEnd := chunkStart.AddDate(0, 0, maxChunkDays)
		if chunkEnd.After(to) {
			chunkEnd = to
		}

		r.throttle()

		bars, err := r.fetchChunk(ctx, symbol, tf, chunkStart, chunkEnd)
		if err != nil {
			return all, fmt.Errorf("ingest: fetch %s chunk [%s, %s]: %w",
				symbol, chunkStart.Format(time.RFC3339), chunkEnd.Format(time.RFC3339), err)
		}
		all = append(all, bars...)
		chunkStart = chunkEnd
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	return all, nil
}

func (r *RestProvider) fetchChunk(ctx context.Context, symbol string, tf market.Timeframe, from, to time.Time) ([]market.OhlcBar, error) {
	url := fmt.Sprintf("%s/candles?symbol=%s&timeframe=%s&from=%d&to=%d",
		r.cfg.BaseURL, symbol, tf, from.Unix(), to.Unix())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if r.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limited (429)")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned %d: %s", resp.StatusCode, string(body))
	}

	var cr candleResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	bars := make([]market.OhlcBar, 0, len(cr.Timestamp))
	for i := range cr.Timestamp {
		bars = append(bars, market.OhlcBar{
			Symbol:    symbol,
			Timeframe: tf,
			Timestamp: time.Unix(cr.Timestamp[i], 0).UTC(),
			Open:      cr.Open[i],
			High:      cr.High[i],
			Low:       cr.Low[i],
			Close:     cr.Close[i],
			Volume:    cr.Volume[i],
		})
	}
	return bars, nil
}

// throttle enforces cfg.RateLimit between outgoing requests.
func (r *RestProvider) throttle() {
	if r.cfg.RateLimit <= 0 {
		return
	}
	r.rateMu.Lock()
	defer r.rateMu.Unlock()

	elapsed := time.Since(r.lastRequest)
	if elapsed < r.cfg.RateLimit {
		time.Sleep(r.cfg.RateLimit - elapsed)
	}
	r.lastRequest = time.Now()
}

// Backfill fetches [from, to] from provider and writes it to store.
// Bars are written even if the provider returns a partial result for
// the trailing chunks, so a mid-range fetch failure keeps what it
// already staged instead of discarding the whole range.
func Backfill(ctx context.Context, provider DataProvider, store Store, symbol string, tf market.Timeframe, from, to time.Time) (int, error) {
	bars, fetchErr := provider.FetchCandles(ctx, symbol, tf, from, to)
	if len(bars) == 0 {
		if fetchErr != nil {
			return 0, fetchErr
		}
		return 0, nil
	}
	if err := store.InsertBars(ctx, bars); err != nil {
		return 0, fmt.Errorf("ingest: write %d bars for %s: %w", len(bars), symbol, err)
	}
	return len(bars), fetchErr
}
