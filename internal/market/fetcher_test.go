package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeStore struct {
	todayErr  error
	recentErr error
	baseBars  []OhlcBar
	calls     map[Source]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{calls: make(map[Source]int)}
}

func (s *fakeStore) QueryBase(_ context.Context, symbol string, tf Timeframe, from, to time.Time) ([]OhlcBar, error) {
	s.calls[SourceBase]++
	return s.baseBars, nil
}

func (s *fakeStore) QueryTodayView(_ context.Context, symbol string, tf Timeframe, from, to time.Time) ([]OhlcBar, error) {
	s.calls[SourceToday]++
	if s.todayErr != nil {
		return nil, s.todayErr
	}
	return s.baseBars, nil
}

func (s *fakeStore) QueryRecentView(_ context.Context, symbol string, tf Timeframe, from, to time.Time) ([]OhlcBar, error) {
	s.calls[SourceRecent]++
	if s.recentErr != nil {
		return nil, s.recentErr
	}
	return s.baseBars, nil
}

func (s *fakeStore) LatestBar(_ context.Context, symbol string, tf Timeframe) (*OhlcBar, error) {
	if len(s.baseBars) == 0 {
		return nil, nil
	}
	b := s.baseBars[len(s.baseBars)-1]
	return &b, nil
}

func TestRouteSource(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		age  time.Duration
		want Source
	}{
		{time.Hour, SourceToday},
		{23 * time.Hour, SourceToday},
		{2 * 24 * time.Hour, SourceRecent},
		{6 * 24 * time.Hour, SourceRecent},
		{30 * 24 * time.Hour, SourceBase},
	}
	for _, c := range cases {
		got := routeSource(now.Add(-c.age), now)
		if got != c.want {
			t.Errorf("routeSource(age=%v) = %s, want %s", c.age, got, c.want)
		}
	}
}

func TestHybridDataFetcher_FallsBackOnViewUnavailable(t *testing.T) {
	store := newFakeStore()
	store.todayErr = ErrViewUnavailable
	store.baseBars = []OhlcBar{{Symbol: "BTC", Timeframe: Timeframe1h, Timestamp: time.Now()}}

	f := NewHybridDataFetcher(store, nil, FetcherConfig{}, zap.NewNop())
	bars, err := f.GetRecent(context.Background(), "BTC", Timeframe1h, 4)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(bars) != 1 {
		t.Fatalf("expected 1 bar, got %d", len(bars))
	}
	if store.calls[SourceToday] == 0 || store.calls[SourceBase] == 0 {
		t.Errorf("expected fallback from today view to base table, calls=%v", store.calls)
	}
}

func TestHybridDataFetcher_CachesRepeatedQueries(t *testing.T) {
	store := newFakeStore()
	store.baseBars = []OhlcBar{{Symbol: "ETH", Timeframe: Timeframe1h, Timestamp: time.Now()}}

	f := NewHybridDataFetcher(store, nil, FetcherConfig{}, zap.NewNop())
	ctx := context.Background()

	if _, err := f.GetRecent(ctx, "ETH", Timeframe1h, 4); err != nil {
		t.Fatalf("first call: %v", err)
	}
	callsAfterFirst := store.calls[SourceToday]

	if _, err := f.GetRecent(ctx, "ETH", Timeframe1h, 4); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if store.calls[SourceToday] != callsAfterFirst {
		t.Errorf("expected second call to be served from cache, store calls grew from %d to %d",
			callsAfterFirst, store.calls[SourceToday])
	}
}

func TestHybridDataFetcher_RejectsBadWindow(t *testing.T) {
	store := newFakeStore()
	f := NewHybridDataFetcher(store, nil, FetcherConfig{}, zap.NewNop())
	_, err := f.GetSlice(context.Background(), "BTC", Timeframe1h, time.Now(), time.Now().Add(-time.Hour))
	if err == nil {
		t.Fatal("expected error for fromT >= toT")
	}
}

func TestHybridDataFetcher_LatestBarPropagatesError(t *testing.T) {
	store := &erroringLatestStore{fakeStore: newFakeStore(), err: errors.New("boom")}
	f := NewHybridDataFetcher(store, nil, FetcherConfig{}, zap.NewNop())
	_, err := f.LatestBar(context.Background(), "BTC", Timeframe1m)
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}
}

type erroringLatestStore struct {
	*fakeStore
	err error
}

func (s *erroringLatestStore) LatestBar(_ context.Context, _ string, _ Timeframe) (*OhlcBar, error) {
	return nil, s.err
}
