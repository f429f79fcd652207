// Command stats prints a performance report over closed paper trades:
// win rate, profit factor, Sharpe ratio, max drawdown, and a
// per-strategy breakdown.
//
// Usage: stats [-since 30d] [-capital 10000]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nitinkhare/cryptopaper/internal/analytics"
	"github.com/nitinkhare/cryptopaper/internal/storage"
)

func main() {
	since := flag.String("since", "30d", "report window, e.g. 7d, 30d, 90d")
	capital := flag.Float64("capital", 10000, "starting equity used for drawdown calculation")
	flag.Parse()

	window, err := parseWindow(*since)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	dbURL := os.Getenv("DB_URL")
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DB_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := storage.NewPostgresStore(ctx, dbURL, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect storage: %v\n", err)
		if storage.IsStoreError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
	defer store.Close()

	report, err := analytics.Analyze(ctx, store, time.Now().Add(-window), *capital)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analyze: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(analytics.FormatReport(report))
}

// parseWindow accepts a small set of day-suffixed durations (e.g. "7d",
// "30d") since time.ParseDuration has no day unit.
func parseWindow(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, fmt.Errorf("invalid -since %q: %w", s, err)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
