// Command poller calls a price tracker's /parse endpoint for a fixed list
// of product URLs, once or on a cron schedule, and logs every result.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "poller",
	Short: "Periodically check product prices through a price tracker server",
	Long: `Poller posts every configured product URL to the server's /parse
endpoint and logs name, current price, old price and stock status.

Examples:
  # Check once and exit
  poller --api http://localhost:8000 -u https://rozetka.com.ua/ua/p123/

  # Check a URL list every 6 hours
  poller --urls-file urls.yaml --schedule "0 0 */6 * * *"`,
	SilenceUsage: true,
	RunE:         runPoller,
}

func init() {
	f := rootCmd.Flags()
	f.String("api", envOr("PRICE_API_URL", "http://localhost:8000"), "price tracker base URL")
	f.StringSliceP("url", "u", nil, "product URL to check (repeatable)")
	f.String("urls-file", "", "YAML file with a top-level 'urls' list")
	f.String("schedule", "", "cron spec with seconds field; empty runs once")
	f.Duration("timeout", 30*time.Second, "per-request timeout")
	f.Bool("debug", false, "enable debug logging")
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runPoller(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	apiURL, _ := f.GetString("api")
	urls, _ := f.GetStringSlice("url")
	urlsFile, _ := f.GetString("urls-file")
	schedule, _ := f.GetString("schedule")
	timeout, _ := f.GetDuration("timeout")
	debug, _ := f.GetBool("debug")

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	if urlsFile != "" {
		fromFile, err := loadURLs(urlsFile)
		if err != nil {
			return err
		}
		urls = append(urls, fromFile...)
	}
	if len(urls) == 0 {
		return errors.New("no URLs to check: use --url or --urls-file")
	}

	checker := NewChecker(apiURL, timeout)
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if schedule == "" {
		checker.CheckAll(ctx, urls)
		return nil
	}

	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(schedule, func() { checker.CheckAll(ctx, urls) }); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	// Also run immediately on startup.
	go checker.CheckAll(ctx, urls)
	c.Start()
	slog.Info("poller scheduled", "schedule", schedule, "urls", len(urls))

	<-ctx.Done()
	<-c.Stop().Done()
	slog.Info("poller stopped")
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
