package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ParseResult mirrors the server's ExtractedResult payload.
type ParseResult struct {
	Name         string  `json:"name"`
	CurrentPrice string  `json:"currentPrice"`
	OldPrice     *string `json:"oldPrice"`
	InStock      bool    `json:"inStock"`
}

// Checker posts URLs to a price tracker's /parse endpoint.
type Checker struct {
	endpoint string
	client   *http.Client
}

// NewChecker creates a Checker for the server at apiURL.
func NewChecker(apiURL string, timeout time.Duration) *Checker {
	return &Checker{
		endpoint: strings.TrimRight(apiURL, "/") + "/parse",
		client:   &http.Client{Timeout: timeout},
	}
}

// Check asks the server for one URL.
func (c *Checker) Check(ctx context.Context, productURL string) (*ParseResult, error) {
	body, err := json.Marshal(map[string]string{"url": productURL})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out ParseResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// CheckAll checks urls one by one and logs each outcome. Failures are
// logged and do not stop the run.
func (c *Checker) CheckAll(ctx context.Context, urls []string) {
	slog.Info("price check started", "urls", len(urls))
	for _, u := range urls {
		if ctx.Err() != nil {
			return
		}
		res, err := c.Check(ctx, u)
		if err != nil {
			slog.Warn("price check failed", "url", u, "error", err)
			continue
		}
		oldPrice := ""
		if res.OldPrice != nil {
			oldPrice = *res.OldPrice
		}
		slog.Info("price checked",
			"url", u,
			"name", res.Name,
			"currentPrice", res.CurrentPrice,
			"oldPrice", oldPrice,
			"inStock", res.InStock,
		)
	}
	slog.Info("price check finished")
}

type urlsFile struct {
	URLs []string `yaml:"urls"`
}

// loadURLs reads a YAML document with a top-level "urls" list.
func loadURLs(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read urls file: %w", err)
	}
	var f urlsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse urls file: %w", err)
	}
	out := make([]string, 0, len(f.URLs))
	for _, u := range f.URLs {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out, nil
}
