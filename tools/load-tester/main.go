package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

var (
	eventNames = []string{"page_view", "click", "signup", "add_to_cart", "checkout"}
	devices    = []string{"mobile", "desktop", "tablet", ""}
)

func main() {
	baseURL := flag.String("url", "http://localhost:4000", "Base URL of the analytics API")
	apiKey := flag.String("api-key", "", "API key; a new app is registered when empty")
	concurrency := flag.Int("c", 10, "Number of concurrent workers")
	duration := flag.Duration("d", 30*time.Second, "Duration of the load test")
	rps := flag.Int("rps", 500, "Requests per second limit")
	batch := flag.Int("batch", 1, "Events per request; values above 1 send NDJSON")
	users := flag.Int("users", 1000, "Number of distinct user ids to spread events over")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	client := &http.Client{Timeout: 5 * time.Second}
	base := strings.TrimRight(*baseURL, "/")

	key := *apiKey
	if key == "" {
		var err error
		key, err = register(client, base)
		if err != nil {
			logger.Error("failed to register load test app", "error", err)
			os.Exit(1)
		}
		logger.Info("registered load test app")
	}

	target := base + "/api/analytics/collect"
	logger.Info("starting load test", "url", target, "concurrency", *concurrency, "duration", *duration, "rps", *rps, "batch", *batch)

	var wg sync.WaitGroup
	var successCount, errorCount, limitedCount atomic.Int64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(*rps), 100) // Allow bursts up to 100

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if err := limiter.Wait(ctx); err != nil {
					return
				}

				body, contentType := payload(*batch, *users)
				req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
				if err != nil {
					continue
				}
				req.Header.Set("Content-Type", contentType)
				req.Header.Set("X-API-Key", key)

				resp, err := client.Do(req)
				if err != nil {
					if ctx.Err() == nil {
						errorCount.Add(1)
					}
					continue
				}
				switch resp.StatusCode {
				case http.StatusCreated:
					successCount.Add(1)
				case http.StatusTooManyRequests:
					limitedCount.Add(1)
				default:
					errorCount.Add(1)
				}
				resp.Body.Close()
			}
		}()
	}

	wg.Wait()

	total := successCount.Load() + errorCount.Load() + limitedCount.Load()
	logger.Info("load test finished",
		"total_requests", total,
		"created", successCount.Load(),
		"rate_limited", limitedCount.Load(),
		"errors", errorCount.Load(),
		"actual_rps", fmt.Sprintf("%.2f", float64(total)/duration.Seconds()),
		"events_per_second", fmt.Sprintf("%.2f", float64(successCount.Load()*int64(*batch))/duration.Seconds()),
	)
}

func register(client *http.Client, base string) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"name":       "load-tester",
		"ownerEmail": fmt.Sprintf("load-%s@example.com", uuid.NewString()[:8]),
	})
	resp, err := client.Post(base+"/api/auth/register", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		Data struct {
			APIKey string `json:"apiKey"`
		} `json:"data"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("register returned %d: %s", resp.StatusCode, out.Error)
	}
	return out.Data.APIKey, nil
}

func payload(batch, users int) ([]byte, string) {
	if batch <= 1 {
		b, _ := json.Marshal(randomEvent(users))
		return b, "application/json"
	}
	var buf bytes.Buffer
	for i := 0; i < batch; i++ {
		b, _ := json.Marshal(randomEvent(users))
		buf.Write(b)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), "application/x-ndjson"
}

func randomEvent(users int) map[string]any {
	return map[string]any{
		"event":     eventNames[rand.IntN(len(eventNames))],
		"url":       "https://shop.example.com/p/" + uuid.NewString()[:8],
		"device":    devices[rand.IntN(len(devices))],
		"userId":    fmt.Sprintf("user-%d", rand.IntN(users)),
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"metadata":  map[string]any{"browser": "Chrome", "loadTest": true},
	}
}
