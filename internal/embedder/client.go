package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/semaphore"
)

// Config carries the embedder client's tunables, set from
// embedding.* configuration.
type Config struct {
	Endpoint    string
	BatchSize   int
	MaxInFlight int64
	Timeout     time.Duration
	MaxAttempts uint
}

// DefaultConfig matches the teacher's local-provider defaults scaled to an
// HTTP client (batch size tuned for "~1.5s updates" per the teacher's
// EmbedWithProgress doc comment).
func DefaultConfig(endpoint string) Config {
	return Config{
		Endpoint:    endpoint,
		BatchSize:   50,
		MaxInFlight: 4,
		Timeout:     30 * time.Second,
		MaxAttempts: 3,
	}
}

// Client is a batched HTTP client over the embedding endpoint: it preserves
// input order across batches, bounds total in-flight batches with a weighted
// semaphore, and retries transport errors and 5xx with exponential backoff
// (4xx is fatal, per SPEC_FULL.md §4.6).
type Client struct {
	cfg  Config
	http *http.Client
	sem  *semaphore.Weighted
	log  *slog.Logger
}

// New builds a Client. logger defaults to slog.Default() when nil.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 4
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		sem:  semaphore.NewWeighted(cfg.MaxInFlight),
		log:  logger,
	}
}

// embedRequestBody and embedResponseBody are the wire shapes of spec.md
// §6's embedding endpoint contract: POST {model, input} -> {data:
// [{embedding}]}. Mode never crosses the wire; it only steers which of the
// model's asymmetric encodings the caller wants, and the configured model
// id already picks the model.
type embedRequestBody struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponseBody struct {
	Data []embedDatum `json:"data"`
}

type embedDatum struct {
	Embedding []float32 `json:"embedding"`
}

// Embed embeds req.Texts in order, splitting into cfg.BatchSize-sized
// batches and returning vectors in the same order as the input. ctx
// cancellation (a superseded IndexTask) abandons any batches not yet
// started and propagates from whichever batch was in flight.
func (c *Client) Embed(ctx context.Context, req Request) ([]Embedding, error) {
	if len(req.Texts) == 0 {
		return nil, nil
	}

	out := make([]Embedding, len(req.Texts))
	numBatches := (len(req.Texts) + c.cfg.BatchSize - 1) / c.cfg.BatchSize

	for batchIdx := 0; batchIdx < numBatches; batchIdx++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		start := batchIdx * c.cfg.BatchSize
		end := min(start+c.cfg.BatchSize, len(req.Texts))
		batch := req.Texts[start:end]

		if err := c.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("embedder: acquire backpressure slot: %w", err)
		}
		vectors, err := c.embedBatch(ctx, batch, req.Model, req.OnTransientRetry)
		c.sem.Release(1)
		if err != nil {
			return nil, fmt.Errorf("embedder: batch %d/%d: %w", batchIdx+1, numBatches, err)
		}
		for i, v := range vectors {
			out[start+i] = Embedding{Vector: v}
		}
	}

	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string, model string, onTransientRetry func()) ([][]float32, error) {
	body, err := json.Marshal(embedRequestBody{Model: model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	operation := func() ([][]float32, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(httpReq)
		if err != nil {
			// Transport error: retryable.
			return nil, err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			var parsed embedResponseBody
			if err := json.Unmarshal(respBody, &parsed); err != nil {
				return nil, backoff.Permanent(fmt.Errorf("decode response: %w", err))
			}
			if len(parsed.Data) != len(texts) {
				return nil, backoff.Permanent(fmt.Errorf("embedder returned %d vectors for %d inputs", len(parsed.Data), len(texts)))
			}
			vectors := make([][]float32, len(parsed.Data))
			for i, d := range parsed.Data {
				vectors[i] = d.Embedding
			}
			return vectors, nil

		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return nil, backoff.Permanent(fmt.Errorf("%w: client error %d: %s", ErrPermanentUpstream, resp.StatusCode, string(respBody)))

		default:
			c.log.Warn("embedder: transient upstream error", "status", resp.StatusCode)
			return nil, fmt.Errorf("embedder: server error %d", resp.StatusCode)
		}
	}

	// WithNotify fires once per attempt backoff.Retry decides to retry, i.e.
	// once per transient error swallowed before the operation eventually
	// succeeds or gives up - exactly the per-attempt signal the pipeline
	// needs to keep indexer_status.error_counts.transient accurate for a
	// task that retries and still succeeds (spec.md §8 scenario 6).
	if onTransientRetry != nil {
		return backoff.Retry(ctx, operation,
			backoff.WithBackOff(backoff.NewExponentialBackOff()),
			backoff.WithMaxTries(c.cfg.MaxAttempts),
			backoff.WithNotify(func(error, time.Duration) { onTransientRetry() }),
		)
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.cfg.MaxAttempts),
	)
}
