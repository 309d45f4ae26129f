// Package replicate runs the season-summary refinement prompt against the
// Replicate predictions API.
package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-data-backfill/internal/config"
	"github.com/couchcryptid/storm-data-backfill/internal/domain"
	"github.com/couchcryptid/storm-data-backfill/internal/observability"
)

// ErrEmptyCompletion reports a prediction that succeeded with no usable text.
var ErrEmptyCompletion = errors.New("model returned an empty completion")

// predictionWaitSeconds is the sync-mode budget requested via the Prefer
// header. Predictions still pending after this window are polled.
const predictionWaitSeconds = 60

// question is the instruction the refinement prompt wraps around the season table.
const question = "Can you format the hurricane data into a concise structured table with Storm name, Date start, Date end, Areas affected, and Deaths?"

// Prediction lifecycle statuses, per the Replicate API.
const (
	statusStarting   = "starting"
	statusProcessing = "processing"
	statusSucceeded  = "succeeded"
	statusFailed     = "failed"
	statusCanceled   = "canceled"
)

// Client calls the Replicate predictions API for a single model.
type Client struct {
	token        string
	model        string // owner/name
	baseURL      string
	httpClient   *http.Client
	clock        clockwork.Clock
	pollInterval time.Duration
	metrics      *observability.Metrics
	logger       *slog.Logger
}

// NewClient creates a Replicate predictions client.
func NewClient(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		token: cfg.ReplicateToken,
		model: cfg.ReplicateModel,
		httpClient: &http.Client{
			Timeout: cfg.ModelTimeout,
		},
		baseURL:      strings.TrimRight(cfg.ReplicateBaseURL, "/"),
		clock:        clockwork.NewRealClock(),
		pollInterval: cfg.PollInterval,
		metrics:      metrics,
		logger:       logger,
	}
}

// Refine sends the season table through the model and returns the raw
// completion text. The create call asks for sync mode; a prediction still
// pending afterwards is polled on the configured interval until it reaches a
// terminal status or ctx expires. A failed request is never retried.
func (c *Client) Refine(ctx context.Context, seasonTable domain.SeasonTable) (string, error) {
	start := time.Now()

	pred, err := c.createPrediction(ctx, BuildPrompt(seasonTable.Markdown))
	if err != nil {
		c.metrics.ModelRequests.WithLabelValues("error").Inc()
		return "", err
	}

	pred, err = c.awaitPrediction(ctx, pred)
	if err != nil {
		c.metrics.ModelRequests.WithLabelValues("error").Inc()
		return "", err
	}

	// Scrub the empty-brace artifacts llama occasionally emits.
	completion := strings.Join(pred.Output, "")
	completion = strings.TrimSpace(strings.ReplaceAll(completion, "{}", ""))
	if completion == "" {
		c.metrics.ModelRequests.WithLabelValues("error").Inc()
		return "", fmt.Errorf("prediction %s: %w", pred.ID, ErrEmptyCompletion)
	}

	c.metrics.ModelRequests.WithLabelValues("success").Inc()
	c.metrics.ModelDuration.Observe(time.Since(start).Seconds())
	c.logger.Info("completion received", "prediction_id", pred.ID, "chars", len(completion))

	return completion, nil
}

// BuildPrompt wraps season table text in the refinement instruction. Exported
// so genmock fixtures and smoke tests reproduce the production prompt.
func BuildPrompt(seasonTable string) string {
	return seasonTable + "\n\n" +
		"Please provide the data in a structured table format. The table should have the following columns: " +
		"Storm Name, Date Start, Date End, Areas Affected, and Deaths. " +
		"Each row should represent a different storm. Ensure that there are no extra comments or text outside the table." +
		"\n\nQuestion: " + question + "\n\n" +
		"Table format example:\n" +
		"| Storm Name | Date Start | Date End | Areas Affected | Deaths |\n" +
		"| --- | --- | --- | --- | --- |\n" +
		"| Example Storm | January 1 | January 5 | Location A | 10 |\n" +
		"Please follow this format exactly.\n"
}

func (c *Client) createPrediction(ctx context.Context, prompt string) (prediction, error) {
	payload := predictionRequest{
		Input: predictionInput{
			Prompt:          prompt,
			TopP:            0.9,
			MinTokens:       0,
			Temperature:     0.6,
			PresencePenalty: 1.15,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return prediction{}, fmt.Errorf("encode prediction request: %w", err)
	}

	u := fmt.Sprintf("%s/v1/models/%s/predictions", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return prediction{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", fmt.Sprintf("wait=%d", predictionWaitSeconds))

	return c.doPredictionRequest(req, "create")
}

// awaitPrediction drives a prediction to a terminal status. Polling finishes
// the one logical model call; it is not a retry.
func (c *Client) awaitPrediction(ctx context.Context, pred prediction) (prediction, error) {
	for {
		switch pred.Status {
		case statusSucceeded:
			return pred, nil
		case statusFailed, statusCanceled:
			return prediction{}, fmt.Errorf("prediction %s %s: %s", pred.ID, pred.Status, errorDetail(pred))
		case statusStarting, statusProcessing:
		default:
			return prediction{}, fmt.Errorf("prediction %s: unexpected status %q", pred.ID, pred.Status)
		}

		if pred.URLs.Get == "" {
			return prediction{}, fmt.Errorf("prediction %s: pending with no poll URL", pred.ID)
		}

		c.logger.Debug("prediction pending", "prediction_id", pred.ID, "status", pred.Status)
		select {
		case <-ctx.Done():
			return prediction{}, fmt.Errorf("await prediction: %w", ctx.Err())
		case <-c.clock.After(c.pollInterval):
		}

		var err error
		pred, err = c.getPrediction(ctx, pred.URLs.Get)
		if err != nil {
			return prediction{}, err
		}
		c.metrics.ModelPolls.Inc()
	}
}

func (c *Client) getPrediction(ctx context.Context, pollURL string) (prediction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pollURL, nil)
	if err != nil {
		return prediction{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	return c.doPredictionRequest(req, "poll")
}

func (c *Client) doPredictionRequest(req *http.Request, action string) (prediction, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return prediction{}, fmt.Errorf("%s prediction: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return prediction{}, fmt.Errorf("replicate API error: status %d: %s", resp.StatusCode, body)
	}

	var pred prediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return prediction{}, fmt.Errorf("decode prediction: %w", err)
	}
	return pred, nil
}

// errorDetail renders the prediction error field, which the API types as
// string-or-null but occasionally populates with a structured object.
func errorDetail(pred prediction) string {
	if pred.Error == nil {
		return "no detail"
	}
	return fmt.Sprint(pred.Error)
}

// Replicate API request/response types, trimmed to the fields the client uses.

type predictionRequest struct {
	Input predictionInput `json:"input"`
}

type predictionInput struct {
	Prompt          string  `json:"prompt"`
	TopP            float64 `json:"top_p"`
	MinTokens       int     `json:"min_tokens"`
	Temperature     float64 `json:"temperature"`
	PresencePenalty float64 `json:"presence_penalty"`
}

type prediction struct {
	ID     string   `json:"id"`
	Status string   `json:"status"`
	Output []string `json:"output"` // language models stream text chunks
	Error  any      `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}
