// Package llm implements domain.SimilarityResolver on an OpenAI-compatible
// chat completions API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/foodlens/backend/internal/domain"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	maxAttempts    = 3
)

const systemPrompt = "You are an expert in Korean food classification. Answer with a food_id only."

// Config holds the resolver client settings
type Config struct {
	APIKey        string
	BaseURL       string
	Model         string
	RatePerMinute int
}

// Client asks a chat model which offered candidate is closest to a food name
type Client struct {
	http        *resty.Client
	model       string
	rateLimiter *rate.Limiter
	logger      *zap.Logger
	backoff     func(attempt int) time.Duration
}

// NewClient creates a resolver client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = 60
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "FoodLens/1.0")

	return &Client{
		http:        httpClient,
		model:       cfg.Model,
		rateLimiter: rate.NewLimiter(rate.Limit(float64(cfg.RatePerMinute)/60), 5),
		logger:      logger,
		backoff:     exponentialBackoff,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// ChooseBest returns the food_id the model picked, or "" when it picked none.
// The answer is not checked against candidates beyond extracting an id from it.
func (c *Client) ChooseBest(ctx context.Context, queryName string, ingredients []string, candidates []domain.SimilarityCandidate) (string, error) {
	if len(candidates) == 0 {
		return "", nil
	}

	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(queryName, ingredients, candidates)},
		},
		MaxTokens: 64,
	}

	content, err := c.complete(ctx, req)
	if err != nil {
		return "", err
	}

	id := extractFoodID(content, candidates)
	c.logger.Debug("similarity resolver answered",
		zap.String("query", queryName),
		zap.String("answer", content),
		zap.String("food_id", id),
	)
	return id, nil
}

// complete sends one chat request, retrying transport failures, 429 and 5xx
func (c *Client) complete(ctx context.Context, req chatRequest) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return "", classify(ctx, fmt.Errorf("%w: %v", domain.ErrRateLimited, err))
		}

		var out chatResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(req).
			SetResult(&out).
			Post("/chat/completions")

		switch {
		case err != nil:
			lastErr = classify(ctx, err)
			if ctx.Err() != nil {
				return "", lastErr
			}
		case resp.StatusCode() == http.StatusOK:
			if len(out.Choices) == 0 {
				return "", fmt.Errorf("%w: no choices in response", domain.ErrResolverUnavailable)
			}
			return out.Choices[0].Message.Content, nil
		case resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500:
			lastErr = fmt.Errorf("%w: status %d", domain.ErrResolverUnavailable, resp.StatusCode())
		default:
			return "", fmt.Errorf("%w: status %d: %s", domain.ErrResolverUnavailable, resp.StatusCode(), readLimited(resp.Body(), 512))
		}

		c.logger.Warn("similarity resolver request failed",
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return "", classify(ctx, ctx.Err())
		case <-time.After(c.backoff(attempt)):
		}
	}
	return "", lastErr
}

// classify maps a failed call onto the resolver sentinel errors
func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrResolverTimeout), errors.Is(err, domain.ErrResolverUnavailable):
		return err
	case errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", domain.ErrResolverTimeout, err)
	case errors.Is(err, domain.ErrRateLimited):
		return err
	default:
		return fmt.Errorf("%w: %v", domain.ErrResolverUnavailable, err)
	}
}

func buildPrompt(queryName string, ingredients []string, candidates []domain.SimilarityCandidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Choose the food_id of the food in the list most similar to %q.\n\n", queryName)
	fmt.Fprintf(&b, "Food name: %s\n", queryName)
	if len(ingredients) > 0 {
		fmt.Fprintf(&b, "Ingredients: %s\n", strings.Join(ingredients, ", "))
	} else {
		b.WriteString("Ingredients: none\n")
	}
	b.WriteString("\nFoods:\n")
	for _, c := range candidates {
		if c.Category != "" {
			fmt.Fprintf(&b, "- %s: %s (%s)\n", c.FoodID, c.Name, c.Category)
		} else {
			fmt.Fprintf(&b, "- %s: %s\n", c.FoodID, c.Name)
		}
	}
	b.WriteString("\nAnswer with the food_id only, without explanation. Answer NONE if nothing is similar.")
	return b.String()
}

// extractFoodID pulls an id out of a model answer. An offered id quoted inside a
// longer answer wins; otherwise the first token is returned as is.
func extractFoodID(content string, candidates []domain.SimilarityCandidate) string {
	answer := strings.Trim(strings.TrimSpace(content), "`\"'.")
	if answer == "" || strings.EqualFold(answer, "none") {
		return ""
	}

	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c.FoodID == answer {
			return answer
		}
		ids = append(ids, c.FoodID)
	}

	// longest first so D1 never shadows D10
	sort.Slice(ids, func(i, j int) bool { return len(ids[i]) > len(ids[j]) })
	for _, id := range ids {
		if id != "" && strings.Contains(answer, id) {
			return id
		}
	}

	if fields := strings.Fields(answer); len(fields) > 0 {
		return strings.Trim(fields[0], "`\"'.,:")
	}
	return ""
}

// exponentialBackoff returns 500ms, 1s, 2s, ... for attempts 1, 2, 3, ...
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(500*(1<<(attempt-1))) * time.Millisecond
}

func readLimited(body []byte, limit int) string {
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}

var _ domain.SimilarityResolver = (*Client)(nil)

