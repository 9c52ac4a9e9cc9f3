// Package provider queries the payment provider for a transaction's current
// status when webhooks are late or lost.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/paylane/settlement/internal/domain"
)

type statusResponse struct {
	Status string `json:"status"`
}

type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	return &Client{
		http:   httpClient,
		logger: logger.With("component", "provider"),
	}
}

// FetchStatus returns the provider's raw status string for ref.
func (c *Client) FetchStatus(ctx context.Context, ref string) (string, error) {
	var body statusResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParam("ref", ref).
		SetResult(&body).
		Get("/transactions/{ref}")
	if err != nil {
		return "", fmt.Errorf("fetch status of %s: %w: %w", ref, domain.ErrProviderUnavailable, err)
	}

	switch res.StatusCode() {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", fmt.Errorf("provider has no transaction %s: %w", ref, domain.ErrNotFound)
	default:
		c.logger.Warn("provider status query failed", "ref", ref, "http_status", res.StatusCode())
		return "", fmt.Errorf("fetch status of %s: unexpected HTTP %d: %w", ref, res.StatusCode(), domain.ErrProviderUnavailable)
	}

	if body.Status == "" {
		return "", fmt.Errorf("fetch status of %s: empty status: %w", ref, domain.ErrProviderUnavailable)
	}
	c.logger.Debug("provider status fetched", "ref", ref, "raw_status", body.Status)
	return body.Status, nil
}
