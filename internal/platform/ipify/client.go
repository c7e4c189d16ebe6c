package ipify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

type lookupResponse struct {
	IP string `json:"ip"`
}

func NewClient(baseURL string, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(5 * time.Second).
		SetHeader("Accept", "application/json")

	return &Client{httpClient: client, logger: logger}
}

// PublicIP asks the lookup service for the caller's public address.
func (c *Client) PublicIP(ctx context.Context) (string, error) {
	var response lookupResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("format", "json").
		SetResult(&response).
		Get("/")
	if err != nil {
		c.logger.Warn("public IP lookup failed", zap.Error(err))
		return "", fmt.Errorf("failed to look up public IP: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("public IP lookup returned status %d", resp.StatusCode())
	}
	if response.IP == "" {
		return "", errors.New("public IP lookup returned no address")
	}
	return response.IP, nil
}
