package reports

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// GotenbergClient converts HTML into PDF through a Gotenberg instance.
type GotenbergClient struct {
	http *resty.Client
}

// NewGotenbergClient constructs a new client.
func NewGotenbergClient(baseURL string, timeout time.Duration) *GotenbergClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout)
	return &GotenbergClient{http: client}
}

// Ping checks if the remote Gotenberg service is available.
func (c *GotenbergClient) Ping(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/health")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("gotenberg returned status %d", resp.StatusCode())
	}
	return nil
}

// RenderHTML converts a single HTML document into a PDF.
func (c *GotenbergClient) RenderHTML(ctx context.Context, html string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader("files", "index.html", strings.NewReader(html)).
		Post("/forms/chromium/convert/html")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("render failed with status %d", resp.StatusCode())
	}
	return resp.Body(), nil
}
