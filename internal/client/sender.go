// Package client reports local window usage to a monitor server.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Allen-B1/monitor-v3/internal/usage"
	"github.com/goccy/go-json"
)

const requestTimeout = 10 * time.Second

// Sender delivers reports to the server.
type Sender interface {
	SendBatch(ctx context.Context, account string, batch *usage.Batch) error
	SendDevice(ctx context.Context, account string, record usage.DeviceRecord) error
}

// HTTPSender posts reports to the server's JSON API.
type HTTPSender struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSender creates a sender for the server at baseURL.
func NewHTTPSender(baseURL string) (*HTTPSender, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", baseURL)
	}

	return &HTTPSender{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: requestTimeout},
	}, nil
}

// SendBatch posts a usage batch to /api/{account}/add.
func (s *HTTPSender) SendBatch(ctx context.Context, account string, batch *usage.Batch) error {
	return s.post(ctx, account, "add", batch)
}

// SendDevice posts device info to /api/{account}/device.
func (s *HTTPSender) SendDevice(ctx context.Context, account string, record usage.DeviceRecord) error {
	return s.post(ctx, account, "device", record)
}

func (s *HTTPSender) post(ctx context.Context, account, endpoint string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", endpoint, err)
	}

	target := fmt.Sprintf("%s/api/%s/%s", s.baseURL, url.PathEscape(account), endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("server rejected %s: %s: %s", endpoint, resp.Status, bytes.TrimSpace(msg))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
