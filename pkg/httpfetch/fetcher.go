// Package httpfetch implements ports.SpecFetcher over plain HTTP GET.
package httpfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/ports"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/specadapter"
)

// DefaultTimeout bounds a single spec fetch.
const DefaultTimeout = 20 * time.Second

// MaxSpecBytes caps the size of a fetched spec document.
const MaxSpecBytes = 10 << 20 // 10 MiB

// Fetcher is the production ports.SpecFetcher.
type Fetcher struct {
	client *http.Client
}

// New builds a Fetcher. A nil client gets a DefaultTimeout default.
func New(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &Fetcher{client: client}
}

// Fetch retrieves url's body and classifies it as JSON or YAML using the
// same heuristic specadapter.DetectFormat applies to locally-supplied spec
// content, so both ingestion paths agree on format.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, ports.SpecFormat, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build spec request: %w", err)
	}
	req.Header.Set("Accept", "application/json, application/yaml, text/yaml, */*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch spec: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("fetch spec: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxSpecBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read spec body: %w", err)
	}
	if len(body) > MaxSpecBytes {
		return nil, "", fmt.Errorf("spec body exceeds %d bytes", MaxSpecBytes)
	}

	return body, specadapter.DetectFormat(body), nil
}
