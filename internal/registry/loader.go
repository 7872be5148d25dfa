package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Loader fetches full market descriptors. Loading may be slow and may fail;
// callers surface failures to the requester instead of crashing.
type Loader interface {
	Load(ctx context.Context) ([]Market, error)
}

// StaticLoader serves descriptors already held by a registry. Used when no
// external metadata endpoint is configured.
type StaticLoader struct {
	reg *Registry
}

func NewStaticLoader(reg *Registry) *StaticLoader { return &StaticLoader{reg: reg} }

func (l *StaticLoader) Load(ctx context.Context) ([]Market, error) {
	return l.reg.Markets(), nil
}

// HTTPLoader fetches a JSON array of market descriptors from a metadata
// endpoint (typically a node RPC gateway in front of the venue program).
type HTTPLoader struct {
	url    string
	client *http.Client
}

func NewHTTPLoader(url string, timeout time.Duration) *HTTPLoader {
	return &HTTPLoader{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (l *HTTPLoader) Load(ctx context.Context) ([]Market, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build metadata request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch market metadata: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("market metadata endpoint returned %d", resp.StatusCode)
	}
	var markets []Market
	if err := json.NewDecoder(resp.Body).Decode(&markets); err != nil {
		return nil, fmt.Errorf("decode market metadata: %w", err)
	}
	return markets, nil
}
