package invalidation

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPRevalidator posts revalidation requests to the storefront's
// revalidate endpoint, authenticated by a shared secret.
type HTTPRevalidator struct {
	baseURL string
	secret  string
	client  *http.Client
}

// NewHTTPRevalidator creates a revalidator targeting baseURL.
func NewHTTPRevalidator(baseURL, secret string) *HTTPRevalidator {
	return &HTTPRevalidator{
		baseURL: baseURL,
		secret:  secret,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (h *HTTPRevalidator) Revalidate(ctx context.Context, path string) error {
	endpoint := h.baseURL + "/api/revalidate?path=" + url.QueryEscape(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	if h.secret != "" {
		req.Header.Set("Authorization", "Bearer "+h.secret)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revalidate %s: status %d", path, resp.StatusCode)
	}
	return nil
}
