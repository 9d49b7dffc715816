/*
httpfeed.go - HTTP client for the provider's document listing endpoint

PURPOSE:
  Minimal JSON-over-HTTP feed implementation. The provider's document
  creation and stamping flows are out of scope; this client only reads
  the listing endpoint.

FAILURE SEMANTICS:
  Every failure (transport, auth, decode) wraps ledger.ErrProviderFetch
  so the reconciler can abort the sync pass before any mutation.
*/
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/warp/bookkeeper/ledger"
)

// HTTPFeed reads documents from GET {BaseURL}/documents.
type HTTPFeed struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewHTTPFeed(baseURL, token string) *HTTPFeed {
	return &HTTPFeed{
		BaseURL: baseURL,
		Token:   token,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (f *HTTPFeed) ListDocuments(ctx context.Context, since *time.Time) ([]Document, error) {
	endpoint, err := url.JoinPath(f.BaseURL, "documents")
	if err != nil {
		return nil, fmt.Errorf("%w: bad base url %q: %v", ledger.ErrProviderFetch, f.BaseURL, err)
	}
	if since != nil {
		endpoint += "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrProviderFetch, err)
	}
	if f.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.Token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrProviderFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: provider returned %s", ledger.ErrProviderFetch, resp.Status)
	}

	var payload struct {
		Documents []Document `json:"documents"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ledger.ErrProviderFetch, err)
	}
	return payload.Documents, nil
}

func (f *HTTPFeed) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return http.DefaultClient
}
