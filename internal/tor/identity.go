package tor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nao1215/torrecon/internal/config"
	"github.com/nao1215/torrecon/internal/model"
)

// maxIdentityBody caps how much of the identity response is read. The
// endpoint answers with a single address.
const maxIdentityBody = 256

// HTTPDoer is the part of *http.Client the identity provider needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// IdentityProvider reports the egress identity of the current Tor circuit.
type IdentityProvider struct {
	url    string
	client HTTPDoer
	logger *slog.Logger
}

// IdentityOption configures an IdentityProvider.
type IdentityOption func(*IdentityProvider)

// WithHTTPClient replaces the proxied HTTP client.
func WithHTTPClient(client HTTPDoer) IdentityOption {
	return func(p *IdentityProvider) {
		p.client = client
	}
}

// WithIdentityLogger sets the logger used for failed lookups.
func WithIdentityLogger(logger *slog.Logger) IdentityOption {
	return func(p *IdentityProvider) {
		p.logger = logger
	}
}

// NewIdentityProvider creates a provider that queries cfg.IdentityURL
// through client. The HTTP client is built from the same ProxyConfig as
// the executor, so lookups leave through the same proxy and scheme.
func NewIdentityProvider(client *Client, opts ...IdentityOption) *IdentityProvider {
	cfg := client.ProxyConfig()
	p := &IdentityProvider{
		url:    cfg.IdentityURL,
		client: client.NewHTTPClient(cfg.IdentityTimeout),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewIdentityProviderFromConfig is a convenience for callers that have a
// ProxyConfig but no Client yet.
func NewIdentityProviderFromConfig(cfg config.ProxyConfig, opts ...IdentityOption) (*IdentityProvider, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewIdentityProvider(client, opts...), nil
}

// Lookup performs one GET against the identity endpoint. The trimmed body
// becomes the identity label. Failures are returned as *IdentityLookupError.
func (p *IdentityProvider) Lookup(ctx context.Context) (model.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return model.UnknownIdentity, &IdentityLookupError{URL: p.url, Err: err}
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := p.client.Do(req)
	if err != nil {
		return model.UnknownIdentity, &IdentityLookupError{URL: p.url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.UnknownIdentity, &IdentityLookupError{
			URL: p.url,
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIdentityBody))
	if err != nil {
		return model.UnknownIdentity, &IdentityLookupError{URL: p.url, Err: err}
	}
	label := strings.TrimSpace(string(body))
	if label == "" {
		return model.UnknownIdentity, &IdentityLookupError{URL: p.url, Err: ErrEmptyIdentity}
	}
	return model.NewIdentity(label), nil
}

// Current returns the current identity, or model.UnknownIdentity if the
// lookup fails for any reason. It never retries.
func (p *IdentityProvider) Current(ctx context.Context) model.Identity {
	id, err := p.Lookup(ctx)
	if err != nil {
		p.logger.Warn("identity lookup failed", "url", p.url, "error", err)
		return model.UnknownIdentity
	}
	return id
}
