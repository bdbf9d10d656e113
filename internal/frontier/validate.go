package frontier

import (
	"context"
	"fmt"
	"net"
	"net/url"

	"github.com/JakeFAU/realtime-search-crawler/internal/search"
)

// HostResolver is the subset of *net.Resolver used for DNS validation.
type HostResolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// DNSValidator checks that a URL parses and that its host resolves.
type DNSValidator struct {
	resolver HostResolver
}

// NewDNSValidator builds a validator; a nil resolver uses net.DefaultResolver.
func NewDNSValidator(resolver HostResolver) *DNSValidator {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &DNSValidator{resolver: resolver}
}

// Validate returns an error wrapping search.ErrInvalidTarget on any failure.
func (v *DNSValidator) Validate(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", search.ErrInvalidTarget, rawURL, err)
	}
	if u.Scheme == "" || u.Hostname() == "" {
		return fmt.Errorf("%w: %s: missing scheme or host", search.ErrInvalidTarget, rawURL)
	}
	if _, err := v.resolver.LookupHost(ctx, u.Hostname()); err != nil {
		return fmt.Errorf("%w: %s: %w", search.ErrInvalidTarget, rawURL, err)
	}
	return nil
}
