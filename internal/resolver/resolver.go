package resolver

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/evanofslack/cloudflare-ddns-sync/internal/metrics"
	"github.com/evanofslack/cloudflare-ddns-sync/internal/record"
)

// Resolver obtains the current external address for one address family.
// The returned address always matches the requested record type; an
// endpoint answering with the wrong family is a resolution failure, not
// a coercion.
type Resolver interface {
	Resolve(ctx context.Context, rtype record.Type, endpoint string) (netip.Addr, error)
}

// Generous for the size of the response, but guarantees every lookup
// completes even under context.Background.
const requestTimeout = 15 * time.Second

// Web resolves external addresses through HTTP discovery services that
// return the bare textual IP as the response body.
type Web struct {
	http    *http.Client
	metrics *metrics.Metrics
}

func NewWeb(metrics *metrics.Metrics) *Web {
	return &Web{
		http:    &http.Client{Timeout: requestTimeout},
		metrics: metrics,
	}
}

func (w *Web) Resolve(ctx context.Context, rtype record.Type, endpoint string) (netip.Addr, error) {
	addr, err := w.lookup(ctx, rtype, endpoint)
	w.metrics.IncResolverRequest(rtype.String(), err == nil)
	return addr, err
}

func (w *Web) lookup(ctx context.Context, rtype record.Type, endpoint string) (netip.Addr, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := w.http.Do(req)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("request external IP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return netip.Addr{}, fmt.Errorf("external IP endpoint returned %s", resp.Status)
	}

	// The body is the bare address, possibly newline-terminated.
	line, _ := bufio.NewReader(resp.Body).ReadString('\n')
	addr, err := netip.ParseAddr(strings.TrimSpace(line))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("parse address from response body: %w", err)
	}

	if got := record.TypeOf(addr); got != rtype {
		return netip.Addr{}, fmt.Errorf("endpoint returned %s address %s, want %s", got.Family(), addr, rtype.Family())
	}
	return addr, nil
}
