package reconcile

import (
	"context"
	"log/slog"
	"net/netip"
	"time"

	"github.com/evanofslack/cloudflare-ddns-sync/internal/config"
	"github.com/evanofslack/cloudflare-ddns-sync/internal/metrics"
	"github.com/evanofslack/cloudflare-ddns-sync/internal/provider"
	"github.com/evanofslack/cloudflare-ddns-sync/internal/record"
	"github.com/evanofslack/cloudflare-ddns-sync/internal/resolver"
)

// Engine drives reconciliation passes: resolve the external address for
// each configured family, fetch the zone's address records, and
// converge every (host, family) pair by updating or creating records.
type Engine struct {
	resolver    resolver.Resolver
	dnsProvider provider.Provider
	metrics     *metrics.Metrics

	zoneID        string
	hosts         []string
	endpoints     map[record.Type]string
	interval      time.Duration
	createMissing bool
	dryRun        bool

	// prev and cur are the address snapshots of the previous and the
	// running pass. They are swapped between passes, never merged, so a
	// family that fails to resolve goes absent instead of stale.
	prev map[record.Type]netip.Addr
	cur  map[record.Type]netip.Addr
}

func NewEngine(res resolver.Resolver, dp provider.Provider, cfg *config.Config, metrics *metrics.Metrics) *Engine {
	endpoints := make(map[record.Type]string)
	if cfg.Endpoints.IPv4 != "" {
		endpoints[record.TypeA] = cfg.Endpoints.IPv4
	}
	if cfg.Endpoints.IPv6 != "" {
		endpoints[record.TypeAAAA] = cfg.Endpoints.IPv6
	}

	return &Engine{
		resolver:      res,
		dnsProvider:   dp,
		metrics:       metrics,
		zoneID:        cfg.DNS.ZoneID,
		hosts:         cfg.DNS.Hosts,
		endpoints:     endpoints,
		interval:      cfg.SyncInterval,
		createMissing: cfg.Reconcile.CreateMissing,
		dryRun:        cfg.Reconcile.DryRun,
		prev:          make(map[record.Type]netip.Addr),
		cur:           make(map[record.Type]netip.Addr),
	}
}

// Run executes reconciliation passes until ctx is cancelled. With no
// repeat interval configured a single pass runs and Run returns.
// Passes are never interrupted mid-way; cancellation takes effect
// between them.
func (e *Engine) Run(ctx context.Context) error {
	e.RunOnce(ctx)
	if e.interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.RunOnce(ctx)
		case <-ctx.Done():
			slog.Info("Stopping reconcile loop")
			return nil
		}
	}
}

// RunOnce executes a single reconciliation pass and rotates the address
// snapshots: the pass's addresses become the previous set and the
// current set is cleared for reuse.
func (e *Engine) RunOnce(ctx context.Context) {
	e.runPass(ctx)
	e.prev, e.cur = e.cur, e.prev
	clear(e.cur)
}

func (e *Engine) runPass(ctx context.Context) {
	start := time.Now()
	defer func() {
		e.metrics.SetSyncDuration(time.Since(start))
	}()

	// Resolve per family. A failed family is simply absent from the
	// snapshot for this pass; the next pass is the retry mechanism.
	for _, t := range record.Types() {
		endpoint, ok := e.endpoints[t]
		if !ok {
			continue
		}
		addr, err := e.resolver.Resolve(ctx, t, endpoint)
		if err != nil {
			slog.Error("Failed to resolve external address", "family", t.Family(), "endpoint", endpoint, "error", err)
			continue
		}
		e.cur[t] = addr
	}

	records, err := e.dnsProvider.ListAddressRecords(ctx, e.zoneID)
	if err != nil {
		// Diffing against a stale or empty record set could trigger
		// spurious creates, so the whole pass is skipped.
		slog.Error("Failed to list DNS records", "zone", e.zoneID, "error", err)
		e.metrics.IncSyncRun(false)
		return
	}

	for _, t := range record.Types() {
		cur, ok := e.cur[t]
		if !ok {
			continue
		}
		e.logAddressChange(t, cur)
		for _, host := range e.hosts {
			e.reconcileHost(ctx, records, t, host, cur)
		}
	}
	e.metrics.IncSyncRun(true)
}

func (e *Engine) logAddressChange(t record.Type, cur netip.Addr) {
	prev, ok := e.prev[t]
	switch {
	case !ok:
		slog.Info("External address changed", "family", t.Family(), "from", "none", "to", cur)
		e.metrics.IncAddressChange(t.String())
	case prev != cur:
		slog.Info("External address changed", "family", t.Family(), "from", prev, "to", cur)
		e.metrics.IncAddressChange(t.String())
	}
}

// reconcileHost converges one (host, family) pair against the freshly
// fetched provider records. The provider's record set is the only
// source of truth for whether an update is needed; the previous-pass
// snapshot only drives change logging.
func (e *Engine) reconcileHost(ctx context.Context, records []record.ProviderRecord, t record.Type, host string, cur netip.Addr) {
	existing := findRecord(records, host, t)

	switch {
	case existing == nil && !e.createMissing:
		slog.Error("No DNS record found for host and record creation is disabled", "host", host, "type", t)

	case existing == nil:
		rec := record.AddressRecord{
			Name: host,
			TTL:  record.TTLAuto,
			Addr: cur,
		}
		if e.dryRun {
			slog.Info("Dry run - would create record", "host", host, "type", t, "content", cur)
			return
		}
		if err := e.dnsProvider.CreateAddressRecord(ctx, e.zoneID, rec); err != nil {
			slog.Error("Failed to create record", "host", host, "type", t, "content", cur, "error", err)
			return
		}
		slog.Info("Created record", "host", host, "type", t, "content", cur)

	case existing.Addr != cur:
		if e.dryRun {
			slog.Info("Dry run - would update record", "host", host, "type", t, "from", existing.Addr, "to", cur)
			return
		}
		if err := e.dnsProvider.UpdateRecordAddress(ctx, e.zoneID, existing.ID, cur); err != nil {
			slog.Error("Failed to update record", "host", host, "type", t, "from", existing.Addr, "to", cur, "error", err)
			return
		}
		slog.Info("Updated record", "host", host, "type", t, "from", existing.Addr, "to", cur)

	default:
		// Record already points at the current address.
	}
}

func findRecord(records []record.ProviderRecord, host string, t record.Type) *record.ProviderRecord {
	for i := range records {
		if records[i].Name == host && records[i].Type() == t {
			return &records[i]
		}
	}
	return nil
}
