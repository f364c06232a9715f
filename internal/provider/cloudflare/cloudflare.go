package cloudflare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/cloudflare/cloudflare-go"
	"github.com/evanofslack/cloudflare-ddns-sync/internal/config"
	"github.com/evanofslack/cloudflare-ddns-sync/internal/metrics"
	"github.com/evanofslack/cloudflare-ddns-sync/internal/record"
)

type Provider struct {
	client  *cloudflare.API
	metrics *metrics.Metrics
}

func New(cfg config.DNS, metrics *metrics.Metrics) (*Provider, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("cloudflare API token required")
	}

	client, err := cloudflare.NewWithAPIToken(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Cloudflare client: %w", err)
	}

	return &Provider{
		client:  client,
		metrics: metrics,
	}, nil
}

func (p *Provider) ListAddressRecords(ctx context.Context, zoneID string) ([]record.ProviderRecord, error) {
	slog.Debug("Listing DNS records", "zone", zoneID)
	start := time.Now()

	// Get all records for the zone with pagination
	var allRecords []cloudflare.DNSRecord
	page := 1
	for {
		rc := cloudflare.ZoneIdentifier(zoneID)
		params := cloudflare.ListDNSRecordsParams{
			ResultInfo: cloudflare.ResultInfo{
				Page:    page,
				PerPage: 100,
			},
		}

		records, resultInfo, err := p.client.ListDNSRecords(ctx, rc, params)
		if err != nil {
			p.metrics.IncDNSRequest("read", false)
			return nil, fmt.Errorf("failed to list DNS records: %w", err)
		}

		allRecords = append(allRecords, records...)
		if page >= resultInfo.TotalPages {
			break
		}
		page++
	}

	result := make([]record.ProviderRecord, 0, len(allRecords))
	for _, r := range allRecords {
		rec, err := fromDNSRecord(r)
		if err != nil {
			// Zones hold unrelated record kinds next to the address
			// records this tool manages; a single odd entry must never
			// block reconciliation of the rest.
			if errors.Is(err, record.ErrUnrecognizedType) {
				slog.Debug("Skipping DNS record", "id", r.ID, "name", r.Name, "type", r.Type)
			} else {
				slog.Warn("Skipping malformed DNS record", "id", r.ID, "name", r.Name, "type", r.Type, "reason", err)
			}
			continue
		}
		result = append(result, rec)
	}

	p.metrics.IncDNSRequest("read", true)
	slog.Debug("Retrieved DNS records", "zone", zoneID, "count", len(result), "duration", time.Since(start))
	return result, nil
}

func (p *Provider) CreateAddressRecord(ctx context.Context, zoneID string, rec record.AddressRecord) error {
	slog.Info("Creating DNS record", "zone", zoneID, "name", rec.Name, "type", rec.Type(), "content", rec.Addr)
	start := time.Now()

	params := cloudflare.CreateDNSRecordParams{
		Type:    rec.Type().String(),
		Name:    rec.Name,
		Content: rec.Addr.String(),
		TTL:     rec.TTL.Value(),
		Proxied: cloudflare.BoolPtr(rec.Proxied),
	}

	if _, err := p.client.CreateDNSRecord(ctx, cloudflare.ZoneIdentifier(zoneID), params); err != nil {
		p.metrics.IncDNSRequest("create", false)
		return fmt.Errorf("failed to create DNS record: %w", err)
	}

	p.metrics.IncDNSRequest("create", true)
	slog.Debug("Created DNS record", "zone", zoneID, "name", rec.Name, "type", rec.Type(), "duration", time.Since(start))
	return nil
}

func (p *Provider) UpdateRecordAddress(ctx context.Context, zoneID, recordID string, addr netip.Addr) error {
	slog.Info("Updating DNS record", "zone", zoneID, "id", recordID, "content", addr)
	start := time.Now()

	// Content-only update; TTL, proxy status and name stay as created.
	params := cloudflare.UpdateDNSRecordParams{
		ID:      recordID,
		Content: addr.String(),
	}

	if _, err := p.client.UpdateDNSRecord(ctx, cloudflare.ZoneIdentifier(zoneID), params); err != nil {
		p.metrics.IncDNSRequest("update", false)
		return fmt.Errorf("failed to update DNS record: %w", err)
	}

	p.metrics.IncDNSRequest("update", true)
	slog.Debug("Updated DNS record", "zone", zoneID, "id", recordID, "duration", time.Since(start))
	return nil
}

// fromDNSRecord converts a provider response entry into the domain
// form, rejecting anything that is not a well-formed address record.
func fromDNSRecord(r cloudflare.DNSRecord) (record.ProviderRecord, error) {
	rtype, err := record.ParseType(r.Type)
	if err != nil {
		return record.ProviderRecord{}, err
	}

	ttl, err := record.ParseTTL(r.TTL)
	if err != nil {
		return record.ProviderRecord{}, fmt.Errorf("record %q: %w", r.Name, err)
	}

	addr, err := netip.ParseAddr(r.Content)
	if err != nil {
		return record.ProviderRecord{}, fmt.Errorf("record %q: parse %s content %q: %w", r.Name, r.Type, r.Content, err)
	}
	if record.TypeOf(addr) != rtype {
		return record.ProviderRecord{}, fmt.Errorf("record %q: content %s does not match type %s", r.Name, addr, rtype)
	}

	proxied := r.Proxied != nil && *r.Proxied
	return record.ProviderRecord{
		ID: r.ID,
		AddressRecord: record.AddressRecord{
			Name:    r.Name,
			TTL:     ttl,
			Addr:    addr,
			Proxied: proxied,
		},
	}, nil
}
