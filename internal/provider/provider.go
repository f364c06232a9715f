package provider

import (
	"context"
	"net/netip"

	"github.com/evanofslack/cloudflare-ddns-sync/internal/record"
)

// Provider is the narrow contract the reconcile engine needs from a DNS
// provider. Implementations carry no decision logic; they translate
// requests onto the provider API and report failures back.
type Provider interface {
	// ListAddressRecords returns the zone's A/AAAA records. Entries of
	// other types or with malformed fields are dropped, never fatal.
	ListAddressRecords(ctx context.Context, zoneID string) ([]record.ProviderRecord, error)

	// CreateAddressRecord creates a new record from the full desired state.
	CreateAddressRecord(ctx context.Context, zoneID string, rec record.AddressRecord) error

	// UpdateRecordAddress rewrites an existing record's address. Name,
	// TTL and proxy status are left untouched.
	UpdateRecordAddress(ctx context.Context, zoneID, recordID string, addr netip.Addr) error
}
