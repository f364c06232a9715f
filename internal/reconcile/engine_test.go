package reconcile

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/evanofslack/cloudflare-ddns-sync/internal/config"
	"github.com/evanofslack/cloudflare-ddns-sync/internal/metrics"
	"github.com/evanofslack/cloudflare-ddns-sync/internal/record"
)

type fakeResolver struct {
	addrs map[record.Type]netip.Addr
	errs  map[record.Type]error
}

func (f *fakeResolver) Resolve(ctx context.Context, t record.Type, endpoint string) (netip.Addr, error) {
	if err := f.errs[t]; err != nil {
		return netip.Addr{}, err
	}
	addr, ok := f.addrs[t]
	if !ok {
		return netip.Addr{}, errors.New("no address configured for family")
	}
	return addr, nil
}

type providerCall struct {
	op      string
	name    string
	id      string
	content string
	ttl     int
	proxied bool
}

type fakeProvider struct {
	records []record.ProviderRecord
	listErr error
	callErr error
	calls   []providerCall
}

func (f *fakeProvider) ListAddressRecords(ctx context.Context, zoneID string) ([]record.ProviderRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.records, nil
}

func (f *fakeProvider) CreateAddressRecord(ctx context.Context, zoneID string, rec record.AddressRecord) error {
	f.calls = append(f.calls, providerCall{
		op:      "create",
		name:    rec.Name,
		content: rec.Addr.String(),
		ttl:     rec.TTL.Value(),
		proxied: rec.Proxied,
	})
	return f.callErr
}

func (f *fakeProvider) UpdateRecordAddress(ctx context.Context, zoneID, recordID string, addr netip.Addr) error {
	f.calls = append(f.calls, providerCall{
		op:      "update",
		id:      recordID,
		content: addr.String(),
	})
	return f.callErr
}

func testConfig(hosts ...string) *config.Config {
	if len(hosts) == 0 {
		hosts = []string{"www.example.com"}
	}
	return &config.Config{
		DNS: config.DNS{
			ZoneID: "zone-1",
			Token:  "token-1",
			Hosts:  hosts,
		},
		Endpoints: config.Endpoints{IPv4: "https://ipv4.example.net"},
	}
}

func providerRecord(id, name, addr string) record.ProviderRecord {
	return record.ProviderRecord{
		ID: id,
		AddressRecord: record.AddressRecord{
			Name: name,
			TTL:  record.TTLAuto,
			Addr: netip.MustParseAddr(addr),
		},
	}
}

func TestReconcileDecisions(t *testing.T) {
	tests := []struct {
		name          string
		resolved      string
		existing      []record.ProviderRecord
		createMissing bool
		dryRun        bool
		wantCalls     []providerCall
	}{
		{
			name:     "matching record is a no-op",
			resolved: "1.2.3.4",
			existing: []record.ProviderRecord{providerRecord("rec-1", "www.example.com", "1.2.3.4")},
		},
		{
			name:     "differing record is updated",
			resolved: "1.2.3.5",
			existing: []record.ProviderRecord{providerRecord("rec-1", "www.example.com", "1.2.3.4")},
			wantCalls: []providerCall{
				{op: "update", id: "rec-1", content: "1.2.3.5"},
			},
		},
		{
			name:     "missing record with creation disabled is an operator error",
			resolved: "1.2.3.4",
		},
		{
			name:          "missing record with creation enabled is created",
			resolved:      "1.2.3.4",
			createMissing: true,
			wantCalls: []providerCall{
				{op: "create", name: "www.example.com", content: "1.2.3.4", ttl: 1, proxied: false},
			},
		},
		{
			name:     "record for another family is not a match",
			resolved: "1.2.3.4",
			existing: []record.ProviderRecord{providerRecord("rec-1", "www.example.com", "2001:db8::1")},
		},
		{
			name:     "record for another host is not a match",
			resolved: "1.2.3.4",
			existing: []record.ProviderRecord{providerRecord("rec-1", "other.example.com", "1.2.3.4")},
		},
		{
			name:          "dry run suppresses creation",
			resolved:      "1.2.3.4",
			createMissing: true,
			dryRun:        true,
		},
		{
			name:     "dry run suppresses update",
			resolved: "1.2.3.5",
			existing: []record.ProviderRecord{providerRecord("rec-1", "www.example.com", "1.2.3.4")},
			dryRun:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Reconcile.CreateMissing = tt.createMissing
			cfg.Reconcile.DryRun = tt.dryRun

			res := &fakeResolver{addrs: map[record.Type]netip.Addr{
				record.TypeA: netip.MustParseAddr(tt.resolved),
			}}
			prov := &fakeProvider{records: tt.existing}

			engine := NewEngine(res, prov, cfg, metrics.New(false))
			engine.RunOnce(context.Background())

			if len(prov.calls) != len(tt.wantCalls) {
				t.Fatalf("provider calls = %+v, want %+v", prov.calls, tt.wantCalls)
			}
			for i, want := range tt.wantCalls {
				if prov.calls[i] != want {
					t.Errorf("call %d = %+v, want %+v", i, prov.calls[i], want)
				}
			}
		})
	}
}

// A second pass with an unchanged external address and an already
// matching provider record must issue no network mutations at all.
func TestPassIdempotent(t *testing.T) {
	res := &fakeResolver{addrs: map[record.Type]netip.Addr{
		record.TypeA: netip.MustParseAddr("1.2.3.4"),
	}}
	prov := &fakeProvider{records: []record.ProviderRecord{
		providerRecord("rec-1", "www.example.com", "1.2.3.4"),
	}}

	engine := NewEngine(res, prov, testConfig(), metrics.New(false))
	engine.RunOnce(context.Background())
	engine.RunOnce(context.Background())

	if len(prov.calls) != 0 {
		t.Fatalf("expected no provider calls, got %+v", prov.calls)
	}
}

func TestAddressChangeTriggersSingleUpdate(t *testing.T) {
	res := &fakeResolver{addrs: map[record.Type]netip.Addr{
		record.TypeA: netip.MustParseAddr("1.2.3.4"),
	}}
	prov := &fakeProvider{records: []record.ProviderRecord{
		providerRecord("rec-1", "www.example.com", "1.2.3.4"),
	}}

	engine := NewEngine(res, prov, testConfig(), metrics.New(false))
	engine.RunOnce(context.Background())
	if len(prov.calls) != 0 {
		t.Fatalf("first pass should be a no-op, got %+v", prov.calls)
	}

	// The external address moves; the provider still holds the old one.
	res.addrs[record.TypeA] = netip.MustParseAddr("1.2.3.5")
	engine.RunOnce(context.Background())

	want := providerCall{op: "update", id: "rec-1", content: "1.2.3.5"}
	if len(prov.calls) != 1 || prov.calls[0] != want {
		t.Fatalf("provider calls = %+v, want exactly %+v", prov.calls, want)
	}
}

func TestDuplicateHostsCollapse(t *testing.T) {
	cfg := testConfig()
	cfg.DNS.Hosts = config.SplitHosts("a.com;a.com;b.com")
	cfg.Reconcile.CreateMissing = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected config error: %v", err)
	}

	res := &fakeResolver{addrs: map[record.Type]netip.Addr{
		record.TypeA: netip.MustParseAddr("1.2.3.4"),
	}}
	prov := &fakeProvider{}

	engine := NewEngine(res, prov, cfg, metrics.New(false))
	engine.RunOnce(context.Background())

	want := []providerCall{
		{op: "create", name: "a.com", content: "1.2.3.4", ttl: 1},
		{op: "create", name: "b.com", content: "1.2.3.4", ttl: 1},
	}
	if len(prov.calls) != len(want) {
		t.Fatalf("provider calls = %+v, want %+v", prov.calls, want)
	}
	for i := range want {
		if prov.calls[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, prov.calls[i], want[i])
		}
	}
}

func TestListFailureAbortsPass(t *testing.T) {
	cfg := testConfig()
	cfg.Reconcile.CreateMissing = true

	res := &fakeResolver{addrs: map[record.Type]netip.Addr{
		record.TypeA: netip.MustParseAddr("1.2.3.4"),
	}}
	prov := &fakeProvider{listErr: errors.New("api unavailable")}

	engine := NewEngine(res, prov, cfg, metrics.New(false))
	engine.RunOnce(context.Background())

	if len(prov.calls) != 0 {
		t.Fatalf("pass should abort without mutations, got %+v", prov.calls)
	}
}

func TestResolutionFailureSkipsFamily(t *testing.T) {
	cfg := testConfig()
	cfg.Endpoints.IPv6 = "https://ipv6.example.net"
	cfg.Reconcile.CreateMissing = true

	res := &fakeResolver{
		addrs: map[record.Type]netip.Addr{
			record.TypeAAAA: netip.MustParseAddr("2001:db8::1"),
		},
		errs: map[record.Type]error{
			record.TypeA: errors.New("endpoint unreachable"),
		},
	}
	prov := &fakeProvider{}

	engine := NewEngine(res, prov, cfg, metrics.New(false))
	engine.RunOnce(context.Background())

	// IPv4 failed to resolve, so only the AAAA record is created.
	want := providerCall{op: "create", name: "www.example.com", content: "2001:db8::1", ttl: 1}
	if len(prov.calls) != 1 || prov.calls[0] != want {
		t.Fatalf("provider calls = %+v, want exactly %+v", prov.calls, want)
	}
}

func TestBothFamiliesReconciled(t *testing.T) {
	cfg := testConfig()
	cfg.Endpoints.IPv6 = "https://ipv6.example.net"
	cfg.Reconcile.CreateMissing = true

	res := &fakeResolver{addrs: map[record.Type]netip.Addr{
		record.TypeA:    netip.MustParseAddr("1.2.3.5"),
		record.TypeAAAA: netip.MustParseAddr("2001:db8::1"),
	}}
	prov := &fakeProvider{records: []record.ProviderRecord{
		providerRecord("rec-1", "www.example.com", "1.2.3.4"),
	}}

	engine := NewEngine(res, prov, cfg, metrics.New(false))
	engine.RunOnce(context.Background())

	want := []providerCall{
		{op: "update", id: "rec-1", content: "1.2.3.5"},
		{op: "create", name: "www.example.com", content: "2001:db8::1", ttl: 1},
	}
	if len(prov.calls) != len(want) {
		t.Fatalf("provider calls = %+v, want %+v", prov.calls, want)
	}
	for i := range want {
		if prov.calls[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, prov.calls[i], want[i])
		}
	}
}

// A failed mutation must not stop the remaining hosts from being
// reconciled in the same pass.
func TestMutationFailureDoesNotAbortPass(t *testing.T) {
	cfg := testConfig("a.com", "b.com")
	cfg.Reconcile.CreateMissing = true

	res := &fakeResolver{addrs: map[record.Type]netip.Addr{
		record.TypeA: netip.MustParseAddr("1.2.3.4"),
	}}
	prov := &fakeProvider{callErr: errors.New("api rejected request")}

	engine := NewEngine(res, prov, cfg, metrics.New(false))
	engine.RunOnce(context.Background())

	if len(prov.calls) != 2 {
		t.Fatalf("expected both hosts attempted, got %+v", prov.calls)
	}
}

// Run with no repeat interval performs exactly one pass and returns.
func TestRunOnceMode(t *testing.T) {
	cfg := testConfig()
	cfg.Reconcile.CreateMissing = true

	res := &fakeResolver{addrs: map[record.Type]netip.Addr{
		record.TypeA: netip.MustParseAddr("1.2.3.4"),
	}}
	prov := &fakeProvider{}

	engine := NewEngine(res, prov, cfg, metrics.New(false))
	if err := engine.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(prov.calls) != 1 {
		t.Fatalf("expected a single create from one pass, got %+v", prov.calls)
	}
}
