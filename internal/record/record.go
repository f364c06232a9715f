package record

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"
)

// Type is an address record type. Only the two address-family kinds are
// recognized; everything else in a zone is out of scope for this tool.
type Type int

const (
	TypeA Type = iota
	TypeAAAA
)

// ErrUnrecognizedType marks zone entries that are not A/AAAA records.
// Callers skip those instead of failing.
var ErrUnrecognizedType = errors.New("unrecognized record type")

// Types returns both record types in their canonical order, so that
// per-family iteration and log output stay deterministic.
func Types() []Type {
	return []Type{TypeA, TypeAAAA}
}

func (t Type) String() string {
	switch t {
	case TypeA:
		return "A"
	case TypeAAAA:
		return "AAAA"
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Family returns the address family name for log output.
func (t Type) Family() string {
	if t == TypeA {
		return "IPv4"
	}
	return "IPv6"
}

// ParseType is the exact inverse of Type.String. Matching is
// case-sensitive, so "a" or "aaaa" fail like any other type would.
func ParseType(s string) (Type, error) {
	switch s {
	case "A":
		return TypeA, nil
	case "AAAA":
		return TypeAAAA, nil
	}
	return 0, fmt.Errorf("%w %q", ErrUnrecognizedType, s)
}

// TypeOf derives the record type from an address family. IPv4-mapped
// IPv6 addresses count as IPv4.
func TypeOf(addr netip.Addr) Type {
	if addr.Unmap().Is4() {
		return TypeA
	}
	return TypeAAAA
}

// TTL is a record time-to-live in seconds. The provider reserves the
// wire value 1 to mean "automatic"; explicit values must fall between
// 60 seconds and one day.
type TTL int

const TTLAuto TTL = 1

const (
	minTTLSeconds = 60
	maxTTLSeconds = 86400
)

// ParseTTL accepts the automatic sentinel or an explicit value in
// [60, 86400] and rejects everything else.
func ParseTTL(v int) (TTL, error) {
	if v == int(TTLAuto) || (v >= minTTLSeconds && v <= maxTTLSeconds) {
		return TTL(v), nil
	}
	return 0, fmt.Errorf("invalid ttl %d", v)
}

// Value renders the provider wire form, the exact inverse of ParseTTL.
func (t TTL) Value() int {
	return int(t)
}

func (t TTL) String() string {
	if t == TTLAuto {
		return "auto"
	}
	return strconv.Itoa(int(t))
}

// AddressRecord is the desired DNS state for one host and one address
// family. The record type is always derived from Addr and never stored,
// so the two cannot drift apart.
type AddressRecord struct {
	Name    string
	TTL     TTL
	Addr    netip.Addr
	Proxied bool
}

// Type returns the record type matching the address family.
func (r AddressRecord) Type() Type {
	return TypeOf(r.Addr)
}

// ProviderRecord is the provider's stored form of an address record:
// the opaque identifier used for update calls plus the record itself.
// Provider records are rebuilt from the provider response every pass
// and never cached across passes.
type ProviderRecord struct {
	ID string
	AddressRecord
}
