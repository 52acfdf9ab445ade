package wire

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

// ErrInvalidLocator is returned when a locator cannot be parsed or converted.
var ErrInvalidLocator = errors.New("wire: invalid locator")

// LocatorKind is the transport kind of a locator.
type LocatorKind int32

// Locator kinds.
const (
	LocatorKindInvalid LocatorKind = -1
	LocatorKindUDPv4   LocatorKind = 1
	LocatorKindUDPv6   LocatorKind = 2
	LocatorKindTCPv4   LocatorKind = 4
	LocatorKindTCPv6   LocatorKind = 8
)

func (lk LocatorKind) String() string {
	switch lk {
	case LocatorKindUDPv4:
		return "udpv4"
	case LocatorKindUDPv6:
		return "udpv6"
	case LocatorKindTCPv4:
		return "tcpv4"
	case LocatorKindTCPv6:
		return "tcpv6"
	default:
		return "invalid"
	}
}

// IsUDP states whether the kind is a UDP one.
func (lk LocatorKind) IsUDP() bool {
	return lk == LocatorKindUDPv4 || lk == LocatorKindUDPv6
}

// IsTCP states whether the kind is a TCP one.
func (lk LocatorKind) IsTCP() bool {
	return lk == LocatorKindTCPv4 || lk == LocatorKindTCPv6
}

// Locator is the address of a remote endpoint on a given transport.
// IPv4 addresses are stored in the last 4 bytes of the address.
type Locator struct {
	Kind    LocatorKind
	Port    uint32
	Address [16]byte
}

// LocatorFromAddrPort builds a locator of the given transport family
// ("udp" or "tcp") from an address and a port.
func LocatorFromAddrPort(network string, ap netip.AddrPort) (Locator, error) {
	addr := ap.Addr().Unmap()

	var kind LocatorKind
	switch {
	case network == "udp" && addr.Is4():
		kind = LocatorKindUDPv4
	case network == "udp" && addr.Is6():
		kind = LocatorKindUDPv6
	case network == "tcp" && addr.Is4():
		kind = LocatorKindTCPv4
	case network == "tcp" && addr.Is6():
		kind = LocatorKindTCPv6
	default:
		return Locator{}, fmt.Errorf("%w: network %q with address %s", ErrInvalidLocator, network, addr)
	}

	loc := Locator{Kind: kind, Port: uint32(ap.Port())}
	if addr.Is4() {
		a4 := addr.As4()
		copy(loc.Address[12:], a4[:])
	} else {
		loc.Address = addr.As16()
	}

	return loc, nil
}

// AddrPort returns the address and port of the locator.
func (l Locator) AddrPort() netip.AddrPort {
	var addr netip.Addr
	switch l.Kind {
	case LocatorKindUDPv4, LocatorKindTCPv4:
		addr = netip.AddrFrom4([4]byte(l.Address[12:]))
	default:
		addr = netip.AddrFrom16(l.Address)
	}

	return netip.AddrPortFrom(addr, uint16(l.Port))
}

// String returns the locator in the "<kind>:<addr>:<port>" form.
func (l Locator) String() string {
	return l.Kind.String() + ":" + l.AddrPort().String()
}

// ParseLocator parses a locator in the "<kind>:<addr>:<port>" form,
// e.g. "udpv4:127.0.0.1:7400" or "udpv6:[::1]:7400".
func ParseLocator(s string) (Locator, error) {
	kindStr, rest, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Locator{}, fmt.Errorf("%w: missing kind in %q", ErrInvalidLocator, s)
	}

	ap, err := netip.ParseAddrPort(rest)
	if err != nil {
		return Locator{}, fmt.Errorf("%w: %w", ErrInvalidLocator, err)
	}

	var network string
	switch strings.ToLower(kindStr) {
	case "udpv4", "udpv6":
		network = "udp"
	case "tcpv4", "tcpv6":
		network = "tcp"
	default:
		return Locator{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidLocator, kindStr)
	}

	loc, err := LocatorFromAddrPort(network, ap)
	if err != nil {
		return Locator{}, err
	}

	if loc.Kind.String() != strings.ToLower(kindStr) {
		return Locator{}, fmt.Errorf("%w: address %s does not match kind %q", ErrInvalidLocator, ap.Addr(), kindStr)
	}

	return loc, nil
}

// Destination is a remote endpoint reachable at a locator.
type Destination struct {
	GUID    GUID
	Locator Locator
}
