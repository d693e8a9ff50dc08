package graph

import (
	"net/netip"
	"strings"
)

// IPAddress is an address seen in network activity.
type IPAddress struct {
	key       NodeKey
	ipAddress string
	firstSeen uint64
	lastSeen  uint64
}

func (n *IPAddress) Kind() Kind        { return KindIPAddress }
func (n *IPAddress) Key() NodeKey      { return n.key }
func (n *IPAddress) State() string     { return "" }
func (n *IPAddress) Timestamp() uint64 { return n.lastSeen }
func (n *IPAddress) IPAddress() string { return n.ipAddress }

func (n *IPAddress) Properties() map[string]any {
	props := map[string]any{"ip_address": n.ipAddress, "last_seen_timestamp": n.lastSeen}
	if n.firstSeen != 0 {
		props["first_seen_timestamp"] = n.firstSeen
	}
	return props
}

type IPAddressBuilder struct {
	n   IPAddress
	set fieldSet
}

func NewIPAddressBuilder() *IPAddressBuilder { return &IPAddressBuilder{} }

func (b *IPAddressBuilder) IPAddress(v string) *IPAddressBuilder {
	b.n.ipAddress = v
	b.set |= fIPAddress
	return b
}

func (b *IPAddressBuilder) FirstSeenTimestamp(v uint64) *IPAddressBuilder {
	b.n.firstSeen = v
	b.set |= fCreatedTS
	return b
}

func (b *IPAddressBuilder) LastSeenTimestamp(v uint64) *IPAddressBuilder {
	b.n.lastSeen = v
	b.set |= fLastSeenTS
	return b
}

func (b *IPAddressBuilder) Build() (*IPAddress, error) {
	c := checklist{kind: KindIPAddress}
	c.require("ip_address", b.set.has(fIPAddress) && b.n.ipAddress != "")
	c.reject("ip_address", b.n.ipAddress != "" && !validIP(b.n.ipAddress))
	c.require("last_seen_timestamp", b.set.has(fLastSeenTS))
	if err := c.err(); err != nil {
		return nil, err
	}

	n := b.n
	n.key = deriveKey(KindIPAddress, str("ip_address", canonicalIP(n.ipAddress)))
	return &n, nil
}

// IPPort is an ip + port + transport protocol triple.
type IPPort struct {
	key       NodeKey
	ipAddress string
	port      uint16
	protocol  string
}

func (n *IPPort) Kind() Kind        { return KindIPPort }
func (n *IPPort) Key() NodeKey      { return n.key }
func (n *IPPort) State() string     { return "" }
func (n *IPPort) Timestamp() uint64 { return 0 }
func (n *IPPort) IPAddress() string { return n.ipAddress }
func (n *IPPort) Port() uint16      { return n.port }
func (n *IPPort) Protocol() string  { return n.protocol }

func (n *IPPort) Properties() map[string]any {
	return map[string]any{"ip_address": n.ipAddress, "port": n.port, "protocol": n.protocol}
}

type IPPortBuilder struct {
	n   IPPort
	set fieldSet
}

func NewIPPortBuilder() *IPPortBuilder { return &IPPortBuilder{} }

func (b *IPPortBuilder) IPAddress(v string) *IPPortBuilder {
	b.n.ipAddress = v
	b.set |= fIPAddress
	return b
}

func (b *IPPortBuilder) Port(v uint16) *IPPortBuilder {
	b.n.port = v
	b.set |= fPort
	return b
}

func (b *IPPortBuilder) Protocol(v string) *IPPortBuilder {
	b.n.protocol = v
	b.set |= fProtocol
	return b
}

func (b *IPPortBuilder) Build() (*IPPort, error) {
	c := checklist{kind: KindIPPort}
	c.require("ip_address", b.set.has(fIPAddress) && b.n.ipAddress != "")
	c.reject("ip_address", b.n.ipAddress != "" && !validIP(b.n.ipAddress))
	c.require("port", b.set.has(fPort))
	c.require("protocol", b.set.has(fProtocol) && b.n.protocol != "")
	if err := c.err(); err != nil {
		return nil, err
	}

	n := b.n
	n.key = deriveKey(KindIPPort,
		str("ip_address", canonicalIP(n.ipAddress)),
		num("port", uint64(n.port)),
		str("protocol", strings.ToLower(n.protocol)),
	)
	return &n, nil
}

func validIP(s string) bool {
	_, err := netip.ParseAddr(s)
	return err == nil
}

// canonicalIP folds equivalent spellings (e.g. IPv6 zero compression) so they
// share one identity.
func canonicalIP(s string) string {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return s
	}
	return addr.Unmap().String()
}
