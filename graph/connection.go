package graph

import "strings"

// NetworkConnection links a source ip/port with a destination ip/port.
type NetworkConnection struct {
	key      NodeKey
	srcIP    string
	srcPort  uint16
	dstIP    string
	dstPort  uint16
	protocol string
	state    ConnectionState
	stamps   lifecycle
}

func (n *NetworkConnection) Kind() Kind                       { return KindNetworkConnection }
func (n *NetworkConnection) Key() NodeKey                     { return n.key }
func (n *NetworkConnection) State() string                    { return n.state.String() }
func (n *NetworkConnection) Timestamp() uint64                { return n.stamps.at(n.state.phase()) }
func (n *NetworkConnection) ConnectionState() ConnectionState { return n.state }

func (n *NetworkConnection) Properties() map[string]any {
	props := map[string]any{
		"src_ip_address": n.srcIP,
		"src_port":       n.srcPort,
		"dst_ip_address": n.dstIP,
		"dst_port":       n.dstPort,
	}
	if n.protocol != "" {
		props["protocol"] = n.protocol
	}
	n.stamps.put(props, connectionStamps)
	return props
}

type NetworkConnectionBuilder struct {
	n   NetworkConnection
	set fieldSet
}

func NewNetworkConnectionBuilder() *NetworkConnectionBuilder { return &NetworkConnectionBuilder{} }

func (b *NetworkConnectionBuilder) SrcIPAddress(v string) *NetworkConnectionBuilder {
	b.n.srcIP = v
	b.set |= fSrcIP
	return b
}

func (b *NetworkConnectionBuilder) SrcPort(v uint16) *NetworkConnectionBuilder {
	b.n.srcPort = v
	b.set |= fSrcPort
	return b
}

func (b *NetworkConnectionBuilder) DstIPAddress(v string) *NetworkConnectionBuilder {
	b.n.dstIP = v
	b.set |= fDstIP
	return b
}

func (b *NetworkConnectionBuilder) DstPort(v uint16) *NetworkConnectionBuilder {
	b.n.dstPort = v
	b.set |= fDstPort
	return b
}

func (b *NetworkConnectionBuilder) Protocol(v string) *NetworkConnectionBuilder {
	b.n.protocol = v
	b.set |= fProtocol
	return b
}

func (b *NetworkConnectionBuilder) State(v ConnectionState) *NetworkConnectionBuilder {
	b.n.state = v
	b.set |= fState
	return b
}

func (b *NetworkConnectionBuilder) CreatedTimestamp(v uint64) *NetworkConnectionBuilder {
	b.n.stamps.created = v
	b.set |= fCreatedTS
	return b
}

func (b *NetworkConnectionBuilder) LastSeenTimestamp(v uint64) *NetworkConnectionBuilder {
	b.n.stamps.lastSeen = v
	b.set |= fLastSeenTS
	return b
}

func (b *NetworkConnectionBuilder) TerminatedTimestamp(v uint64) *NetworkConnectionBuilder {
	b.n.stamps.ended = v
	b.set |= fEndedTS
	return b
}

func (b *NetworkConnectionBuilder) Build() (*NetworkConnection, error) {
	c := checklist{kind: KindNetworkConnection}
	c.require("state", b.set.has(fState))
	c.require("src_ip_address", b.set.has(fSrcIP) && b.n.srcIP != "")
	c.require("src_port", b.set.has(fSrcPort))
	c.require("dst_ip_address", b.set.has(fDstIP) && b.n.dstIP != "")
	c.require("dst_port", b.set.has(fDstPort))
	c.reject("state", b.set.has(fState) && b.n.state.phase() == phaseNone)
	c.reject("src_ip_address", b.n.srcIP != "" && !validIP(b.n.srcIP))
	c.reject("dst_ip_address", b.n.dstIP != "" && !validIP(b.n.dstIP))
	c.requireStamp(b.n.state.phase(), b.set, connectionStamps)
	if err := c.err(); err != nil {
		return nil, err
	}

	n := b.n
	n.key = deriveKey(KindNetworkConnection,
		str("src_ip_address", canonicalIP(n.srcIP)),
		num("src_port", uint64(n.srcPort)),
		str("dst_ip_address", canonicalIP(n.dstIP)),
		num("dst_port", uint64(n.dstPort)),
		str("protocol", strings.ToLower(n.protocol)),
	)
	return &n, nil
}

// processConnection is the shared body of the inbound and outbound
// per-process connection kinds.
type processConnection struct {
	key       NodeKey
	assetID   string
	hostname  string
	ipAddress string
	port      uint16
	protocol  string
	stamps    lifecycle
}

func (c *processConnection) properties() map[string]any {
	props := map[string]any{"ip_address": c.ipAddress, "port": c.port, "protocol": c.protocol}
	putHost(props, c.assetID, c.hostname)
	c.stamps.put(props, connectionStamps)
	return props
}

func (c *processConnection) check(cl *checklist, set fieldSet, p phase) {
	cl.require("hostname", hostKey(c.assetID, c.hostname) != "")
	cl.require("state", set.has(fState))
	cl.require("ip_address", set.has(fIPAddress) && c.ipAddress != "")
	cl.require("port", set.has(fPort))
	cl.require("protocol", set.has(fProtocol) && c.protocol != "")
	cl.reject("state", set.has(fState) && p == phaseNone)
	cl.reject("ip_address", c.ipAddress != "" && !validIP(c.ipAddress))
	cl.requireStamp(p, set, connectionStamps)
}

func (c *processConnection) nodeKey(kind Kind) NodeKey {
	return deriveKey(kind,
		str("host", hostKey(c.assetID, c.hostname)),
		str("ip_address", canonicalIP(c.ipAddress)),
		num("port", uint64(c.port)),
		str("protocol", strings.ToLower(c.protocol)),
	)
}

// InboundConnection is a port a process bound to accept connections.
type InboundConnection struct {
	processConnection
	state InboundState
}

func (n *InboundConnection) Kind() Kind                 { return KindInboundConnection }
func (n *InboundConnection) Key() NodeKey               { return n.key }
func (n *InboundConnection) State() string              { return n.state.String() }
func (n *InboundConnection) Timestamp() uint64          { return n.stamps.at(n.state.phase()) }
func (n *InboundConnection) InboundState() InboundState { return n.state }
func (n *InboundConnection) Properties() map[string]any { return n.properties() }

type InboundConnectionBuilder struct {
	n   InboundConnection
	set fieldSet
}

func NewInboundConnectionBuilder() *InboundConnectionBuilder { return &InboundConnectionBuilder{} }

func (b *InboundConnectionBuilder) AssetID(v string) *InboundConnectionBuilder {
	b.n.assetID = v
	b.set |= fAssetID
	return b
}

func (b *InboundConnectionBuilder) Hostname(v string) *InboundConnectionBuilder {
	b.n.hostname = v
	b.set |= fHostname
	return b
}

func (b *InboundConnectionBuilder) IPAddress(v string) *InboundConnectionBuilder {
	b.n.ipAddress = v
	b.set |= fIPAddress
	return b
}

func (b *InboundConnectionBuilder) Port(v uint16) *InboundConnectionBuilder {
	b.n.port = v
	b.set |= fPort
	return b
}

func (b *InboundConnectionBuilder) Protocol(v string) *InboundConnectionBuilder {
	b.n.protocol = v
	b.set |= fProtocol
	return b
}

func (b *InboundConnectionBuilder) State(v InboundState) *InboundConnectionBuilder {
	b.n.state = v
	b.set |= fState
	return b
}

func (b *InboundConnectionBuilder) CreatedTimestamp(v uint64) *InboundConnectionBuilder {
	b.n.stamps.created = v
	b.set |= fCreatedTS
	return b
}

func (b *InboundConnectionBuilder) LastSeenTimestamp(v uint64) *InboundConnectionBuilder {
	b.n.stamps.lastSeen = v
	b.set |= fLastSeenTS
	return b
}

func (b *InboundConnectionBuilder) TerminatedTimestamp(v uint64) *InboundConnectionBuilder {
	b.n.stamps.ended = v
	b.set |= fEndedTS
	return b
}

func (b *InboundConnectionBuilder) Build() (*InboundConnection, error) {
	c := checklist{kind: KindInboundConnection}
	b.n.check(&c, b.set, b.n.state.phase())
	if err := c.err(); err != nil {
		return nil, err
	}

	n := b.n
	n.key = n.nodeKey(KindInboundConnection)
	return &n, nil
}

// OutboundConnection is a connection a process initiated.
type OutboundConnection struct {
	processConnection
	state OutboundState
}

func (n *OutboundConnection) Kind() Kind                   { return KindOutboundConnection }
func (n *OutboundConnection) Key() NodeKey                 { return n.key }
func (n *OutboundConnection) State() string                { return n.state.String() }
func (n *OutboundConnection) Timestamp() uint64            { return n.stamps.at(n.state.phase()) }
func (n *OutboundConnection) OutboundState() OutboundState { return n.state }
func (n *OutboundConnection) Properties() map[string]any   { return n.properties() }

type OutboundConnectionBuilder struct {
	n   OutboundConnection
	set fieldSet
}

func NewOutboundConnectionBuilder() *OutboundConnectionBuilder { return &OutboundConnectionBuilder{} }

func (b *OutboundConnectionBuilder) AssetID(v string) *OutboundConnectionBuilder {
	b.n.assetID = v
	b.set |= fAssetID
	return b
}

func (b *OutboundConnectionBuilder) Hostname(v string) *OutboundConnectionBuilder {
	b.n.hostname = v
	b.set |= fHostname
	return b
}

func (b *OutboundConnectionBuilder) IPAddress(v string) *OutboundConnectionBuilder {
	b.n.ipAddress = v
	b.set |= fIPAddress
	return b
}

func (b *OutboundConnectionBuilder) Port(v uint16) *OutboundConnectionBuilder {
	b.n.port = v
	b.set |= fPort
	return b
}

func (b *OutboundConnectionBuilder) Protocol(v string) *OutboundConnectionBuilder {
	b.n.protocol = v
	b.set |= fProtocol
	return b
}

func (b *OutboundConnectionBuilder) State(v OutboundState) *OutboundConnectionBuilder {
	b.n.state = v
	b.set |= fState
	return b
}

func (b *OutboundConnectionBuilder) CreatedTimestamp(v uint64) *OutboundConnectionBuilder {
	b.n.stamps.created = v
	b.set |= fCreatedTS
	return b
}

func (b *OutboundConnectionBuilder) LastSeenTimestamp(v uint64) *OutboundConnectionBuilder {
	b.n.stamps.lastSeen = v
	b.set |= fLastSeenTS
	return b
}

func (b *OutboundConnectionBuilder) TerminatedTimestamp(v uint64) *OutboundConnectionBuilder {
	b.n.stamps.ended = v
	b.set |= fEndedTS
	return b
}

func (b *OutboundConnectionBuilder) Build() (*OutboundConnection, error) {
	c := checklist{kind: KindOutboundConnection}
	b.n.check(&c, b.set, b.n.state.phase())
	if err := c.err(); err != nil {
		return nil, err
	}

	n := b.n
	n.key = n.nodeKey(KindOutboundConnection)
	return &n, nil
}
