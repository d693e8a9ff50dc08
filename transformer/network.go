package transformer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/baldanca/subgraph-ingestor/graph"
)

// UTCTimeLayout is the layout of sysmon's UtcTime field.
const UTCTimeLayout = "2006-01-02 15:04:05.000"

var ErrNoTimestamp = errors.New("event has neither timestamp nor utc_time")

// NetworkEvent is a sysmon network connection event (event id 3).
type NetworkEvent struct {
	System    NetworkSystem    `json:"system"`
	EventData NetworkEventData `json:"event_data"`
}

type NetworkSystem struct {
	Computer string `json:"computer"`
}

type NetworkEventData struct {
	UTCTime   string `json:"utc_time,omitempty"`
	Timestamp uint64 `json:"timestamp,omitempty"` // epoch millis, preferred over UTCTime

	ProcessID uint64 `json:"process_id"`
	Image     string `json:"image,omitempty"`
	Protocol  string `json:"protocol"`

	SourceIP        string `json:"source_ip"`
	SourcePort      uint16 `json:"source_port"`
	DestinationIP   string `json:"destination_ip"`
	DestinationPort uint16 `json:"destination_port"`
}

// EventTime returns the event time in epoch milliseconds.
func (d NetworkEventData) EventTime() (uint64, error) {
	if d.Timestamp != 0 {
		return d.Timestamp, nil
	}
	if d.UTCTime == "" {
		return 0, ErrNoTimestamp
	}
	return UTCToEpoch(d.UTCTime)
}

// UTCToEpoch parses a sysmon UtcTime value into epoch milliseconds.
func UTCToEpoch(s string) (uint64, error) {
	t, err := time.Parse(UTCTimeLayout, s)
	if err != nil {
		return 0, fmt.Errorf("parse utc_time %q: %w", s, err)
	}
	ms := t.UnixMilli()
	if ms < 0 {
		return 0, fmt.Errorf("utc_time %q is before the epoch", s)
	}
	return uint64(ms), nil
}

// connectionParts holds the nodes an inbound and an outbound event share.
type connectionParts struct {
	asset    *graph.Asset
	process  *graph.Process
	srcIP    *graph.IPAddress
	dstIP    *graph.IPAddress
	srcPort  *graph.IPPort
	dstPort  *graph.IPPort
	netConn  *graph.NetworkConnection
	ts       uint64
	hostname string
}

func buildConnectionParts(ev NetworkEvent) (*connectionParts, error) {
	d := ev.EventData
	ts, err := d.EventTime()
	if err != nil {
		return nil, err
	}
	host := ev.System.Computer
	p := &connectionParts{ts: ts, hostname: host}

	if p.asset, err = graph.NewAssetBuilder().
		AssetID(host).
		Hostname(host).
		LastSeenTimestamp(ts).
		Build(); err != nil {
		return nil, err
	}

	pb := graph.NewProcessBuilder().
		AssetID(host).
		Hostname(host).
		State(graph.ProcessExisting).
		ProcessID(d.ProcessID).
		LastSeenTimestamp(ts)
	if d.Image != "" {
		pb.ImagePath(d.Image)
	}
	if p.process, err = pb.Build(); err != nil {
		return nil, err
	}

	if p.srcIP, err = graph.NewIPAddressBuilder().IPAddress(d.SourceIP).LastSeenTimestamp(ts).Build(); err != nil {
		return nil, err
	}
	if p.dstIP, err = graph.NewIPAddressBuilder().IPAddress(d.DestinationIP).LastSeenTimestamp(ts).Build(); err != nil {
		return nil, err
	}
	if p.srcPort, err = graph.NewIPPortBuilder().IPAddress(d.SourceIP).Port(d.SourcePort).Protocol(d.Protocol).Build(); err != nil {
		return nil, err
	}
	if p.dstPort, err = graph.NewIPPortBuilder().IPAddress(d.DestinationIP).Port(d.DestinationPort).Protocol(d.Protocol).Build(); err != nil {
		return nil, err
	}

	if p.netConn, err = graph.NewNetworkConnectionBuilder().
		State(graph.ConnectionCreated).
		SrcIPAddress(d.SourceIP).
		SrcPort(d.SourcePort).
		DstIPAddress(d.DestinationIP).
		DstPort(d.DestinationPort).
		Protocol(d.Protocol).
		CreatedTimestamp(ts).
		Build(); err != nil {
		return nil, err
	}
	return p, nil
}

// assemble adds the shared nodes plus the process's connection node and wires
// the seven edges both directions use.
func (p *connectionParts) assemble(conn graph.Node) (*graph.Graph, error) {
	g := graph.New(p.ts)

	edges := []graph.Edge{
		{Label: "asset_ip", From: p.asset.Key(), To: p.srcIP.Key()},
		{Label: "asset_processes", From: p.asset.Key(), To: p.process.Key()},
		{Label: "created_connections", From: p.process.Key(), To: conn.Key()},
		{Label: "connected_over", From: conn.Key(), To: p.srcPort.Key()},
		{Label: "connected_to", From: conn.Key(), To: p.dstPort.Key()},
		{Label: "outbound_connection_to", From: p.srcPort.Key(), To: p.netConn.Key()},
		{Label: "inbound_connection_to", From: p.netConn.Key(), To: p.dstPort.Key()},
	}
	for _, e := range edges {
		if err := g.DeferEdge(e.Label, e.From, e.To); err != nil {
			return nil, err
		}
	}

	if err := addNodes(g, p.asset, p.process, conn, p.srcIP, p.dstIP, p.srcPort, p.dstPort, p.netConn); err != nil {
		return nil, err
	}
	if err := g.Seal(); err != nil {
		return nil, err
	}
	return g, nil
}

// TranslateInboundConnection describes a connection accepted by a local
// process. The source side of the sysmon event is the local endpoint.
func TranslateInboundConnection(_ context.Context, ev NetworkEvent) (*graph.Graph, error) {
	p, err := buildConnectionParts(ev)
	if err != nil {
		return nil, fmt.Errorf("inbound connection: %w", err)
	}
	d := ev.EventData
	inbound, err := graph.NewInboundConnectionBuilder().
		AssetID(p.hostname).
		Hostname(p.hostname).
		State(graph.InboundBound).
		IPAddress(d.SourceIP).
		Port(d.SourcePort).
		Protocol(d.Protocol).
		CreatedTimestamp(p.ts).
		Build()
	if err != nil {
		return nil, fmt.Errorf("inbound connection: %w", err)
	}
	return p.assemble(inbound)
}

// TranslateOutboundConnection describes a connection opened by a local process
// from its source ip and port.
func TranslateOutboundConnection(_ context.Context, ev NetworkEvent) (*graph.Graph, error) {
	p, err := buildConnectionParts(ev)
	if err != nil {
		return nil, fmt.Errorf("outbound connection: %w", err)
	}
	d := ev.EventData
	outbound, err := graph.NewOutboundConnectionBuilder().
		AssetID(p.hostname).
		Hostname(p.hostname).
		State(graph.OutboundConnected).
		IPAddress(d.SourceIP).
		Port(d.SourcePort).
		Protocol(d.Protocol).
		CreatedTimestamp(p.ts).
		Build()
	if err != nil {
		return nil, fmt.Errorf("outbound connection: %w", err)
	}
	return p.assemble(outbound)
}

var (
	InboundConnectionTranslator  Translator[NetworkEvent] = TranslatorFunc[NetworkEvent](TranslateInboundConnection)
	OutboundConnectionTranslator Translator[NetworkEvent] = TranslatorFunc[NetworkEvent](TranslateOutboundConnection)
)
