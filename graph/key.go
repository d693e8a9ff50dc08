package graph

import (
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"
)

// Kind tags the concrete type of a Node.
type Kind string

const (
	KindAsset              Kind = "asset"
	KindProcess            Kind = "process"
	KindFile               Kind = "file"
	KindIPAddress          Kind = "ip_address"
	KindIPPort             Kind = "ip_port"
	KindNetworkConnection  Kind = "network_connection"
	KindInboundConnection  Kind = "process_inbound_connection"
	KindOutboundConnection Kind = "process_outbound_connection"
)

// NodeKey identifies a real-world entity. Two nodes with the same key describe
// the same entity and can be merged downstream.
//
// Format: {kind}:{base64url(sha256(canonical)[:16])}, where canonical is the
// kind followed by the identifying fields in a fixed order.
type NodeKey string

// Kind returns the kind prefix of the key.
func (k NodeKey) Kind() Kind {
	s := string(k)
	if i := strings.IndexByte(s, ':'); i > 0 {
		return Kind(s[:i])
	}
	return ""
}

type keyPart struct {
	name  string
	value string
}

func str(name, v string) keyPart { return keyPart{name: name, value: v} }
func num(name string, v uint64) keyPart { return keyPart{name: name, value: strconv.FormatUint(v, 10)} }

// deriveKey only ever sees identifying fields; callers must not pass state or
// timestamps.
func deriveKey(kind Kind, parts ...keyPart) NodeKey {
	var sb strings.Builder
	sb.WriteString(string(kind))
	sb.WriteByte(':')
	for i, p := range parts {
		if i > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString(p.name)
		sb.WriteByte('=')
		sb.WriteString(strconv.Quote(p.value))
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return NodeKey(string(kind) + ":" + base64.RawURLEncoding.EncodeToString(sum[:16]))
}
