package graph

const (
	fAssetID fieldSet = 1 << iota
	fHostname
	fState
	fProcessID
	fProcessName
	fImagePath
	fFilePath
	fFileName
	fIPAddress
	fPort
	fProtocol
	fSrcIP
	fSrcPort
	fDstIP
	fDstPort
)

// Process is a process observed on a host.
type Process struct {
	key         NodeKey
	assetID     string
	hostname    string
	processID   uint64
	processName string
	imagePath   string
	state       ProcessState
	stamps      lifecycle
}

func (p *Process) Kind() Kind                 { return KindProcess }
func (p *Process) Key() NodeKey               { return p.key }
func (p *Process) State() string              { return p.state.String() }
func (p *Process) Timestamp() uint64          { return p.stamps.at(p.state.phase()) }
func (p *Process) ProcessState() ProcessState { return p.state }
func (p *Process) ProcessID() uint64          { return p.processID }
func (p *Process) ProcessName() string        { return p.processName }
func (p *Process) Hostname() string           { return p.hostname }
func (p *Process) AssetID() string            { return p.assetID }

func (p *Process) Properties() map[string]any {
	props := map[string]any{"process_id": p.processID}
	putHost(props, p.assetID, p.hostname)
	if p.processName != "" {
		props["process_name"] = p.processName
	}
	if p.imagePath != "" {
		props["image_path"] = p.imagePath
	}
	p.stamps.put(props, processStamps)
	return props
}

// ProcessBuilder stages the fields of a Process.
type ProcessBuilder struct {
	p   Process
	set fieldSet
}

func NewProcessBuilder() *ProcessBuilder { return &ProcessBuilder{} }

func (b *ProcessBuilder) AssetID(v string) *ProcessBuilder {
	b.p.assetID = v
	b.set |= fAssetID
	return b
}

func (b *ProcessBuilder) Hostname(v string) *ProcessBuilder {
	b.p.hostname = v
	b.set |= fHostname
	return b
}

func (b *ProcessBuilder) ProcessID(v uint64) *ProcessBuilder {
	b.p.processID = v
	b.set |= fProcessID
	return b
}

func (b *ProcessBuilder) ProcessName(v string) *ProcessBuilder {
	b.p.processName = v
	b.set |= fProcessName
	return b
}

func (b *ProcessBuilder) ImagePath(v string) *ProcessBuilder {
	b.p.imagePath = v
	b.set |= fImagePath
	return b
}

func (b *ProcessBuilder) State(v ProcessState) *ProcessBuilder {
	b.p.state = v
	b.set |= fState
	return b
}

func (b *ProcessBuilder) CreatedTimestamp(v uint64) *ProcessBuilder {
	b.p.stamps.created = v
	b.set |= fCreatedTS
	return b
}

func (b *ProcessBuilder) LastSeenTimestamp(v uint64) *ProcessBuilder {
	b.p.stamps.lastSeen = v
	b.set |= fLastSeenTS
	return b
}

func (b *ProcessBuilder) TerminatedTimestamp(v uint64) *ProcessBuilder {
	b.p.stamps.ended = v
	b.set |= fEndedTS
	return b
}

// Build validates the staged fields. The host may be given as asset id or
// hostname; the timestamp required depends on the state.
func (b *ProcessBuilder) Build() (*Process, error) {
	c := checklist{kind: KindProcess}
	c.require("hostname", hostKey(b.p.assetID, b.p.hostname) != "")
	c.require("state", b.set.has(fState))
	c.require("process_id", b.set.has(fProcessID))
	c.reject("state", b.set.has(fState) && b.p.state.phase() == phaseNone)
	c.requireStamp(b.p.state.phase(), b.set, processStamps)
	if err := c.err(); err != nil {
		return nil, err
	}

	p := b.p
	p.key = deriveKey(KindProcess,
		str("host", hostKey(p.assetID, p.hostname)),
		num("process_id", p.processID),
	)
	return &p, nil
}
