package graph

// ProcessState is the lifecycle state of a Process.
type ProcessState uint8

const (
	ProcessCreated ProcessState = iota + 1
	ProcessExisting
	ProcessTerminated
)

func (s ProcessState) String() string {
	switch s {
	case ProcessCreated:
		return "Created"
	case ProcessExisting:
		return "Existing"
	case ProcessTerminated:
		return "Terminated"
	}
	return ""
}

func (s ProcessState) phase() phase {
	switch s {
	case ProcessCreated:
		return phaseCreated
	case ProcessExisting:
		return phaseExisting
	case ProcessTerminated:
		return phaseEnded
	}
	return phaseNone
}

// FileState is the lifecycle state of a File.
type FileState uint8

const (
	FileCreated FileState = iota + 1
	FileExisting
	FileDeleted
)

func (s FileState) String() string {
	switch s {
	case FileCreated:
		return "Created"
	case FileExisting:
		return "Existing"
	case FileDeleted:
		return "Deleted"
	}
	return ""
}

func (s FileState) phase() phase {
	switch s {
	case FileCreated:
		return phaseCreated
	case FileExisting:
		return phaseExisting
	case FileDeleted:
		return phaseEnded
	}
	return phaseNone
}

// ConnectionState is the lifecycle state of a NetworkConnection.
type ConnectionState uint8

const (
	ConnectionCreated ConnectionState = iota + 1
	ConnectionExisting
	ConnectionClosed
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionCreated:
		return "Created"
	case ConnectionExisting:
		return "Existing"
	case ConnectionClosed:
		return "Closed"
	}
	return ""
}

func (s ConnectionState) phase() phase {
	switch s {
	case ConnectionCreated:
		return phaseCreated
	case ConnectionExisting:
		return phaseExisting
	case ConnectionClosed:
		return phaseEnded
	}
	return phaseNone
}

// InboundState is the lifecycle state of a ProcessInboundConnection.
type InboundState uint8

const (
	InboundBound InboundState = iota + 1
	InboundExisting
	InboundClosed
)

func (s InboundState) String() string {
	switch s {
	case InboundBound:
		return "Bound"
	case InboundExisting:
		return "Existing"
	case InboundClosed:
		return "Closed"
	}
	return ""
}

func (s InboundState) phase() phase {
	switch s {
	case InboundBound:
		return phaseCreated
	case InboundExisting:
		return phaseExisting
	case InboundClosed:
		return phaseEnded
	}
	return phaseNone
}

// OutboundState is the lifecycle state of a ProcessOutboundConnection.
type OutboundState uint8

const (
	OutboundConnected OutboundState = iota + 1
	OutboundExisting
	OutboundClosed
)

func (s OutboundState) String() string {
	switch s {
	case OutboundConnected:
		return "Connected"
	case OutboundExisting:
		return "Existing"
	case OutboundClosed:
		return "Closed"
	}
	return ""
}

func (s OutboundState) phase() phase {
	switch s {
	case OutboundConnected:
		return phaseCreated
	case OutboundExisting:
		return phaseExisting
	case OutboundClosed:
		return phaseEnded
	}
	return phaseNone
}
