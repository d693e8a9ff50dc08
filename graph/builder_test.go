package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessBuilder_AllRequiredSet(t *testing.T) {
	p, err := NewProcessBuilder().
		Hostname("h1").
		ProcessID(42).
		ProcessName("explorer.exe").
		State(ProcessExisting).
		LastSeenTimestamp(1000).
		Build()
	require.NoError(t, err)

	assert.Equal(t, KindProcess, p.Kind())
	assert.Equal(t, "Existing", p.State())
	assert.Equal(t, uint64(1000), p.Timestamp())
	assert.Equal(t, uint64(42), p.ProcessID())
	assert.Equal(t, KindProcess, p.Key().Kind())
}

func TestProcessBuilder_EachRequiredFieldReported(t *testing.T) {
	full := func() *ProcessBuilder {
		return NewProcessBuilder().Hostname("h1").ProcessID(42).State(ProcessExisting).LastSeenTimestamp(1000)
	}
	cases := map[string]*ProcessBuilder{
		"hostname":            NewProcessBuilder().ProcessID(42).State(ProcessExisting).LastSeenTimestamp(1000),
		"process_id":          NewProcessBuilder().Hostname("h1").State(ProcessExisting).LastSeenTimestamp(1000),
		"state":               NewProcessBuilder().Hostname("h1").ProcessID(42).LastSeenTimestamp(1000),
		"last_seen_timestamp": NewProcessBuilder().Hostname("h1").ProcessID(42).State(ProcessExisting),
	}

	_, err := full().Build()
	require.NoError(t, err)

	for field, b := range cases {
		t.Run(field, func(t *testing.T) {
			_, err := b.Build()
			require.Error(t, err)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, []string{field}, verr.Missing)
			assert.ErrorIs(t, err, ErrInvalidNode)
		})
	}
}

func TestProcessBuilder_ReportsEveryMissingField(t *testing.T) {
	_, err := NewProcessBuilder().Build()

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"hostname", "state", "process_id"}, verr.Missing)
}

func TestProcessBuilder_TimestampFollowsState(t *testing.T) {
	_, err := NewProcessBuilder().Hostname("h").ProcessID(1).State(ProcessTerminated).LastSeenTimestamp(5).Build()

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("terminated_timestamp"))

	p, err := NewProcessBuilder().Hostname("h").ProcessID(1).State(ProcessCreated).CreatedTimestamp(7).Build()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), p.Timestamp())
}

func TestProcessBuilder_UnknownStateInvalid(t *testing.T) {
	_, err := NewProcessBuilder().Hostname("h").ProcessID(1).State(ProcessState(99)).Build()

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"state"}, verr.Invalid)
}

func TestProcessKey_IgnoresIncidentalFields(t *testing.T) {
	a, err := NewProcessBuilder().Hostname("h1").ProcessID(42).ProcessName("a.exe").
		State(ProcessExisting).LastSeenTimestamp(1).Build()
	require.NoError(t, err)
	b, err := NewProcessBuilder().Hostname("h1").ProcessID(42).ProcessName("b.exe").
		State(ProcessTerminated).TerminatedTimestamp(99).Build()
	require.NoError(t, err)
	c, err := NewProcessBuilder().Hostname("h2").ProcessID(42).
		State(ProcessExisting).LastSeenTimestamp(1).Build()
	require.NoError(t, err)

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestFileBuilder_DeletedRequiresDeletedTimestamp(t *testing.T) {
	_, err := NewFileBuilder().Hostname("h1").FilePath(`C:\a.txt`).State(FileDeleted).Build()

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"deleted_timestamp"}, verr.Missing)

	f, err := NewFileBuilder().Hostname("h1").FilePath(`C:\a.txt`).State(FileDeleted).DeletedTimestamp(1000).Build()
	require.NoError(t, err)
	assert.Equal(t, "Deleted", f.State())
	assert.Equal(t, uint64(1000), f.Timestamp())
	assert.Equal(t, "a.txt", f.FileName())
}

func TestAssetBuilder_RequiresIDAndHostname(t *testing.T) {
	_, err := NewAssetBuilder().Build()

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"asset_id", "hostname"}, verr.Missing)
}

func TestIPBuilders_RejectInvalidAddress(t *testing.T) {
	_, err := NewIPAddressBuilder().IPAddress("not-an-ip").LastSeenTimestamp(1).Build()

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"ip_address"}, verr.Invalid)

	_, err = NewIPPortBuilder().IPAddress("10.0.0.1").Port(443).Build()
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"protocol"}, verr.Missing)
}

func TestIPAddressKey_CanonicalizesSpelling(t *testing.T) {
	a, err := NewIPAddressBuilder().IPAddress("2001:db8:0:0:0:0:0:1").LastSeenTimestamp(1).Build()
	require.NoError(t, err)
	b, err := NewIPAddressBuilder().IPAddress("2001:db8::1").LastSeenTimestamp(2).Build()
	require.NoError(t, err)

	assert.Equal(t, a.Key(), b.Key())
}

func TestNetworkConnectionBuilder(t *testing.T) {
	_, err := NewNetworkConnectionBuilder().
		State(ConnectionCreated).
		SrcIPAddress("10.0.0.1").SrcPort(443).
		DstIPAddress("10.0.0.2").
		CreatedTimestamp(2000).
		Build()

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"dst_port"}, verr.Missing)

	n, err := NewNetworkConnectionBuilder().
		State(ConnectionCreated).
		SrcIPAddress("10.0.0.1").SrcPort(443).
		DstIPAddress("10.0.0.2").DstPort(8080).
		CreatedTimestamp(2000).
		Build()
	require.NoError(t, err)
	assert.Equal(t, "Created", n.State())
	assert.Equal(t, uint64(2000), n.Timestamp())
}

func TestInboundAndOutboundKeysDiffer(t *testing.T) {
	in, err := NewInboundConnectionBuilder().Hostname("h1").IPAddress("10.0.0.1").Port(443).
		Protocol("tcp").State(InboundBound).CreatedTimestamp(1).Build()
	require.NoError(t, err)
	out, err := NewOutboundConnectionBuilder().Hostname("h1").IPAddress("10.0.0.1").Port(443).
		Protocol("tcp").State(OutboundConnected).CreatedTimestamp(1).Build()
	require.NoError(t, err)

	assert.NotEqual(t, in.Key(), out.Key())
	assert.Equal(t, "Bound", in.State())
	assert.Equal(t, "Connected", out.State())
}

func TestInboundConnectionBuilder_MissingFields(t *testing.T) {
	_, err := NewInboundConnectionBuilder().State(InboundClosed).Build()

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"hostname", "ip_address", "port", "protocol", "terminated_timestamp"}, verr.Missing)
}
