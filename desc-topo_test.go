package simbricks

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pairExperiment wires a server and a client on one switch by hand
func pairExperiment(t *testing.T) *ExperimentFrame {
	t.Helper()
	ef := CreateExperimentFrame("pair")
	net := CreateNetworkFrame("net", "switch")
	ef.AddNetwork(net)

	for _, hs := range []struct{ name, ip string }{{"server", "10.0.0.2"}, {"client", "10.0.0.1"}} {
		node := NewKindNode(NewI40eLinuxNode())
		node.IP = hs.ip
		node.App = &IdleHost{}

		host := CreateHostFrame(hs.name, SimGem5, node)
		nic := CreateNICFrame(hs.name+".nic", "i40e")
		require.NoError(t, nic.SetNetwork(net))
		require.NoError(t, host.AddNIC(nic))
		ef.AddNIC(nic)
		ef.AddHost(host)
	}
	return ef
}

func TestCreateHostFrameTagsNode(t *testing.T) {
	node := NewNodeConfig()
	host := CreateHostFrame("h", SimGem5, node)
	assert.Equal(t, SimGem5, node.Sim)
	assert.Same(t, node, host.Node)

	unnamed := CreateHostFrame("", SimQemu, nil)
	assert.NotEmpty(t, unnamed.Name)
}

func TestNICAttachesOnce(t *testing.T) {
	netA := CreateNetworkFrame("a", "switch")
	netB := CreateNetworkFrame("b", "switch")
	nic := CreateNICFrame("n", "e1000")

	require.NoError(t, nic.SetNetwork(netA))
	require.NoError(t, nic.SetNetwork(netA))
	assert.Error(t, nic.SetNetwork(netB))
	assert.Len(t, netA.NICs, 1)
	assert.Empty(t, netB.NICs)

	hostA := CreateHostFrame("ha", SimQemu, nil)
	hostB := CreateHostFrame("hb", SimQemu, nil)
	require.NoError(t, hostA.AddNIC(nic))
	assert.Error(t, hostB.AddNIC(nic))
	assert.Same(t, hostA, nic.Host)
	assert.Empty(t, hostB.NICs)
}

func TestExperimentAddsAreIdempotent(t *testing.T) {
	ef := pairExperiment(t)
	ef.AddHost(ef.Hosts[0])
	ef.AddNIC(ef.NICs[0])
	ef.AddNetwork(ef.Networks[0])

	assert.Len(t, ef.Hosts, 2)
	assert.Len(t, ef.NICs, 2)
	assert.Len(t, ef.Networks, 1)

	host, found := ef.FindHost("client")
	require.True(t, found)
	assert.Equal(t, "10.0.0.1", host.Node.IP)
	_, found = ef.FindHost("nobody")
	assert.False(t, found)
}

func TestValidateAcceptsPair(t *testing.T) {
	assert.NoError(t, pairExperiment(t).Validate())
}

func TestValidateReportsViolations(t *testing.T) {
	t.Run("nic without network", func(t *testing.T) {
		ef := pairExperiment(t)
		loose := CreateNICFrame("loose", "i40e")
		require.NoError(t, ef.Hosts[0].AddNIC(loose))
		ef.AddNIC(loose)

		err := ef.Validate()
		assert.ErrorIs(t, err, ErrInvalidTopology)
		assert.Contains(t, err.Error(), "loose")
	})

	t.Run("duplicate address", func(t *testing.T) {
		ef := pairExperiment(t)
		ef.Hosts[1].Node.IP = ef.Hosts[0].Node.IP

		err := ef.Validate()
		assert.ErrorIs(t, err, ErrInvalidTopology)
		assert.Contains(t, err.Error(), "share address")
	})

	t.Run("duplicate host name", func(t *testing.T) {
		ef := pairExperiment(t)
		ef.Hosts[1].Name = ef.Hosts[0].Name

		assert.ErrorIs(t, ef.Validate(), ErrInvalidTopology)
	})

	t.Run("host without application", func(t *testing.T) {
		ef := pairExperiment(t)
		ef.Hosts[0].Node.App = nil

		err := ef.Validate()
		assert.ErrorIs(t, err, ErrInvalidTopology)
		assert.Contains(t, err.Error(), ErrNoApp.Error())
	})

	t.Run("empty", func(t *testing.T) {
		assert.ErrorIs(t, CreateExperimentFrame("none").Validate(), ErrInvalidTopology)
	})
}

func TestExperimentDescRoundTrip(t *testing.T) {
	ef := pairExperiment(t)
	ef.Checkpoint = true
	ef.Networks[0].Opt = "--LinkRate=10Gb/s"

	ed := ef.Transform()
	require.Len(t, ed.Hosts, 2)
	assert.Equal(t, []string{"server.nic"}, ed.Hosts[0].NICs)
	assert.Equal(t, "i40e-linux", ed.Hosts[0].Node.Kind)
	assert.Equal(t, "IdleHost", ed.Hosts[0].Node.App)
	assert.Equal(t, "net", ed.NICs[1].Network)
	assert.Equal(t, "client", ed.NICs[1].Host)
	assert.Equal(t, []string{"server.nic", "client.nic"}, ed.Networks[0].NICs)

	for _, filename := range []string{"pair.yaml", "pair.json"} {
		path := filepath.Join(t.TempDir(), filename)
		require.NoError(t, ed.WriteToFile(path))

		back, err := ReadExperimentDesc(path, UseYAML(path), []byte{})
		require.NoError(t, err)
		assert.Equal(t, ed, *back, filename)
	}

	assert.Error(t, ed.WriteToFile(filepath.Join(t.TempDir(), "pair.txt")))
}
