package simbricks

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pingCfg(pairs int) *BuildCfg {
	cfg := CreateBuildCfg("ping")
	cfg.Pairs = pairs
	cfg.ServerApp = "idle"
	cfg.ClientApp = "ping-client"
	cfg.PingCount = 3
	return cfg
}

func TestBuildTwoPairs(t *testing.T) {
	ef, err := BuildExperiment(pingCfg(2))
	require.NoError(t, err)

	names := []string{}
	ips := []string{}
	for _, host := range ef.Hosts {
		names = append(names, host.Name)
		ips = append(ips, host.Node.IP)
	}
	assert.Equal(t, []string{"server.1", "server.2", "client.1", "client.2"}, names)
	assert.Equal(t, []string{"192.168.64.1", "192.168.64.2", "192.168.64.3", "192.168.64.4"}, ips)

	require.Len(t, ef.Networks, 1)
	assert.Len(t, ef.Networks[0].NICs, 4)
	assert.Len(t, ef.NICs, 4)

	client1, _ := ef.FindHost("client.1")
	client2, _ := ef.FindHost("client.2")
	ping1 := client1.Node.App.(*PingClient)
	ping2 := client2.Node.App.(*PingClient)

	assert.Equal(t, "192.168.64.1", ping1.ServerIP)
	assert.Equal(t, "192.168.64.2", ping2.ServerIP)
	assert.Equal(t, 3, ping1.Count)
	assert.False(t, ping1.IsLast)
	assert.True(t, ping2.IsLast)
	assert.False(t, client1.Wait)
	assert.True(t, client2.Wait)

	script, err := client2.Node.ConfigStr()
	require.NoError(t, err)
	assert.Contains(t, script, "ping 192.168.64.2 -c 3")

	assert.NoError(t, ef.Validate())
}

func TestBuildHostDetails(t *testing.T) {
	cfg := CreateBuildCfg("details")
	cfg.NICLogDir = "/tmp/logs"
	cfg.ForceMAC = true
	cfg.HostSim = SimGem5
	ef, err := BuildExperiment(cfg)
	require.NoError(t, err)

	server := ef.Hosts[0]
	assert.Equal(t, "server", server.Role)
	assert.Equal(t, SimGem5, server.Node.Sim)
	assert.Equal(t, "i40e-linux", server.Node.KindName())
	require.Len(t, server.NICs, 1)

	nic := server.NICs[0]
	assert.Equal(t, "server.1.nic", nic.Name)
	assert.Equal(t, "/tmp/logs/server.1.nic.log", nic.LogFile)
	assert.Regexp(t, macPattern, nic.MAC)
	assert.Equal(t, nic.MAC, server.Node.Kind.(*LinuxNode).ForceMACAddr)
	assert.NotEqual(t, nic.MAC, ef.Hosts[1].NICs[0].MAC)

	client := ef.Hosts[1]
	iperf := client.Node.App.(*IperfTCPClient)
	assert.Equal(t, server.Node.IP, iperf.ServerIP)
	assert.True(t, iperf.IsLast)
}

func TestBuildFailures(t *testing.T) {
	t.Run("address pool exhausted", func(t *testing.T) {
		cfg := pingCfg(2)
		cfg.AddrMax = 3
		_, err := BuildExperiment(cfg)
		assert.ErrorIs(t, err, ErrAddrExhausted)
		assert.Contains(t, err.Error(), "client.2")
	})

	t.Run("unknown node kind", func(t *testing.T) {
		cfg := pingCfg(1)
		cfg.NodeKind = "plan9"
		_, err := BuildExperiment(cfg)
		assert.ErrorIs(t, err, ErrUnknownKind)
	})

	t.Run("unknown application", func(t *testing.T) {
		cfg := pingCfg(1)
		cfg.ClientApp = "telnet"
		_, err := BuildExperiment(cfg)
		assert.ErrorIs(t, err, ErrUnknownKind)
	})

	t.Run("no pairs", func(t *testing.T) {
		_, err := BuildExperiment(pingCfg(0))
		assert.Error(t, err)
	})
}

func TestWireClientsCyclesServers(t *testing.T) {
	mkHost := func(name, ip string, app AppConfig) *HostFrame {
		node := NewNodeConfig()
		node.IP = ip
		node.App = app
		return CreateHostFrame(name, SimQemu, node)
	}
	servers := []*HostFrame{mkHost("s", "10.0.0.1", &IdleHost{})}
	clients := []*HostFrame{
		mkHost("c1", "10.0.0.2", NewPingClient("", 0)),
		mkHost("c2", "10.0.0.3", NewIperfUDPClient()),
	}

	require.NoError(t, WireClients(servers, clients))

	assert.Equal(t, "10.0.0.1", clients[0].Node.App.(*PingClient).ServerIP)
	assert.Equal(t, "10.0.0.1", clients[1].Node.App.(*IperfUDPClient).ServerIP)
	assert.True(t, clients[1].Node.App.(*IperfUDPClient).IsLast)
	assert.Equal(t, "10.0.0.2", clients[0].Node.IP)
}

func TestReadBuildCfgKeepsDefaults(t *testing.T) {
	cfg, err := ReadBuildCfg("", true, []byte("name: small\npairs: 3\nclientapp: ping-client\n"))
	require.NoError(t, err)

	assert.Equal(t, "small", cfg.Name)
	assert.Equal(t, 3, cfg.Pairs)
	assert.Equal(t, "ping-client", cfg.ClientApp)
	assert.Equal(t, "iperf-tcp-server", cfg.ServerApp)
	assert.Equal(t, "192.168.64", cfg.AddrBase)
	assert.Equal(t, 254, cfg.AddrMax)
	assert.True(t, cfg.Checkpoint)
}

func TestWireClientsReportsMissingNodes(t *testing.T) {
	node := NewNodeConfig()
	node.IP = "10.0.0.1"
	node.App = &IdleHost{}
	server := CreateHostFrame("s", SimQemu, node)

	wired := NewNodeConfig()
	wired.App = NewPingClient("", 0)
	clients := []*HostFrame{
		CreateHostFrame("bare", "", nil),
		CreateHostFrame("c", SimQemu, wired),
	}

	err := WireClients([]*HostFrame{server}, clients)
	assert.ErrorIs(t, err, ErrNoApp)
	assert.Contains(t, err.Error(), "bare")
	assert.Equal(t, "10.0.0.1", wired.App.(*PingClient).ServerIP)
	assert.True(t, clients[1].Wait)

	err = WireClients([]*HostFrame{CreateHostFrame("lost", SimQemu, nil)}, clients[1:])
	assert.ErrorIs(t, err, ErrNoApp)
}

func TestBuildOneServerTwoClients(t *testing.T) {
	cfg := CreateBuildCfg("gem5-i40e-pair")
	cfg.Servers = 1
	cfg.Clients = 2
	cfg.HostSim = SimGem5
	cfg.Variant = "opt"
	cfg.NICLogDir = "out"
	cfg.ExtraArgs = []string{"--debug-file", "out/gem5-{host}-log.log", "--debug-flags=SimBricksAll,EthernetAll"}

	ef, err := BuildExperiment(cfg)
	require.NoError(t, err)

	names := []string{}
	for _, host := range ef.Hosts {
		names = append(names, host.Name)
		assert.Equal(t, "opt", host.Variant)
		assert.Equal(t, []string{"--debug-file", "out/gem5-" + host.Name + "-log.log",
			"--debug-flags=SimBricksAll,EthernetAll"}, host.ExtraArgs)
	}
	assert.Equal(t, []string{"server.1", "client.1", "client.2"}, names)

	for _, name := range []string{"client.1", "client.2"} {
		client, found := ef.FindHost(name)
		require.True(t, found)
		assert.Equal(t, "192.168.64.1", client.Node.App.(*IperfTCPClient).ServerIP)
	}
	assert.Equal(t, "192.168.64.3", ef.Hosts[2].Node.IP)
	assert.True(t, ef.Hosts[2].Wait)
	assert.Equal(t, "out/client.2.nic.log", ef.Hosts[2].NICs[0].LogFile)

	ed := ef.Transform()
	assert.Equal(t, "out/gem5-server.1-log.log", ed.Hosts[0].ExtraArgs[1])
}

const timesyncCfg = `
name: simple-tp-exp
servers: 1
clients: 2
nettype: ns3-dumbbell
netopt: --LinkRate=1Gb/s --LinkLatency=1000ns --EcnTh=0 --Mtu=1500
hostsim: gem5
cpufreq: 5GHz
sysclock: 2GHz
nodekind: timesync
kcmdappend: mce=off
serverapp: ptp-server
clientapp: chrony-client
ptp: true
chronyloglevel: -1
addrbase: "10.0.0"
extraargs: ["--debug-flags=SimBricksAll"]
`

func TestBuildTimesyncExperiment(t *testing.T) {
	cfg, err := ReadBuildCfg("", true, []byte(timesyncCfg))
	require.NoError(t, err)
	require.NotNil(t, cfg.ChronyLogLevel)

	ef, err := BuildExperiment(cfg)
	require.NoError(t, err)
	require.Len(t, ef.Hosts, 3)

	assert.Equal(t, "ns3-dumbbell", ef.Networks[0].NetType)
	assert.Equal(t, "--LinkRate=1Gb/s --LinkLatency=1000ns --EcnTh=0 --Mtu=1500", ef.Networks[0].Opt)

	server := ef.Hosts[0]
	assert.IsType(t, &PTPServer{}, server.Node.App)
	assert.Equal(t, "10.0.0.1", server.Node.IP)

	for _, host := range ef.Hosts {
		assert.Equal(t, "2GHz", host.SysClock)
		assert.Equal(t, "5GHz", host.CPUFreq)
		assert.Equal(t, []string{"--debug-flags=SimBricksAll"}, host.ExtraArgs)
		assert.Equal(t, "mce=off", host.Node.KcmdAppend)
		assert.Equal(t, "timesync", host.Node.DiskImage)
	}

	client := ef.Hosts[2].Node.App.(*ChronyClient)
	assert.True(t, client.PTP)
	assert.Equal(t, -1, client.ChronyLogLevel)

	script, err := ef.Hosts[2].Node.ConfigStr()
	require.NoError(t, err)
	assert.Contains(t, script, "ptp4l -m -q -f /etc/linuxptp/ptp4l.conf -i eth0 &")
	assert.Contains(t, script, "chronyd -d -d -f chrony.conf -L -1 &")

	files, err := ef.Hosts[2].Node.ConfigFiles()
	require.NoError(t, err)
	assert.Contains(t, guestContent(t, files["chrony.conf"]), "refclock PHC /dev/ptp0")
}

func TestBuildColumboNetperf(t *testing.T) {
	cfg := CreateBuildCfg("simple-netperf")
	cfg.ServerApp = "netperf-server"
	cfg.ClientApp = "columbo-netperf"
	cfg.SenderType = "tcp_stream"
	cfg.TestLen = 2

	ef, err := BuildExperiment(cfg)
	require.NoError(t, err)

	script, err := ef.Hosts[1].Node.ConfigStr()
	require.NoError(t, err)
	assert.Contains(t, script, "netperf -H 192.168.64.1 -l 2 -t TCP_STREAM")

	cfg.SenderType = "UDP_RR"
	_, err = BuildExperiment(cfg)
	assert.ErrorContains(t, err, "UDP_RR")
}

func TestTuningReachesVariants(t *testing.T) {
	level := 3
	at := &AppTuning{NetperfDurationTp: 5, NetperfDurationLat: 7, NICTimestamping: true,
		ChronyLogLevel: &level, NOPaxosEhseq: true, IperfRate: "1g"}

	netperf := NewNetperfClient()
	chronyd := &ChronyServer{}
	nopaxos := &NOPaxosClient{}
	short := NewIperfUDPShortClient()
	for _, app := range []tunable{netperf, chronyd, nopaxos, short} {
		require.NoError(t, app.tune(at))
	}

	assert.Equal(t, 5, netperf.DurationTp)
	assert.Equal(t, 7, netperf.DurationLat)
	assert.Equal(t, 3, chronyd.LogLevel)
	assert.True(t, chronyd.NICTimestamping)
	assert.True(t, nopaxos.UseEhseq)
	assert.Equal(t, "1g", short.Rate)

	// zero values keep the defaults
	defaults := NewNetperfClient()
	require.NoError(t, defaults.tune(&AppTuning{}))
	assert.Equal(t, 10, defaults.DurationTp)
}

func TestReadBuildCfgRejectsUnknownKeys(t *testing.T) {
	_, err := ReadBuildCfg("", true, []byte("name: typo\npairz: 2\n"))
	assert.ErrorContains(t, err, "pairz")

	_, err = ReadBuildCfg("", false, []byte(`{"name":"typo","ptpp":true}`))
	assert.ErrorContains(t, err, "ptpp")

	cfg, err := ReadBuildCfg("", false, []byte(`{"name":"j","servers":2,"ptp":true}`))
	require.NoError(t, err)
	assert.True(t, cfg.PTP)
	servers, clients := cfg.counts()
	assert.Equal(t, 2, servers)
	assert.Equal(t, 1, clients)
	assert.True(t, strings.HasPrefix(cfg.AddrBase, "192.168"))
}
