package simbricks

// build.go is the reusable topology build procedure: one network, a number of
// servers and clients, addresses from a single allocator.  It runs in two
// passes.  The first creates every host and fixes its address, the second wires
// the clients to the servers by reading those addresses back.

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// BuildCfg describes an experiment of servers and the clients that target them
type BuildCfg struct {
	Name       string `json:"name" yaml:"name"`
	Checkpoint bool   `json:"checkpoint" yaml:"checkpoint"`

	// Pairs is the number of server/client pairs.  A positive Servers or
	// Clients count replaces it for that role.
	Pairs   int `json:"pairs" yaml:"pairs"`
	Servers int `json:"servers" yaml:"servers"`
	Clients int `json:"clients" yaml:"clients"`

	// network simulator
	NetType    string `json:"nettype" yaml:"nettype"`
	NetOpt     string `json:"netopt" yaml:"netopt"`
	EthLatency int    `json:"ethlatency" yaml:"ethlatency"`
	SyncPeriod int    `json:"syncperiod" yaml:"syncperiod"`
	SyncMode   int    `json:"syncmode" yaml:"syncmode"`

	// NIC simulators.  With NICLogDir set every NIC logs to <dir>/<nic>.log
	NICModel  string `json:"nicmodel" yaml:"nicmodel"`
	NICLogDir string `json:"niclogdir" yaml:"niclogdir"`

	// host simulators
	HostSim  string `json:"hostsim" yaml:"hostsim"`
	CPUFreq  string `json:"cpufreq" yaml:"cpufreq"`
	SysClock string `json:"sysclock" yaml:"sysclock"`
	Variant  string `json:"variant" yaml:"variant"`

	// ExtraArgs go on every host simulator's command line, with {host}
	// replaced by the host's name
	ExtraArgs []string `json:"extraargs" yaml:"extraargs"`

	// guest software, by registered kind name
	NodeKind   string `json:"nodekind" yaml:"nodekind"`
	ServerApp  string `json:"serverapp" yaml:"serverapp"`
	ClientApp  string `json:"clientapp" yaml:"clientapp"`
	KcmdAppend string `json:"kcmdappend" yaml:"kcmdappend"`

	AppTuning `yaml:",inline"`

	MTU int `json:"mtu" yaml:"mtu"`

	// address pool: AddrBase.AddrStart up to AddrBase.AddrMax
	AddrBase  string `json:"addrbase" yaml:"addrbase"`
	AddrStart int    `json:"addrstart" yaml:"addrstart"`
	AddrMax   int    `json:"addrmax" yaml:"addrmax"`
	Prefix    int    `json:"prefix" yaml:"prefix"`

	// ForceMAC makes Linux guests set their interface to the NIC's MAC address
	ForceMAC bool `json:"forcemac" yaml:"forcemac"`
}

// AppTuning adjusts the application variants that carry the matching fields.
// Zero values keep each variant's defaults.  ChronyLogLevel is a pointer because
// level 0 is a setting of its own.
type AppTuning struct {
	PingCount  int    `json:"pingcount" yaml:"pingcount"`
	IperfProcs int    `json:"iperfprocs" yaml:"iperfprocs"`
	IperfRate  string `json:"iperfrate" yaml:"iperfrate"`

	// netperf: run lengths in seconds, and the Columbo test type
	NetperfDurationTp  int    `json:"netperftp" yaml:"netperftp"`
	NetperfDurationLat int    `json:"netperflat" yaml:"netperflat"`
	SenderType         string `json:"sendertype" yaml:"sendertype"`
	TestLen            int    `json:"testlen" yaml:"testlen"`

	// clock synchronization
	PTP             bool `json:"ptp" yaml:"ptp"`
	NICTimestamping bool `json:"nictimestamping" yaml:"nictimestamping"`
	ChronyLogLevel  *int `json:"chronyloglevel" yaml:"chronyloglevel"`

	NOPaxosEhseq bool `json:"ehseq" yaml:"ehseq"`
}

// tunable is satisfied by application variants that take settings from an AppTuning
type tunable interface {
	tune(at *AppTuning) error
}

// counts gives the number of servers and of clients to build
func (bc *BuildCfg) counts() (servers, clients int) {
	servers, clients = bc.Pairs, bc.Pairs
	if bc.Servers > 0 {
		servers = bc.Servers
	}
	if bc.Clients > 0 {
		clients = bc.Clients
	}
	return servers, clients
}

// WriteToFile stores the BuildCfg struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (bc *BuildCfg) WriteToFile(filename string) error {
	return writeDescFile(filename, *bc)
}

// ReadBuildCfg deserializes a byte slice holding a representation of a BuildCfg struct.
// If the input argument of dict (those bytes) is empty, the file whose name is given is read
// to acquire them.  Fields absent from the input keep the CreateBuildCfg defaults, and
// keys that name no field are an error.
func ReadBuildCfg(filename string, useYAML bool, dict []byte) (*BuildCfg, error) {
	var err error
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := CreateBuildCfg("")
	if useYAML {
		dec := yaml.NewDecoder(bytes.NewReader(dict))
		dec.KnownFields(true)
		err = dec.Decode(example)
	} else {
		dec := json.NewDecoder(bytes.NewReader(dict))
		dec.DisallowUnknownFields()
		err = dec.Decode(example)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("build configuration %s: %w", filename, err)
	}
	return example, nil
}

// macForcer is satisfied by node kinds that can pin the guest interface's MAC address
type macForcer interface {
	forceMAC(mac string)
}

func (ln *LinuxNode) forceMAC(mac string) { ln.ForceMACAddr = mac }

// builder carries the state shared by both passes
type builder struct {
	cfg   *BuildCfg
	exp   *ExperimentFrame
	net   *NetworkFrame
	alloc *AddrAllocator
	macs  *MACSource
}

// tuneApp hands the configured tuning to variants that take it
func (bd *builder) tuneApp(app AppConfig) error {
	if ta, ok := app.(tunable); ok {
		return ta.tune(&bd.cfg.AppTuning)
	}
	return nil
}

// createHost builds one host with its node, application, address and NIC, and adds
// all of it to the experiment.  This is pass 1 for one host: its address is final here.
func (bd *builder) createHost(role string, idx int, appKind string) (*HostFrame, error) {
	kind, err := CreateNodeKind(bd.cfg.NodeKind)
	if err != nil {
		return nil, err
	}
	app, err := CreateAppKind(appKind)
	if err != nil {
		return nil, err
	}
	if err := bd.tuneApp(app); err != nil {
		return nil, fmt.Errorf("%s.%d: %w", role, idx, err)
	}

	node := NewKindNode(kind)
	node.MTU = bd.cfg.MTU
	node.Prefix = bd.cfg.Prefix
	if len(bd.cfg.KcmdAppend) > 0 {
		node.KcmdAppend = bd.cfg.KcmdAppend
	}
	node.App = app

	node.IP, err = bd.alloc.GetNext()
	if err != nil {
		return nil, fmt.Errorf("%s.%d: %w", role, idx, err)
	}

	name := fmt.Sprintf("%s.%d", role, idx)
	host := CreateHostFrame(name, bd.cfg.HostSim, node)
	host.CPUFreq = bd.cfg.CPUFreq
	if len(bd.cfg.SysClock) > 0 {
		host.SysClock = bd.cfg.SysClock
	}
	host.Variant = bd.cfg.Variant
	for _, arg := range bd.cfg.ExtraArgs {
		host.ExtraArgs = append(host.ExtraArgs, strings.ReplaceAll(arg, "{host}", name))
	}
	host.SyncMode = bd.cfg.SyncMode
	host.Role = role

	nic := CreateNICFrame(name+".nic", bd.cfg.NICModel)
	nic.EthLatency = bd.cfg.EthLatency
	nic.SyncMode = bd.cfg.SyncMode
	nic.MAC = bd.macs.Next()
	if len(bd.cfg.NICLogDir) > 0 {
		nic.LogFile = filepath.Join(bd.cfg.NICLogDir, nic.Name+".log")
	}
	if bd.cfg.ForceMAC {
		if mf, ok := kind.(macForcer); ok {
			mf.forceMAC(nic.MAC)
		}
	}

	if err := nic.SetNetwork(bd.net); err != nil {
		return nil, err
	}
	if err := host.AddNIC(nic); err != nil {
		return nil, err
	}
	bd.exp.AddNIC(nic)
	bd.exp.AddHost(host)

	log.WithFields(log.Fields{
		"host": host.Name,
		"ip":   node.IP,
		"mac":  nic.MAC,
		"kind": node.KindName(),
		"app":  appKind,
	}).Debug("host created")

	return host, nil
}

// BuildExperiment runs the build procedure on cfg.  Pass 1 creates the network,
// then every server, then every client, each taking the next address.  Pass 2
// points the clients at the servers and marks the last client, which the experiment waits for.
func BuildExperiment(cfg *BuildCfg) (*ExperimentFrame, error) {
	numServers, numClients := cfg.counts()
	if numServers <= 0 {
		return nil, fmt.Errorf("experiment %s: %d servers requested", cfg.Name, numServers)
	}
	if numClients < 0 {
		return nil, fmt.Errorf("experiment %s: %d clients requested", cfg.Name, numClients)
	}

	bd := &builder{
		cfg:   cfg,
		exp:   CreateExperimentFrame(cfg.Name),
		alloc: NewAddrAllocator(cfg.AddrBase, cfg.AddrStart, cfg.AddrMax),
		macs:  NewMACSource(cfg.Name),
	}
	bd.exp.Checkpoint = cfg.Checkpoint

	bd.net = CreateNetworkFrame(cfg.Name+".net", cfg.NetType)
	bd.net.Opt = cfg.NetOpt
	bd.net.EthLatency = cfg.EthLatency
	bd.net.SyncPeriod = cfg.SyncPeriod
	bd.net.SyncMode = cfg.SyncMode
	bd.exp.AddNetwork(bd.net)

	// pass 1
	servers := make([]*HostFrame, 0, numServers)
	for idx := 1; idx <= numServers; idx++ {
		host, err := bd.createHost("server", idx, cfg.ServerApp)
		if err != nil {
			return nil, err
		}
		servers = append(servers, host)
	}

	clients := make([]*HostFrame, 0, numClients)
	for idx := 1; idx <= numClients; idx++ {
		host, err := bd.createHost("client", idx, cfg.ClientApp)
		if err != nil {
			return nil, err
		}
		clients = append(clients, host)
	}

	// pass 2
	if err := WireClients(servers, clients); err != nil {
		return nil, err
	}

	return bd.exp, nil
}

// WireClients resolves the references between already built hosts: client i targets
// the address of server i modulo the number of servers, and the last client holds the
// experiment open.  The addresses themselves are only read.  Hosts without a node or
// application are reported, and the remaining clients are still wired.
func WireClients(servers, clients []*HostFrame) error {
	errs := []error{}
	for _, server := range servers {
		if server.Node == nil {
			errs = append(errs, fmt.Errorf("server %s has no node configuration: %w", server.Name, ErrNoApp))
		}
	}
	if len(errs) > 0 || len(servers) == 0 {
		return ReportErrs(errs)
	}

	for idx, client := range clients {
		server := servers[idx%len(servers)]
		isLast := idx == len(clients)-1
		if isLast {
			client.Wait = true
		}

		if client.Node == nil || client.Node.App == nil {
			errs = append(errs, fmt.Errorf("client %s: %w", client.Name, ErrNoApp))
			continue
		}
		if st, ok := client.Node.App.(ServerTargeted); ok {
			st.SetServer(server.Node.IP)
		}
		if la, ok := client.Node.App.(LastAware); ok {
			la.SetLast(isLast)
		}

		log.WithFields(log.Fields{
			"client": client.Name,
			"server": server.Name,
			"ip":     server.Node.IP,
			"last":   isLast,
		}).Debug("client wired")
	}
	return ReportErrs(errs)
}
