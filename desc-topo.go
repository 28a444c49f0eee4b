package simbricks

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// To most easily serialize and deserialize an experiment we make sure its
// description is completely free of pointers.  Building the experiment on the
// other hand is simplest when hosts, NICs and networks point at each other.
// So every structure comes in two representations: a 'Frame' holding
// pointers, used while the build procedure runs, and a pointer-free 'Desc'
// produced by Transform once the build is complete.

// counters used to generate unique default names
var numberOfNetworks int = 0
var numberOfNICs int = 0
var numberOfHosts int = 0

// writeDescFile stores v in the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func writeDescFile(filename string, v any) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error

	switch pathExt {
	case ".yaml", ".YAML", ".yml":
		bytes, merr = yaml.Marshal(v)
	case ".json", ".JSON":
		bytes, merr = json.MarshalIndent(v, "", "\t")
	default:
		return fmt.Errorf("file %s: extension %q selects neither yaml nor json", filename, pathExt)
	}
	if merr != nil {
		return merr
	}

	return os.WriteFile(filename, bytes, 0o644)
}

// readDescFile deserializes into v a byte slice holding a representation of it.
// If dict is empty, the file whose name is given is read to acquire the bytes.
func readDescFile(filename string, useYAML bool, dict []byte, v any) error {
	var err error
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return err
		}
	}

	if useYAML {
		return yaml.Unmarshal(dict, v)
	}
	return json.Unmarshal(dict, v)
}

// UseYAML reports whether the extension of filename selects yaml over json
func UseYAML(filename string) bool {
	pathExt := strings.ToLower(path.Ext(filename))
	return pathExt == ".yaml" || pathExt == ".yml"
}

// A NetworkFrame holds the attributes of the network simulator during the build
type NetworkFrame struct {
	// Name is unique across all networks of the experiment
	Name string

	// NetType selects the network simulator, e.g., "switch", "ns3-dumbbell"
	NetType string

	// EthLatency is the latency in ns of the Ethernet links to the NICs
	EthLatency int

	// SyncPeriod is the synchronization period in ns with the adjacent simulators
	SyncPeriod int

	// SyncMode is 1 when the network runs synchronized with its neighbours
	SyncMode int

	// Opt is passed verbatim on the network simulator's command line
	Opt string

	// every NIC attached to this network
	NICs []*NICFrame
}

// NetworkDesc is the serializable version of a NetworkFrame, where the
// attached NICs are given by name
type NetworkDesc struct {
	Name       string   `json:"name" yaml:"name"`
	NetType    string   `json:"nettype" yaml:"nettype"`
	EthLatency int      `json:"ethlatency" yaml:"ethlatency"`
	SyncPeriod int      `json:"syncperiod" yaml:"syncperiod"`
	SyncMode   int      `json:"syncmode" yaml:"syncmode"`
	Opt        string   `json:"opt" yaml:"opt"`
	NICs       []string `json:"nics" yaml:"nics"`
}

// DefaultNetworkName returns a unique name for a network
func DefaultNetworkName() string {
	return fmt.Sprintf("net.(%d)", numberOfNetworks)
}

// CreateNetworkFrame is a constructor.  An empty name is replaced by a generated one.
func CreateNetworkFrame(name, netType string) *NetworkFrame {
	nf := new(NetworkFrame)
	numberOfNetworks += 1

	if len(name) == 0 {
		name = DefaultNetworkName()
	}
	nf.Name = name
	nf.NetType = netType
	nf.EthLatency = 500
	nf.SyncPeriod = 500
	nf.SyncMode = 1
	nf.NICs = make([]*NICFrame, 0)

	return nf
}

// Transform returns a serializable NetworkDesc, transformed from a NetworkFrame
func (nf *NetworkFrame) Transform() NetworkDesc {
	nd := NetworkDesc{Name: nf.Name, NetType: nf.NetType, EthLatency: nf.EthLatency,
		SyncPeriod: nf.SyncPeriod, SyncMode: nf.SyncMode, Opt: nf.Opt}

	nd.NICs = make([]string, len(nf.NICs))
	for idx, nic := range nf.NICs {
		nd.NICs[idx] = nic.Name
	}
	return nd
}

// A NICFrame is the NIC simulator of one host during the build
type NICFrame struct {
	// Name is unique across all NICs of the experiment
	Name string

	// Model is the NIC simulator, e.g., "i40e", "e1000", "corundum"
	Model string

	// EthLatency is the latency in ns of the Ethernet link to the network
	EthLatency int

	// SyncMode is 1 when the NIC runs synchronized with its neighbours
	SyncMode int

	// LogFile receives the NIC simulator's log, none when empty
	LogFile string

	// MAC is the hardware address the NIC presents
	MAC string

	// the network this NIC is attached to
	Network *NetworkFrame

	// the host whose PCI bus carries this NIC
	Host *HostFrame
}

// NICDesc is the serializable version of a NICFrame
type NICDesc struct {
	Name       string `json:"name" yaml:"name"`
	Model      string `json:"model" yaml:"model"`
	EthLatency int    `json:"ethlatency" yaml:"ethlatency"`
	SyncMode   int    `json:"syncmode" yaml:"syncmode"`
	LogFile    string `json:"logfile" yaml:"logfile"`
	MAC        string `json:"mac" yaml:"mac"`
	Network    string `json:"network" yaml:"network"`
	Host       string `json:"host" yaml:"host"`
}

// DefaultNICName returns a unique name for a NIC
func DefaultNICName() string {
	return fmt.Sprintf("nic.(%d)", numberOfNICs)
}

// CreateNICFrame is a constructor.  An empty name is replaced by a generated one.
func CreateNICFrame(name, model string) *NICFrame {
	nic := new(NICFrame)
	numberOfNICs += 1

	if len(name) == 0 {
		name = DefaultNICName()
	}
	nic.Name = name
	nic.Model = model
	nic.EthLatency = 500
	nic.SyncMode = 1

	return nic
}

// SetNetwork attaches the NIC to net.  A NIC is attached to exactly one network,
// an attempt to move it to a second one is an error.
func (nic *NICFrame) SetNetwork(net *NetworkFrame) error {
	if nic.Network == net {
		return nil
	}
	if nic.Network != nil {
		return fmt.Errorf("nic %s already attached to network %s, cannot attach to %s",
			nic.Name, nic.Network.Name, net.Name)
	}
	nic.Network = net
	net.NICs = append(net.NICs, nic)

	return nil
}

// Transform returns a serializable NICDesc, transformed from a NICFrame
func (nic *NICFrame) Transform() NICDesc {
	nd := NICDesc{Name: nic.Name, Model: nic.Model, EthLatency: nic.EthLatency,
		SyncMode: nic.SyncMode, LogFile: nic.LogFile, MAC: nic.MAC}
	if nic.Network != nil {
		nd.Network = nic.Network.Name
	}
	if nic.Host != nil {
		nd.Host = nic.Host.Name
	}
	return nd
}

// HostFrame is one host simulator together with the guest configuration it boots
type HostFrame struct {
	Name      string      // unique string identifier
	Sim       string      // host simulator kind, also given to the node as its simulator-kind tag
	CPUFreq   string      // simulated CPU frequency, e.g. "4GHz"
	SysClock  string      // simulated system clock, e.g. "1GHz"
	Variant   string      // simulator build variant, e.g. "fast", "opt"
	Wait      bool        // whether the experiment waits for this host to exit
	SyncMode  int         // 1 when running synchronized with the NICs
	ExtraArgs []string    // passed verbatim on the host simulator's command line
	Role      string      // "server" or "client" when created by the build procedure
	Node      *NodeConfig // guest software configuration
	NICs      []*NICFrame // NICs on the host's PCI bus
}

// HostDesc is the serializable version of a HostFrame
type HostDesc struct {
	Name      string   `json:"name" yaml:"name"`
	Sim       string   `json:"sim" yaml:"sim"`
	CPUFreq   string   `json:"cpufreq" yaml:"cpufreq"`
	SysClock  string   `json:"sysclock" yaml:"sysclock"`
	Variant   string   `json:"variant" yaml:"variant"`
	Wait      bool     `json:"wait" yaml:"wait"`
	SyncMode  int      `json:"syncmode" yaml:"syncmode"`
	ExtraArgs []string `json:"extraargs" yaml:"extraargs"`
	Role      string   `json:"role" yaml:"role"`
	Node      NodeDesc `json:"node" yaml:"node"`
	NICs      []string `json:"nics" yaml:"nics"`
}

// NodeDesc records a NodeConfig, naming the node kind and application it was built with
type NodeDesc struct {
	NodeConfig `yaml:",inline"`

	Kind string `json:"kind" yaml:"kind"`
	App  string `json:"app" yaml:"app"`
}

// describeNode transforms a NodeConfig into its serializable record
func describeNode(nc *NodeConfig) NodeDesc {
	if nc == nil {
		return NodeDesc{}
	}
	nd := NodeDesc{NodeConfig: *nc, Kind: nc.KindName(), App: AppKindName(nc.App)}
	nd.NodeConfig.App = nil
	nd.NodeConfig.Kind = nil

	return nd
}

// DefaultHostName returns a unique name for a host
func DefaultHostName() string {
	return fmt.Sprintf("host.(%d)", numberOfHosts)
}

// CreateHostFrame is a constructor.  The node, when given, takes its
// simulator-kind tag from the host simulator.
func CreateHostFrame(name, sim string, node *NodeConfig) *HostFrame {
	hf := new(HostFrame)
	numberOfHosts += 1

	if len(name) == 0 {
		name = DefaultHostName()
	}
	hf.Name = name
	hf.Sim = sim
	hf.CPUFreq = "4GHz"
	hf.SysClock = "1GHz"
	hf.Variant = "fast"
	hf.SyncMode = 1
	hf.ExtraArgs = make([]string, 0)
	hf.NICs = make([]*NICFrame, 0)

	hf.Node = node
	if node != nil && len(sim) > 0 {
		node.Sim = sim
	}

	return hf
}

// AddNIC puts the NIC on the host's PCI bus.  A NIC belongs to at most one host,
// so adding one that is already on a host is an error.
func (hf *HostFrame) AddNIC(nic *NICFrame) error {
	if nic.Host == hf {
		return nil
	}
	if nic.Host != nil {
		return fmt.Errorf("nic %s already on host %s, cannot add to %s", nic.Name, nic.Host.Name, hf.Name)
	}
	for _, held := range hf.NICs {
		if held.Name == nic.Name {
			return fmt.Errorf("host %s already holds a nic named %s", hf.Name, nic.Name)
		}
	}
	nic.Host = hf
	hf.NICs = append(hf.NICs, nic)

	return nil
}

// Transform returns a serializable HostDesc, transformed from a HostFrame
func (hf *HostFrame) Transform() HostDesc {
	hd := HostDesc{Name: hf.Name, Sim: hf.Sim, CPUFreq: hf.CPUFreq, SysClock: hf.SysClock,
		Variant: hf.Variant, Wait: hf.Wait, SyncMode: hf.SyncMode, Role: hf.Role}

	hd.ExtraArgs = make([]string, len(hf.ExtraArgs))
	copy(hd.ExtraArgs, hf.ExtraArgs)

	hd.Node = describeNode(hf.Node)

	hd.NICs = make([]string, len(hf.NICs))
	for idx, nic := range hf.NICs {
		hd.NICs[idx] = nic.Name
	}
	return hd
}

// ExperimentFrame holds every network, NIC and host of one experiment during the build
type ExperimentFrame struct {
	Name string

	// Checkpoint selects booting from a checkpoint taken at the checkpoint marker
	Checkpoint bool

	Networks []*NetworkFrame
	NICs     []*NICFrame
	Hosts    []*HostFrame
}

// CreateExperimentFrame is a constructor
func CreateExperimentFrame(name string) *ExperimentFrame {
	ef := new(ExperimentFrame)
	ef.Name = name
	ef.Networks = make([]*NetworkFrame, 0)
	ef.NICs = make([]*NICFrame, 0)
	ef.Hosts = make([]*HostFrame, 0)

	return ef
}

// AddNetwork adds a network to the experiment (if it is not already present)
func (ef *ExperimentFrame) AddNetwork(net *NetworkFrame) {
	for _, stored := range ef.Networks {
		if net == stored {
			return
		}
	}
	ef.Networks = append(ef.Networks, net)
}

// AddNIC adds a NIC to the experiment (if it is not already present)
func (ef *ExperimentFrame) AddNIC(nic *NICFrame) {
	for _, stored := range ef.NICs {
		if nic == stored {
			return
		}
	}
	ef.NICs = append(ef.NICs, nic)
}

// AddHost adds a host to the experiment (if it is not already present)
func (ef *ExperimentFrame) AddHost(host *HostFrame) {
	for _, stored := range ef.Hosts {
		if host == stored {
			return
		}
	}
	ef.Hosts = append(ef.Hosts, host)
}

// FindHost returns the host with the given name, and whether there is one
func (ef *ExperimentFrame) FindHost(name string) (*HostFrame, bool) {
	for _, host := range ef.Hosts {
		if host.Name == name {
			return host, true
		}
	}
	return nil, false
}

// FindNIC returns the NIC with the given name, and whether there is one
func (ef *ExperimentFrame) FindNIC(name string) (*NICFrame, bool) {
	for _, nic := range ef.NICs {
		if nic.Name == name {
			return nic, true
		}
	}
	return nil, false
}

// FindNetwork returns the network with the given name, and whether there is one
func (ef *ExperimentFrame) FindNetwork(name string) (*NetworkFrame, bool) {
	for _, net := range ef.Networks {
		if net.Name == name {
			return net, true
		}
	}
	return nil, false
}

// Validate checks the structural invariants of the experiment graph.  All
// violations found are reported together, each wrapping ErrInvalidTopology.
func (ef *ExperimentFrame) Validate() error {
	errs := []error{}
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidTopology, fmt.Sprintf(format, args...)))
	}

	if len(ef.Hosts) == 0 {
		invalid("experiment %s has no hosts", ef.Name)
	}

	hostNames := make(map[string]bool)
	for _, host := range ef.Hosts {
		if hostNames[host.Name] {
			invalid("host name %s used more than once", host.Name)
		}
		hostNames[host.Name] = true

		if host.Node == nil {
			invalid("host %s has no node configuration", host.Name)
		} else if host.Node.App == nil {
			invalid("host %s: %v", host.Name, ErrNoApp)
		}
		for _, nic := range host.NICs {
			if _, present := ef.FindNIC(nic.Name); !present {
				invalid("nic %s of host %s is not part of the experiment", nic.Name, host.Name)
			}
		}
	}

	for _, nic := range ef.NICs {
		if nic.Network == nil {
			invalid("nic %s is not attached to a network", nic.Name)
			continue
		}
		if _, present := ef.FindNetwork(nic.Network.Name); !present {
			invalid("network %s of nic %s is not part of the experiment", nic.Network.Name, nic.Name)
		}
		if nic.Host == nil {
			invalid("nic %s is not on any host", nic.Name)
		}
	}

	// addresses must be distinct among the hosts sharing a network
	for _, net := range ef.Networks {
		owner := make(map[string]string)
		for _, nic := range net.NICs {
			if nic.Host == nil || nic.Host.Node == nil {
				continue
			}
			ip := nic.Host.Node.IP
			if prev, present := owner[ip]; present && prev != nic.Host.Name {
				invalid("hosts %s and %s share address %s on network %s", prev, nic.Host.Name, ip, net.Name)
			}
			owner[ip] = nic.Host.Name
		}
	}

	if len(errs) == 0 {
		errs = append(errs, ef.checkReachability())
	}

	return ReportErrs(errs)
}

// Transform transforms the slices of pointers to experiment objects
// into slices of instances of those objects, for serialization
func (ef *ExperimentFrame) Transform() ExperimentDesc {
	ed := ExperimentDesc{Name: ef.Name, Checkpoint: ef.Checkpoint}

	ed.Networks = make([]NetworkDesc, len(ef.Networks))
	for idx, net := range ef.Networks {
		ed.Networks[idx] = net.Transform()
	}

	ed.NICs = make([]NICDesc, len(ef.NICs))
	for idx, nic := range ef.NICs {
		ed.NICs[idx] = nic.Transform()
	}

	ed.Hosts = make([]HostDesc, len(ef.Hosts))
	for idx, host := range ef.Hosts {
		ed.Hosts[idx] = host.Transform()
	}

	return ed
}

// ExperimentDesc is the serializable description of a complete experiment
type ExperimentDesc struct {
	Name       string        `json:"name" yaml:"name"`
	Checkpoint bool          `json:"checkpoint" yaml:"checkpoint"`
	Networks   []NetworkDesc `json:"networks" yaml:"networks"`
	NICs       []NICDesc     `json:"nics" yaml:"nics"`
	Hosts      []HostDesc    `json:"hosts" yaml:"hosts"`
}

// WriteToFile stores the ExperimentDesc struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (ed *ExperimentDesc) WriteToFile(filename string) error {
	return writeDescFile(filename, *ed)
}

// ReadExperimentDesc deserializes a byte slice holding a representation of an ExperimentDesc struct.
// If the input argument of dict (those bytes) is empty, the file whose name is given is read
// to acquire them.  A deserialized representation is returned, or an error if one is generated
// from a file read or the deserialization.
func ReadExperimentDesc(filename string, useYAML bool, dict []byte) (*ExperimentDesc, error) {
	example := ExperimentDesc{}
	if err := readDescFile(filename, useYAML, dict, &example); err != nil {
		return nil, err
	}
	return &example, nil
}
