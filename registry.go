package simbricks

// registry.go maps the kind names used in build configurations and experiment
// descriptions to the constructors of node kinds and application variants

import (
	"fmt"
	"sort"
	"strings"
)

// NodeKindFunc creates a fresh node kind
type NodeKindFunc func() NodeKind

// AppKindFunc creates a fresh application variant
type AppKindFunc func() AppConfig

var nodeKinds = map[string]NodeKindFunc{
	"node":           func() NodeKind { return nil },
	"linux":          func() NodeKind { return NewLinuxNode() },
	"i40e-linux":     func() NodeKind { return NewI40eLinuxNode() },
	"e1000-linux":    func() NodeKind { return NewE1000LinuxNode() },
	"corundum-linux": func() NodeKind { return NewCorundumLinuxNode() },
	"timesync":       func() NodeKind { return NewTimesyncNode() },
	"mtcp":           func() NodeKind { return NewMtcpNode() },
	"tas":            func() NodeKind { return NewTASNode() },
	"i40e-dctcp":     func() NodeKind { return I40eDCTCPNode{} },
	"corundum-dctcp": func() NodeKind { return CorundumDCTCPNode{} },
	"linux-femu":     func() NodeKind { return NewLinuxFEMUNode() },
}

var appKinds = map[string]AppKindFunc{
	"idle":             func() AppConfig { return &IdleHost{} },
	"nvme-fs-test":     func() AppConfig { return &NVMeFsTest{} },
	"dctcp-server":     func() AppConfig { return &DctcpServer{} },
	"dctcp-client":     func() AppConfig { return NewDctcpClient() },
	"ping-client":      func() AppConfig { return NewPingClient("", 0) },
	"iperf-tcp-server": func() AppConfig { return &IperfTCPServer{} },
	"iperf-udp-server": func() AppConfig { return &IperfUDPServer{} },
	"iperf-tcp-client": func() AppConfig { return NewIperfTCPClient() },
	"iperf-udp-client": func() AppConfig { return NewIperfUDPClient() },
	"iperf-udp-short":  func() AppConfig { return NewIperfUDPShortClient() },
	"iperf-udp-sleep":  func() AppConfig { return &IperfUDPClientSleep{ServerIP: "10.0.0.1", Rate: "150m"} },
	"no-traffic":       func() AppConfig { return NewNoTraffic() },
	"netperf-server":   func() AppConfig { return &NetperfServer{} },
	"netperf-client":   func() AppConfig { return NewNetperfClient() },
	"columbo-netperf":  func() AppConfig { return NewColumboNetperfClient("", TCPRR, 0) },
	"ntp-server":       func() AppConfig { return &NTPServer{} },
	"ntp-client":       func() AppConfig { return NewNTPClient("") },
	"ptp-server":       func() AppConfig { return &PTPServer{} },
	"chrony-server":    func() AppConfig { return &ChronyServer{} },
	"chrony-client":    func() AppConfig { return NewChronyClient() },
	"vr-replica":       func() AppConfig { return &VRReplica{} },
	"vr-client":        func() AppConfig { return &VRClient{ServerIPs: []string{}} },
	"nopaxos-replica":  func() AppConfig { return &NOPaxosReplica{} },
	"nopaxos-client":   func() AppConfig { return &NOPaxosClient{ServerIPs: []string{}} },
	"nopaxos-seq":      func() AppConfig { return &NOPaxosSequencer{} },
	"rpc-server":       func() AppConfig { return NewRPCServer() },
	"rpc-client":       func() AppConfig { return NewRPCClient() },
	"httpd-linux":      func() AppConfig { return NewHTTPDLinux() },
	"httpd-linux-rpo":  func() AppConfig { return NewHTTPDLinuxRPO() },
	"httpd-mtcp":       func() AppConfig { return NewHTTPDMtcp() },
	"httpc-linux":      func() AppConfig { return NewHTTPCLinux() },
	"httpc-mtcp":       func() AppConfig { return NewHTTPCMtcp() },
	"memcached-server": func() AppConfig { return &MemcachedServer{} },
	"memcached-client": func() AppConfig { return NewMemcachedClient() },
}

// RegisterNodeKind makes a node kind available under name, replacing any earlier registration
func RegisterNodeKind(name string, fn NodeKindFunc) {
	nodeKinds[name] = fn
}

// RegisterAppKind makes an application variant available under name, replacing any earlier registration
func RegisterAppKind(name string, fn AppKindFunc) {
	appKinds[name] = fn
}

// CreateNodeKind returns a fresh node kind registered under name
func CreateNodeKind(name string) (NodeKind, error) {
	fn, present := nodeKinds[name]
	if !present {
		return nil, fmt.Errorf("node kind %q: %w", name, ErrUnknownKind)
	}
	return fn(), nil
}

// CreateAppKind returns a fresh application variant registered under name
func CreateAppKind(name string) (AppConfig, error) {
	fn, present := appKinds[name]
	if !present {
		return nil, fmt.Errorf("application kind %q: %w", name, ErrUnknownKind)
	}
	return fn(), nil
}

// NodeKindNames lists the registered node kinds in name order
func NodeKindNames() []string {
	names := make([]string, 0, len(nodeKinds))
	for name := range nodeKinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AppKindNames lists the registered application variants in name order
func AppKindNames() []string {
	names := make([]string, 0, len(appKinds))
	for name := range appKinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AppKindName names the variant of app for descriptions.  Variants created
// through the registry carry no name of their own, so the Go type name is used.
func AppKindName(app AppConfig) string {
	if app == nil {
		return ""
	}
	name := fmt.Sprintf("%T", app)
	name = strings.TrimPrefix(name, "*")
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}
