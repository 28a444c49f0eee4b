package simbricks

// app-bench.go holds the application benchmarks: replicated state machines
// (VR, NOPaxos), the TAS micro RPC benchmark, lighttpd with ab, and memcached

import (
	"fmt"
	"strconv"
	"strings"
)

const nopaxosCfg = "/root/nopaxos.config"

// usesMtcp reports whether the node runs the mTCP user-space stack
func usesMtcp(node *NodeConfig) bool {
	if node == nil {
		return false
	}
	_, isMtcp := node.Kind.(*MtcpNode)
	return isMtcp
}

// VRReplica runs replica Index of a viewstamped replication group
type VRReplica struct {
	BaseApp
	Index int
}

func (vr *VRReplica) RunCmds(node *NodeConfig) []string {
	return []string{
		"/root/nopaxos/bench/replica -c " + nopaxosCfg + " -i " + strconv.Itoa(vr.Index) + " -m vr",
	}
}

// VRClient pings every replica, then runs the VR benchmark client from the node's address
type VRClient struct {
	BaseApp
	ServerIPs []string
}

func (vc *VRClient) SetServer(ip string) { vc.ServerIPs = []string{ip} }

func (vc *VRClient) RunCmds(node *NodeConfig) []string {
	cmds := []string{}
	for _, ip := range vc.ServerIPs {
		cmds = append(cmds, "ping -c 2 "+ip)
	}
	return append(cmds, "/root/nopaxos/bench/client -c "+nopaxosCfg+" -m vr -u 2 -h "+node.IP)
}

// NOPaxosReplica runs replica Index of a NOPaxos group
type NOPaxosReplica struct {
	BaseApp
	Index int
}

func (nr *NOPaxosReplica) RunCmds(node *NodeConfig) []string {
	return []string{
		"/root/nopaxos/bench/replica -c " + nopaxosCfg + " -i " + strconv.Itoa(nr.Index) + " -m nopaxos",
	}
}

// NOPaxosClient pings every replica, then runs the NOPaxos benchmark client
type NOPaxosClient struct {
	BaseApp
	ServerIPs []string
	IsLast    bool
	UseEhseq  bool
}

func (nc *NOPaxosClient) SetServer(ip string) { nc.ServerIPs = []string{ip} }
func (nc *NOPaxosClient) SetLast(last bool)   { nc.IsLast = last }

func (nc *NOPaxosClient) tune(at *AppTuning) error {
	nc.UseEhseq = nc.UseEhseq || at.NOPaxosEhseq
	return nil
}

func (nc *NOPaxosClient) RunCmds(node *NodeConfig) []string {
	cmds := []string{}
	for _, ip := range nc.ServerIPs {
		cmds = append(cmds, "ping -c 2 "+ip)
	}
	cmd := "/root/nopaxos/bench/client -c " + nopaxosCfg + " -m nopaxos -u 2 -h " + node.IP
	if nc.UseEhseq {
		cmd += " -e"
	}
	cmds = append(cmds, cmd)

	return append(cmds, releaseSleep(nc.IsLast, "1", "infinity"))
}

// NOPaxosSequencer runs the NOPaxos sequencer
type NOPaxosSequencer struct {
	BaseApp
}

func (NOPaxosSequencer) RunCmds(node *NodeConfig) []string {
	return []string{"/root/nopaxos/sequencer/sequencer -c " + nopaxosCfg + " -m nopaxos"}
}

// RPCServer runs the micro_rpc echo server, picking the mTCP build on mTCP nodes
type RPCServer struct {
	BaseApp
	Port     int
	Threads  int
	MaxFlows int
	MaxBytes int
}

// NewRPCServer is a constructor with the benchmark defaults
func NewRPCServer() *RPCServer {
	return &RPCServer{Port: 1234, Threads: 1, MaxFlows: 1234, MaxBytes: 1024}
}

func (rs *RPCServer) RunCmds(node *NodeConfig) []string {
	exe := "echoserver_linux"
	if usesMtcp(node) {
		exe = "echoserver_mtcp"
	}
	return []string{
		"cd /root/tasbench/micro_rpc",
		fmt.Sprintf("./%s %d %d /tmp/guest/mtcp.conf %d %d", exe, rs.Port, rs.Threads, rs.MaxFlows, rs.MaxBytes),
	}
}

// RPCClient runs the micro_rpc load generator in the background for Time seconds
type RPCClient struct {
	BaseApp
	ServerIP     string
	Port         int
	Threads      int
	MaxFlows     int
	MaxBytes     int
	MaxPending   int
	OpenallDelay int
	MaxMsgsConn  int
	MaxPendConns int
	Time         int
}

// NewRPCClient is a constructor with the benchmark defaults
func NewRPCClient() *RPCClient {
	return &RPCClient{
		ServerIP:     "10.0.0.1",
		Port:         1234,
		Threads:      1,
		MaxFlows:     128,
		MaxBytes:     1024,
		MaxPending:   1,
		OpenallDelay: 2,
		MaxMsgsConn:  0,
		MaxPendConns: 8,
		Time:         25,
	}
}

func (rc *RPCClient) SetServer(ip string) { rc.ServerIP = ip }

func (rc *RPCClient) RunCmds(node *NodeConfig) []string {
	exe := "testclient_linux"
	if usesMtcp(node) {
		exe = "testclient_mtcp"
	}
	return []string{
		"cd /root/tasbench/micro_rpc",
		fmt.Sprintf("./%s %s %d %d /tmp/guest/mtcp.conf %d %d %d %d %d %d &",
			exe, rc.ServerIP, rc.Port, rc.Threads, rc.MaxBytes, rc.MaxPending,
			rc.MaxFlows, rc.OpenallDelay, rc.MaxMsgsConn, rc.MaxPendConns),
		fmt.Sprintf("sleep %d", rc.Time),
	}
}

// HTTPD serves a single file of FileSize bytes with lighttpd built in HttpdDir
type HTTPD struct {
	BaseApp
	Threads    int
	FileSize   int
	MtcpConfig string
	HttpdDir   string

	// Mtcp marks the mTCP build, which needs the guest mtcp.conf and a patched document root
	Mtcp bool
}

// NewHTTPDLinux returns lighttpd on the Linux stack
func NewHTTPDLinux() *HTTPD {
	return &HTTPD{Threads: 1, FileSize: 64, MtcpConfig: "lighttpd.conf", HttpdDir: "/root/mtcp/apps/lighttpd-mtlinux"}
}

// NewHTTPDLinuxRPO returns lighttpd on the Linux stack, receive packet ordering build
func NewHTTPDLinuxRPO() *HTTPD {
	return &HTTPD{Threads: 1, FileSize: 64, MtcpConfig: "lighttpd.conf", HttpdDir: "/root/mtcp/apps/lighttpd-mtlinux-rop"}
}

// NewHTTPDMtcp returns lighttpd on mTCP
func NewHTTPDMtcp() *HTTPD {
	return &HTTPD{Threads: 1, FileSize: 64, MtcpConfig: "m-lighttpd.conf", HttpdDir: "/root/mtcp/apps/lighttpd-mtcp", Mtcp: true}
}

func (hd *HTTPD) PrepPreCp() []string {
	cmds := []string{
		"mkdir -p /srv/www/htdocs/ /tmp/lighttpd/",
		fmt.Sprintf("dd if=/dev/zero of=/srv/www/htdocs/file bs=%d count=1", hd.FileSize),
	}
	if hd.Mtcp {
		cmds = append(cmds,
			fmt.Sprintf("cp /tmp/guest/mtcp.conf %s/src/mtcp.conf", hd.HttpdDir),
			fmt.Sprintf(`sed -i "s:^server.document-root =.*:server.document-root = server_root + \"/htdocs\":" %s/doc/config/%s`,
				hd.HttpdDir, hd.MtcpConfig),
		)
	}
	return cmds
}

func (hd *HTTPD) RunCmds(node *NodeConfig) []string {
	return []string{
		fmt.Sprintf("cd %s/src/", hd.HttpdDir),
		fmt.Sprintf("./lighttpd -D -f ../doc/config/%s -n %d -m ./.libs/", hd.MtcpConfig, hd.Threads),
	}
}

// HTTPC runs ab against an HTTPD
type HTTPC struct {
	BaseApp
	ServerIP string
	Conns    int
	Requests int
	Threads  int
	URL      string
	AbDir    string
	Mtcp     bool
}

func newHTTPC(abDir string, mtcp bool) *HTTPC {
	return &HTTPC{ServerIP: "10.0.0.1", Conns: 1000, Requests: 10000, Threads: 1, URL: "/file", AbDir: abDir, Mtcp: mtcp}
}

// NewHTTPCLinux returns ab on the Linux stack
func NewHTTPCLinux() *HTTPC {
	return newHTTPC("/root/mtcp/apps/ab-linux", false)
}

// NewHTTPCMtcp returns ab on mTCP
func NewHTTPCMtcp() *HTTPC {
	return newHTTPC("/root/mtcp/apps/ab-mtcp", true)
}

func (hc *HTTPC) SetServer(ip string) { hc.ServerIP = ip }

func (hc *HTTPC) PrepPreCp() []string {
	if !hc.Mtcp {
		return []string{}
	}
	return []string{
		fmt.Sprintf("cp /tmp/guest/mtcp.conf %s/support/config/mtcp.conf", hc.AbDir),
		fmt.Sprintf("rm -f %s/support/config/arp.conf", hc.AbDir),
	}
}

func (hc *HTTPC) RunCmds(node *NodeConfig) []string {
	return []string{
		fmt.Sprintf("cd %s/support/", hc.AbDir),
		fmt.Sprintf("./ab -N %d -c %d -n %d %s%s", hc.Threads, hc.Conns, hc.Requests, hc.ServerIP, hc.URL),
	}
}

// MemcachedServer runs a single threaded memcached
type MemcachedServer struct {
	BaseApp
}

func (MemcachedServer) RunCmds(node *NodeConfig) []string {
	return []string{"memcached -u root -t 1 -c 4096"}
}

// MemcachedClient drives memaslap against every server for ten seconds
type MemcachedClient struct {
	BaseApp
	ServerIPs   []string
	Threads     int
	Concurrency int
	Throughput  string
}

// NewMemcachedClient is a constructor with the benchmark defaults
func NewMemcachedClient() *MemcachedClient {
	return &MemcachedClient{ServerIPs: []string{"10.0.0.1"}, Threads: 1, Concurrency: 1, Throughput: "1k"}
}

func (mc *MemcachedClient) SetServer(ip string) { mc.ServerIPs = []string{ip} }

func (mc *MemcachedClient) RunCmds(node *NodeConfig) []string {
	servers := make([]string, len(mc.ServerIPs))
	for idx, ip := range mc.ServerIPs {
		servers[idx] = ip + ":11211"
	}
	return []string{fmt.Sprintf("memaslap --binary --time 10s --server=%s --thread=%d --concurrency=%d --tps=%s --verbose",
		strings.Join(servers, ","), mc.Threads, mc.Concurrency, mc.Throughput)}
}
