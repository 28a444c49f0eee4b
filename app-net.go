package simbricks

// app-net.go holds the network workload variants: idle hosts, ping, iperf,
// netperf and dctcp pairs, plus a couple of traffic-free fillers

import (
	"fmt"
	"strconv"
	"strings"
)

// releaseSleep is the trailing wait of a client.  The last client of a multi-pair
// experiment holds the experiment open only briefly, the others yield for long.
func releaseSleep(isLast bool, last, other string) string {
	if isLast {
		return "sleep " + last
	}
	return "sleep " + other
}

// IdleHost keeps the host alive without generating traffic
type IdleHost struct {
	BaseApp
}

func (IdleHost) RunCmds(node *NodeConfig) []string {
	return []string{"sleep infinity"}
}

// NVMeFsTest formats and fills a file system on the emulated NVMe device
type NVMeFsTest struct {
	BaseApp
}

func (NVMeFsTest) RunCmds(node *NodeConfig) []string {
	return []string{
		"mount -t proc proc /proc",
		"mkfs.ext3 /dev/nvme0n1",
		"mount /dev/nvme0n1 /mnt",
		"dd if=/dev/urandom of=/mnt/foo bs=1024 count=1024",
	}
}

// DctcpServer runs an iperf server using the dctcp congestion control
type DctcpServer struct {
	BaseApp
}

func (DctcpServer) RunCmds(node *NodeConfig) []string {
	return []string{"iperf -s -w 1M -Z dctcp"}
}

// DctcpClient runs an iperf client against a DctcpServer
type DctcpClient struct {
	BaseApp
	ServerIP string
	IsLast   bool
}

// NewDctcpClient is a constructor, filling in the default server address
func NewDctcpClient() *DctcpClient {
	return &DctcpClient{ServerIP: "192.168.64.1"}
}

func (dc *DctcpClient) SetServer(ip string) { dc.ServerIP = ip }
func (dc *DctcpClient) SetLast(last bool)   { dc.IsLast = last }

func (dc *DctcpClient) RunCmds(node *NodeConfig) []string {
	return []string{
		"sleep 1",
		fmt.Sprintf("iperf -w 1M -c %s -Z dctcp -i 1", dc.ServerIP),
		releaseSleep(dc.IsLast, "2", "20"),
	}
}

// PingClient pings its server Count times
type PingClient struct {
	BaseApp
	ServerIP string
	Count    int

	// IsLast is recorded for the build procedure, ping has no trailing wait
	IsLast bool
}

// NewPingClient is a constructor.  Empty serverIP and non-positive count select the defaults.
func NewPingClient(serverIP string, count int) *PingClient {
	if len(serverIP) == 0 {
		serverIP = "192.168.64.1"
	}
	if count <= 0 {
		count = 100
	}
	return &PingClient{ServerIP: serverIP, Count: count}
}

func (pc *PingClient) SetServer(ip string) { pc.ServerIP = ip }
func (pc *PingClient) SetLast(last bool)   { pc.IsLast = last }

func (pc *PingClient) tune(at *AppTuning) error {
	if at.PingCount > 0 {
		pc.Count = at.PingCount
	}
	return nil
}

func (pc *PingClient) RunCmds(node *NodeConfig) []string {
	return []string{fmt.Sprintf("ping %s -c %d", pc.ServerIP, pc.Count)}
}

// IperfTCPServer runs an iperf TCP server with large windows
type IperfTCPServer struct {
	BaseApp
}

func (IperfTCPServer) RunCmds(node *NodeConfig) []string {
	return []string{"iperf -s -l 32M -w 32M"}
}

// IperfUDPServer runs an iperf UDP server
type IperfUDPServer struct {
	BaseApp
}

func (IperfUDPServer) RunCmds(node *NodeConfig) []string {
	return []string{"iperf -s -u"}
}

// IperfTCPClient runs Procs parallel iperf TCP streams against its server
type IperfTCPClient struct {
	BaseApp
	ServerIP string
	Procs    int
	IsLast   bool
}

// NewIperfTCPClient is a constructor with the default server address and one stream
func NewIperfTCPClient() *IperfTCPClient {
	return &IperfTCPClient{ServerIP: "10.0.0.1", Procs: 1}
}

func (ic *IperfTCPClient) SetServer(ip string) { ic.ServerIP = ip }
func (ic *IperfTCPClient) SetLast(last bool)   { ic.IsLast = last }

func (ic *IperfTCPClient) tune(at *AppTuning) error {
	if at.IperfProcs > 0 {
		ic.Procs = at.IperfProcs
	}
	return nil
}

func (ic *IperfTCPClient) RunCmds(node *NodeConfig) []string {
	return []string{
		"sleep 1",
		"iperf -l 32M -w 32M  -c " + ic.ServerIP + " -i 1 -P " + strconv.Itoa(ic.Procs),
		releaseSleep(ic.IsLast, "0.5", "10"),
	}
}

// IperfUDPClient sends UDP traffic at Rate to its server
type IperfUDPClient struct {
	BaseApp
	ServerIP string
	Rate     string
	IsLast   bool
}

// NewIperfUDPClient is a constructor with the default server address and a 150m rate
func NewIperfUDPClient() *IperfUDPClient {
	return &IperfUDPClient{ServerIP: "10.0.0.1", Rate: "150m"}
}

func (ic *IperfUDPClient) SetServer(ip string) { ic.ServerIP = ip }
func (ic *IperfUDPClient) SetLast(last bool)   { ic.IsLast = last }

func (ic *IperfUDPClient) tune(at *AppTuning) error {
	if len(at.IperfRate) > 0 {
		ic.Rate = at.IperfRate
	}
	return nil
}

func (ic *IperfUDPClient) RunCmds(node *NodeConfig) []string {
	return []string{
		"sleep 1",
		"iperf -c " + ic.ServerIP + " -i 1 -u -b " + ic.Rate,
		releaseSleep(ic.IsLast, "0.5", "10"),
	}
}

// IperfUDPShortClient sends a single UDP datagram burst and exits
type IperfUDPShortClient struct {
	BaseApp
	ServerIP string
	Rate     string
	IsLast   bool
}

// NewIperfUDPShortClient is a constructor with the default server address
func NewIperfUDPShortClient() *IperfUDPShortClient {
	return &IperfUDPShortClient{ServerIP: "10.0.0.1", Rate: "150m"}
}

func (ic *IperfUDPShortClient) SetServer(ip string) { ic.ServerIP = ip }
func (ic *IperfUDPShortClient) SetLast(last bool)   { ic.IsLast = last }

func (ic *IperfUDPShortClient) tune(at *AppTuning) error {
	if len(at.IperfRate) > 0 {
		ic.Rate = at.IperfRate
	}
	return nil
}

func (ic *IperfUDPShortClient) RunCmds(node *NodeConfig) []string {
	return []string{"sleep 1", "iperf -c " + ic.ServerIP + " -u -n 1 "}
}

// IperfUDPClientSleep stands in for an iperf UDP client without sending anything
type IperfUDPClientSleep struct {
	BaseApp
	ServerIP string
	Rate     string
}

func (ic *IperfUDPClientSleep) SetServer(ip string) { ic.ServerIP = ip }

func (ic *IperfUDPClientSleep) RunCmds(node *NodeConfig) []string {
	return []string{"sleep 1", "sleep 10"}
}

// NoTraffic either idles (server), sleeps, or burns CPU without touching the network
type NoTraffic struct {
	BaseApp
	IsSleep  bool
	IsServer bool
}

// NewNoTraffic is a constructor for a sleeping, non-server NoTraffic
func NewNoTraffic() *NoTraffic {
	return &NoTraffic{IsSleep: true}
}

func (nt *NoTraffic) RunCmds(node *NodeConfig) []string {
	cmds := []string{}
	if nt.IsServer {
		cmds = append(cmds, "sleep infinity")
	} else if nt.IsSleep {
		cmds = append(cmds, "sleep 10")
	} else {
		cmds = append(cmds, "dd if=/dev/urandom of=/dev/null count=500000")
	}
	return cmds
}

// NetperfServer runs netserver and idles
type NetperfServer struct {
	BaseApp
}

func (NetperfServer) RunCmds(node *NodeConfig) []string {
	return []string{"netserver", "sleep infinity"}
}

// NetperfClient measures throughput, then latency, against its server
type NetperfClient struct {
	BaseApp
	ServerIP    string
	DurationTp  int
	DurationLat int
}

// NewNetperfClient is a constructor with ten second throughput and latency runs
func NewNetperfClient() *NetperfClient {
	return &NetperfClient{ServerIP: "10.0.0.1", DurationTp: 10, DurationLat: 10}
}

func (nc *NetperfClient) SetServer(ip string) { nc.ServerIP = ip }

func (nc *NetperfClient) tune(at *AppTuning) error {
	if at.NetperfDurationTp > 0 {
		nc.DurationTp = at.NetperfDurationTp
	}
	if at.NetperfDurationLat > 0 {
		nc.DurationLat = at.NetperfDurationLat
	}
	return nil
}

func (nc *NetperfClient) RunCmds(node *NodeConfig) []string {
	return []string{
		"netserver",
		"sleep 0.5",
		fmt.Sprintf("netperf -H %s -l %d", nc.ServerIP, nc.DurationTp),
		fmt.Sprintf("netperf -H %s -l %d -t TCP_RR -- -o mean_latency,p50_latency,p90_latency,p99_latency",
			nc.ServerIP, nc.DurationLat),
	}
}

// SenderType selects the netperf test a ColumboNetperfClient runs
type SenderType int

const (
	// TCPRR is a request/response test, i.e., latency
	TCPRR SenderType = iota
	// TCPStream is a bulk transfer test, i.e., throughput
	TCPStream
)

func (st SenderType) String() string {
	if st == TCPStream {
		return "TCP_STREAM"
	}
	return "TCP_RR"
}

// ParseSenderType reads a netperf test name, "TCP_RR" or "TCP_STREAM", in any case
func ParseSenderType(name string) (SenderType, error) {
	switch strings.ToUpper(name) {
	case "TCP_RR":
		return TCPRR, nil
	case "TCP_STREAM":
		return TCPStream, nil
	}
	return TCPRR, fmt.Errorf("sender type %q is neither TCP_RR nor TCP_STREAM", name)
}

// ColumboNetperfClient runs one netperf test of the selected type
type ColumboNetperfClient struct {
	BaseApp
	ServerIP   string
	SenderType SenderType
	TestLen    int
}

// NewColumboNetperfClient is a constructor; empty serverIP and non-positive testLen select defaults
func NewColumboNetperfClient(serverIP string, senderType SenderType, testLen int) *ColumboNetperfClient {
	if len(serverIP) == 0 {
		serverIP = "10.0.0.1"
	}
	if testLen <= 0 {
		testLen = 10
	}
	return &ColumboNetperfClient{ServerIP: serverIP, SenderType: senderType, TestLen: testLen}
}

func (cc *ColumboNetperfClient) SetServer(ip string) { cc.ServerIP = ip }

func (cc *ColumboNetperfClient) tune(at *AppTuning) error {
	if len(at.SenderType) > 0 {
		st, err := ParseSenderType(at.SenderType)
		if err != nil {
			return err
		}
		cc.SenderType = st
	}
	if at.TestLen > 0 {
		cc.TestLen = at.TestLen
	}
	return nil
}

func (cc *ColumboNetperfClient) RunCmds(node *NodeConfig) []string {
	return []string{
		fmt.Sprintf("netperf -H %s -l %d -t %s -- -o mean_latency,p50_latency,p90_latency,p99_latency",
			cc.ServerIP, cc.TestLen, cc.SenderType),
		"sleep 1",
	}
}
