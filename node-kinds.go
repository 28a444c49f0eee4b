package simbricks

// node-kinds.go holds the node variants.  Each one is a NodeKind whose
// Contribute result is evaluated against the owning NodeConfig, so IP, prefix,
// MTU and core count flow into the commands at script time.

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

// kindDefaulter is satisfied by node kinds that change the NodeConfig defaults
// (disk image, memory) when a node of that kind is created
type kindDefaulter interface {
	applyDefaults(nc *NodeConfig)
}

// NewKindNode creates a NodeConfig of the given kind with the kind's defaults applied.
// A nil kind gives a plain node.
func NewKindNode(kind NodeKind) *NodeConfig {
	nc := NewNodeConfig()
	nc.Kind = kind
	if kd, ok := kind.(kindDefaulter); ok {
		kd.applyDefaults(nc)
	}
	return nc
}

// loadDrivers renders the module loading commands.  A driver given as an absolute
// path is inserted from the file, anything else is loaded by name.
func loadDrivers(drivers []string) []string {
	cmds := make([]string, 0, len(drivers))
	for _, drv := range drivers {
		if strings.HasPrefix(drv, "/") {
			cmds = append(cmds, "insmod "+drv)
		} else {
			cmds = append(cmds, "modprobe "+drv)
		}
	}
	return cmds
}

var mountProcSys = []string{
	"mount -t proc proc /proc",
	"mount -t sysfs sysfs /sys",
}

// hugepageSetup mounts proc, sys, hugetlbfs and shm and reserves numPages 2MB pages
func hugepageSetup(numPages int) []string {
	return concatCmds(mountProcSys, []string{
		"mkdir -p /dev/hugepages",
		"mount -t hugetlbfs nodev /dev/hugepages",
		"mkdir -p /dev/shm",
		"mount -t tmpfs tmpfs /dev/shm",
		fmt.Sprintf("echo %d > /sys/devices/system/node/node0/hugepages/hugepages-2048kB/nr_hugepages", numPages),
	})
}

// dctcpSysctl enlarges the socket buffers and switches TCP to dctcp with ECN
var dctcpSysctl = []string{
	"sysctl -w net.core.rmem_default=31457280",
	"sysctl -w net.core.rmem_max=31457280",
	"sysctl -w net.core.wmem_default=31457280",
	"sysctl -w net.core.wmem_max=31457280",
	"sysctl -w net.core.optmem_max=25165824",
	`sysctl -w net.ipv4.tcp_mem="786432 1048576 26777216"`,
	`sysctl -w net.ipv4.tcp_rmem="8192 87380 33554432"`,
	`sysctl -w net.ipv4.tcp_wmem="8192 87380 33554432"`,
	"sysctl -w net.ipv4.tcp_congestion_control=dctcp",
	"sysctl -w net.ipv4.tcp_ecn=1",
}

// LinuxNode is a Linux guest whose NIC is driven by an in-kernel driver.
// After the checkpoint it loads Drivers in order, optionally forces the MAC
// address, brings IfName up and assigns the node's address.
type LinuxNode struct {
	IfName       string   `json:"ifname" yaml:"ifname"`
	Drivers      []string `json:"drivers" yaml:"drivers"`
	ForceMACAddr string   `json:"forcemac" yaml:"forcemac"`

	// Files are provisioned in addition to what the application asks for
	Files map[string]GuestFile `json:"-" yaml:"-"`

	name string
}

// NewLinuxNode is a constructor for a Linux guest on eth0 with no drivers
func NewLinuxNode() *LinuxNode {
	return &LinuxNode{IfName: "eth0", Drivers: []string{}, Files: map[string]GuestFile{}, name: "linux"}
}

// NewI40eLinuxNode is a Linux guest on the Intel XL710 NIC model
func NewI40eLinuxNode() *LinuxNode {
	ln := NewLinuxNode()
	ln.Drivers = append(ln.Drivers, "i40e")
	ln.name = "i40e-linux"
	return ln
}

// NewE1000LinuxNode is a Linux guest on the Intel e1000 NIC model
func NewE1000LinuxNode() *LinuxNode {
	ln := NewLinuxNode()
	ln.Drivers = append(ln.Drivers, "e1000")
	ln.name = "e1000-linux"
	return ln
}

// MqnicModulePath is where the corundum driver module is taken from on the build machine
var MqnicModulePath = "../images/mqnic/mqnic.ko"

// NewCorundumLinuxNode is a Linux guest on the corundum NIC.  The mqnic driver is
// not part of the disk image, so it is shipped in the archive and inserted from there.
func NewCorundumLinuxNode() *LinuxNode {
	ln := NewLinuxNode()
	ln.Drivers = append(ln.Drivers, "/tmp/guest/mqnic.ko")
	ln.Files["mqnic.ko"] = HostFile(MqnicModulePath)
	ln.name = "corundum-linux"
	return ln
}

func (ln *LinuxNode) KindName() string {
	if len(ln.name) == 0 {
		return "linux"
	}
	return ln.name
}

// HasDriver reports whether drv is among the drivers the node loads
func (ln *LinuxNode) HasDriver(drv string) bool {
	return slices.Contains(ln.Drivers, drv)
}

func (ln *LinuxNode) Contribute(node *NodeConfig) Fragments {
	post := loadDrivers(ln.Drivers)
	if len(ln.ForceMACAddr) > 0 {
		post = append(post, "ip link set dev "+ln.IfName+" address "+ln.ForceMACAddr)
	}
	post = append(post,
		"ip link set dev "+ln.IfName+" up",
		fmt.Sprintf("ip addr add %s/%d dev %s", node.IP, node.Prefix, ln.IfName))

	files := make(map[string]GuestFile, len(ln.Files))
	for name, gf := range ln.Files {
		files[name] = gf
	}
	return Fragments{PostCp: post, Files: files}
}

// TimesyncNode is an i40e Linux guest booting the clock synchronization image
type TimesyncNode struct {
	LinuxNode
}

// NewTimesyncNode is a constructor
func NewTimesyncNode() *TimesyncNode {
	tn := &TimesyncNode{LinuxNode: *NewI40eLinuxNode()}
	tn.name = "timesync"
	return tn
}

func (tn *TimesyncNode) applyDefaults(nc *NodeConfig) {
	nc.DiskImage = "timesync"
	nc.Memory = 8192
}

func (tn *TimesyncNode) Contribute(node *NodeConfig) Fragments {
	return tn.LinuxNode.Contribute(node).Extend(Fragments{
		PreCp: concatCmds(mountProcSys, []string{"ip link set dev lo up"}),
	})
}

// MtcpNode runs the mTCP user-space stack on DPDK.  The NIC at PCIDev is bound to
// igb_uio and exposed as dpdk0.
type MtcpNode struct {
	PCIDev       string `json:"pcidev" yaml:"pcidev"`
	NumHugepages int    `json:"hugepages" yaml:"hugepages"`
}

// NewMtcpNode is a constructor
func NewMtcpNode() *MtcpNode {
	return &MtcpNode{PCIDev: "0000:00:02.0", NumHugepages: 4096}
}

func (mn *MtcpNode) KindName() string { return "mtcp" }

func (mn *MtcpNode) applyDefaults(nc *NodeConfig) {
	nc.DiskImage = "mtcp"
	nc.Memory = 16 * 1024
}

// mtcpConf is the mtcp.conf of a node with the given core count
func mtcpConf(cores int) string {
	return "io = dpdk\n" +
		fmt.Sprintf("num_cores = %d\n", cores) +
		"num_mem_ch = 4\n" +
		"port = dpdk0\n" +
		"max_concurrency = 4096\n" +
		"max_num_buffers = 4096\n" +
		"rcvbuf = 8192\n" +
		"sndbuf = 8192\n" +
		"tcp_timeout = 10\n" +
		"tcp_timewait = 0\n" +
		"#stat_print = dpdk0\n"
}

func (mn *MtcpNode) Contribute(node *NodeConfig) Fragments {
	return Fragments{
		PreCp: hugepageSetup(mn.NumHugepages),
		PostCp: []string{
			"insmod /root/mtcp/dpdk/x86_64-native-linuxapp-gcc/kmod/igb_uio.ko",
			"/root/mtcp/dpdk/usertools/dpdk-devbind.py -b igb_uio " + mn.PCIDev,
			"insmod /root/mtcp/dpdk-iface-kmod/dpdk_iface.ko",
			"/root/mtcp/dpdk-iface-kmod/dpdk_iface_main",
			"ip link set dev dpdk0 up",
			fmt.Sprintf("ip addr add %s/%d dev dpdk0", node.IP, node.Prefix),
		},
		Files: map[string]GuestFile{"mtcp.conf": StrFile(mtcpConf(node.Cores))},
	}
}

// TASNode runs the TAS fast path.  With Preload set, applications started after it
// are transparently moved onto TAS through LD_PRELOAD.
type TASNode struct {
	PCIDev       string `json:"pcidev" yaml:"pcidev"`
	NumHugepages int    `json:"hugepages" yaml:"hugepages"`
	FPCores      int    `json:"fpcores" yaml:"fpcores"`
	Preload      bool   `json:"preload" yaml:"preload"`
}

// NewTASNode is a constructor
func NewTASNode() *TASNode {
	return &TASNode{PCIDev: "0000:00:02.0", NumHugepages: 4096, FPCores: 1, Preload: true}
}

func (tn *TASNode) KindName() string { return "tas" }

func (tn *TASNode) applyDefaults(nc *NodeConfig) {
	nc.DiskImage = "tas"
	nc.Memory = 16 * 1024
}

func (tn *TASNode) Contribute(node *NodeConfig) Fragments {
	post := []string{
		"insmod /root/dpdk/lib/modules/5.4.46/extra/dpdk/igb_uio.ko",
		"/root/dpdk/sbin/dpdk-devbind -b igb_uio " + tn.PCIDev,
		"cd /root/tas",
		fmt.Sprintf("tas/tas --ip-addr=%s/%d --fp-cores-max=%d --fp-no-ints &", node.IP, node.Prefix, tn.FPCores),
		"sleep 1",
	}
	if tn.Preload {
		post = append(post, "export LD_PRELOAD=/root/tas/lib/libtas_interpose.so")
	}
	return Fragments{PreCp: hugepageSetup(tn.NumHugepages), PostCp: post}
}

// I40eDCTCPNode is an i40e guest tuned for dctcp with large rings and buffers
type I40eDCTCPNode struct{}

func (I40eDCTCPNode) KindName() string { return "i40e-dctcp" }

func (I40eDCTCPNode) Contribute(node *NodeConfig) Fragments {
	return Fragments{
		PreCp: concatCmds(mountProcSys, dctcpSysctl),
		PostCp: []string{
			"modprobe i40e",
			"ethtool -G eth0 rx 4096 tx 4096",
			"ethtool -K eth0 tso off",
			"ip link set eth0 txqueuelen 13888",
			fmt.Sprintf("ip link set dev eth0 mtu %d up", node.MTU),
			fmt.Sprintf("ip addr add %s/%d dev eth0", node.IP, node.Prefix),
		},
	}
}

// CorundumDCTCPNode is a corundum guest tuned for dctcp.  The disk image carries mqnic.ko.
type CorundumDCTCPNode struct{}

func (CorundumDCTCPNode) KindName() string { return "corundum-dctcp" }

func (CorundumDCTCPNode) Contribute(node *NodeConfig) Fragments {
	return Fragments{
		PreCp: concatCmds(mountProcSys, dctcpSysctl),
		PostCp: []string{
			"insmod mqnic.ko",
			"ip link set dev eth0 up",
			fmt.Sprintf("ip addr add %s/%d dev eth0", node.IP, node.Prefix),
		},
	}
}

// LinuxFEMUNode is a guest attached to the FEMU NVMe emulator
type LinuxFEMUNode struct {
	Drivers []string `json:"drivers" yaml:"drivers"`
}

// NewLinuxFEMUNode is a constructor loading the nvme driver
func NewLinuxFEMUNode() *LinuxFEMUNode {
	return &LinuxFEMUNode{Drivers: []string{"nvme"}}
}

func (fn *LinuxFEMUNode) KindName() string { return "linux-femu" }

func (fn *LinuxFEMUNode) Contribute(node *NodeConfig) Fragments {
	return Fragments{PostCp: concatCmds([]string{"lspci -vvvv"}, loadDrivers(fn.Drivers))}
}
