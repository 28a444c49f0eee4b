package simbricks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func idleNode(kind NodeKind) *NodeConfig {
	nc := NewKindNode(kind)
	nc.App = &IdleHost{}
	return nc
}

func TestLinuxNodePostCp(t *testing.T) {
	tests := []struct {
		name string
		kind *LinuxNode
		want []string
	}{
		{
			name: "linux",
			kind: NewLinuxNode(),
			want: []string{"ip link set dev eth0 up", "ip addr add 10.0.0.5/24 dev eth0"},
		},
		{
			name: "i40e-linux",
			kind: NewI40eLinuxNode(),
			want: []string{"modprobe i40e", "ip link set dev eth0 up", "ip addr add 10.0.0.5/24 dev eth0"},
		},
		{
			name: "e1000-linux",
			kind: NewE1000LinuxNode(),
			want: []string{"modprobe e1000", "ip link set dev eth0 up", "ip addr add 10.0.0.5/24 dev eth0"},
		},
		{
			name: "corundum-linux",
			kind: NewCorundumLinuxNode(),
			want: []string{"insmod /tmp/guest/mqnic.ko", "ip link set dev eth0 up", "ip addr add 10.0.0.5/24 dev eth0"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			nc := idleNode(tc.kind)
			nc.IP = "10.0.0.5"

			assert.Equal(t, tc.name, nc.KindName())
			assert.Equal(t, tc.want, nc.PrepPostCp())
			assert.Equal(t, baseEnv, nc.PrepPreCp())
		})
	}
}

func TestLinuxNodeForcedMAC(t *testing.T) {
	kind := NewI40eLinuxNode()
	kind.IfName = "eth1"
	kind.ForceMACAddr = "02:00:00:00:00:01"
	nc := idleNode(kind)

	assert.Equal(t, []string{
		"modprobe i40e",
		"ip link set dev eth1 address 02:00:00:00:00:01",
		"ip link set dev eth1 up",
		"ip addr add 10.0.0.1/24 dev eth1",
	}, nc.PrepPostCp())
	assert.True(t, kind.HasDriver("i40e"))
	assert.False(t, kind.HasDriver("e1000"))
}

func TestCorundumShipsDriver(t *testing.T) {
	nc := idleNode(NewCorundumLinuxNode())

	files, err := nc.ConfigFiles()
	require.NoError(t, err)
	assert.Contains(t, files, "mqnic.ko")
}

func TestTimesyncNode(t *testing.T) {
	nc := idleNode(NewTimesyncNode())

	assert.Equal(t, "timesync", nc.KindName())
	assert.Equal(t, "timesync", nc.DiskImage)
	assert.Equal(t, 8192, nc.Memory)

	pre := nc.PrepPreCp()
	assert.Equal(t, baseEnv, pre[:len(baseEnv)])
	assert.Equal(t, []string{
		"mount -t proc proc /proc",
		"mount -t sysfs sysfs /sys",
		"ip link set dev lo up",
	}, pre[len(baseEnv):])
	assert.Equal(t, "modprobe i40e", nc.PrepPostCp()[0])
}

func TestMtcpNode(t *testing.T) {
	nc := idleNode(NewMtcpNode())
	nc.Cores = 2
	nc.IP = "10.0.0.3"

	assert.Equal(t, "mtcp", nc.DiskImage)
	assert.Equal(t, 16*1024, nc.Memory)
	assert.Contains(t, nc.PrepPreCp(),
		"echo 4096 > /sys/devices/system/node/node0/hugepages/hugepages-2048kB/nr_hugepages")

	post := nc.PrepPostCp()
	assert.Equal(t, "/root/mtcp/dpdk/usertools/dpdk-devbind.py -b igb_uio 0000:00:02.0", post[1])
	assert.Equal(t, "ip addr add 10.0.0.3/24 dev dpdk0", post[len(post)-1])

	files, err := nc.ConfigFiles()
	require.NoError(t, err)
	require.Contains(t, files, "mtcp.conf")
	assert.Contains(t, guestContent(t, files["mtcp.conf"]), "num_cores = 2\n")
}

func TestTASNode(t *testing.T) {
	kind := NewTASNode()
	nc := idleNode(kind)
	nc.IP = "10.0.0.4"

	assert.Equal(t, "tas", nc.DiskImage)
	post := nc.PrepPostCp()
	assert.Contains(t, post, "tas/tas --ip-addr=10.0.0.4/24 --fp-cores-max=1 --fp-no-ints &")
	assert.Equal(t, "export LD_PRELOAD=/root/tas/lib/libtas_interpose.so", post[len(post)-1])

	kind.Preload = false
	assert.Equal(t, "sleep 1", nc.PrepPostCp()[len(post)-2])
}

func TestDCTCPNodes(t *testing.T) {
	i40e := idleNode(I40eDCTCPNode{})
	i40e.MTU = 4000
	assert.Contains(t, i40e.PrepPreCp(), "sysctl -w net.ipv4.tcp_congestion_control=dctcp")
	assert.Contains(t, i40e.PrepPostCp(), "ip link set dev eth0 mtu 4000 up")

	corundum := idleNode(CorundumDCTCPNode{})
	assert.Equal(t, []string{
		"insmod mqnic.ko",
		"ip link set dev eth0 up",
		"ip addr add 10.0.0.1/24 dev eth0",
	}, corundum.PrepPostCp())
}

func TestLinuxFEMUNode(t *testing.T) {
	kind := NewLinuxFEMUNode()
	kind.Drivers = append(kind.Drivers, "/tmp/guest/extra.ko")
	nc := idleNode(kind)

	assert.Equal(t, []string{"lspci -vvvv", "modprobe nvme", "insmod /tmp/guest/extra.ko"}, nc.PrepPostCp())
}
