package simbricks

// nodecfg.go defines the guest-software identity of one simulated host and
// assembles its boot script.  The script is the ordered concatenation of the
// fragments the node kind and the application contribute around the
// checkpoint marker, see ConfigStr.

import (
	"fmt"
	"strings"
)

// SimGem5 is the simulator-kind tag of the cycle-accurate simulator.  Every other
// tag uses the default checkpoint and exit vocabulary.
const SimGem5 = "gem5"

// SimQemu is the default simulator-kind tag
const SimQemu = "qemu"

// Fragments is the explicit contribution of one node variant to each lifecycle step.
// Specialized variants build on the fragments of their generalization with Extend.
type Fragments struct {
	PreCp   []string
	PostCp  []string
	Cleanup []string
	Files   map[string]GuestFile
}

// Extend returns a new Fragments holding the lists of fr followed by those of more.
// On a file name present in both, the entry of more wins.  Neither argument is modified.
func (fr Fragments) Extend(more Fragments) Fragments {
	ext := Fragments{
		PreCp:   concatCmds(fr.PreCp, more.PreCp),
		PostCp:  concatCmds(fr.PostCp, more.PostCp),
		Cleanup: concatCmds(fr.Cleanup, more.Cleanup),
		Files:   overlayFiles(fr.Files, more.Files),
	}
	return ext
}

// concatCmds appends lists into a freshly allocated slice
func concatCmds(lists ...[]string) []string {
	total := 0
	for _, l := range lists {
		total += len(l)
	}
	out := make([]string, 0, total)
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

// overlayFiles copies base, then overlay on top of it.  overlay wins on collisions.
func overlayFiles(base, overlay map[string]GuestFile) map[string]GuestFile {
	merged := make(map[string]GuestFile, len(base)+len(overlay))
	for name, gf := range base {
		merged[name] = gf
	}
	for name, gf := range overlay {
		merged[name] = gf
	}
	return merged
}

// NodeKind is a node variant: the kernel, driver and network-stack setup the
// guest performs.  Contribute must not modify the node.
type NodeKind interface {
	// KindName is the registered name of the variant, used in descriptions
	KindName() string

	// Contribute gives the variant's fragments, evaluated against the node's current fields
	Contribute(node *NodeConfig) Fragments
}

// NodeConfig is the guest-software configuration of one simulated host
type NodeConfig struct {
	// Sim is the simulator-kind tag of the host simulator running this node.
	// It selects the checkpoint and exit commands.
	Sim string `json:"sim" yaml:"sim"`

	// IP is the node's address.  It is frozen once assigned: the build procedure sets it
	// in its first pass, ApplyExpCfg offers no address parameter, and WireClients only
	// reads it.  Hand-built experiments set it before wiring clients.
	IP string `json:"ip" yaml:"ip"`

	// Prefix is the IP prefix length
	Prefix int `json:"prefix" yaml:"prefix"`

	// Cores is the number of CPU cores
	Cores int `json:"cores" yaml:"cores"`

	// Threads is the number of threads per core
	Threads int `json:"threads" yaml:"threads"`

	// Memory is the system memory in MB
	Memory int `json:"memory" yaml:"memory"`

	// DiskImage names the disk image to boot
	DiskImage string `json:"diskimage" yaml:"diskimage"`

	// MTU of the node's network interface
	MTU int `json:"mtu" yaml:"mtu"`

	// KcmdAppend is appended to the kernel command line
	KcmdAppend string `json:"kcmdappend" yaml:"kcmdappend"`

	// NoCheckpoint suppresses the checkpoint marker
	NoCheckpoint bool `json:"nockp" yaml:"nockp"`

	// App is the workload the node runs
	App AppConfig `json:"-" yaml:"-"`

	// Kind is the node variant.  nil is a plain node with only the base environment.
	Kind NodeKind `json:"-" yaml:"-"`
}

// NewNodeConfig is a constructor filling in the defaults of a plain node
func NewNodeConfig() *NodeConfig {
	nc := new(NodeConfig)
	nc.Sim = SimQemu
	nc.IP = "10.0.0.1"
	nc.Prefix = 24
	nc.Cores = 1
	nc.Threads = 1
	nc.Memory = 8 * 1024
	nc.DiskImage = "base"
	nc.MTU = 1500

	return nc
}

// KindName returns the registered name of the node kind, "node" for a plain node
func (nc *NodeConfig) KindName() string {
	if nc.Kind == nil {
		return "node"
	}
	return nc.Kind.KindName()
}

// baseFragments is what every node runs, ahead of any kind
func baseFragments() Fragments {
	return Fragments{
		PreCp: []string{
			"set -x",
			"export HOME=/root",
			"export LANG=en_US",
			`export PATH="/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin:/usr/games:/usr/local/games"`,
		},
	}
}

// fragments composes the base environment with the kind's contribution
func (nc *NodeConfig) fragments() Fragments {
	fr := baseFragments()
	if nc.Kind != nil {
		fr = fr.Extend(nc.Kind.Contribute(nc))
	}
	return fr
}

// PrepPreCp gives the node-level commands to run before checkpointing
func (nc *NodeConfig) PrepPreCp() []string {
	return nc.fragments().PreCp
}

// PrepPostCp gives the node-level commands to run after the checkpoint is restored
func (nc *NodeConfig) PrepPostCp() []string {
	return nc.fragments().PostCp
}

// CleanupCmds gives the node-level teardown commands
func (nc *NodeConfig) CleanupCmds() []string {
	return nc.fragments().Cleanup
}

// RunCmds gives the commands of the node's application, evaluated against this node
func (nc *NodeConfig) RunCmds() ([]string, error) {
	if nc.App == nil {
		return nil, fmt.Errorf("run commands: %w", ErrNoApp)
	}
	return nc.App.RunCmds(nc), nil
}

// ConfigFiles gives the files to provision in the guest.  The application's
// files are overlaid by the node kind's: on a name collision the node entry wins.
func (nc *NodeConfig) ConfigFiles() (map[string]GuestFile, error) {
	if nc.App == nil {
		return nil, fmt.Errorf("config files: %w", ErrNoApp)
	}
	return overlayFiles(nc.App.ConfigFiles(), nc.fragments().Files), nil
}

// markers returns the checkpoint and exit commands for the node's simulator kind
func (nc *NodeConfig) markers() (cp []string, exit []string) {
	if nc.Sim == SimGem5 {
		cp = []string{"m5 checkpoint"}
		exit = []string{"m5 exit"}
	} else {
		cp = []string{"echo ready to checkpoint"}
		exit = []string{"poweroff -f"}
	}
	if nc.NoCheckpoint {
		cp = []string{}
	}
	return cp, exit
}

// ScriptCmds gives the complete ordered command list of the boot script:
// node and application pre-checkpoint commands, the checkpoint marker, node and
// application post-checkpoint commands, run commands, cleanup, and the exit marker.
// Commands that need the network interfaces up only appear after the checkpoint marker.
func (nc *NodeConfig) ScriptCmds() ([]string, error) {
	if nc.App == nil {
		return nil, fmt.Errorf("config script: %w", ErrNoApp)
	}
	fr := nc.fragments()
	cp, exit := nc.markers()

	run, err := nc.RunCmds()
	if err != nil {
		return nil, err
	}

	return concatCmds(
		fr.PreCp,
		nc.App.PrepPreCp(),
		cp,
		fr.PostCp,
		nc.App.PrepPostCp(),
		run,
		fr.Cleanup,
		exit,
	), nil
}

// ConfigStr gives the boot script body, one command per line
func (nc *NodeConfig) ConfigStr() (string, error) {
	cmds, err := nc.ScriptCmds()
	if err != nil {
		return "", err
	}
	return strings.Join(cmds, "\n"), nil
}
