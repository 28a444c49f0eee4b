package simbricks

// appcfg.go defines the workload side of a simulated host: the capabilities an
// application variant offers to the NodeConfig that owns it, and the file
// sources applications and nodes use to provision the guest

import (
	"bytes"
	"io"
	"os"
)

// AppConfig is the workload a NodeConfig runs. Every capability is optional;
// variants embed BaseApp and override only what they contribute.
// All four methods build fresh values on every call and never mutate the variant.
type AppConfig interface {
	// RunCmds gives the main commands of the workload, evaluated against the
	// current state of the owning node
	RunCmds(node *NodeConfig) []string

	// PrepPreCp gives commands that must run before the checkpoint marker
	PrepPreCp() []string

	// PrepPostCp gives commands that must run after the checkpoint is restored
	PrepPostCp() []string

	// ConfigFiles gives files to provision under /tmp/guest, keyed by guest-relative name
	ConfigFiles() map[string]GuestFile
}

// BaseApp supplies the empty defaults of every AppConfig capability
type BaseApp struct{}

func (BaseApp) RunCmds(node *NodeConfig) []string { return []string{} }
func (BaseApp) PrepPreCp() []string                { return []string{} }
func (BaseApp) PrepPostCp() []string               { return []string{} }
func (BaseApp) ConfigFiles() map[string]GuestFile  { return map[string]GuestFile{} }

// ServerTargeted is satisfied by client variants that need the address of the
// server they talk to.  The build procedure calls it once every address is allocated.
type ServerTargeted interface {
	SetServer(ip string)
}

// LastAware is satisfied by client variants whose trailing wait depends on whether
// they are the client that holds the experiment open
type LastAware interface {
	SetLast(last bool)
}

// GuestFile is a source for the content of one file provisioned into the guest
type GuestFile interface {
	Open() (io.ReadCloser, error)
}

type bytesFile struct {
	data []byte
}

func (bf bytesFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(bf.data)), nil
}

// StrFile converts a string into a GuestFile whose content is the string
func StrFile(s string) GuestFile {
	return bytesFile{data: []byte(s)}
}

// BytesFile wraps binary content as a GuestFile
func BytesFile(b []byte) GuestFile {
	cpy := make([]byte, len(b))
	copy(cpy, b)
	return bytesFile{data: cpy}
}

type hostFile struct {
	path string
}

func (hf hostFile) Open() (io.ReadCloser, error) {
	return os.Open(hf.path)
}

// HostFile names a file on the build machine.  It is read when the archive is written.
func HostFile(path string) GuestFile {
	return hostFile{path: path}
}

// readGuestFile pulls the whole content of a GuestFile into memory
func readGuestFile(gf GuestFile) ([]byte, error) {
	rc, err := gf.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}
