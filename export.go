package simbricks

// export.go hands a built experiment over to the simulators: one guest archive
// per host, the experiment description, and a manifest recording what was written

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// ManifestEntry records the export of one host
type ManifestEntry struct {
	Host    string `json:"host" yaml:"host"`
	IP      string `json:"ip" yaml:"ip"`
	Sim     string `json:"sim" yaml:"sim"`
	Archive string `json:"archive" yaml:"archive"`

	// ScriptLines is the number of commands in the boot script
	ScriptLines int `json:"scriptlines" yaml:"scriptlines"`

	// Files are the config files shipped next to the script, in archive order
	Files []string `json:"files" yaml:"files"`
}

// Manifest gathers information about one export of an experiment
type Manifest struct {
	// name of experiment
	ExpName string `json:"expname" yaml:"expname"`

	// file holding the experiment description
	DescFile string `json:"descfile" yaml:"descfile"`

	// one entry per host, in experiment order
	Hosts []ManifestEntry `json:"hosts" yaml:"hosts"`
}

// CreateManifest is a constructor
func CreateManifest(expName string) *Manifest {
	return &Manifest{ExpName: expName, Hosts: make([]ManifestEntry, 0)}
}

// AddEntry appends the record of one exported host
func (mf *Manifest) AddEntry(entry ManifestEntry) {
	mf.Hosts = append(mf.Hosts, entry)
}

// Entry returns the record of the named host, and whether there is one
func (mf *Manifest) Entry(host string) (ManifestEntry, bool) {
	for _, entry := range mf.Hosts {
		if entry.Host == host {
			return entry, true
		}
	}
	return ManifestEntry{}, false
}

// WriteToFile stores the Manifest struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (mf *Manifest) WriteToFile(filename string) error {
	return writeDescFile(filename, *mf)
}

// ReadManifest deserializes a Manifest, from dict or else from the named file
func ReadManifest(filename string, useYAML bool, dict []byte) (*Manifest, error) {
	example := Manifest{}
	if err := readDescFile(filename, useYAML, dict, &example); err != nil {
		return nil, err
	}
	return &example, nil
}

// ArchiveName is the file name of the guest archive of host
func ArchiveName(host string) string {
	return "cfg." + host + ".tar"
}

// Export validates the experiment, then writes cfg.<host>.tar for every host and
// <experiment>.yaml describing the whole experiment into outDir.  When any of it
// fails, the files already written are removed again.
func Export(ef *ExperimentFrame, outDir string) (*Manifest, error) {
	if _, err := CheckDirectories([]string{outDir}); err != nil {
		return nil, err
	}
	if err := ef.Validate(); err != nil {
		return nil, err
	}

	mf := CreateManifest(ef.Name)
	written := []string{}
	for _, host := range ef.Hosts {
		entry, err := exportHost(host, outDir)
		if err != nil {
			removeExported(written)
			return nil, fmt.Errorf("host %s: %w", host.Name, err)
		}
		written = append(written, entry.Archive)
		mf.AddEntry(entry)

		log.WithFields(log.Fields{
			"host":    entry.Host,
			"ip":      entry.IP,
			"archive": entry.Archive,
			"lines":   entry.ScriptLines,
		}).Info("host exported")
	}

	ed := ef.Transform()
	mf.DescFile = filepath.Join(outDir, ef.Name+".yaml")
	if err := ed.WriteToFile(mf.DescFile); err != nil {
		removeExported(append(written, mf.DescFile))
		return nil, err
	}

	return mf, nil
}

// removeExported deletes the files of an export that did not complete
func removeExported(files []string) {
	for _, file := range files {
		if err := os.Remove(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.WithField("file", file).Warn("partial export not removed: ", err)
		}
	}
}

func exportHost(host *HostFrame, outDir string) (ManifestEntry, error) {
	node := host.Node
	cmds, err := node.ScriptCmds()
	if err != nil {
		return ManifestEntry{}, err
	}
	files, err := node.ConfigFiles()
	if err != nil {
		return ManifestEntry{}, err
	}

	archive := filepath.Join(outDir, ArchiveName(host.Name))
	if err := node.MakeTar(archive); err != nil {
		return ManifestEntry{}, err
	}

	entry := ManifestEntry{Host: host.Name, IP: node.IP, Sim: node.Sim, Archive: archive,
		ScriptLines: len(cmds), Files: make([]string, 0, len(files))}
	entries, err := ReadTarFile(archive)
	if err != nil {
		removeExported([]string{archive})
		return ManifestEntry{}, err
	}
	for _, ae := range entries[1:] {
		entry.Files = append(entry.Files, ae.Name)
	}
	return entry, nil
}
