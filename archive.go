package simbricks

// archive.go packages a NodeConfig for its guest: an uncompressed tar holding
// guest/run.sh followed by one guest/<name> entry per merged config file

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"time"
)

// GuestDir is the archive directory the guest unpacks under /tmp
const GuestDir = "guest"

// RunScriptName is the archive-relative name of the boot script
const RunScriptName = GuestDir + "/run.sh"

// guestFileMode is the permission of every archive entry.  The guest executes the
// script literally, and helper scripts shipped as config files must run too.
const guestFileMode = 0o777

// ArchiveEntry is one file read back from a guest archive
type ArchiveEntry struct {
	Name string
	Mode int64
	Data []byte
}

func writeEntry(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     guestFileMode,
		Size:     int64(len(data)),
		ModTime:  time.Unix(0, 0),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("archive entry %s: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("archive entry %s: %w", name, err)
	}
	return nil
}

// WriteTar writes the node's guest archive to w.  The script comes first, the
// config files follow in name order so equal configurations give equal archives.
func (nc *NodeConfig) WriteTar(w io.Writer) error {
	script, err := nc.ConfigStr()
	if err != nil {
		return err
	}
	files, err := nc.ConfigFiles()
	if err != nil {
		return err
	}

	tw := tar.NewWriter(w)
	if err := writeEntry(tw, RunScriptName, []byte(script)); err != nil {
		return err
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := readGuestFile(files[name])
		if err != nil {
			return fmt.Errorf("config file %s: %w", name, err)
		}
		if err := writeEntry(tw, GuestDir+"/"+name, data); err != nil {
			return err
		}
	}
	return tw.Close()
}

// MakeTar writes the node's guest archive to the file at path
func (nc *NodeConfig) MakeTar(path string) error {
	var buf bytes.Buffer
	if err := nc.WriteTar(&buf); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// ReadTar reads every regular entry of a guest archive, in archive order
func ReadTar(r io.Reader) ([]ArchiveEntry, error) {
	entries := []ArchiveEntry{}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("archive entry %s: %w", hdr.Name, err)
		}
		entries = append(entries, ArchiveEntry{Name: hdr.Name, Mode: hdr.Mode, Data: data})
	}
	return entries, nil
}

// ReadTarFile reads the guest archive at path
func ReadTarFile(path string) ([]ArchiveEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadTar(f)
}
