package simbricks

// mac.go gives NICs reproducible hardware addresses.  Each source draws from its
// own rngstream, so with the master seed fixed the same experiment always gets
// the same addresses.

import (
	"fmt"

	"github.com/iti/rngstream"
	"golang.org/x/exp/slices"
)

// MACSource generates unicast, locally administered MAC addresses, none repeated
type MACSource struct {
	rngs   *rngstream.RngStream
	issued []string
}

// NewMACSource is a constructor.  name selects the random stream.
func NewMACSource(name string) *MACSource {
	return &MACSource{rngs: rngstream.New(name), issued: []string{}}
}

// SetMACSeed fixes the master seed all random streams derive from
func SetMACSeed(seed uint64) {
	rngstream.SetRngStreamMasterSeed(seed)
}

func (ms *MACSource) octet() int {
	return int(ms.rngs.RandU01()*256.0) & 0xff
}

// Next returns a fresh address of the form 02:xx:xx:xx:xx:xx
func (ms *MACSource) Next() string {
	for {
		mac := fmt.Sprintf("02:%02x:%02x:%02x:%02x:%02x",
			ms.octet(), ms.octet(), ms.octet(), ms.octet(), ms.octet())
		if !slices.Contains(ms.issued, mac) {
			ms.issued = append(ms.issued, mac)
			return mac
		}
	}
}
