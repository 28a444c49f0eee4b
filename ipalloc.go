package simbricks

import (
	"fmt"
	"strconv"
)

// AddrAllocator hands out addresses formed by joining a base prefix with a counter.
// Addresses are never reused and never skipped, the counter only ever moves forward.
type AddrAllocator struct {
	// Base is the address prefix, e.g. "192.168.64"
	Base string

	// Next is the counter the next address is formed from
	Next int

	// Max is the largest counter value that may be handed out
	Max int
}

// NewAddrAllocator is a constructor.  The first address handed out ends in start.
func NewAddrAllocator(base string, start, max int) *AddrAllocator {
	return &AddrAllocator{Base: base, Next: start, Max: max}
}

// GetNext returns the next address.  Once the counter passes Max every call
// fails with ErrAddrExhausted and the counter stays where it is.
func (aa *AddrAllocator) GetNext() (string, error) {
	if aa.Next > aa.Max {
		return "", fmt.Errorf("%s.%d beyond %s.%d: %w", aa.Base, aa.Next, aa.Base, aa.Max, ErrAddrExhausted)
	}
	addr := aa.Base + "." + strconv.Itoa(aa.Next)
	aa.Next += 1

	return addr, nil
}

// Remaining gives the number of addresses still available
func (aa *AddrAllocator) Remaining() int {
	if aa.Next > aa.Max {
		return 0
	}
	return aa.Max - aa.Next + 1
}
