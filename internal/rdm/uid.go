// Package rdm implements the RDM (Remote Device Management) wire format:
// 48-bit device identifiers, packet framing/checksums, and the non-standard
// discovery-response encoding used by DISC_UNIQUE_BRANCH.
package rdm

import (
	"fmt"
	"hash/fnv"
)

// UID is a 48-bit RDM device identifier: a 16-bit manufacturer id in the
// upper bits and a 32-bit device id in the lower bits.
type UID uint64

const (
	// Broadcast addresses all manufacturers and all devices.
	Broadcast UID = 0xFFFF_FFFFFFFF
	// Max is the largest valid non-broadcast UID; the discovery space is [0, Max].
	Max UID = 0xFFFF_FFFFFFFE

	manufacturerBroadcast = 0xFFFF
)

// NewUID builds a UID from a manufacturer id and device id.
func NewUID(manufacturer uint16, device uint32) UID {
	return UID(uint64(manufacturer)<<32 | uint64(device))
}

// Manufacturer returns the upper 16 bits.
func (u UID) Manufacturer() uint16 {
	return uint16(u >> 32)
}

// Device returns the lower 32 bits.
func (u UID) Device() uint32 {
	return uint32(u)
}

// IsBroadcast reports whether u addresses every device of some manufacturer,
// including the all-manufacturers broadcast.
func (u UID) IsBroadcast() bool {
	return u.Device() == 0xFFFFFFFF
}

// ParseUID reads a UID from 6 big-endian bytes.
func ParseUID(b []byte) (UID, error) {
	if len(b) < 6 {
		return 0, fmt.Errorf("rdm: uid requires 6 bytes, got %d", len(b))
	}
	var v uint64
	for i := 0; i < 6; i++ {
		v = v<<8 | uint64(b[i])
	}
	return UID(v), nil
}

// Pack writes u as 6 big-endian bytes into dst, which must have length ≥ 6.
func (u UID) Pack(dst []byte) {
	v := uint64(u)
	for i := 5; i >= 0; i-- {
		dst[i] = byte(v)
		v >>= 8
	}
}

// Bytes returns u as a freshly allocated 6-byte big-endian slice.
func (u UID) Bytes() []byte {
	b := make([]byte, 6)
	u.Pack(b)
	return b
}

func (u UID) String() string {
	return fmt.Sprintf("%04X:%08X", u.Manufacturer(), u.Device())
}

// manufacturerID is the RDM manufacturer id synthesised controller UIDs are
// tagged with. It has no registered meaning outside this implementation.
const manufacturerID = 0x7A70

// GenerateControllerUID derives a controller UID from a transport descriptor
// string, matching the upstream behaviour of hashing the string and avoiding
// collision with the manufacturer-broadcast device id.
func GenerateControllerUID(descriptor string) UID {
	h := fnv.New32a()
	_, _ = h.Write([]byte(descriptor))
	device := h.Sum32()
	if device == 0xFFFFFFFF {
		device--
	}
	return NewUID(manufacturerID, device)
}
