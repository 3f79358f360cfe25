package zobject

import (
	"fmt"

	"github.com/gozork/zvm/internal/zcore"
)

// propertyHeader describes one property entry's size-byte encoding: how
// many header bytes precede the data, the property number and the data
// length.
type propertyHeader struct {
	number     uint8
	dataLength uint32
	headerSize uint32
}

// readPropertyHeader decodes the 1- or 2-byte size field at addr.
//
// Versions 1-3 always use a single byte: the top 3 bits hold length-1, the
// bottom 5 hold the property number.
//
// Version 4+ uses one byte when the top bit is clear (top 2 bits hold
// length-1, bottom 6 the number, length in {1,2}) and two bytes when it is
// set (bottom 6 bits of the first byte are the number; the second byte's
// bottom 6 bits give the length, with 0 meaning 64 — the Standard's "length
// 0 means 64" special case).
func readPropertyHeader(mem *zcore.Memory, version uint8, addr uint32) propertyHeader {
	b := mem.ReadByte(addr)
	if version <= 3 {
		return propertyHeader{
			number:     b & 0x1f,
			dataLength: uint32(b>>5) + 1,
			headerSize: 1,
		}
	}

	number := b & 0x3f
	if b&0x80 == 0 {
		length := uint32(1)
		if b&0x40 != 0 {
			length = 2
		}
		return propertyHeader{number: number, dataLength: length, headerSize: 1}
	}

	second := mem.ReadByte(addr + 1)
	length := uint32(second & 0x3f)
	if length == 0 {
		length = 64
	}
	return propertyHeader{number: number, dataLength: length, headerSize: 2}
}

// GetPropertyLength recovers a property's data length given the address of
// its data (not its header), which is the form the `get_prop_addr` result
// and `get_prop_len` opcode both take.
func GetPropertyLength(mem *zcore.Memory, version uint8, dataAddr uint32) uint32 {
	if dataAddr == 0 {
		return 0
	}
	if version <= 3 {
		b := mem.ReadByte(dataAddr - 1)
		return uint32(b>>5) + 1
	}

	sizeByte := mem.ReadByte(dataAddr - 1)
	if sizeByte&0x80 == 0 {
		if sizeByte&0x40 != 0 {
			return 2
		}
		return 1
	}
	length := uint32(sizeByte & 0x3f)
	if length == 0 {
		return 64
	}
	return length
}

func propertyTableHeaderSkip(mem *zcore.Memory, propsAddr uint32) uint32 {
	nameLen := uint32(mem.ReadByte(propsAddr))
	return propsAddr + 1 + nameLen*2
}

// firstPropertyAddr returns the address of the first property header in
// object's property table, skipping the short-name block.
func firstPropertyAddr(mem *zcore.Memory, propsAddr uint32) uint32 {
	return propertyTableHeaderSkip(mem, propsAddr)
}

// GetPropertyByAddress reads the raw bytes of the property whose header
// starts at headerAddr (1 or 2 bytes), returning the property number and
// its data bytes.
func GetPropertyByAddress(mem *zcore.Memory, version uint8, headerAddr uint32) (number uint8, data []uint8) {
	h := readPropertyHeader(mem, version, headerAddr)
	dataAddr := headerAddr + h.headerSize
	data = mem.ReadSlice(dataAddr, dataAddr+h.dataLength)
	return h.number, data
}

// GetProperty returns the data bytes of propertyId on the object whose
// property table starts at propsAddr, or nil if the object does not define
// that property (the caller is expected to fall back to the defaults
// table, per §4.3).
func GetProperty(mem *zcore.Memory, version uint8, propsAddr uint32, propertyId uint8) []uint8 {
	addr := firstPropertyAddr(mem, propsAddr)
	for {
		b := mem.ReadByte(addr)
		if b == 0 {
			return nil
		}
		h := readPropertyHeader(mem, version, addr)
		if h.number == propertyId {
			dataAddr := addr + h.headerSize
			return mem.ReadSlice(dataAddr, dataAddr+h.dataLength)
		}
		if h.number < propertyId {
			// Properties are stored in descending number order; once we
			// pass the target it cannot appear later.
			return nil
		}
		addr += h.headerSize + h.dataLength
	}
}

// GetPropertyAddr returns the address of propertyId's data (not its
// header), or 0 if the object does not define it.
func GetPropertyAddr(mem *zcore.Memory, version uint8, propsAddr uint32, propertyId uint8) uint32 {
	addr := firstPropertyAddr(mem, propsAddr)
	for {
		b := mem.ReadByte(addr)
		if b == 0 {
			return 0
		}
		h := readPropertyHeader(mem, version, addr)
		if h.number == propertyId {
			return addr + h.headerSize
		}
		if h.number < propertyId {
			return 0
		}
		addr += h.headerSize + h.dataLength
	}
}

// GetNextProperty implements get_next_prop: propertyId 0 returns the first
// property defined on the object, otherwise the property immediately
// following propertyId. Returns 0 once the list is exhausted.
func GetNextProperty(mem *zcore.Memory, version uint8, propsAddr uint32, propertyId uint8) uint8 {
	addr := firstPropertyAddr(mem, propsAddr)
	if propertyId == 0 {
		b := mem.ReadByte(addr)
		if b == 0 {
			return 0
		}
		h := readPropertyHeader(mem, version, addr)
		return h.number
	}

	for {
		b := mem.ReadByte(addr)
		if b == 0 {
			return 0
		}
		h := readPropertyHeader(mem, version, addr)
		addr += h.headerSize + h.dataLength
		if h.number == propertyId {
			next := mem.ReadByte(addr)
			if next == 0 {
				return 0
			}
			nh := readPropertyHeader(mem, version, addr)
			return nh.number
		}
	}
}

// SetProperty overwrites the data bytes of propertyId with value, matching
// the 1- or 2-byte store semantics of put_prop (a 1-byte property accepts
// only the low byte of value, a 2-byte property the full word).
func SetProperty(mem *zcore.Memory, version uint8, propsAddr uint32, propertyId uint8, value uint16) error {
	addr := firstPropertyAddr(mem, propsAddr)
	for {
		b := mem.ReadByte(addr)
		if b == 0 {
			return fmt.Errorf("zobject: put_prop on undefined property %d", propertyId)
		}
		h := readPropertyHeader(mem, version, addr)
		if h.number == propertyId {
			dataAddr := addr + h.headerSize
			if h.dataLength == 1 {
				return mem.WriteByte(dataAddr, uint8(value))
			}
			return mem.WriteWord(dataAddr, value)
		}
		addr += h.headerSize + h.dataLength
	}
}

// DefaultProperty reads propertyId's value from the object table's
// defaults block, used when an object doesn't define that property itself.
func DefaultProperty(mem *zcore.Memory, version uint8, objectTableBase uint32, propertyId uint8) uint16 {
	return mem.ReadWord(objectTableBase + uint32(propertyId-1)*2)
}
